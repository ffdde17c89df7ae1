package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"affiliate-tracking-system/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// GormStore is the relational backend. Tags of every country share one
// table; the country column partitions the pool.
type GormStore struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewGormStore(db *gorm.DB, logger *logrus.Logger) *GormStore {
	return &GormStore{
		db:     db,
		logger: logger,
	}
}

func (r *GormStore) GetTag(ctx context.Context, country, docID string) (*models.Tag, error) {
	var tag models.Tag
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND country = ?", docID, country).
		First(&tag).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &tag, nil
}

func (r *GormStore) GetTagByName(ctx context.Context, country, name string) (*models.Tag, error) {
	var tag models.Tag
	err := r.db.WithContext(ctx).
		Where("name = ? AND country = ?", name, country).
		First(&tag).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &tag, nil
}

func (r *GormStore) ListUnusedTags(ctx context.Context, country string, limit int) ([]models.Tag, error) {
	var tags []models.Tag
	q := r.db.WithContext(ctx).
		Where("country = ? AND is_used = ?", country, false).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&tags).Error; err != nil {
		return nil, fmt.Errorf("list unused tags: %w", err)
	}
	return tags, nil
}

func (r *GormStore) ListUsedTagsBefore(ctx context.Context, country string, cutoff time.Time) ([]models.Tag, error) {
	var tags []models.Tag
	err := r.db.WithContext(ctx).
		Where("country = ? AND is_used = ? AND updated_at < ?", country, true, cutoff).
		Order("id ASC").
		Find(&tags).Error
	if err != nil {
		return nil, fmt.Errorf("list used tags: %w", err)
	}
	return tags, nil
}

// ClaimTag flips is_used only while it is still false, so two writers can
// never both win the same row.
func (r *GormStore) ClaimTag(ctx context.Context, country, docID string, claim models.TagClaim) error {
	updates := map[string]interface{}{
		"is_used":    true,
		"product_id": claim.ProductID,
		"updated_at": time.Now().UTC(),
	}
	if claim.Fbclid != "" {
		updates["fbclid"] = claim.Fbclid
	}

	res := r.db.WithContext(ctx).
		Model(&models.Tag{}).
		Where("document_id = ? AND country = ? AND is_used = ?", docID, country, false).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("claim tag: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTagTaken
	}

	r.logger.WithFields(logrus.Fields{
		"document_id": docID,
		"country":     country,
	}).Debug("Tag claimed")
	return nil
}

func (r *GormStore) ResetTag(ctx context.Context, country, docID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Tag{}).
		Where("document_id = ? AND country = ?", docID, country).
		Updates(map[string]interface{}{
			"is_used":    false,
			"fbclid":     "",
			"product_id": "",
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("reset tag: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormStore) SetTagFbclid(ctx context.Context, country, docID, fbclid, productID string) error {
	updates := map[string]interface{}{"fbclid": fbclid}
	if productID != "" {
		updates["product_id"] = productID
	}
	res := r.db.WithContext(ctx).
		Model(&models.Tag{}).
		Where("document_id = ? AND country = ?", docID, country).
		UpdateColumns(updates)
	if res.Error != nil {
		return fmt.Errorf("set tag fbclid: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormStore) CreateTag(ctx context.Context, tag models.Tag) (*models.Tag, error) {
	if tag.DocumentID == "" {
		tag.DocumentID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(&tag).Error; err != nil {
		return nil, fmt.Errorf("create tag: %w", err)
	}
	return &tag, nil
}

func (r *GormStore) CreateLead(ctx context.Context, lead models.Lead) error {
	if lead.DocumentID == "" {
		lead.DocumentID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(&lead).Error; err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

func (r *GormStore) ListLeadsSince(ctx context.Context, since time.Time) ([]models.Lead, error) {
	var leads []models.Lead
	err := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at DESC, id DESC").
		Find(&leads).Error
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	return leads, nil
}

func (r *GormStore) CreatePurchase(ctx context.Context, purchase models.Purchase) (*models.Purchase, error) {
	if purchase.DocumentID == "" {
		purchase.DocumentID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(&purchase).Error; err != nil {
		return nil, fmt.Errorf("create purchase: %w", err)
	}
	return &purchase, nil
}

func (r *GormStore) ListPurchasesSince(ctx context.Context, since time.Time) ([]models.Purchase, error) {
	var purchases []models.Purchase
	err := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("created_at DESC, id DESC").
		Find(&purchases).Error
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	return purchases, nil
}

func (r *GormStore) ListUnreportedPurchases(ctx context.Context, network models.Network) ([]models.Purchase, error) {
	column, err := reportedColumn(network)
	if err != nil {
		return nil, err
	}
	var purchases []models.Purchase
	err = r.db.WithContext(ctx).
		Where(column+" = ?", false).
		Order("created_at ASC, id ASC").
		Find(&purchases).Error
	if err != nil {
		return nil, fmt.Errorf("list unreported purchases: %w", err)
	}
	return purchases, nil
}

func (r *GormStore) MarkPurchaseReported(ctx context.Context, key string, network models.Network) error {
	column, err := reportedColumn(network)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("document_id = ?", key).
		UpdateColumn(column, true)
	if res.Error != nil {
		return fmt.Errorf("mark purchase reported: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormStore) ListCommissions(ctx context.Context) ([]models.CommissionRate, error) {
	var rates []models.CommissionRate
	if err := r.db.WithContext(ctx).Find(&rates).Error; err != nil {
		return nil, fmt.Errorf("list commissions: %w", err)
	}
	return rates, nil
}

func reportedColumn(network models.Network) (string, error) {
	switch network {
	case models.NetworkFacebook:
		return "is_used", nil
	case models.NetworkGoogle:
		return "is_google_used", nil
	}
	return "", fmt.Errorf("unknown network %q", network)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
