package repository

import (
	"context"
	"errors"
	"time"

	"affiliate-tracking-system/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrTagTaken is returned by a conditional claim that lost to another writer.
	ErrTagTaken = errors.New("tag already claimed")
)

type TagRepository interface {
	GetTag(ctx context.Context, country, docID string) (*models.Tag, error)
	GetTagByName(ctx context.Context, country, name string) (*models.Tag, error)
	// ListUnusedTags returns unclaimed tags oldest first.
	ListUnusedTags(ctx context.Context, country string, limit int) ([]models.Tag, error)
	// ListUsedTagsBefore returns claimed tags whose claim is older than cutoff.
	ListUsedTagsBefore(ctx context.Context, country string, cutoff time.Time) ([]models.Tag, error)
	ClaimTag(ctx context.Context, country, docID string, claim models.TagClaim) error
	ResetTag(ctx context.Context, country, docID string) error
	SetTagFbclid(ctx context.Context, country, docID, fbclid, productID string) error
	CreateTag(ctx context.Context, tag models.Tag) (*models.Tag, error)
}

type LeadRepository interface {
	CreateLead(ctx context.Context, lead models.Lead) error
	// ListLeadsSince returns leads created at or after since, newest first.
	ListLeadsSince(ctx context.Context, since time.Time) ([]models.Lead, error)
}

type PurchaseRepository interface {
	CreatePurchase(ctx context.Context, purchase models.Purchase) (*models.Purchase, error)
	ListPurchasesSince(ctx context.Context, since time.Time) ([]models.Purchase, error)
	// ListUnreportedPurchases returns purchases not yet sent to network, oldest first.
	ListUnreportedPurchases(ctx context.Context, network models.Network) ([]models.Purchase, error)
	MarkPurchaseReported(ctx context.Context, key string, network models.Network) error
}

type CommissionRepository interface {
	ListCommissions(ctx context.Context) ([]models.CommissionRate, error)
}

type Store interface {
	TagRepository
	LeadRepository
	PurchaseRepository
	CommissionRepository
}
