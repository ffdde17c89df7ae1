// Package tags manages the per-country pool of affiliate tracking tags.
package tags

import (
	"context"
	"errors"
	"fmt"
	"time"

	"affiliate-tracking-system/internal/attribution"
	"affiliate-tracking-system/internal/metrics"
	"affiliate-tracking-system/internal/models"
	"affiliate-tracking-system/internal/repository"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultResetAfter = 26 * time.Hour

	claimBatch       = 5
	maxClaimAttempts = 3
	backfillTimeout  = 5 * time.Minute

	// The CMS bumps updatedAt on every write, so a late fbclid would
	// restart the reset window of a used tag.
	fbclidAttachWindow = time.Hour
)

var ErrNoAvailableTags = errors.New("no available tags")

type Pool struct {
	tags       repository.TagRepository
	purchases  repository.PurchaseRepository
	registrar  Registrar
	logger     *logrus.Logger
	resetAfter time.Duration
	now        func() time.Time

	backfills singleflight.Group
}

func NewPool(tags repository.TagRepository, purchases repository.PurchaseRepository, logger *logrus.Logger) *Pool {
	return &Pool{
		tags:       tags,
		purchases:  purchases,
		logger:     logger,
		resetAfter: DefaultResetAfter,
		now:        time.Now,
	}
}

func (p *Pool) SetResetAfter(d time.Duration) {
	if d > 0 {
		p.resetAfter = d
	}
}

func (p *Pool) SetRegistrar(r Registrar) {
	p.registrar = r
}

func (p *Pool) SetClock(now func() time.Time) {
	p.now = now
}

// ClaimTag hands out a tag for one click. The caller's previous tag is
// re-issued when it is still unclaimed; otherwise the oldest unused tag of
// the country is taken. Callers must serialize calls.
func (p *Pool) ClaimTag(ctx context.Context, previousDocID, country string, claim models.TagClaim) (*models.Tag, error) {
	if previousDocID != "" {
		tag, err := p.tags.GetTag(ctx, country, previousDocID)
		switch {
		case err == nil && !tag.IsUsed:
			err := p.claim(ctx, tag, claim)
			if err == nil {
				return tag, nil
			}
			if !errors.Is(err, repository.ErrTagTaken) {
				return nil, err
			}
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			p.logger.WithError(err).WithField("tracking_doc_id", previousDocID).Warn("Failed to load previous tag")
		}
	}

	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		candidates, err := p.tags.ListUnusedTags(ctx, country, claimBatch)
		if err != nil {
			return nil, fmt.Errorf("load unused tags: %w", err)
		}
		if len(candidates) == 0 {
			break
		}
		for i := range candidates {
			tag := &candidates[i]
			err := p.claim(ctx, tag, claim)
			if err == nil {
				return tag, nil
			}
			if !errors.Is(err, repository.ErrTagTaken) {
				return nil, err
			}
		}
	}

	metrics.TagPoolExhausted.WithLabelValues(country).Inc()
	return nil, ErrNoAvailableTags
}

func (p *Pool) claim(ctx context.Context, tag *models.Tag, claim models.TagClaim) error {
	if err := p.tags.ClaimTag(ctx, tag.Country, tag.DocumentID, claim); err != nil {
		return err
	}
	tag.IsUsed = true
	tag.ProductID = claim.ProductID
	if claim.Fbclid != "" {
		tag.Fbclid = claim.Fbclid
	}
	tag.UpdatedAt = p.now()

	metrics.TagsClaimed.WithLabelValues(tag.Country).Inc()
	p.logger.WithFields(logrus.Fields{
		"tracking_id": tag.Name,
		"country":     tag.Country,
		"product_id":  claim.ProductID,
	}).Info("Tag claimed")
	return nil
}

// FirstAvailable peeks at the tag the next claim would most likely get.
func (p *Pool) FirstAvailable(ctx context.Context, country string) (*models.Tag, error) {
	tags, err := p.tags.ListUnusedTags(ctx, country, 1)
	if err != nil {
		return nil, fmt.Errorf("load unused tags: %w", err)
	}
	if len(tags) == 0 {
		return nil, ErrNoAvailableTags
	}
	return &tags[0], nil
}

// AttachFbclid records a Facebook click id on a tag once. It reports false
// when the tag already carries one or was claimed too long ago for the click
// to belong to the claim.
func (p *Pool) AttachFbclid(ctx context.Context, country, tagName, fbclid, productID string) (bool, error) {
	tag, err := p.tags.GetTagByName(ctx, country, tagName)
	if err != nil {
		return false, err
	}
	if tag.Fbclid != "" {
		return false, nil
	}
	if tag.IsUsed && p.now().Sub(tag.ClaimedAt()) > fbclidAttachWindow {
		p.logger.WithFields(logrus.Fields{
			"tracking_id": tag.Name,
			"country":     country,
			"claimed_at":  tag.ClaimedAt(),
		}).Warn("Fbclid arrived after attach window, claim left untouched")
		return false, nil
	}
	if err := p.tags.SetTagFbclid(ctx, country, tag.DocumentID, fbclid, productID); err != nil {
		return false, err
	}
	return true, nil
}

// ResetOldUsedTags returns tags claimed longer than the reset window to the
// pool unless a purchase arrived under the tag within the last window and
// after the claim. Only one window of purchase history is read per run.
func (p *Pool) ResetOldUsedTags(ctx context.Context, countries []string) (int, error) {
	cutoff := p.now().Add(-p.resetAfter)

	var stale []models.Tag
	for _, country := range countries {
		tags, err := p.tags.ListUsedTagsBefore(ctx, country, cutoff)
		if err != nil {
			return 0, fmt.Errorf("list used tags for %s: %w", country, err)
		}
		stale = append(stale, tags...)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	purchases, err := p.purchases.ListPurchasesSince(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("load purchases: %w", err)
	}
	lastPurchase := make(map[string]time.Time, len(purchases))
	for _, purchase := range purchases {
		key := attribution.NormalizeTrackingID(purchase.TrackingID)
		if purchase.CreatedAt.After(lastPurchase[key]) {
			lastPurchase[key] = purchase.CreatedAt
		}
	}

	reset := 0
	for _, tag := range stale {
		log := p.logger.WithFields(logrus.Fields{
			"tracking_id": tag.Name,
			"country":     tag.Country,
		})
		since := tag.ClaimedAt()
		if since.Before(cutoff) {
			since = cutoff
		}
		if converted, ok := lastPurchase[attribution.NormalizeTrackingID(tag.Name)]; ok && !converted.Before(since) {
			log.Debug("Tag converted, keeping claim")
			continue
		}
		if err := p.tags.ResetTag(ctx, tag.Country, tag.DocumentID); err != nil {
			log.WithError(err).Error("Failed to reset tag")
			continue
		}
		metrics.TagsReset.WithLabelValues(tag.Country).Inc()
		reset++
	}

	p.logger.WithFields(logrus.Fields{
		"reset":  reset,
		"stale":  len(stale),
		"cutoff": cutoff,
	}).Info("Old used tags reset")
	return reset, nil
}

// Backfill registers one new tag for the country and adds it to the pool.
// Concurrent calls for the same country share a single registration.
func (p *Pool) Backfill(ctx context.Context, country string) (*models.Tag, error) {
	if p.registrar == nil {
		return nil, errors.New("no tag registrar configured")
	}
	v, err, _ := p.backfills.Do(country, func() (interface{}, error) {
		name, err := p.registrar.RegisterTag(ctx, country)
		if err != nil {
			return nil, fmt.Errorf("register tag: %w", err)
		}
		tag, err := p.tags.CreateTag(ctx, models.Tag{Name: name, Country: country})
		if err != nil {
			return nil, err
		}
		p.logger.WithFields(logrus.Fields{
			"tracking_id": tag.Name,
			"country":     country,
		}).Info("Tag pool backfilled")
		return tag, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Tag), nil
}

// TriggerBackfill starts a backfill without waiting for it.
func (p *Pool) TriggerBackfill(country string) {
	if p.registrar == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), backfillTimeout)
		defer cancel()
		if _, err := p.Backfill(ctx, country); err != nil {
			p.logger.WithError(err).WithField("country", country).Error("Tag backfill failed")
		}
	}()
}
