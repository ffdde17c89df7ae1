package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"affiliate-tracking-system/internal/dedup"
	"affiliate-tracking-system/internal/metrics"
	"affiliate-tracking-system/internal/models"
	"affiliate-tracking-system/internal/tags"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const DefaultCountry = "USA"

var ErrLockTimeout = errors.New("gave up waiting for the tag lock")

// TagPool is the part of the tag pool the lead path needs.
type TagPool interface {
	ClaimTag(ctx context.Context, previousDocID, country string, claim models.TagClaim) (*models.Tag, error)
	TriggerBackfill(country string)
}

// LeadDispatcher accepts a lead for background handling without blocking.
type LeadDispatcher interface {
	Enqueue(lead models.Lead) bool
}

type LeadService struct {
	pool       TagPool
	cache      dedup.Cache
	dispatcher LeadDispatcher
	logger     *logrus.Logger
	now        func() time.Time

	// lock serializes dedup lookup, claim and cache update. A weighted
	// semaphore of one grants waiters in arrival order and honours ctx.
	lock *semaphore.Weighted
}

func NewLeadService(pool TagPool, cache dedup.Cache, dispatcher LeadDispatcher, logger *logrus.Logger) *LeadService {
	return &LeadService{
		pool:       pool,
		cache:      cache,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
		lock:       semaphore.NewWeighted(1),
	}
}

// Ingest assigns a tracking id to one ad click. Repeat clicks inside the
// fingerprint window get their earlier assignment back and create nothing.
func (s *LeadService) Ingest(ctx context.Context, req models.LeadRequest, client models.ClientInfo) (*models.LeadResponse, error) {
	country := strings.TrimSpace(req.Country)
	if country == "" {
		country = DefaultCountry
	}
	metrics.LeadsReceived.WithLabelValues(country).Inc()

	keys := dedup.Fingerprint{
		ProductID: req.ProductID.String(),
		IP:        client.IP,
		Fbc:       req.Fbc,
		Fbp:       req.Fbp,
		Gclid:     req.Gclid,
		Wbraid:    req.Wbraid,
		Gbraid:    req.Gbraid,
	}.Keys()

	entry, cached, err := s.assign(ctx, keys, req, country)
	if err != nil {
		return nil, err
	}

	resp := &models.LeadResponse{
		Success:       true,
		TrackingID:    entry.TrackingID,
		TrackingDocID: entry.TrackingDocID,
		Cached:        cached,
	}
	if cached {
		metrics.LeadsDeduplicated.Inc()
		s.logger.WithFields(logrus.Fields{
			"tracking_id": entry.TrackingID,
			"product_id":  req.ProductID,
		}).Info("Repeat click, reusing tracking id")
		return resp, nil
	}

	s.dispatcher.Enqueue(s.newLead(req, client, country, entry))
	return resp, nil
}

// assign is the critical section. The lock is released before anything
// else happens.
func (s *LeadService) assign(ctx context.Context, keys []string, req models.LeadRequest, country string) (dedup.Entry, bool, error) {
	if err := s.lock.Acquire(ctx, 1); err != nil {
		return dedup.Entry{}, false, fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	defer s.lock.Release(1)

	entry, hit, err := s.cache.Lookup(ctx, keys)
	if err != nil {
		s.logger.WithError(err).Warn("Fingerprint lookup failed, treating as new click")
	}
	if hit {
		return entry, true, nil
	}

	tag, err := s.pool.ClaimTag(ctx, req.TrackingDocID, country, models.TagClaim{
		ProductID: req.ProductID.String(),
	})
	if err != nil {
		if errors.Is(err, tags.ErrNoAvailableTags) {
			s.logger.WithField("country", country).Error("Tag pool exhausted")
			s.pool.TriggerBackfill(country)
		}
		return dedup.Entry{}, false, err
	}

	entry = dedup.Entry{TrackingID: tag.Name, TrackingDocID: tag.DocumentID}
	if err := s.cache.Record(ctx, keys, entry); err != nil {
		s.logger.WithError(err).Warn("Failed to record fingerprint")
	}
	return entry, false, nil
}

// ClaimTag takes a tag for a non-click consumer such as a product card,
// serialized with lead claims.
func (s *LeadService) ClaimTag(ctx context.Context, country string, claim models.TagClaim) (*models.Tag, error) {
	if err := s.lock.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	defer s.lock.Release(1)

	tag, err := s.pool.ClaimTag(ctx, "", country, claim)
	if err != nil {
		if errors.Is(err, tags.ErrNoAvailableTags) {
			s.pool.TriggerBackfill(country)
		}
		return nil, err
	}
	return tag, nil
}

func (s *LeadService) TriggerBackfill(country string) {
	s.pool.TriggerBackfill(country)
}

func (s *LeadService) newLead(req models.LeadRequest, client models.ClientInfo, country string, entry dedup.Entry) models.Lead {
	clickDate := req.ClickDate
	if clickDate == "" {
		clickDate = models.FlexString(s.now().UTC().Format(time.RFC3339))
	}
	return models.Lead{
		EventID:         uuid.NewString(),
		ProductID:       req.ProductID,
		TrackingID:      entry.TrackingID,
		TrackingDocID:   entry.TrackingDocID,
		Country:         country,
		Fbp:             req.Fbp,
		Fbc:             req.Fbc,
		Gclid:           req.Gclid,
		Wbraid:          req.Wbraid,
		Gbraid:          req.Gbraid,
		ExternalID:      req.ExternalID,
		ClientIPAddress: client.IP,
		ClientUserAgent: client.UserAgent,
		ClickDate:       clickDate,
		ActionSource:    "website",
		CreatedAt:       s.now(),
	}
}
