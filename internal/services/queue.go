package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"affiliate-tracking-system/internal/kafka"
	"affiliate-tracking-system/internal/metrics"
	"affiliate-tracking-system/internal/models"
	"affiliate-tracking-system/internal/repository"

	"github.com/sirupsen/logrus"
)

// LeadNotifier reports a fresh lead to an ad network.
type LeadNotifier interface {
	SendLead(ctx context.Context, lead models.Lead, sourceURL string) error
}

// LeadQueue runs the side effects of an accepted lead off the request path:
// persist it, tell Facebook, publish lead.created. Failures are logged only.
type LeadQueue struct {
	leads      chan models.Lead
	store      repository.LeadRepository
	notifier   LeadNotifier
	events     kafka.Publisher
	logger     *logrus.Logger
	siteURL    string
	retryDelay time.Duration
	detached   sync.WaitGroup
}

func NewLeadQueue(store repository.LeadRepository, logger *logrus.Logger, bufferSize int) *LeadQueue {
	return &LeadQueue{
		leads:      make(chan models.Lead, bufferSize),
		store:      store,
		events:     kafka.NopPublisher{},
		logger:     logger,
		retryDelay: time.Second,
	}
}

// SetNotifier enables the Facebook Lead event for every persisted lead.
func (q *LeadQueue) SetNotifier(n LeadNotifier, siteURL string) {
	q.notifier = n
	q.siteURL = siteURL
}

func (q *LeadQueue) SetPublisher(p kafka.Publisher) {
	if p != nil {
		q.events = p
	}
}

// Enqueue never blocks. When the buffer is full the lead is handled on its
// own goroutine instead of being dropped.
func (q *LeadQueue) Enqueue(lead models.Lead) bool {
	select {
	case q.leads <- lead:
		metrics.QueueSize.Set(float64(len(q.leads)))
		return true
	default:
		q.logger.WithField("tracking_id", lead.TrackingID).Warn("Lead queue is full, handling lead directly")
		q.detached.Add(1)
		go func() {
			defer q.detached.Done()
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			q.processBatch(ctx, []models.Lead{lead})
		}()
		return false
	}
}

func (q *LeadQueue) StartProcessor(ctx context.Context) {
	batchSize := 20
	batchTimeout := time.Second
	batch := make([]models.Lead, 0, batchSize)
	timer := time.NewTimer(batchTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Drain whatever is buffered before exiting.
		drain:
			for {
				select {
				case lead := <-q.leads:
					batch = append(batch, lead)
				default:
					break drain
				}
			}
			if len(batch) > 0 {
				flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				q.processBatch(flushCtx, batch)
				cancel()
			}
			q.detached.Wait()
			return
		case lead := <-q.leads:
			metrics.QueueSize.Set(float64(len(q.leads)))
			batch = append(batch, lead)
			if len(batch) >= batchSize {
				q.processBatch(ctx, batch)
				batch = batch[:0]
				timer.Reset(batchTimeout)
			}
		case <-timer.C:
			if len(batch) > 0 {
				q.processBatch(ctx, batch)
				batch = batch[:0]
			}
			timer.Reset(batchTimeout)
		}
	}
}

func (q *LeadQueue) processBatch(ctx context.Context, leads []models.Lead) {
	for _, lead := range leads {
		log := q.logger.WithFields(logrus.Fields{
			"tracking_id": lead.TrackingID,
			"event_id":    lead.EventID,
		})

		if err := q.persist(ctx, lead); err != nil {
			metrics.LeadsPersisted.WithLabelValues("failed").Inc()
			log.WithError(err).Error("Failed to persist lead after all retries")
		} else {
			metrics.LeadsPersisted.WithLabelValues("ok").Inc()
		}

		if q.notifier != nil {
			sourceURL := fmt.Sprintf("%s/product/%s", q.siteURL, lead.ProductID)
			if err := q.notifier.SendLead(ctx, lead, sourceURL); err != nil {
				log.WithError(err).Warn("Failed to send lead event")
			}
		}

		event, err := kafka.NewEvent(kafka.EventLeadCreated, lead)
		if err == nil {
			err = q.events.Publish(ctx, lead.TrackingID, event)
		}
		if err != nil {
			log.WithError(err).Warn("Failed to publish lead event")
		}
	}
}

func (q *LeadQueue) persist(ctx context.Context, lead models.Lead) error {
	maxRetries := 3
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = q.store.CreateLead(ctx, lead); err == nil {
			return nil
		}
		q.logger.WithError(err).Warnf("Failed to persist lead (attempt %d/%d)", i+1, maxRetries)
		if i == maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * q.retryDelay):
		}
	}
	return err
}
