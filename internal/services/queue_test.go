package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"affiliate-tracking-system/internal/kafka"
	"affiliate-tracking-system/internal/logger"
	"affiliate-tracking-system/internal/models"
	"affiliate-tracking-system/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyLeadStore struct {
	*repository.MemoryStore
	mu       sync.Mutex
	failures int
}

func (s *flakyLeadStore) CreateLead(ctx context.Context, lead models.Lead) error {
	s.mu.Lock()
	if s.failures > 0 {
		s.failures--
		s.mu.Unlock()
		return errors.New("cms timeout")
	}
	s.mu.Unlock()
	return s.MemoryStore.CreateLead(ctx, lead)
}

type leadEvents struct {
	mu     sync.Mutex
	leads  []string
	events []string
}

func (l *leadEvents) SendLead(_ context.Context, lead models.Lead, sourceURL string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.leads = append(l.leads, lead.EventID+" "+sourceURL)
	return nil
}

func (l *leadEvents) Publish(_ context.Context, key string, event kafka.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event.Type+" "+key)
	return nil
}

func (l *leadEvents) Close() error { return nil }

func (l *leadEvents) snapshot() ([]string, []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.leads...), append([]string(nil), l.events...)
}

func TestLeadQueueProcessesLeads(t *testing.T) {
	store := &flakyLeadStore{MemoryStore: repository.NewMemoryStore(nil), failures: 1}
	sink := &leadEvents{}

	q := NewLeadQueue(store, logger.Discard(), 10)
	q.retryDelay = time.Millisecond
	q.SetNotifier(sink, "https://nice-advice.info")
	q.SetPublisher(sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.StartProcessor(ctx)
		close(done)
	}()

	assert.True(t, q.Enqueue(models.Lead{EventID: "ev-1", ProductID: "5", TrackingID: "site-20"}))

	assert.Eventually(t, func() bool {
		leads, err := store.ListLeadsSince(context.Background(), time.Time{})
		return err == nil && len(leads) == 1
	}, 3*time.Second, 10*time.Millisecond, "lead persisted after one retry")

	cancel()
	<-done

	leads, events := sink.snapshot()
	assert.Equal(t, []string{"ev-1 https://nice-advice.info/product/5"}, leads)
	assert.Equal(t, []string{kafka.EventLeadCreated + " site-20"}, events)
}

func TestLeadQueueFlushesOnShutdown(t *testing.T) {
	store := repository.NewMemoryStore(nil)
	q := NewLeadQueue(store, logger.Discard(), 10)

	require.True(t, q.Enqueue(models.Lead{EventID: "a"}))
	require.True(t, q.Enqueue(models.Lead{EventID: "b"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.StartProcessor(ctx)

	leads, err := store.ListLeadsSince(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Len(t, leads, 2)
}

func TestLeadQueueFullHandlesDirectly(t *testing.T) {
	store := repository.NewMemoryStore(nil)
	q := NewLeadQueue(store, logger.Discard(), 1)

	assert.True(t, q.Enqueue(models.Lead{EventID: "buffered"}))
	assert.False(t, q.Enqueue(models.Lead{EventID: "overflow"}))

	q.detached.Wait()
	leads, err := store.ListLeadsSince(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "overflow", leads[0].EventID)
}
