package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"affiliate-tracking-system/internal/attribution"
	"affiliate-tracking-system/internal/commission"
	"affiliate-tracking-system/internal/conversions"
	"affiliate-tracking-system/internal/earnings"
	"affiliate-tracking-system/internal/models"
	"affiliate-tracking-system/internal/notify"
	"affiliate-tracking-system/internal/repository"

	"github.com/sirupsen/logrus"
)

const (
	DefaultLeadLookback     = 47 * time.Hour
	DefaultPurchaseLookback = 24 * time.Hour
)

// SyncResult summarizes one purchase-sync run.
type SyncResult struct {
	Orders     int                `json:"orders"`
	Leads      int                `json:"leads"`
	Matched    int                `json:"matched"`
	Candidates int                `json:"candidates"`
	Created    int                `json:"created"`
	Sent       []models.SentGroup `json:"sent"`
}

// PurchaseSync turns the latest earnings report into stored purchases and
// reports every unreported purchase to each ad network.
type PurchaseSync struct {
	source            earnings.Source
	store             repository.Store
	builder           *attribution.Builder
	reporters         []*conversions.Reporter
	notifier          notify.Notifier
	logger            *logrus.Logger
	leadLookback      time.Duration
	purchaseLookback  time.Duration
	defaultCommission float64
	now               func() time.Time
}

func NewPurchaseSync(source earnings.Source, store repository.Store, siteURL string, notifier notify.Notifier, logger *logrus.Logger) *PurchaseSync {
	return &PurchaseSync{
		source:            source,
		store:             store,
		builder:           attribution.NewBuilder(siteURL),
		notifier:          notifier,
		logger:            logger,
		leadLookback:      DefaultLeadLookback,
		purchaseLookback:  DefaultPurchaseLookback,
		defaultCommission: commission.DefaultRate,
		now:               time.Now,
	}
}

func (s *PurchaseSync) AddReporter(r *conversions.Reporter) {
	s.reporters = append(s.reporters, r)
}

func (s *PurchaseSync) SetWindows(leadLookback, purchaseLookback time.Duration) {
	if leadLookback > 0 {
		s.leadLookback = leadLookback
	}
	if purchaseLookback > 0 {
		s.purchaseLookback = purchaseLookback
	}
}

func (s *PurchaseSync) SetDefaultCommission(rate float64) {
	s.defaultCommission = rate
}

// Run executes the whole pipeline. Failures in one stage are logged and
// returned after the remaining stages have had their turn; reporting runs
// even when there are no new orders.
func (s *PurchaseSync) Run(ctx context.Context) (*SyncResult, error) {
	result := &SyncResult{}
	var errs []error

	orders, err := s.source.FetchOrders(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to fetch earnings report")
		errs = append(errs, fmt.Errorf("fetch orders: %w", err))
	}
	result.Orders = len(orders)

	if len(orders) > 0 {
		candidates, err := s.prepare(ctx, orders, result)
		if err != nil {
			s.logger.WithError(err).Error("Failed to prepare purchases")
			errs = append(errs, err)
		}
		result.Created = s.persist(ctx, candidates)
	} else {
		s.logger.Info("No new orders in earnings report")
	}

	for _, reporter := range s.reporters {
		result.Sent = append(result.Sent, s.report(ctx, reporter)...)
	}

	s.logger.WithFields(logrus.Fields{
		"orders":     result.Orders,
		"leads":      result.Leads,
		"matched":    result.Matched,
		"candidates": result.Candidates,
		"created":    result.Created,
		"sent":       len(result.Sent),
	}).Info("Purchase sync finished")

	if result.Created > 0 || len(result.Sent) > 0 {
		if err := s.notifier.Notify(ctx, Summary(result)); err != nil {
			s.logger.WithError(err).Warn("Failed to send sync summary")
		}
	}
	return result, errors.Join(errs...)
}

// Preview runs attribution, dedup and pricing for orders without writing
// anything.
func (s *PurchaseSync) Preview(ctx context.Context, orders []models.Order) ([]models.Purchase, error) {
	return s.prepare(ctx, orders, &SyncResult{Orders: len(orders)})
}

func (s *PurchaseSync) prepare(ctx context.Context, orders []models.Order, result *SyncResult) ([]models.Purchase, error) {
	now := s.now()

	leads, err := s.store.ListLeadsSince(ctx, now.Add(-s.leadLookback))
	if err != nil {
		return nil, fmt.Errorf("load leads: %w", err)
	}
	leads = attribution.LatestPerTrackingID(leads)
	result.Leads = len(leads)

	attributed := attribution.Attach(orders, leads)
	result.Matched = len(attributed)
	if len(attributed) == 0 {
		return nil, nil
	}

	built := s.builder.Build(attributed)

	recent, err := s.store.ListPurchasesSince(ctx, now.Add(-s.purchaseLookback))
	if err != nil {
		return nil, fmt.Errorf("load recent purchases: %w", err)
	}
	fresh := attribution.FilterNew(built, recent)
	result.Candidates = len(fresh)
	if len(fresh) == 0 {
		return nil, nil
	}

	rates, err := s.store.ListCommissions(ctx)
	if err != nil {
		// Unknown categories already fall back to the default rate.
		s.logger.WithError(err).Warn("Failed to load commission table, using default rate")
	}
	return commission.NewTable(rates, s.defaultCommission).Apply(fresh), nil
}

func (s *PurchaseSync) persist(ctx context.Context, purchases []models.Purchase) int {
	created := 0
	for _, p := range purchases {
		if _, err := s.store.CreatePurchase(ctx, p); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"tracking_id": p.TrackingID,
				"asin":        p.ASIN,
			}).Error("Failed to save purchase")
			continue
		}
		created++
	}
	return created
}

func (s *PurchaseSync) report(ctx context.Context, reporter *conversions.Reporter) []models.SentGroup {
	network := reporter.Network()
	unreported, err := s.store.ListUnreportedPurchases(ctx, network)
	if err != nil {
		s.logger.WithError(err).WithField("network", network).Error("Failed to load unreported purchases")
		return nil
	}
	if len(unreported) == 0 {
		return nil
	}
	return reporter.SendAndMarkUsed(ctx, unreported)
}

// Summary formats a run for the operator chat.
func Summary(result *SyncResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🛒 Purchase sync: %d orders, %d matched leads, %d new purchases\n",
		result.Orders, result.Matched, result.Created)
	for _, group := range result.Sent {
		fmt.Fprintf(&b, "\n✅ %s %s: $%.2f", group.Network, group.TrackingID, group.TotalValue)
		for _, item := range group.Items {
			title := item.Title
			if title == "" {
				title = item.ASIN
			}
			fmt.Fprintf(&b, "\n  • %s x%d, $%.2f", title, item.OrderedCount, item.Value)
		}
	}
	return b.String()
}
