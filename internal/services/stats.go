package services

import (
	"context"
	"fmt"
	"time"

	"affiliate-tracking-system/internal/commission"
	"affiliate-tracking-system/internal/models"
	"affiliate-tracking-system/internal/repository"
)

var timeframes = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
}

// ParseTimeframe maps the stats query parameter to a window.
func ParseTimeframe(tf string) (time.Duration, error) {
	if tf == "" {
		tf = "24h"
	}
	d, ok := timeframes[tf]
	if !ok {
		return 0, fmt.Errorf("unknown timeframe %q", tf)
	}
	return d, nil
}

type StatsService struct {
	purchases repository.PurchaseRepository
	now       func() time.Time
}

func NewStatsService(purchases repository.PurchaseRepository) *StatsService {
	return &StatsService{purchases: purchases, now: time.Now}
}

func (s *StatsService) PurchaseStats(ctx context.Context, window time.Duration) (*models.PurchaseStats, error) {
	now := s.now()
	since := now.Add(-window)
	purchases, err := s.purchases.ListPurchasesSince(ctx, since)
	if err != nil {
		return nil, err
	}

	stats := &models.PurchaseStats{Since: since, Purchases: len(purchases)}
	total := 0.0
	for _, p := range purchases {
		total += float64(p.Value)
		if p.IsUsed {
			stats.ReportedFacebook++
		}
		if p.IsGoogleUsed {
			stats.ReportedGoogle++
		}
		if p.CreatedAt.After(now.Add(-time.Hour)) {
			stats.LastHour++
		}
		if p.CreatedAt.After(now.Add(-24 * time.Hour)) {
			stats.LastDay++
		}
	}
	stats.TotalValue = commission.Round2(total)
	return stats, nil
}
