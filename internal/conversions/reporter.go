// Package conversions reports attributed purchases to ad networks.
package conversions

import (
	"context"

	"affiliate-tracking-system/internal/commission"
	"affiliate-tracking-system/internal/kafka"
	"affiliate-tracking-system/internal/metrics"
	"affiliate-tracking-system/internal/models"

	"github.com/sirupsen/logrus"
)

const noTrackingKey = "no-tracking"

// Group is one aggregated conversion: every unreported purchase carrying
// the same tracking id.
type Group struct {
	TrackingID string
	Purchases  []models.Purchase
	TotalValue float64
}

// Submitter is a single ad network's conversion API.
type Submitter interface {
	Network() models.Network
	// Eligible reports whether the purchase carries the identifiers the
	// network needs.
	Eligible(p models.Purchase) bool
	Submit(ctx context.Context, group Group) error
}

// Marker flips a purchase's per-network reported flag.
type Marker interface {
	MarkPurchaseReported(ctx context.Context, key string, network models.Network) error
}

type Reporter struct {
	submitter Submitter
	marker    Marker
	events    kafka.Publisher
	logger    *logrus.Logger
}

func NewReporter(submitter Submitter, marker Marker, events kafka.Publisher, logger *logrus.Logger) *Reporter {
	if events == nil {
		events = kafka.NopPublisher{}
	}
	return &Reporter{
		submitter: submitter,
		marker:    marker,
		events:    events,
		logger:    logger,
	}
}

func (r *Reporter) Network() models.Network {
	return r.submitter.Network()
}

// GroupPurchases keeps purchases not yet reported to network that pass
// eligible and groups them by tracking id in first-seen order.
func GroupPurchases(purchases []models.Purchase, network models.Network, eligible func(models.Purchase) bool) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, p := range purchases {
		if p.ReportedTo(network) || !eligible(p) {
			continue
		}
		key := p.TrackingID
		if key == "" {
			key = noTrackingKey
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{TrackingID: key})
		}
		groups[i].Purchases = append(groups[i].Purchases, p)
		groups[i].TotalValue += float64(p.Value)
	}
	for i := range groups {
		groups[i].TotalValue = commission.Round2(groups[i].TotalValue)
	}
	return groups
}

// SendAndMarkUsed submits one conversion per group and marks every member
// reported. A rejected group is left untouched for the next run; a member
// whose mark fails is logged and left out of the result.
func (r *Reporter) SendAndMarkUsed(ctx context.Context, purchases []models.Purchase) []models.SentGroup {
	network := r.submitter.Network()
	groups := GroupPurchases(purchases, network, r.submitter.Eligible)

	var sent []models.SentGroup
	for _, group := range groups {
		log := r.logger.WithFields(logrus.Fields{
			"network":     network,
			"tracking_id": group.TrackingID,
			"items":       len(group.Purchases),
			"total_value": group.TotalValue,
		})

		if err := r.submitter.Submit(ctx, group); err != nil {
			metrics.ConversionsFailed.WithLabelValues(string(network)).Inc()
			log.WithError(err).Error("Conversion rejected")
			continue
		}
		log.Info("Conversion accepted")

		var items []models.SentItem
		for _, p := range group.Purchases {
			if err := r.marker.MarkPurchaseReported(ctx, p.Key(), network); err != nil {
				log.WithError(err).WithField("purchase_id", p.Key()).Error("Failed to mark purchase reported")
				continue
			}
			metrics.ConversionsSent.WithLabelValues(string(network)).Inc()
			items = append(items, sentItem(p))
		}
		if len(items) == 0 {
			continue
		}

		result := models.SentGroup{
			Network:    network,
			TrackingID: group.TrackingID,
			Items:      items,
			TotalValue: group.TotalValue,
		}
		sent = append(sent, result)
		r.publish(ctx, result)
	}
	return sent
}

func (r *Reporter) publish(ctx context.Context, group models.SentGroup) {
	event, err := kafka.NewEvent(kafka.EventConversionSent, group)
	if err == nil {
		err = r.events.Publish(ctx, group.TrackingID, event)
	}
	if err != nil {
		r.logger.WithError(err).WithField("tracking_id", group.TrackingID).Warn("Failed to publish conversion event")
	}
}

func sentItem(p models.Purchase) models.SentItem {
	return models.SentItem{
		ID:           p.Key(),
		ASIN:         p.ASIN,
		TrackingID:   p.TrackingID,
		Value:        float64(p.Value),
		Title:        p.Title,
		Commission:   float64(p.Commission),
		OrderedCount: p.OrderedCount,
		Price:        float64(p.Price),
		Category:     p.Category,
	}
}
