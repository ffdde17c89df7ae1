// Package attribution joins earnings-report orders to the leads that
// produced them and turns each match into purchase records.
package attribution

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"affiliate-tracking-system/internal/models"

	"github.com/google/uuid"
)

const (
	networkSuffix = "-20"

	DefaultActionSource = "website"
	PurchaseEventName   = "Purchase"
)

// NormalizeTrackingID strips the Associates network suffix. Report rows and
// stored leads do not agree on whether it is present.
func NormalizeTrackingID(id string) string {
	return strings.TrimSuffix(strings.TrimSpace(id), networkSuffix)
}

// AttributedLead is a lead together with every order carrying its tag.
type AttributedLead struct {
	Lead   models.Lead
	Orders []models.Order
}

// LatestPerTrackingID keeps the newest lead for every tracking id. Leads
// without one can never match and are dropped.
func LatestPerTrackingID(leads []models.Lead) []models.Lead {
	sorted := append([]models.Lead(nil), leads...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	seen := make(map[string]struct{}, len(sorted))
	out := make([]models.Lead, 0, len(sorted))
	for _, lead := range sorted {
		key := NormalizeTrackingID(lead.TrackingID)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, lead)
	}
	return out
}

// Attach groups orders by normalized tracking id and hands each matching
// lead its whole group. Leads with no orders are left out.
func Attach(orders []models.Order, leads []models.Lead) []AttributedLead {
	groups := make(map[string][]models.Order)
	for _, order := range orders {
		key := NormalizeTrackingID(order.TrackingID)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], order)
	}

	var out []AttributedLead
	claimed := make(map[string]struct{}, len(groups))
	for _, lead := range leads {
		key := NormalizeTrackingID(lead.TrackingID)
		if key == "" {
			continue
		}
		matched, ok := groups[key]
		if !ok {
			continue
		}
		// One group never fans out to two leads.
		if _, dup := claimed[key]; dup {
			continue
		}
		claimed[key] = struct{}{}
		out = append(out, AttributedLead{Lead: lead, Orders: matched})
	}
	return out
}

// Builder turns attributed leads into purchase records.
type Builder struct {
	SiteURL string
	Now     func() time.Time
	NewID   func() string
}

func NewBuilder(siteURL string) *Builder {
	return &Builder{
		SiteURL: strings.TrimRight(siteURL, "/"),
		Now:     time.Now,
		NewID:   uuid.NewString,
	}
}

// Build emits one purchase per order line. The order's tracking id wins
// over the lead's so the stored record matches the report verbatim.
func (b *Builder) Build(attributed []AttributedLead) []models.Purchase {
	var purchases []models.Purchase
	for _, al := range attributed {
		lead := al.Lead
		actionSource := lead.ActionSource
		if actionSource == "" {
			actionSource = DefaultActionSource
		}

		for _, order := range al.Orders {
			var price float64
			if order.Price != nil {
				price = *order.Price
			}
			trackingID := order.TrackingID
			if trackingID == "" {
				trackingID = lead.TrackingID
			}

			purchases = append(purchases, models.Purchase{
				ProductID:       lead.ProductID,
				ClickDate:       lead.ClickDate,
				Fbp:             lead.Fbp,
				Fbc:             lead.Fbc,
				Gclid:           lead.Gclid,
				Wbraid:          lead.Wbraid,
				Gbraid:          lead.Gbraid,
				ClientUserAgent: lead.ClientUserAgent,
				ClientIPAddress: lead.ClientIPAddress,
				EventName:       PurchaseEventName,
				EventTime:       models.UnixSeconds(b.Now().Unix()),
				EventID:         b.NewID(),
				OrderID:         b.NewID(),
				Value:           models.Amount(price * float64(order.OrderedCount)),
				EventSourceURL:  fmt.Sprintf("%s/product/%s", b.SiteURL, lead.ProductID),
				ActionSource:    actionSource,
				Title:           order.Title,
				ItemURL:         order.ItemURL,
				ASIN:            order.ASIN,
				Category:        order.Category,
				Merchant:        order.Merchant,
				OrderedCount:    order.OrderedCount,
				Price:           models.Amount(price),
				TrackingID:      trackingID,
			})
		}
	}
	return purchases
}

// FilterNew drops candidates already stored. Both the normalized tracking id
// and the ASIN must match; one tag legitimately covers several ASINs.
func FilterNew(candidates, recent []models.Purchase) []models.Purchase {
	type key struct {
		trackingID string
		asin       string
	}
	existing := make(map[key]struct{}, len(recent))
	for _, p := range recent {
		existing[key{NormalizeTrackingID(p.TrackingID), p.ASIN}] = struct{}{}
	}

	out := make([]models.Purchase, 0, len(candidates))
	for _, p := range candidates {
		if _, dup := existing[key{NormalizeTrackingID(p.TrackingID), p.ASIN}]; dup {
			continue
		}
		out = append(out, p)
	}
	return out
}
