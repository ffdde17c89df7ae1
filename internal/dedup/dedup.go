// Package dedup remembers recent lead fingerprints so repeated clicks from
// the same visitor reuse the tracking id they were already given.
package dedup

import (
	"context"
	"strings"
)

// Entry is the tag assignment cached for a fingerprint.
type Entry struct {
	TrackingID    string `json:"trackingId"`
	TrackingDocID string `json:"trackingDocId"`
}

// Cache is a bounded, expiring fingerprint store. A hit on any key counts
// as a repeat click.
type Cache interface {
	Lookup(ctx context.Context, keys []string) (Entry, bool, error)
	Record(ctx context.Context, keys []string, entry Entry) error
}

// Fingerprint is the raw client data a lead request carries.
type Fingerprint struct {
	ProductID string
	IP        string
	Fbc       string
	Fbp       string
	Gclid     string
	Wbraid    string
	Gbraid    string
}

// Keys derives one cache key per identifier present, each scoped to the
// product so one visitor clicking two products gets two tags.
func (f Fingerprint) Keys() []string {
	sources := []struct {
		kind  string
		value string
	}{
		{"ip", f.IP},
		{"fbc", f.Fbc},
		{"fbp", f.Fbp},
		{"gclid", f.Gclid},
		{"wbraid", f.Wbraid},
		{"gbraid", f.Gbraid},
	}

	keys := make([]string, 0, len(sources))
	for _, s := range sources {
		value := strings.TrimSpace(s.value)
		if value == "" {
			continue
		}
		keys = append(keys, s.kind+":"+value+":"+f.ProductID)
	}
	return keys
}
