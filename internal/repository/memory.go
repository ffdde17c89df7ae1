package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"affiliate-tracking-system/internal/models"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in process. It backs local runs and tests;
// every method is atomic under a single mutex.
type MemoryStore struct {
	mu          sync.Mutex
	now         func() time.Time
	nextID      uint
	tags        map[string]*models.Tag
	leads       []models.Lead
	purchases   []*models.Purchase
	commissions []models.CommissionRate
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:  now,
		tags: make(map[string]*models.Tag),
	}
}

func (s *MemoryStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) SetCommissions(rates []models.CommissionRate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commissions = append([]models.CommissionRate(nil), rates...)
}

func (s *MemoryStore) GetTag(_ context.Context, country, docID string) (*models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tag, ok := s.tags[docID]
	if !ok || tag.Country != country {
		return nil, ErrNotFound
	}
	out := *tag
	return &out, nil
}

func (s *MemoryStore) GetTagByName(_ context.Context, country, name string) (*models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tag := range s.tags {
		if tag.Country == country && tag.Name == name {
			out := *tag
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListUnusedTags(_ context.Context, country string, limit int) ([]models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Tag
	for _, tag := range s.tags {
		if tag.Country == country && !tag.IsUsed {
			out = append(out, *tag)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListUsedTagsBefore(_ context.Context, country string, cutoff time.Time) ([]models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Tag
	for _, tag := range s.tags {
		if tag.Country == country && tag.IsUsed && tag.ClaimedAt().Before(cutoff) {
			out = append(out, *tag)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ClaimTag(_ context.Context, country, docID string, claim models.TagClaim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tag, ok := s.tags[docID]
	if !ok || tag.Country != country {
		return ErrNotFound
	}
	if tag.IsUsed {
		return ErrTagTaken
	}
	tag.IsUsed = true
	tag.ProductID = claim.ProductID
	if claim.Fbclid != "" {
		tag.Fbclid = claim.Fbclid
	}
	tag.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) ResetTag(_ context.Context, country, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tag, ok := s.tags[docID]
	if !ok || tag.Country != country {
		return ErrNotFound
	}
	tag.IsUsed = false
	tag.Fbclid = ""
	tag.ProductID = ""
	tag.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) SetTagFbclid(_ context.Context, country, docID, fbclid, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tag, ok := s.tags[docID]
	if !ok || tag.Country != country {
		return ErrNotFound
	}
	tag.Fbclid = fbclid
	if productID != "" {
		tag.ProductID = productID
	}
	return nil
}

func (s *MemoryStore) CreateTag(_ context.Context, tag models.Tag) (*models.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tag.ID = s.id()
	if tag.DocumentID == "" {
		tag.DocumentID = uuid.NewString()
	}
	now := s.now()
	if tag.CreatedAt.IsZero() {
		tag.CreatedAt = now
	}
	tag.UpdatedAt = now
	stored := tag
	s.tags[tag.DocumentID] = &stored
	return &tag, nil
}

func (s *MemoryStore) CreateLead(_ context.Context, lead models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead.ID = s.id()
	if lead.DocumentID == "" {
		lead.DocumentID = uuid.NewString()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = s.now()
	}
	s.leads = append(s.leads, lead)
	return nil
}

func (s *MemoryStore) ListLeadsSince(_ context.Context, since time.Time) ([]models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Lead
	for _, lead := range s.leads {
		if !lead.CreatedAt.Before(since) {
			out = append(out, lead)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) CreatePurchase(_ context.Context, purchase models.Purchase) (*models.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purchase.ID = s.id()
	if purchase.DocumentID == "" {
		purchase.DocumentID = uuid.NewString()
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = s.now()
	}
	stored := purchase
	s.purchases = append(s.purchases, &stored)
	return &purchase, nil
}

func (s *MemoryStore) ListPurchasesSince(_ context.Context, since time.Time) ([]models.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Purchase
	for i := len(s.purchases) - 1; i >= 0; i-- {
		if p := s.purchases[i]; !p.CreatedAt.Before(since) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListUnreportedPurchases(_ context.Context, network models.Network) ([]models.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Purchase
	for _, p := range s.purchases {
		if !p.ReportedTo(network) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkPurchaseReported(_ context.Context, key string, network models.Network) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.purchases {
		if p.DocumentID != key {
			continue
		}
		switch network {
		case models.NetworkFacebook:
			p.IsUsed = true
		case models.NetworkGoogle:
			p.IsGoogleUsed = true
		}
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) ListCommissions(_ context.Context) ([]models.CommissionRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CommissionRate(nil), s.commissions...), nil
}
