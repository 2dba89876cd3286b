package storage

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/pauljones0/deal-aggregator/internal/clock"
	"github.com/pauljones0/deal-aggregator/internal/models"
)

type naturalKey struct {
	productID string
	source    string
}

// MemoryStore keeps deals in process memory. Slice order is insertion order.
type MemoryStore struct {
	mu     sync.RWMutex
	deals  []models.Deal
	byID   map[string]int
	byKey  map[naturalKey]int
	nextID int
	clock  clock.Clock
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]int),
		byKey:  make(map[naturalKey]int),
		nextID: 1,
		clock:  clk,
	}
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	d := s.deals[i]
	return &d, nil
}

func (s *MemoryStore) FindByNaturalKey(ctx context.Context, productID, source string) (*models.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byKey[naturalKey{productID, source}]
	if !ok {
		return nil, nil
	}
	d := s.deals[i]
	return &d, nil
}

func (s *MemoryStore) Create(ctx context.Context, in models.DealInput) (*models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byKey[naturalKey{in.ProductID, in.Source}]; ok {
		return nil, models.ErrDealExists
	}
	d := s.insertLocked(in)
	return &d, nil
}

func (s *MemoryStore) insertLocked(in models.DealInput) models.Deal {
	id := strconv.Itoa(s.nextID)
	s.nextID++
	d := models.NewDeal(id, in, s.clock.Now())
	s.deals = append(s.deals, d)
	s.byID[id] = len(s.deals) - 1
	s.byKey[naturalKey{in.ProductID, in.Source}] = len(s.deals) - 1
	return d
}

func (s *MemoryStore) Update(ctx context.Context, existing *models.Deal, in models.DealInput) (*models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[existing.ID]
	if !ok {
		return nil, models.ErrDealNotFound
	}
	if err := checkKey(&s.deals[i], in); err != nil {
		return nil, err
	}
	s.deals[i].Apply(in)
	d := s.deals[i]
	return &d, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, in models.DealInput) (*models.Deal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.byKey[naturalKey{in.ProductID, in.Source}]; ok {
		s.deals[i].Apply(in)
		d := s.deals[i]
		return &d, false, nil
	}
	d := s.insertLocked(in)
	return &d, true, nil
}

func (s *MemoryStore) List(ctx context.Context, opts ListOptions) ([]models.Deal, error) {
	s.mu.RLock()
	filtered := make([]models.Deal, 0, len(s.deals))
	for _, d := range s.deals {
		if opts.Category == "" || d.Category == opts.Category {
			filtered = append(filtered, d)
		}
	}
	s.mu.RUnlock()

	if opts.Sort.Field != "" {
		// Stable sort keeps insertion order among equal keys.
		slices.SortStableFunc(filtered, func(a, b models.Deal) int {
			c := compareField(a, b, opts.Sort.Field)
			if opts.Sort.Desc {
				return -c
			}
			return c
		})
	}
	return page(filtered, opts.Skip, opts.Limit), nil
}

func compareField(a, b models.Deal, field string) int {
	switch field {
	case "price":
		return cmp.Compare(a.Price, b.Price)
	case "discount":
		return cmp.Compare(a.Discount, b.Discount)
	case "original_price":
		return cmp.Compare(a.OriginalPrice, b.OriginalPrice)
	case "clicks":
		return cmp.Compare(a.Clicks, b.Clicks)
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	}
	return 0
}

// page returns deals[skip : skip+limit], clamped to the slice bounds.
func page(deals []models.Deal, skip, limit int) []models.Deal {
	if skip < 0 {
		skip = 0
	}
	if skip >= len(deals) {
		return []models.Deal{}
	}
	end := len(deals)
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	return deals[skip:end]
}

func (s *MemoryStore) Search(ctx context.Context, q string, limit int) ([]models.Deal, error) {
	needle := strings.ToLower(q)
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := []models.Deal{}
	for _, d := range s.deals {
		if limit > 0 && len(results) >= limit {
			break
		}
		if strings.Contains(strings.ToLower(d.Title), needle) {
			results = append(results, d)
		}
	}
	return results, nil
}

func (s *MemoryStore) Categories(ctx context.Context) ([]models.CategoryCount, error) {
	s.mu.RLock()
	counts := make(map[string]int64)
	for _, d := range s.deals {
		counts[d.Category]++
	}
	s.mu.RUnlock()
	return sortedCategories(counts), nil
}

func sortedCategories(counts map[string]int64) []models.CategoryCount {
	out := make([]models.CategoryCount, 0, len(counts))
	for category, count := range counts {
		out = append(out, models.CategoryCount{Category: category, Count: count})
	}
	slices.SortFunc(out, func(a, b models.CategoryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return out
}

func (s *MemoryStore) IncrementClicks(ctx context.Context, id string) (*models.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	s.deals[i].Clicks++
	d := s.deals[i]
	return &d, nil
}
