package storage

import (
	"context"
	"errors"

	"github.com/pauljones0/deal-aggregator/internal/models"
)

// ErrKeyMismatch is returned by Update when the input names a different
// (product_id, source) pair than the stored deal.
var ErrKeyMismatch = errors.New("natural key cannot change")

// ListOptions selects a page of deals. A Limit of zero or less means no limit.
type ListOptions struct {
	Skip     int
	Limit    int
	Category string
	Sort     SortSpec
}

// Store persists deals keyed on (product_id, source). Lookups return
// nil, nil when the deal does not exist.
type Store interface {
	Get(ctx context.Context, id string) (*models.Deal, error)
	List(ctx context.Context, opts ListOptions) ([]models.Deal, error)
	FindByNaturalKey(ctx context.Context, productID, source string) (*models.Deal, error)
	Create(ctx context.Context, in models.DealInput) (*models.Deal, error)
	Update(ctx context.Context, existing *models.Deal, in models.DealInput) (*models.Deal, error)
	// Upsert creates the deal or merges in into the stored one, atomically.
	Upsert(ctx context.Context, in models.DealInput) (deal *models.Deal, created bool, err error)
	Search(ctx context.Context, q string, limit int) ([]models.Deal, error)
	Categories(ctx context.Context) ([]models.CategoryCount, error)
	IncrementClicks(ctx context.Context, id string) (*models.Deal, error)
	Close() error
}

func checkKey(existing *models.Deal, in models.DealInput) error {
	if existing.ProductID != in.ProductID || existing.Source != in.Source {
		return ErrKeyMismatch
	}
	return nil
}
