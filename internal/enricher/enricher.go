package enricher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pauljones0/deal-aggregator/internal/models"
	"github.com/pauljones0/deal-aggregator/internal/util"
)

const (
	transientRetries = 2
	transientBackoff = 100 * time.Millisecond
)

// Classifier picks a category for a product.
type Classifier interface {
	Classify(ctx context.Context, title, source string) (string, error)
}

// StaticClassifier assigns the same category to every product.
type StaticClassifier struct {
	Category string
}

func (s StaticClassifier) Classify(ctx context.Context, title, source string) (string, error) {
	return s.Category, nil
}

// Enricher turns raw forum references into full deal inputs using one catalog per source.
type Enricher struct {
	catalogs        map[string]Catalog
	classifier      Classifier
	defaultCategory string
}

func New(catalogs map[string]Catalog, classifier Classifier, defaultCategory string) *Enricher {
	if classifier == nil {
		classifier = StaticClassifier{Category: defaultCategory}
	}
	return &Enricher{
		catalogs:        catalogs,
		classifier:      classifier,
		defaultCategory: defaultCategory,
	}
}

// Enrich returns nil, nil when the product cannot be enriched (unknown source,
// missing identifier, or not in the catalog). The URL is left as found.
func (e *Enricher) Enrich(ctx context.Context, raw models.RawDeal) (*models.DealInput, error) {
	catalog, ok := e.catalogs[raw.Source]
	if !ok || raw.ProductID == "" {
		return nil, nil
	}

	var details *ProductDetails
	err := util.RetryWithBackoff(ctx, transientRetries, transientBackoff, isTransient, func(attempt int) error {
		var err error
		details, err = catalog.FetchProduct(ctx, raw.ProductID)
		if err != nil && isTransient(err) {
			slog.Warn("Catalog lookup failed, retrying", "source", raw.Source, "product_id", raw.ProductID, "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch %s product %s: %w", raw.Source, raw.ProductID, err)
	}
	if details == nil {
		return nil, nil
	}

	category, err := e.classifier.Classify(ctx, details.Title, raw.Source)
	if err != nil || category == "" {
		slog.Warn("Category classification failed, using default", "product_id", raw.ProductID, "error", err)
		category = e.defaultCategory
	}

	var image string
	if len(details.Images) > 0 {
		image = details.Images[0]
	}

	return &models.DealInput{
		ProductID:     raw.ProductID,
		Title:         details.Title,
		Image:         image,
		Price:         details.Price,
		OriginalPrice: details.OriginalPrice,
		Discount:      details.Discount,
		URL:           raw.URL,
		Source:        raw.Source,
		Category:      category,
		RedditPostID:  raw.PostID,
	}, nil
}

func isTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
