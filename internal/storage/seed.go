package storage

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/pauljones0/deal-aggregator/internal/models"
)

var (
	seedCategories = []string{"electronics", "fashion", "home", "books"}
	seedSources    = []string{"amazon", "flipkart"}
)

// Seed fills an empty store with n mock deals. A store that already holds
// deals is left alone. It returns the number of deals created.
func Seed(ctx context.Context, store Store, n int, rng *rand.Rand) (int, error) {
	existing, err := store.List(ctx, ListOptions{Limit: 1})
	if err != nil {
		return 0, fmt.Errorf("failed to check store before seeding: %w", err)
	}
	if len(existing) > 0 {
		slog.Info("Store already has deals, skipping seed")
		return 0, nil
	}

	created := 0
	for i := 0; i < n; i++ {
		originalPrice := math.Round((500+rng.Float64()*7500)*100) / 100
		discount := math.Round((0.1+rng.Float64()*0.6)*100) / 100
		source := seedSources[rng.IntN(len(seedSources))]

		in := models.DealInput{
			ProductID:     fmt.Sprintf("MOCK%d%s", i, strings.ToUpper(source)),
			Title:         fmt.Sprintf("Mock Product Title %d for %s", i, source),
			Image:         fmt.Sprintf("https://example.com/image%d.jpg", i),
			Price:         math.Round(originalPrice*(1-discount)*100) / 100,
			OriginalPrice: originalPrice,
			Discount:      math.Round(discount*100*100) / 100,
			URL:           fmt.Sprintf("https://example.com/deal/%d?tag=mocktag-21", i),
			Source:        source,
			Category:      seedCategories[rng.IntN(len(seedCategories))],
			RedditPostID:  fmt.Sprintf("t3_mock%d", i),
		}
		if _, _, err := store.Upsert(ctx, in); err != nil {
			return created, fmt.Errorf("failed to seed deal %d: %w", i, err)
		}
		created++
	}
	slog.Info("Seeded mock deals", "count", created)
	return created, nil
}
