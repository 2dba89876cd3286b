package processor

import (
	"context"

	"github.com/pauljones0/deal-aggregator/internal/models"
)

// DealSource abstracts the forum client.
type DealSource interface {
	FetchDeals(ctx context.Context, forum string, limit int) ([]models.RawDeal, error)
}

// DealEnricher turns raw references into deal inputs. A nil input means the
// product is unknown and should be skipped.
type DealEnricher interface {
	Enrich(ctx context.Context, raw models.RawDeal) (*models.DealInput, error)
}

// LinkRewriter adds affiliate parameters to product URLs.
type LinkRewriter interface {
	Rewrite(rawURL, source string) string
}

// DealValidator rejects malformed deal inputs.
type DealValidator interface {
	ValidateStruct(s any) error
}

// DealStore abstracts the storage layer for deal data.
type DealStore interface {
	Upsert(ctx context.Context, in models.DealInput) (*models.Deal, bool, error)
}

// DealNotifier abstracts the notification layer.
type DealNotifier interface {
	Send(ctx context.Context, deal models.Deal) (string, error)
}
