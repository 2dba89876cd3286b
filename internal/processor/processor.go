package processor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pauljones0/deal-aggregator/internal/config"
)

// Result counts what one pipeline run did.
type Result struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

type Processor interface {
	Run(ctx context.Context) (Result, error)
}

type DealProcessor struct {
	source    DealSource
	enricher  DealEnricher
	rewriter  LinkRewriter
	validator DealValidator
	store     DealStore
	notifier  DealNotifier
	forum     string
	limit     int
}

func New(src DealSource, e DealEnricher, rw LinkRewriter, v DealValidator, store DealStore, n DealNotifier, cfg *config.Config) *DealProcessor {
	return &DealProcessor{
		source:    src,
		enricher:  e,
		rewriter:  rw,
		validator: v,
		store:     store,
		notifier:  n,
		forum:     cfg.Subreddit,
		limit:     cfg.FetchLimit,
	}
}

// Run fetches, enriches and stores one batch of deals. Deals are handled in
// the order the source returned them; a store or enrichment failure aborts the
// run but keeps whatever was already written.
func (p *DealProcessor) Run(ctx context.Context) (Result, error) {
	var res Result

	rawDeals, err := p.source.FetchDeals(ctx, p.forum, p.limit)
	if err != nil {
		return res, fmt.Errorf("failed to fetch deals from r/%s: %w", p.forum, err)
	}
	slog.Info("Fetched raw deals", "subreddit", p.forum, "count", len(rawDeals))
	if len(rawDeals) == 0 {
		return res, nil
	}

	for _, raw := range rawDeals {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		in, err := p.enricher.Enrich(ctx, raw)
		if err != nil {
			return res, fmt.Errorf("failed to enrich %s product %s: %w", raw.Source, raw.ProductID, err)
		}
		if in == nil {
			slog.Info("Skipping unknown product", "source", raw.Source, "product_id", raw.ProductID)
			res.Skipped++
			continue
		}

		in.URL = p.rewriter.Rewrite(in.URL, in.Source)

		if err := p.validator.ValidateStruct(in); err != nil {
			slog.Warn("Skipping invalid deal", "source", in.Source, "product_id", in.ProductID, "error", err)
			res.Skipped++
			continue
		}

		deal, created, err := p.store.Upsert(ctx, *in)
		if err != nil {
			return res, fmt.Errorf("failed to store deal %s/%s: %w", in.Source, in.ProductID, err)
		}
		if !created {
			slog.Info("Updated deal", "id", deal.ID, "title", deal.Title)
			res.Updated++
			continue
		}

		slog.Info("New deal added", "id", deal.ID, "title", deal.Title)
		res.Created++
		if p.notifier == nil {
			continue
		}
		msgID, err := p.notifier.Send(ctx, *deal)
		if err != nil {
			slog.Warn("Failed to send Discord notification", "id", deal.ID, "error", err)
			continue
		}
		if msgID != "" {
			slog.Info("Sent Discord notification", "id", deal.ID, "message_id", msgID)
		}
	}

	slog.Info("Finished processing", "new", res.Created, "updated", res.Updated, "skipped", res.Skipped)
	return res, nil
}
