package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loganintech/go-reddit/v2/reddit"
	"golang.org/x/time/rate"

	"github.com/pauljones0/deal-aggregator/internal/config"
	"github.com/pauljones0/deal-aggregator/internal/models"
)

// APIClient reads hot posts through the authenticated Reddit API.
type APIClient struct {
	client       *reddit.Client
	limiter      *rate.Limiter
	scanComments bool
}

// NewAPIClient builds a client from the configured credentials. Missing
// credentials are not an error: the client is created unconfigured and
// FetchDeals returns no deals.
func NewAPIClient(cfg *config.Config, opts ...reddit.Opt) (*APIClient, error) {
	ac := &APIClient{
		// API Rate Limit: ~60 reqs/min (safe buffer)
		limiter:      rate.NewLimiter(rate.Every(1*time.Second), 1),
		scanComments: cfg.ScanComments,
	}
	if !cfg.RedditConfigured() {
		return ac, nil
	}

	creds := reddit.Credentials{
		ID:       cfg.RedditClientID,
		Secret:   cfg.RedditClientSecret,
		Username: cfg.RedditUsername,
		Password: cfg.RedditPassword,
	}
	opts = append([]reddit.Opt{reddit.WithUserAgent(cfg.RedditUserAgent)}, opts...)
	client, err := reddit.NewClient(creds, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create reddit client: %w", err)
	}
	ac.client = client
	return ac, nil
}

func (ac *APIClient) FetchDeals(ctx context.Context, forum string, limit int) ([]models.RawDeal, error) {
	if ac.client == nil {
		slog.Warn("Reddit API credentials are not set. Reddit ingestion will be skipped.")
		return nil, nil
	}

	if err := ac.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	posts, _, err := ac.client.Subreddit.HotPosts(ctx, forum, &reddit.ListOptions{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("reddit hot posts for r/%s: %w", forum, err)
	}
	slog.Info("Fetched hot posts", "subreddit", forum, "count", len(posts))

	var deals []models.RawDeal
	for _, p := range posts {
		deals = append(deals, dealsFromPost(p)...)

		if !ac.scanComments {
			continue
		}
		if err := ac.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		pc, _, err := ac.client.Post.Get(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("reddit comments for post %s: %w", p.FullID, err)
		}
		deals = append(deals, dealsFromComments(pc.Comments, p.FullID)...)
	}
	return deals, nil
}

func dealsFromPost(p *reddit.Post) []models.RawDeal {
	return ExtractRawDeals(p.Title+" "+p.Body+" "+p.URL, p.FullID)
}

// dealsFromComments walks the comment tree depth first.
func dealsFromComments(comments []*reddit.Comment, postID string) []models.RawDeal {
	var deals []models.RawDeal
	for _, c := range comments {
		if c == nil {
			continue
		}
		deals = append(deals, ExtractRawDeals(c.Body, postID)...)
		deals = append(deals, dealsFromComments(c.Replies.Comments, postID)...)
	}
	return deals
}
