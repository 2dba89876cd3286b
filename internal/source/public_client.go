package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/pauljones0/deal-aggregator/internal/config"
	"github.com/pauljones0/deal-aggregator/internal/models"
	"github.com/pauljones0/deal-aggregator/internal/util"
)

const (
	oldRedditURL       = "https://old.reddit.com"
	detailConcurrency  = 5
	defaultPublicAgent = "deal-aggregator/1.0"
)

// PublicClient scrapes the old-reddit HTML frontend. It needs no credentials.
type PublicClient struct {
	httpClient     *http.Client
	baseURL        string
	selectors      SelectorConfig
	allowedDomains []string
	userAgent      string
}

type listedPost struct {
	fullname  string
	title     string
	linkURL   string
	permalink string
}

func NewPublicClient(cfg *config.Config, selectors SelectorConfig) *PublicClient {
	return NewWithBaseURL(cfg, selectors, oldRedditURL)
}

// NewWithBaseURL is like NewPublicClient but scrapes baseURL instead of old.reddit.com.
func NewWithBaseURL(cfg *config.Config, selectors SelectorConfig, baseURL string) *PublicClient {
	userAgent := cfg.RedditUserAgent
	if userAgent == "" || userAgent == "your_user_agent" {
		userAgent = defaultPublicAgent
	}
	return &PublicClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		selectors:      selectors,
		allowedDomains: cfg.AllowedDomains,
		userAgent:      userAgent,
	}
}

func (c *PublicClient) FetchDeals(ctx context.Context, forum string, limit int) ([]models.RawDeal, error) {
	listURL := fmt.Sprintf("%s/r/%s/hot/?limit=%d", c.baseURL, url.PathEscape(forum), limit)
	slog.Info("Scraping subreddit listing", "url", listURL)

	doc, err := c.fetchHTMLContent(ctx, listURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch or parse listing %s: %w", listURL, err)
	}

	listSelectors := c.selectors.Listing
	if doc.Find(listSelectors.Container.Item).Length() == 0 {
		return nil, fmt.Errorf("no '%s' elements found on %s. Potential block or page structure change", listSelectors.Container.Item, listURL)
	}

	// Phase 1: Parse the listing page
	var posts []listedPost
	doc.Find(listSelectors.Container.Item).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if listSelectors.Container.IgnoreModifier != "" && s.Is(listSelectors.Container.IgnoreModifier) {
			return true
		}
		p := listedPost{
			fullname: s.AttrOr(listSelectors.Elements.FullnameAttr, ""),
			title:    strings.TrimSpace(s.Find(listSelectors.Elements.TitleLink).First().Text()),
			linkURL:  s.AttrOr(listSelectors.Elements.URLAttr, ""),
		}
		if permalink := s.AttrOr(listSelectors.Elements.PermalinkAttr, ""); permalink != "" {
			p.permalink = c.resolve(permalink)
		}
		if p.fullname == "" {
			slog.Warn("Listing entry without fullname, skipping", "title", p.title)
			return true
		}
		posts = append(posts, p)
		return limit <= 0 || len(posts) < limit
	})

	// Phase 2: Fetch detail pages with bounded concurrency
	details := make([]string, len(posts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailConcurrency)
	for i, p := range posts {
		if p.permalink == "" {
			continue
		}
		g.Go(func() error {
			text, err := c.scrapePostDetail(gctx, p.permalink)
			if err != nil {
				// Don't fail the whole batch, just log
				slog.Warn("Failed to scrape post detail page", "url", p.permalink, "error", err)
				return nil
			}
			details[i] = text
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Phase 3: Extract product links in listing order
	var deals []models.RawDeal
	for i, p := range posts {
		text := p.title + " " + p.linkURL + " " + details[i]
		// Hrefs and body text overlap whenever a link's label is its URL.
		deals = append(deals, uniqueProducts(ExtractRawDeals(text, p.fullname))...)
	}
	return deals, nil
}

func (c *PublicClient) resolve(permalink string) string {
	if strings.HasPrefix(permalink, "/") {
		permalink = c.baseURL + permalink
	}
	normalized, err := util.NormalizePermalink(permalink)
	if err != nil {
		return permalink
	}
	return normalized
}

// scrapePostDetail returns the post body, comment bodies and every outbound href as one text blob.
func (c *PublicClient) scrapePostDetail(ctx context.Context, postURL string) (string, error) {
	doc, err := c.fetchHTMLContent(ctx, postURL)
	if err != nil {
		return "", err
	}

	detailSelectors := c.selectors.PostDetail
	var b strings.Builder
	doc.Find(detailSelectors.BodyLinks).Each(func(_ int, s *goquery.Selection) {
		if href := strings.TrimSpace(s.AttrOr("href", "")); href != "" {
			b.WriteString(href)
			b.WriteByte(' ')
		}
	})
	doc.Find(detailSelectors.Body).Each(func(_ int, s *goquery.Selection) {
		b.WriteString(strings.TrimSpace(s.Text()))
		b.WriteByte(' ')
	})
	return b.String(), nil
}

func (c *PublicClient) fetchHTMLContent(ctx context.Context, urlStr string) (*goquery.Document, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL %s: %w", urlStr, err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid URL scheme %s: only http and https allowed", parsedURL.Scheme)
	}

	hostname := parsedURL.Hostname()
	allowed := false
	for _, domain := range c.allowedDomains {
		if hostname == domain {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("security violation: URL hostname %s is not in allowlist", hostname)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for URL %s: %w", urlStr, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL %s: %w", urlStr, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch URL %s: status code %d", urlStr, res.StatusCode)
	}

	return goquery.NewDocumentFromReader(res.Body)
}

// uniqueProducts keeps the first deal for each (source, product_id) pair.
func uniqueProducts(deals []models.RawDeal) []models.RawDeal {
	type key struct{ source, productID string }
	seen := make(map[key]bool, len(deals))
	out := deals[:0]
	for _, d := range deals {
		k := key{d.Source, d.ProductID}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, d)
	}
	return out
}
