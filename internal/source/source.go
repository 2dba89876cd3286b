package source

import (
	"context"
	"regexp"

	"github.com/pauljones0/deal-aggregator/internal/models"
	"github.com/pauljones0/deal-aggregator/internal/util"
)

// Source fetches raw product references from a forum.
type Source interface {
	FetchDeals(ctx context.Context, forum string, limit int) ([]models.RawDeal, error)
}

var (
	amazonLinkRegex   = regexp.MustCompile(`https?://(?:www\.)?amazon\.in/(?:\S*?/)?dp/([A-Z0-9]{10})`)
	flipkartLinkRegex = regexp.MustCompile(`https?://(?:www\.)?flipkart\.com/(?:\S*?/)?p/\S*?pid=([A-Z0-9]+)`)
)

// ExtractRawDeals finds Amazon and Flipkart product links in text and returns
// one raw deal per link, Amazon links first, each group in order of appearance.
func ExtractRawDeals(text, postID string) []models.RawDeal {
	var deals []models.RawDeal
	for _, m := range amazonLinkRegex.FindAllStringSubmatch(text, -1) {
		deals = append(deals, models.RawDeal{
			URL:       "https://www.amazon.in/dp/" + m[1],
			Source:    util.SourceAmazon,
			ProductID: m[1],
			PostID:    postID,
		})
	}
	for _, m := range flipkartLinkRegex.FindAllStringSubmatch(text, -1) {
		deals = append(deals, models.RawDeal{
			URL:       "https://www.flipkart.com/p/item?pid=" + m[1],
			Source:    util.SourceFlipkart,
			ProductID: m[1],
			PostID:    postID,
		})
	}
	return deals
}
