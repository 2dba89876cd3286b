package source

import (
	"context"

	"github.com/pauljones0/deal-aggregator/internal/models"
)

// mockPosts stands in for a subreddit's hot page. B08C4V3228 is mentioned twice
// so repeated natural keys reach the dedup step.
var mockPosts = []struct {
	id   string
	text string
}{
	{"t3_12345", "Great price on https://www.amazon.in/dp/B08C4V3228"},
	{"t3_67890", "Phone sale https://www.flipkart.com/p/item?pid=MOBFCT563Y4M2ZJ9"},
	{"t3_67891", "Earbuds https://www.amazon.in/Wireless-Earbuds/dp/B09G9HD6PD/ref=sr_1_1"},
	{"t3_67892", "Still live: https://www.amazon.in/dp/B08C4V3228 and https://www.flipkart.com/laptop/p/itm9a?pid=COMG2Q6ZHZFJH3ZD"},
	{"t3_67893", "No product links in this one"},
}

// MockClient implements Source with canned posts and never touches the network.
type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (mc *MockClient) FetchDeals(ctx context.Context, forum string, limit int) ([]models.RawDeal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var deals []models.RawDeal
	for i, p := range mockPosts {
		if limit > 0 && i >= limit {
			break
		}
		deals = append(deals, ExtractRawDeals(p.text, p.id)...)
	}
	return deals, nil
}
