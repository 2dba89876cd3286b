package util

import (
	"testing"
)

func TestAffiliateRewriter_Rewrite(t *testing.T) {
	r := AffiliateRewriter{AmazonTag: "yourtag-21", FlipkartAffiliateID: "youraffid"}

	tests := []struct {
		name   string
		url    string
		source string
		want   string
	}{
		{
			name:   "Amazon without query",
			url:    "https://www.amazon.in/dp/B08C4V3228",
			source: "amazon",
			want:   "https://www.amazon.in/dp/B08C4V3228?tag=yourtag-21",
		},
		{
			name:   "Amazon with existing query",
			url:    "https://www.amazon.in/dp/B08C4V3228?th=1",
			source: "amazon",
			want:   "https://www.amazon.in/dp/B08C4V3228?th=1&tag=yourtag-21",
		},
		{
			name:   "Amazon replaces foreign tag",
			url:    "https://www.amazon.in/dp/B08C4V3228?tag=other-21",
			source: "amazon",
			want:   "https://www.amazon.in/dp/B08C4V3228?tag=yourtag-21",
		},
		{
			name:   "Flipkart with pid query",
			url:    "https://www.flipkart.com/p/item?pid=MOBFCT563Y4M2ZJ9",
			source: "flipkart",
			want:   "https://www.flipkart.com/p/item?pid=MOBFCT563Y4M2ZJ9&affid=youraffid",
		},
		{
			name:   "Flipkart without query",
			url:    "https://www.flipkart.com/p/item",
			source: "flipkart",
			want:   "https://www.flipkart.com/p/item?affid=youraffid",
		},
		{
			name:   "Unknown source unchanged",
			url:    "https://example.com/product",
			source: "ebay",
			want:   "https://example.com/product",
		},
		{
			name:   "Fragment kept after query",
			url:    "https://www.amazon.in/dp/B08C4V3228#reviews",
			source: "amazon",
			want:   "https://www.amazon.in/dp/B08C4V3228?tag=yourtag-21#reviews",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Rewrite(tt.url, tt.source)
			if got != tt.want {
				t.Errorf("Rewrite() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAffiliateRewriter_Idempotent(t *testing.T) {
	r := AffiliateRewriter{AmazonTag: "yourtag-21", FlipkartAffiliateID: "youraffid"}

	inputs := []struct {
		url    string
		source string
	}{
		{"https://www.amazon.in/dp/B08C4V3228", "amazon"},
		{"https://www.amazon.in/dp/B08C4V3228?th=1", "amazon"},
		{"https://www.flipkart.com/p/item?pid=MOBFCT563Y4M2ZJ9", "flipkart"},
		{"https://www.flipkart.com/p/item", "flipkart"},
	}

	for _, in := range inputs {
		once := r.Rewrite(in.url, in.source)
		twice := r.Rewrite(once, in.source)
		if once != twice {
			t.Errorf("Rewrite not idempotent for %s: once=%s twice=%s", in.url, once, twice)
		}
	}
}

func TestAffiliateRewriter_EmptyTagLeavesURL(t *testing.T) {
	r := AffiliateRewriter{}
	u := "https://www.amazon.in/dp/B08C4V3228"
	if got := r.Rewrite(u, "amazon"); got != u {
		t.Errorf("Rewrite() = %v, want unchanged", got)
	}
}

func TestNormalizePermalink(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "Relative permalink",
			input: "/r/dealsforindia/comments/abc123/great_deal/",
			want:  "https://old.reddit.com/r/dealsforindia/comments/abc123/great_deal",
		},
		{
			name:  "www host rewritten",
			input: "https://www.reddit.com/r/dealsforindia/comments/abc123/great_deal/",
			want:  "https://old.reddit.com/r/dealsforindia/comments/abc123/great_deal",
		},
		{
			name:  "Tracking params removed",
			input: "https://reddit.com/r/dealsforindia/comments/abc123/x/?utm_source=share&utm_medium=web",
			want:  "https://old.reddit.com/r/dealsforindia/comments/abc123/x",
		},
		{
			name:  "Other hosts untouched",
			input: "https://www.amazon.in/dp/B08C4V3228/",
			want:  "https://www.amazon.in/dp/B08C4V3228/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePermalink(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("NormalizePermalink() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("NormalizePermalink() = %v, want %v", got, tt.want)
			}
		})
	}
}
