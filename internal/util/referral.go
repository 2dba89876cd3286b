package util

import (
	"net/url"
)

const (
	SourceAmazon   = "amazon"
	SourceFlipkart = "flipkart"
)

// AffiliateRewriter adds the configured tracking parameter to product URLs.
type AffiliateRewriter struct {
	AmazonTag           string
	FlipkartAffiliateID string
}

func (r AffiliateRewriter) param(source string) (key, value string) {
	switch source {
	case SourceAmazon:
		return "tag", r.AmazonTag
	case SourceFlipkart:
		return "affid", r.FlipkartAffiliateID
	default:
		return "", ""
	}
}

// Rewrite returns rawURL carrying the affiliate parameter for source.
// Unknown sources and unparseable URLs are returned unchanged. Rewriting an
// already rewritten URL is a no-op.
func (r AffiliateRewriter) Rewrite(rawURL, source string) string {
	key, value := r.param(source)
	if key == "" || value == "" {
		return rawURL
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	queryParams := parsedURL.Query()
	if queryParams.Has(key) {
		if vals := queryParams[key]; len(vals) == 1 && vals[0] == value {
			return rawURL
		}
		queryParams.Set(key, value)
		parsedURL.RawQuery = queryParams.Encode()
		return parsedURL.String()
	}

	// Append rather than re-encode so existing parameter order survives.
	pair := key + "=" + url.QueryEscape(value)
	if parsedURL.RawQuery == "" {
		parsedURL.RawQuery = pair
	} else {
		parsedURL.RawQuery += "&" + pair
	}
	parsedURL.ForceQuery = false
	return parsedURL.String()
}
