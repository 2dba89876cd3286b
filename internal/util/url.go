package util

import (
	"net/url"
	"strings"
)

// redditDomains lists hosts that NormalizePermalink rewrites to the old-reddit HTML frontend.
var redditDomains = []string{
	"reddit.com",
	"www.reddit.com",
	"old.reddit.com",
	"np.reddit.com",
}

func isRedditDomain(host string) bool {
	for _, d := range redditDomains {
		if host == d {
			return true
		}
	}
	return false
}

// NormalizePermalink turns a Reddit post link (absolute or site-relative) into
// a canonical https://old.reddit.com URL without tracking parameters.
// Links to other hosts are returned unchanged.
func NormalizePermalink(rawURL string) (string, error) {
	if strings.HasPrefix(rawURL, "/") {
		rawURL = "https://old.reddit.com" + rawURL
	}
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, err
	}

	if !isRedditDomain(parsedURL.Hostname()) {
		return rawURL, nil
	}

	parsedURL.Scheme = "https"
	parsedURL.Host = "old.reddit.com"
	if len(parsedURL.Path) > 1 && strings.HasSuffix(parsedURL.Path, "/") {
		parsedURL.Path = parsedURL.Path[:len(parsedURL.Path)-1]
		// Clear RawPath to ensure String() regenerates the URL path without the trailing slash
		parsedURL.RawPath = ""
	}
	queryParams := parsedURL.Query()
	for _, param := range []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "share_id", "context"} {
		queryParams.Del(param)
	}
	parsedURL.RawQuery = queryParams.Encode()
	parsedURL.Fragment = ""
	return parsedURL.String(), nil
}
