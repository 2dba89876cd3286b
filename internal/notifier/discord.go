package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/deal-aggregator/internal/models"
)

const (
	colorColdDeal    = 3092790  // #2F3136
	colorWarmDeal    = 16753920 // #FFA500
	colorHotDeal     = 16711680 // #FF0000
	colorVeryHotDeal = 16776960 // #FFFF00

	discountThresholdWarm    = 15.0
	discountThresholdHot     = 30.0
	discountThresholdVeryHot = 50.0

	maxSendAttempts = 3
	baseBackoff     = 500 * time.Millisecond
)

type Client struct {
	webhookURL  string
	client      *http.Client
	rateLimiter *rate.Limiter
}

func New(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		// Discord allows roughly 30 webhook messages per minute per channel.
		rateLimiter: rate.NewLimiter(rate.Every(2*time.Second), 5),
	}
}

// Send posts a new deal notification and returns the Discord message ID.
// Without a webhook URL it does nothing.
func (c *Client) Send(ctx context.Context, deal models.Deal) (string, error) {
	if c.webhookURL == "" {
		return "", nil
	}
	embed := formatDealToEmbed(deal)
	return c.sendAndGetMessageID(ctx, embed)
}

// Internal structures
type discordWebhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

type discordEmbedThumbnail struct {
	URL string `json:"url,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}

type discordEmbed struct {
	Title       string                `json:"title,omitempty"`
	Description string                `json:"description,omitempty"`
	URL         string                `json:"url,omitempty"`
	Timestamp   string                `json:"timestamp,omitempty"`
	Color       int                   `json:"color,omitempty"`
	Thumbnail   discordEmbedThumbnail `json:"thumbnail,omitempty"`
	Fields      []discordEmbedField   `json:"fields,omitempty"`
	Footer      discordEmbedFooter    `json:"footer,omitempty"`
}

type discordMessageResponse struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

func formatDealToEmbed(deal models.Deal) discordEmbed {
	description := fmt.Sprintf("**₹%.2f**", deal.Price)
	if deal.OriginalPrice > deal.Price {
		description += fmt.Sprintf(" ~~₹%.2f~~", deal.OriginalPrice)
	}
	if deal.Discount > 0 {
		description += fmt.Sprintf(" (%s%% off)", strconv.FormatFloat(deal.Discount, 'f', -1, 64))
	}

	var isoTimestamp string
	if !deal.CreatedAt.IsZero() {
		isoTimestamp = deal.CreatedAt.Format(time.RFC3339)
	}

	fields := []discordEmbedField{
		{Name: "Store", Value: storeName(deal.Source), Inline: true},
	}
	if deal.Category != "" {
		fields = append(fields, discordEmbedField{Name: "Category", Value: deal.Category, Inline: true})
	}

	var footer discordEmbedFooter
	if deal.RedditPostID != "" {
		footer.Text = "Found in " + deal.RedditPostID
	}

	return discordEmbed{
		Title:       deal.Title,
		URL:         deal.URL, // Hyperlink the title to the affiliate product link
		Description: description,
		Timestamp:   isoTimestamp,
		Color:       getDiscountColor(deal.Discount),
		Thumbnail:   discordEmbedThumbnail{URL: deal.Image},
		Fields:      fields,
		Footer:      footer,
	}
}

func storeName(source string) string {
	switch source {
	case "amazon":
		return "Amazon.in"
	case "flipkart":
		return "Flipkart"
	}
	return source
}

func (c *Client) sendAndGetMessageID(ctx context.Context, embed discordEmbed) (string, error) {
	payload := discordWebhookPayload{Embeds: []discordEmbed{embed}}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	parsedURL, err := url.Parse(c.webhookURL)
	if err != nil {
		return "", err
	}
	q := parsedURL.Query()
	q.Set("wait", "true")
	parsedURL.RawQuery = q.Encode()

	var lastErr error
	for attempt := 0; attempt < maxSendAttempts; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return "", err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, parsedURL.String(), bytes.NewReader(payloadBytes))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return "", err
		}
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			var msgResponse discordMessageResponse
			if err := json.Unmarshal(bodyBytes, &msgResponse); err != nil {
				return "", err
			}
			return msgResponse.ID, nil
		}

		lastErr = fmt.Errorf("discord status: %s, body: %s", resp.Status, strings.TrimSpace(string(bodyBytes)))
		backoff := retryBackoff(resp, attempt)
		if backoff == 0 {
			return "", lastErr
		}
		slog.Warn("Discord webhook rejected message, retrying", "status", resp.StatusCode, "backoff", backoff)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}
	return "", lastErr
}

// retryBackoff returns how long to wait before retrying, or zero when the
// response must not be retried.
func retryBackoff(resp *http.Response, attempt int) time.Duration {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
		return baseBackoff << attempt
	case resp.StatusCode >= 500:
		return baseBackoff << attempt
	}
	return 0
}

func getDiscountColor(discount float64) int {
	if discount >= discountThresholdVeryHot {
		return colorVeryHotDeal
	} else if discount >= discountThresholdHot {
		return colorHotDeal
	} else if discount >= discountThresholdWarm {
		return colorWarmDeal
	}
	return colorColdDeal
}
