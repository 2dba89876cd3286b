package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/deal-aggregator/internal/models"
)

func testDeal() models.Deal {
	return models.Deal{
		ID:            "1",
		ProductID:     "B08C4V3228",
		Title:         "Echo Dot (4th Gen)",
		Image:         "https://m.media-amazon.com/images/I/image1.jpg",
		Price:         2499,
		OriginalPrice: 4499,
		Discount:      44.45,
		URL:           "https://www.amazon.in/dp/B08C4V3228?tag=yourtag-21",
		Source:        "amazon",
		Category:      "electronics",
		RedditPostID:  "t3_12345",
		CreatedAt:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFormatDealToEmbed(t *testing.T) {
	deal := testDeal()

	embed := formatDealToEmbed(deal)

	if embed.Title != deal.Title {
		t.Errorf("Title incorrect. Got: %s, Want: %s", embed.Title, deal.Title)
	}
	// Title links to the affiliate URL
	if embed.URL != deal.URL {
		t.Errorf("URL incorrect. Got: %s, Want: %s", embed.URL, deal.URL)
	}
	expectedDesc := "**₹2499.00** ~~₹4499.00~~ (44.45% off)"
	if embed.Description != expectedDesc {
		t.Errorf("Description incorrect. Got: %s, Want: %s", embed.Description, expectedDesc)
	}
	if embed.Thumbnail.URL != deal.Image {
		t.Errorf("Thumbnail incorrect. Got: %s", embed.Thumbnail.URL)
	}
	if embed.Timestamp != "2025-06-01T12:00:00Z" {
		t.Errorf("Timestamp incorrect. Got: %s", embed.Timestamp)
	}
	if embed.Color != colorHotDeal {
		t.Errorf("Color = %d, want hot", embed.Color)
	}
	if len(embed.Fields) != 2 || embed.Fields[0].Value != "Amazon.in" || embed.Fields[1].Value != "electronics" {
		t.Errorf("Unexpected fields: %+v", embed.Fields)
	}
	if embed.Footer.Text != "Found in t3_12345" {
		t.Errorf("Footer incorrect. Got: %s", embed.Footer.Text)
	}
}

func TestGetDiscountColor(t *testing.T) {
	tests := []struct {
		discount float64
		want     int
	}{
		{0, colorColdDeal},
		{14.99, colorColdDeal},
		{15, colorWarmDeal},
		{30, colorHotDeal},
		{50, colorVeryHotDeal},
		{90, colorVeryHotDeal},
	}
	for _, tt := range tests {
		if got := getDiscountColor(tt.discount); got != tt.want {
			t.Errorf("getDiscountColor(%v) = %d, want %d", tt.discount, got, tt.want)
		}
	}
}

func TestClient_Send(t *testing.T) {
	// Mock Discord Server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.URL.Query().Get("wait") != "true" {
			t.Errorf("Expected wait=true query param")
		}

		// Verify payload
		var payload discordWebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		if len(payload.Embeds) != 1 {
			t.Errorf("Expected 1 embed, got %d", len(payload.Embeds))
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": "12345", "channel_id": "67890"}`))
	}))
	defer server.Close()

	client := New(server.URL)
	// Override rate limiter for tests to run fast
	client.rateLimiter = rate.NewLimiter(rate.Inf, 1)

	id, err := client.Send(context.Background(), testDeal())
	if err != nil {
		t.Fatalf("Send() returned error: %v", err)
	}
	if id != "12345" {
		t.Errorf("Expected ID 12345, got %s", id)
	}
}

func TestClient_Send_RetriesOn5xx(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt := atomic.AddInt32(&attempts, 1)
		if attempt <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"message": "server error"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": "retry-success", "channel_id": "67890"}`))
	}))
	defer server.Close()

	client := New(server.URL)
	client.rateLimiter = rate.NewLimiter(rate.Inf, 1)

	id, err := client.Send(context.Background(), testDeal())
	if err != nil {
		t.Fatalf("Send() should have succeeded after retries, got error: %v", err)
	}
	if id != "retry-success" {
		t.Errorf("Expected ID 'retry-success', got %s", id)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Errorf("Expected 3 attempts (2 failures + 1 success), got %d", atomic.LoadInt32(&attempts))
	}
}

func TestClient_Send_RetriesOn429(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt := atomic.AddInt32(&attempts, 1)
		if attempt == 1 {
			w.Header().Set("Retry-After", "0.05")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"message": "rate limited"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": "429-success", "channel_id": "67890"}`))
	}))
	defer server.Close()

	client := New(server.URL)
	client.rateLimiter = rate.NewLimiter(rate.Inf, 1)

	id, err := client.Send(context.Background(), testDeal())
	if err != nil {
		t.Fatalf("Send() should have succeeded after 429 retry, got error: %v", err)
	}
	if id != "429-success" {
		t.Errorf("Expected ID '429-success', got %s", id)
	}
}

func TestClient_Send_NoRetryOn4xx(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message": "bad request"}`))
	}))
	defer server.Close()

	client := New(server.URL)
	client.rateLimiter = rate.NewLimiter(rate.Inf, 1)

	_, err := client.Send(context.Background(), testDeal())
	if err == nil {
		t.Fatal("Send() should have returned error for 400 response")
	}
	if atomic.LoadInt32(&attempts) != 1 {
		t.Errorf("Expected 1 attempt (no retry for 400), got %d", atomic.LoadInt32(&attempts))
	}
}

func TestRetryBackoff(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		retryAfter string
		attempt    int
		want       time.Duration
	}{
		{"429 with Retry-After", 429, "2", 0, 2 * time.Second},
		{"429 without Retry-After", 429, "", 0, baseBackoff},
		{"500 error", 500, "", 0, baseBackoff},
		{"503 error second attempt", 503, "", 1, 2 * baseBackoff},
		{"400 error", 400, "", 0, 0},
		{"404 error", 404, "", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{
				StatusCode: tt.statusCode,
				Header:     http.Header{},
			}
			if tt.retryAfter != "" {
				resp.Header.Set("Retry-After", tt.retryAfter)
			}

			if got := retryBackoff(resp, tt.attempt); got != tt.want {
				t.Errorf("retryBackoff() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClient_Send_EmptyWebhookURL(t *testing.T) {
	c := New("")
	id, err := c.Send(context.Background(), testDeal())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if id != "" {
		t.Errorf("Send() with empty webhook should return empty ID, got %q", id)
	}
}
