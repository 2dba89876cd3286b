package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"google.golang.org/genai"
)

// Categories is the fixed set of categories the classifier may assign.
var Categories = []string{"electronics", "fashion", "home", "books", "grocery", "mobiles", "appliances"}

// Classifier asks Gemini to categorise products. Any failure falls back to
// the configured default category.
type Classifier struct {
	generate func(ctx context.Context, prompt string) (string, error)
	fallback string
}

type classification struct {
	Category string `json:"category"`
}

// NewClassifier returns nil when no API key is configured.
func NewClassifier(ctx context.Context, apiKey, modelID, fallback string) (*Classifier, error) {
	if apiKey == "" {
		return nil, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.1), // Low temperature for deterministic output
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"category": {
					Type:        genai.TypeString,
					Description: "The single best shopping category for the product.",
					Enum:        Categories,
				},
			},
			Required: []string{"category"},
		},
	}

	generate := func(ctx context.Context, prompt string) (string, error) {
		resp, err := client.Models.GenerateContent(ctx, modelID, genai.Text(prompt), config)
		if err != nil {
			return "", fmt.Errorf("gemini generation failed: %w", err)
		}
		return resp.Text(), nil
	}

	return &Classifier{generate: generate, fallback: fallback}, nil
}

func (c *Classifier) Classify(ctx context.Context, title, source string) (string, error) {
	if c == nil || c.generate == nil {
		return "", fmt.Errorf("gemini classifier not configured")
	}

	prompt := fmt.Sprintf(`
Classify this product from an Indian online store:
Title: "%s"
Store: "%s"

Pick exactly one category from: %s.
Output JSON adhering to the schema.
`, title, source, strings.Join(Categories, ", "))

	text, err := c.generate(ctx, prompt)
	if err != nil {
		slog.Warn("Gemini classification failed, using fallback category", "title", title, "error", err)
		return c.fallback, nil
	}

	category, err := parseCategory(text)
	if err != nil {
		slog.Warn("Unusable Gemini classification, using fallback category", "title", title, "response", text, "error", err)
		return c.fallback, nil
	}
	return category, nil
}

func parseCategory(text string) (string, error) {
	// Clean up potential markdown formatting just in case
	jsonStr := strings.TrimSpace(text)
	jsonStr = strings.TrimPrefix(jsonStr, "```json")
	jsonStr = strings.TrimPrefix(jsonStr, "```")
	jsonStr = strings.TrimSuffix(jsonStr, "```")

	var result classification
	if err := json.Unmarshal([]byte(strings.TrimSpace(jsonStr)), &result); err != nil {
		return "", fmt.Errorf("failed to parse gemini response: %w", err)
	}

	category := strings.ToLower(strings.TrimSpace(result.Category))
	if !slices.Contains(Categories, category) {
		return "", fmt.Errorf("unknown category %q", result.Category)
	}
	return category, nil
}
