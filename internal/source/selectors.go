package source

import (
	"encoding/json"
	"fmt"
	"os"
)

type SelectorConfig struct {
	Listing    ListSelectors   `json:"listing"`
	PostDetail DetailSelectors `json:"post_detail"`
}

type ListSelectors struct {
	Container ListContainer `json:"container"`
	Elements  ListElements  `json:"elements"`
}

type ListContainer struct {
	Item           string `json:"item"`            // e.g., "div.thing.link"
	IgnoreModifier string `json:"ignore_modifier"` // e.g., ".stickied, .promoted"
}

type ListElements struct {
	TitleLink     string `json:"title_link"`
	FullnameAttr  string `json:"fullname_attr"`
	URLAttr       string `json:"url_attr"`
	PermalinkAttr string `json:"permalink_attr"`
}

type DetailSelectors struct {
	Body      string `json:"body"`
	BodyLinks string `json:"body_links"`
}

// LoadSelectors loads the selector configuration from the specified JSON file.
func LoadSelectors(path string) (SelectorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to read selector config file: %w", err)
	}

	return LoadSelectorsFromBytes(data)
}

// LoadSelectorsFromBytes parses selector configuration from raw JSON bytes.
func LoadSelectorsFromBytes(data []byte) (SelectorConfig, error) {
	var config SelectorConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to parse selector config JSON: %w", err)
	}
	if config.Listing.Container.Item == "" {
		return SelectorConfig{}, fmt.Errorf("selector config is missing listing.container.item")
	}

	return config, nil
}

// DefaultSelectors returns the fallback configuration if no JSON file is loaded.
func DefaultSelectors() SelectorConfig {
	return SelectorConfig{
		Listing: ListSelectors{
			Container: ListContainer{
				Item:           "div.thing.link",
				IgnoreModifier: ".stickied, .promoted",
			},
			Elements: ListElements{
				TitleLink:     "a.title",
				FullnameAttr:  "data-fullname",
				URLAttr:       "data-url",
				PermalinkAttr: "data-permalink",
			},
		},
		PostDetail: DetailSelectors{
			Body:      "div.content .usertext-body",
			BodyLinks: "div.content .usertext-body a[href]",
		},
	}
}
