package models

import (
	"errors"
	"time"
)

var (
	// ErrDealExists is returned when attempting to create a deal whose natural key is already stored.
	ErrDealExists = errors.New("deal already exists")
	// ErrDealNotFound is returned when updating a deal that is no longer stored.
	ErrDealNotFound = errors.New("deal not found")
)

// Deal is one tracked product offer as persisted and served by the API.
type Deal struct {
	ID            string    `json:"id" firestore:"-"`
	ProductID     string    `json:"product_id" firestore:"product_id"`
	Title         string    `json:"title" firestore:"title"`
	Image         string    `json:"image" firestore:"image"`
	Price         float64   `json:"price" firestore:"price"`
	OriginalPrice float64   `json:"original_price" firestore:"original_price"`
	Discount      float64   `json:"discount" firestore:"discount"`
	URL           string    `json:"url" firestore:"url"`
	Source        string    `json:"source" firestore:"source"`
	Category      string    `json:"category" firestore:"category"`
	RedditPostID  string    `json:"reddit_post_id" firestore:"reddit_post_id"`
	CreatedAt     time.Time `json:"created_at" firestore:"created_at"`
	Clicks        int64     `json:"clicks" firestore:"clicks"`
}

// DealInput is an enriched deal: everything the pipeline knows about an offer
// before the store assigns identity, creation time and clicks.
type DealInput struct {
	ProductID     string  `validate:"required,productid"`
	Title         string  `validate:"required"`
	Image         string  `validate:"omitempty,url"`
	Price         float64 `validate:"gte=0"`
	OriginalPrice float64 `validate:"gte=0"`
	Discount      float64 `validate:"gte=0,lte=100"`
	URL           string  `validate:"required,url"`
	Source        string  `validate:"required,oneof=amazon flipkart"`
	Category      string  `validate:"required"`
	RedditPostID  string
}

// NewDeal builds a fresh deal from an input. Clicks always start at zero.
func NewDeal(id string, in DealInput, createdAt time.Time) Deal {
	d := Deal{ID: id, CreatedAt: createdAt}
	d.Apply(in)
	return d
}

// Apply overwrites the mutable fields of d with those of in.
// ID, CreatedAt and Clicks are never touched.
func (d *Deal) Apply(in DealInput) {
	d.ProductID = in.ProductID
	d.Title = in.Title
	d.Image = in.Image
	d.Price = in.Price
	d.OriginalPrice = in.OriginalPrice
	d.Discount = in.Discount
	d.URL = in.URL
	d.Source = in.Source
	d.Category = in.Category
	d.RedditPostID = in.RedditPostID
}

// Input returns the mutable fields of d as a DealInput.
func (d Deal) Input() DealInput {
	return DealInput{
		ProductID:     d.ProductID,
		Title:         d.Title,
		Image:         d.Image,
		Price:         d.Price,
		OriginalPrice: d.OriginalPrice,
		Discount:      d.Discount,
		URL:           d.URL,
		Source:        d.Source,
		Category:      d.Category,
		RedditPostID:  d.RedditPostID,
	}
}

// RawDeal is a minimal product reference found in a forum post, before enrichment.
type RawDeal struct {
	URL       string `json:"url"`
	Source    string `json:"source"`
	ProductID string `json:"product_id"`
	PostID    string `json:"post_id"`
}

// CategoryCount is one row of the category aggregation.
type CategoryCount struct {
	Category string `json:"category" bson:"_id" gorm:"column:category"`
	Count    int64  `json:"count" bson:"count" gorm:"column:count"`
}
