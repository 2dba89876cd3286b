package enricher

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"regexp"

	"golang.org/x/time/rate"
)

var (
	ErrNotFound    = errors.New("product not found")
	ErrRateLimited = errors.New("catalog rate limit exceeded")
	ErrTransient   = errors.New("catalog temporarily unavailable")
)

// ProductDetails is what a catalog knows about one product.
type ProductDetails struct {
	Title         string
	Price         float64
	OriginalPrice float64
	Discount      float64 // percent
	Images        []string
	Available     bool
}

// Catalog looks up products of one marketplace by identifier.
type Catalog interface {
	FetchProduct(ctx context.Context, productID string) (*ProductDetails, error)
}

var (
	asinRegex = regexp.MustCompile(`^[A-Z0-9]{10}$`)
	pidRegex  = regexp.MustCompile(`^[A-Z0-9]{6,24}$`)
)

// MockCatalog fabricates plausible product data. The output is a pure
// function of the product identifier.
type MockCatalog struct {
	name     string
	validID  *regexp.Regexp
	imageURL func(i int) string
	limiter  *rate.Limiter
}

func NewMockAmazonCatalog(ratePerSec float64) *MockCatalog {
	return &MockCatalog{
		name:    "Amazon",
		validID: asinRegex,
		imageURL: func(i int) string {
			return fmt.Sprintf("https://m.media-amazon.com/images/I/image%d.jpg", i)
		},
		limiter: newLimiter(ratePerSec),
	}
}

func NewMockFlipkartCatalog(ratePerSec float64) *MockCatalog {
	return &MockCatalog{
		name:    "Flipkart",
		validID: pidRegex,
		imageURL: func(i int) string {
			return fmt.Sprintf("https://rukminim1.flixcart.com/image/image%d.jpeg", i)
		},
		limiter: newLimiter(ratePerSec),
	}
}

func newLimiter(ratePerSec float64) *rate.Limiter {
	if ratePerSec <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(ratePerSec), burst)
}

func (c *MockCatalog) FetchProduct(ctx context.Context, productID string) (*ProductDetails, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	if !c.validID.MatchString(productID) {
		return nil, ErrNotFound
	}

	h := fnv.New64a()
	h.Write([]byte(productID))
	seed := h.Sum64()
	r := rand.New(rand.NewPCG(seed, seed>>1))

	originalPrice := floor2(1000 + r.Float64()*4000)
	discountFrac := floor2(0.10 + r.Float64()*0.40)

	images := make([]string, 0, 3)
	for i := 1; i <= 3; i++ {
		images = append(images, c.imageURL(i))
	}

	return &ProductDetails{
		Title:         fmt.Sprintf("Mock %s Product - %s", c.name, productID),
		Price:         round2(originalPrice * (1 - discountFrac)),
		OriginalPrice: originalPrice,
		Discount:      round2(discountFrac * 100),
		Images:        images,
		Available:     true,
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func floor2(v float64) float64 {
	return math.Floor(v*100) / 100
}
