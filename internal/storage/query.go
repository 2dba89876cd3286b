package storage

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidSort = errors.New("invalid sort key")

// SortSpec orders a deal listing. The zero value means insertion order.
// Ties always fall back to insertion order.
type SortSpec struct {
	Field string
	Desc  bool
}

// Sortable columns and their default direction.
var sortFields = map[string]SortSpec{
	"price":          {Field: "price"},
	"discount":       {Field: "discount", Desc: true},
	"original_price": {Field: "original_price", Desc: true},
	"clicks":         {Field: "clicks", Desc: true},
	"created_at":     {Field: "created_at", Desc: true},

	"latest":     {Field: "created_at", Desc: true},
	"trending":   {Field: "clicks", Desc: true},
	"price_asc":  {Field: "price"},
	"price_desc": {Field: "price", Desc: true},
}

// ParseSort maps a sort key from the API to a SortSpec.
func ParseSort(s string) (SortSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SortSpec{}, nil
	}
	spec, ok := sortFields[s]
	if !ok {
		return SortSpec{}, fmt.Errorf("%w: %q", ErrInvalidSort, s)
	}
	return spec, nil
}

func (s SortSpec) direction() string {
	if s.Desc {
		return "DESC"
	}
	return "ASC"
}
