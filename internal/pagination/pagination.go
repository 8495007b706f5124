// Package pagination slices ordered sequences into pages.
package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// ErrInvalidParameter is returned for malformed or out-of-range paging input.
var ErrInvalidParameter = errors.New("invalid parameter")

// Defaults applied when a query parameter is absent.
const (
	DefaultPage    = 0
	DefaultPerPage = 10
	MaxPerPage     = 1000
)

// Query parameter names.
const (
	ParamPage    = "page"
	ParamPerPage = "perPage"
)

// Page is one window over an ordered sequence plus its metadata.
type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalPages int `json:"totalPages"`
}

// Paginate returns items[page*perPage : page*perPage+perPage] clipped to the
// bounds of items. A page past the end yields an empty slice, not an error.
func Paginate[T any](items []T, page, perPage int) (Page[T], error) {
	if page < 0 {
		return Page[T]{}, fmt.Errorf("page %d: %w", page, ErrInvalidParameter)
	}
	if perPage <= 0 {
		return Page[T]{}, fmt.Errorf("perPage %d: %w", perPage, ErrInvalidParameter)
	}

	total := len(items)
	window := []T{}

	totalPages := ceilDiv(total, perPage)

	// page*perPage can overflow for huge inputs; compare against totalPages instead.
	if page < totalPages {
		start := page * perPage
		end := start + min(perPage, total-start)
		window = append(window, items[start:end]...)
	}

	return Page[T]{
		Items:      window,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}, nil
}

func ceilDiv(n, d int) int {
	q := n / d
	if n%d != 0 {
		q++
	}
	return q
}

// ParseParams reads page and perPage from a query string, applying defaults
// for absent values.
func ParseParams(q url.Values) (page, perPage int, err error) {
	page, err = intParam(q, ParamPage, DefaultPage)
	if err != nil {
		return 0, 0, err
	}
	if page < 0 {
		return 0, 0, fmt.Errorf("%s must not be negative: %w", ParamPage, ErrInvalidParameter)
	}

	perPage, err = intParam(q, ParamPerPage, DefaultPerPage)
	if err != nil {
		return 0, 0, err
	}
	if perPage <= 0 || perPage > MaxPerPage {
		return 0, 0, fmt.Errorf("%s must be between 1 and %d: %w", ParamPerPage, MaxPerPage, ErrInvalidParameter)
	}

	return page, perPage, nil
}

func intParam(q url.Values, name string, def int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not an integer: %w", name, raw, ErrInvalidParameter)
	}

	return v, nil
}
