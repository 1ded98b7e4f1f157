package api

import (
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/onnwee/beaconads/internal/validate"
)

// Page size bounds.
const (
	DefaultPageSize = 10
	MaxPageSize     = 50
)

// Page is a requested page-number page.
type Page struct {
	Number int
	Size   int
}

// Limit is the repository limit for p.
func (p Page) Limit() int { return p.Size }

// Offset is the repository offset for p. It saturates at math.MaxInt so a
// huge page number reads as past the end instead of overflowing.
func (p Page) Offset() int {
	if p.Number <= 1 || p.Size <= 0 {
		return 0
	}
	if p.Number-1 > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return (p.Number - 1) * p.Size
}

// PageResponse is the paginated list envelope. Next and Previous are absolute
// URLs or null.
type PageResponse[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// Paginator parses page and page_size query parameters.
type Paginator struct {
	defaultSize int
}

// NewPaginator returns a Paginator using defaultSize when page_size is
// absent. Sizes outside [1, MaxPageSize] fall back to DefaultPageSize.
func NewPaginator(defaultSize int) Paginator {
	if defaultSize < 1 || defaultSize > MaxPageSize {
		defaultSize = DefaultPageSize
	}
	return Paginator{defaultSize: defaultSize}
}

// Parse reads page (default 1) and page_size (default the configured size,
// capped at MaxPageSize) from the query string. Invalid values are added to fe.
func (p Paginator) Parse(r *http.Request, fe validate.FieldErrors) Page {
	page := Page{Number: 1, Size: p.defaultSize}
	if p.defaultSize == 0 {
		page.Size = DefaultPageSize
	}

	query := r.URL.Query()
	if s := query.Get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			fe.Add("page", "must be a positive integer")
		} else {
			page.Number = n
		}
	}
	if s := query.Get("page_size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			fe.Add("page_size", "must be a positive integer")
		} else {
			page.Size = min(n, MaxPageSize)
		}
	}
	return page
}

// NewPageResponse builds the envelope for one page of results out of total.
// A page past the end keeps the true count, has no next link and links back
// to the last page.
func NewPageResponse[T any](r *http.Request, page Page, results []T, total int) PageResponse[T] {
	if results == nil {
		results = []T{}
	}
	resp := PageResponse[T]{Count: total, Results: results}

	lastPage := (total + page.Size - 1) / page.Size
	switch {
	case page.Number > lastPage:
		if lastPage > 0 {
			resp.Previous = pageURL(r, lastPage)
		}
	default:
		if page.Number < lastPage {
			resp.Next = pageURL(r, page.Number+1)
		}
		if page.Number > 1 {
			resp.Previous = pageURL(r, page.Number-1)
		}
	}
	return resp
}

func pageURL(r *http.Request, number int) *string {
	u := url.URL{Scheme: "http", Host: r.Host, Path: r.URL.Path}
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		u.Scheme = "https"
	}
	query := r.URL.Query()
	query.Set("page", strconv.Itoa(number))
	u.RawQuery = query.Encode()
	s := u.String()
	return &s
}
