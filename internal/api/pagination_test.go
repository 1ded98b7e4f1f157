package api

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/beaconads/internal/validate"
)

func TestPaginator_Parse(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantPage   Page
		wantFields []string
	}{
		{"defaults", "", Page{Number: 1, Size: DefaultPageSize}, nil},
		{"explicit", "?page=3&page_size=5", Page{Number: 3, Size: 5}, nil},
		{"capped size", "?page_size=500", Page{Number: 1, Size: MaxPageSize}, nil},
		{"zero page", "?page=0", Page{Number: 1, Size: DefaultPageSize}, []string{"page"}},
		{"garbage", "?page=abc&page_size=-2", Page{Number: 1, Size: DefaultPageSize}, []string{"page", "page_size"}},
	}

	p := NewPaginator(DefaultPageSize)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := validate.FieldErrors{}
			got := p.Parse(httptest.NewRequest(http.MethodGet, "/beacons"+tt.query, nil), fe)
			if got != tt.wantPage {
				t.Errorf("expected %+v, got %+v", tt.wantPage, got)
			}
			if len(fe) != len(tt.wantFields) {
				t.Errorf("expected fields %v, got %v", tt.wantFields, fe)
			}
			for _, f := range tt.wantFields {
				if _, ok := fe[f]; !ok {
					t.Errorf("missing field %q", f)
				}
			}
		})
	}
}

func TestNewPaginator_OutOfRangeDefault(t *testing.T) {
	for _, size := range []int{0, -1, MaxPageSize + 1} {
		p := NewPaginator(size)
		got := p.Parse(httptest.NewRequest(http.MethodGet, "/", nil), validate.FieldErrors{})
		if got.Size != DefaultPageSize {
			t.Errorf("NewPaginator(%d): expected size %d, got %d", size, DefaultPageSize, got.Size)
		}
	}
}

func TestPage_LimitOffset(t *testing.T) {
	p := Page{Number: 3, Size: 20}
	if p.Limit() != 20 || p.Offset() != 40 {
		t.Errorf("expected limit 20 offset 40, got %d %d", p.Limit(), p.Offset())
	}
}

func TestPage_OffsetSaturates(t *testing.T) {
	tests := []struct {
		page Page
		want int
	}{
		{Page{Number: 1, Size: 50}, 0},
		{Page{Number: 1000000000000000000, Size: 50}, math.MaxInt},
		{Page{Number: math.MaxInt, Size: 1}, math.MaxInt - 1},
		{Page{Number: math.MaxInt, Size: 2}, math.MaxInt},
	}
	for _, tt := range tests {
		if got := tt.page.Offset(); got != tt.want {
			t.Errorf("%+v.Offset() = %d, want %d", tt.page, got, tt.want)
		}
	}
}

func strOrNil(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

func TestNewPageResponse_Links(t *testing.T) {
	tests := []struct {
		name         string
		target       string
		page         Page
		results      int
		total        int
		wantNext     string
		wantPrevious string
	}{
		{
			name:         "first of three",
			target:       "/ads?search=tea",
			page:         Page{Number: 1, Size: 2},
			results:      2,
			total:        5,
			wantNext:     "http://example.com/ads?page=2&search=tea",
			wantPrevious: "<nil>",
		},
		{
			name:         "middle",
			target:       "/ads?page=2",
			page:         Page{Number: 2, Size: 2},
			results:      2,
			total:        5,
			wantNext:     "http://example.com/ads?page=3",
			wantPrevious: "http://example.com/ads?page=1",
		},
		{
			name:         "last",
			target:       "/ads?page=3",
			page:         Page{Number: 3, Size: 2},
			results:      1,
			total:        5,
			wantNext:     "<nil>",
			wantPrevious: "http://example.com/ads?page=2",
		},
		{
			name:         "past the end",
			target:       "/ads?page=9",
			page:         Page{Number: 9, Size: 2},
			total:        5,
			wantNext:     "<nil>",
			wantPrevious: "http://example.com/ads?page=3",
		},
		{
			name:         "empty collection",
			target:       "/ads?page=4",
			page:         Page{Number: 4, Size: 2},
			wantNext:     "<nil>",
			wantPrevious: "<nil>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			resp := NewPageResponse(req, tt.page, make([]int, tt.results), tt.total)
			if resp.Count != tt.total {
				t.Errorf("expected count %d, got %d", tt.total, resp.Count)
			}
			if got := strOrNil(resp.Next); got != tt.wantNext {
				t.Errorf("next: expected %s, got %s", tt.wantNext, got)
			}
			if got := strOrNil(resp.Previous); got != tt.wantPrevious {
				t.Errorf("previous: expected %s, got %s", tt.wantPrevious, got)
			}
			if resp.Results == nil {
				t.Error("results must never be nil")
			}
		})
	}
}

func TestNewPageResponse_ForwardedProto(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/logs", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	resp := NewPageResponse[int](req, Page{Number: 1, Size: 1}, nil, 2)
	if got := strOrNil(resp.Next); got != "https://example.com/logs?page=2" {
		t.Errorf("unexpected next link %s", got)
	}
}
