package advertisement

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/beaconads/internal/validate"
)

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }

func TestCreate(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository(nil)

	a := &Advertisement{Title: "  Spring Sale ", Content: "20% off"}
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if a.ID == "" || !a.IsActive || a.MediaType != MediaText || a.Title != "Spring Sale" {
		t.Errorf("unexpected advertisement: %+v", a)
	}

	tests := []struct {
		name  string
		ad    Advertisement
		field string
	}{
		{"missing title", Advertisement{Content: "x"}, "title"},
		{"unknown media type", Advertisement{Title: "x", MediaType: "audio"}, "media_type"},
		{"content too long", Advertisement{Title: "x", Content: strings.Repeat("x", MaxContentLength+1)}, "content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ad := tt.ad
			err := repo.Create(ctx, &ad)
			var fe validate.FieldErrors
			if !errors.As(err, &fe) {
				t.Fatalf("expected FieldErrors, got %v", err)
			}
			if _, ok := fe[tt.field]; !ok {
				t.Errorf("expected error on %s, got %v", tt.field, fe)
			}
		})
	}
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository(nil)
	a := &Advertisement{Title: "Coffee", Content: "Free refill"}
	_ = repo.Create(ctx, a)

	video := MediaVideo
	got, err := repo.Update(ctx, a.ID, &Update{Title: strp("Tea"), MediaType: &video, IsActive: boolp(false)})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Title != "Tea" || got.MediaType != MediaVideo || got.IsActive || got.Content != "Free refill" {
		t.Errorf("unexpected advertisement after update: %+v", got)
	}

	if _, err := repo.Update(ctx, a.ID, &Update{Title: strp("  ")}); err == nil {
		t.Error("expected validation error for blank title")
	}
	if _, err := repo.Update(ctx, "missing", &Update{}); !errors.Is(err, ErrAdvertisementNotFound) {
		t.Errorf("expected ErrAdvertisementNotFound, got %v", err)
	}

	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, a.ID); !errors.Is(err, ErrAdvertisementNotFound) {
		t.Errorf("expected ErrAdvertisementNotFound, got %v", err)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository(nil)
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	i := 0
	repo.now = func() time.Time { i++; return base.Add(time.Duration(i) * time.Second) }

	for _, title := range []string{"Pizza night", "Burger deal", "pizza lunch"} {
		_ = repo.Create(ctx, &Advertisement{Title: title})
	}
	all, _, _ := repo.List(ctx, Filter{}, 10, 0)
	_, _ = repo.Update(ctx, all[2].ID, &Update{IsActive: boolp(false)})

	got, total, err := repo.List(ctx, Filter{Search: "PIZZA"}, 10, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 2 || got[0].Title != "pizza lunch" {
		t.Errorf("expected newest pizza ad first, got total=%d %v", total, got)
	}

	active, total, _ := repo.List(ctx, Filter{Search: "pizza", Active: boolp(true)}, 10, 0)
	if total != 1 || active[0].Title != "pizza lunch" {
		t.Errorf("expected only the active pizza ad, got %v", active)
	}

	page, total, _ := repo.List(ctx, Filter{}, 2, 10)
	if total != 3 || page == nil || len(page) != 0 {
		t.Errorf("expected empty page with true total, got %v %d", page, total)
	}
}

func TestSetMediaAndDeactivate(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository(nil)
	a := &Advertisement{Title: "A"}
	b := &Advertisement{Title: "B"}
	_ = repo.Create(ctx, a)
	_ = repo.Create(ctx, b)

	got, err := repo.SetMedia(ctx, a.ID, "advertisements/x/y.png", MediaImage)
	if err != nil {
		t.Fatalf("SetMedia() error = %v", err)
	}
	if got.MediaKey == nil || *got.MediaKey != "advertisements/x/y.png" || got.MediaType != MediaImage {
		t.Errorf("unexpected media: %+v", got)
	}
	if _, err := repo.SetMedia(ctx, "missing", "k", MediaImage); !errors.Is(err, ErrAdvertisementNotFound) {
		t.Errorf("expected ErrAdvertisementNotFound, got %v", err)
	}

	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	n, err := repo.Deactivate(ctx, []string{a.ID, b.ID, "unknown"}, at)
	if err != nil || n != 2 {
		t.Fatalf("Deactivate() = %d, %v; want 2", n, err)
	}
	again, _ := repo.Deactivate(ctx, []string{a.ID, b.ID}, at)
	if again != 0 {
		t.Errorf("second deactivation should change nothing, changed %d", again)
	}
	got, _ = repo.GetByID(ctx, a.ID)
	if got.IsActive || !got.UpdatedAt.Equal(at) {
		t.Errorf("unexpected advertisement after deactivation: %+v", got)
	}
}

func TestMatchesSearch(t *testing.T) {
	a := &Advertisement{Title: "Summer Shoes", Content: "Sandals and SNEAKERS"}
	tests := []struct {
		search string
		want   bool
	}{
		{"", true},
		{"  ", true},
		{"shoe", true},
		{"sneakers", true},
		{"boots", false},
	}
	for _, tt := range tests {
		if got := MatchesSearch(a, tt.search); got != tt.want {
			t.Errorf("MatchesSearch(%q) = %t, want %t", tt.search, got, tt.want)
		}
	}
}
