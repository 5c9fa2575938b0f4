package geo

import (
	"context"
	"errors"
	"testing"

	"github.com/spigell/jobmatch/internal/profile"
)

func TestHaversine(t *testing.T) {
	t.Parallel()

	london := Point{51.5074, -0.1278}
	paris := Point{48.8566, 2.3522}

	if d := Haversine(london, london); d != 0 {
		t.Fatalf("expected zero distance, got %v", d)
	}

	d := Haversine(london, paris)
	if d < 340 || d > 345 {
		t.Fatalf("expected ~343km between london and paris, got %v", d)
	}

	if back := Haversine(paris, london); back != d {
		t.Fatalf("expected symmetric distance, got %v and %v", d, back)
	}
}

func TestGazetteerDistance(t *testing.T) {
	t.Parallel()

	g := NewGazetteer(map[string]Point{"Reading": {51.4543, -0.9781}})
	ctx := context.Background()

	d, err := g.Distance(ctx, profile.Location{City: "London"}, profile.Location{City: "reading"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d < 55 || d > 65 {
		t.Fatalf("expected ~59km, got %v", d)
	}

	_, err = g.Distance(ctx, profile.Location{City: "London"}, profile.Location{City: "Atlantis"})
	if !errors.Is(err, ErrUnknownLocation) {
		t.Fatalf("expected ErrUnknownLocation, got %v", err)
	}

	_, err = g.Distance(ctx, profile.Location{}, profile.Location{City: "London"})
	if !errors.Is(err, ErrUnknownLocation) {
		t.Fatalf("expected ErrUnknownLocation for empty city, got %v", err)
	}
}
