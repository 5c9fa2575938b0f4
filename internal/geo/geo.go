// Package geo resolves locations to coordinates and measures geodesic distance.
package geo

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/spigell/jobmatch/internal/lookup"
	"github.com/spigell/jobmatch/internal/profile"
	"github.com/spigell/jobmatch/internal/textnorm"
)

const earthRadiusKm = 6371.0

// ErrUnknownLocation is returned when a location cannot be resolved to coordinates.
var ErrUnknownLocation = fmt.Errorf("unknown location: %w", lookup.ErrNoData)

type Point struct {
	Lat float64 `mapstructure:"lat" json:"lat"`
	Lon float64 `mapstructure:"lon" json:"lon"`
}

// Gazetteer is a static city table.
type Gazetteer struct {
	cities map[string]Point
}

// NewGazetteer returns the built-in city table extended with extra entries keyed by city name.
func NewGazetteer(extra map[string]Point) *Gazetteer {
	cities := make(map[string]Point, len(builtin)+len(extra))
	for name, p := range builtin {
		cities[textnorm.Normalize(name)] = p
	}
	for name, p := range extra {
		cities[textnorm.Normalize(name)] = p
	}
	return &Gazetteer{cities: cities}
}

// Resolve returns the coordinates of the location's city.
func (g *Gazetteer) Resolve(loc profile.Location) (Point, error) {
	key := textnorm.Normalize(loc.City)
	if key == "" {
		return Point{}, fmt.Errorf("%w: city is empty", ErrUnknownLocation)
	}
	p, ok := g.cities[key]
	if !ok {
		return Point{}, fmt.Errorf("%w: %s", ErrUnknownLocation, strings.TrimSpace(loc.String()))
	}
	return p, nil
}

// Distance returns the great-circle distance between two locations in kilometers.
// The context is accepted to satisfy remote geocoders; the static table never blocks.
func (g *Gazetteer) Distance(_ context.Context, a, b profile.Location) (float64, error) {
	pa, err := g.Resolve(a)
	if err != nil {
		return 0, err
	}
	pb, err := g.Resolve(b)
	if err != nil {
		return 0, err
	}
	return Haversine(pa, pb), nil
}

// Haversine computes the great-circle distance between two points in kilometers.
func Haversine(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

var builtin = map[string]Point{
	"new york":         {40.7128, -74.0060},
	"london":           {51.5074, -0.1278},
	"paris":            {48.8566, 2.3522},
	"tokyo":            {35.6762, 139.6503},
	"san francisco":    {37.7749, -122.4194},
	"berlin":           {52.5200, 13.4050},
	"amsterdam":        {52.3676, 4.9041},
	"moscow":           {55.7558, 37.6173},
	"saint petersburg": {59.9343, 30.3351},
	"tbilisi":          {41.7151, 44.8271},
	"yerevan":          {40.1792, 44.4991},
	"almaty":           {43.2220, 76.8512},
	"belgrade":         {44.7866, 20.4489},
	"istanbul":         {41.0082, 28.9784},
	"dubai":            {25.2048, 55.2708},
	"singapore":        {1.3521, 103.8198},
	"toronto":          {43.6532, -79.3832},
	"sydney":           {-33.8688, 151.2093},
	"madrid":           {40.4168, -3.7038},
	"warsaw":           {52.2297, 21.0122},
}
