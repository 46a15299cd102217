package geo

import (
	"math"
	"testing"
)

func TestDistanceMeters_SamePointIsZero(t *testing.T) {
	for _, p := range []Point{{0, 0}, {-23.5505, -46.6333}, {89.9, 179.9}, {-90, -180}} {
		if d := DistanceMeters(p, p); d != 0 {
			t.Errorf("DistanceMeters(%v, %v) = %f, want 0", p, p, d)
		}
	}
}

func TestDistanceMeters_Symmetric(t *testing.T) {
	pairs := [][2]Point{
		{{-23.5505, -46.6333}, {-22.9068, -43.1729}},
		{{51.5074, -0.1278}, {48.8566, 2.3522}},
		{{0, 179.999}, {0, -179.999}},
	}
	for _, pr := range pairs {
		ab := DistanceMeters(pr[0], pr[1])
		ba := DistanceMeters(pr[1], pr[0])
		if math.Abs(ab-ba) > 1e-9 {
			t.Errorf("asymmetric distance: %f vs %f", ab, ba)
		}
	}
}

func TestDistanceMeters_KnownDistances(t *testing.T) {
	// London to Paris is ~343.5 km on a 6371 km sphere.
	d := DistanceMeters(Point{51.5074, -0.1278}, Point{48.8566, 2.3522})
	if d < 342000 || d > 345000 {
		t.Errorf("London-Paris = %f m, want ~343.5 km", d)
	}

	// One degree of latitude is ~111.195 km.
	d = DistanceMeters(Point{0, 0}, Point{1, 0})
	if math.Abs(d-111195) > 5 {
		t.Errorf("1 degree latitude = %f m, want ~111195", d)
	}
}

func TestDistanceMeters_AntimeridianIsShort(t *testing.T) {
	d := DistanceMeters(Point{0, 179.9999}, Point{0, -179.9999})
	if d > 30 {
		t.Errorf("points across the antimeridian should be ~22 m apart, got %f", d)
	}
}

func TestWithin_BoundaryInclusive(t *testing.T) {
	if !Within(50.0, 50.0) {
		t.Error("distance equal to radius should be inside")
	}
	if Within(50.0001, 50.0) {
		t.Error("distance above radius should be outside")
	}
}

func TestValidate(t *testing.T) {
	ok := []Point{{0, 0}, {90, 180}, {-90, -180}}
	for _, p := range ok {
		if err := p.Validate(); err != nil {
			t.Errorf("Validate(%v): unexpected %v", p, err)
		}
	}
	bad := []Point{{math.NaN(), 0}, {0, math.NaN()}, {90.1, 0}, {0, -180.5}, {math.Inf(1), 0}}
	for _, p := range bad {
		if err := p.Validate(); err != ErrInvalidCoordinate {
			t.Errorf("Validate(%v): expected ErrInvalidCoordinate, got %v", p, err)
		}
	}
}
