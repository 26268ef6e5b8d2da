package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestReprojectStatePlane(t *testing.T) {
	tests := []struct {
		name   string
		x, y   float64
		lat    float64
		lng    float64
		wantOK bool
	}{
		{"downtown orlando", 534415.624, 1528607.842, 28.5383, -81.3792, true},
		{"north east", 591989.615, 1550902.424, 28.6, -81.2, true},
		{"south west", 495420.297, 1478465.335, 28.4, -81.5, true},
		{"zero easting", 0, 1528607.842, 0, 0, false},
		{"zero northing", 534415.624, 0, 0, 0, false},
		{"outside region", 100000, 100000, 0, 0, false},
		{"not a number", math.NaN(), 1528607.842, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lat, lng, ok := ReprojectStatePlane(tt.x, tt.y)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v (lat=%f lng=%f)", ok, tt.wantOK, lat, lng)
			}
			if !ok {
				return
			}
			if math.Abs(lat-tt.lat) > 0.001 || math.Abs(lng-tt.lng) > 0.001 {
				t.Errorf("got (%f, %f), want (%f, %f) within 0.001", lat, lng, tt.lat, tt.lng)
			}
		})
	}
}

func TestProjectionRoundTrip(t *testing.T) {
	proj, err := FloridaEast()
	if err != nil {
		t.Fatalf("FloridaEast: %v", err)
	}
	for _, c := range [][2]float64{{28.5383, -81.3792}, {25.8, -80.2}, {29.9, -82.9}} {
		x, y, err := proj.Forward(c[0], c[1])
		if err != nil {
			t.Fatalf("Forward(%v): %v", c, err)
		}
		lat, lng, err := proj.Inverse(x, y)
		if err != nil {
			t.Fatalf("Inverse(%f, %f): %v", x, y, err)
		}
		if math.Abs(lat-c[0]) > 1e-6 || math.Abs(lng-c[1]) > 1e-6 {
			t.Errorf("round trip of %v gave (%f, %f)", c, lat, lng)
		}
	}
}

func TestNewProjectionRejectsBadDefinition(t *testing.T) {
	if _, err := NewProjection("+proj=nonesuch +ellps=GRS80", 1); err == nil {
		t.Error("expected an error for an unknown projection")
	}
}

func TestValidLatLng(t *testing.T) {
	tests := []struct {
		lat, lng float64
		want     bool
	}{
		{28.5, -81.3, true},
		{90, 180, true},
		{-90, -180, true},
		{90.0001, 0, false},
		{0, 200, false},
		{math.NaN(), 0, false},
		{0, math.Inf(1), false},
	}
	for _, tt := range tests {
		if got := ValidLatLng(tt.lat, tt.lng); got != tt.want {
			t.Errorf("ValidLatLng(%v, %v) = %v, want %v", tt.lat, tt.lng, got, tt.want)
		}
	}
}

func TestRepresentativePoint(t *testing.T) {
	square := orb.Polygon{orb.Ring{{0, 0}, {2, 0}, {2, 2}, {0, 2}}}

	tests := []struct {
		name string
		geom orb.Geometry
		want orb.Point
		ok   bool
	}{
		{"point", orb.Point{-81.3, 28.5}, orb.Point{-81.3, 28.5}, true},
		{"multipoint takes first", orb.MultiPoint{{-81.1, 28.1}, {-81.2, 28.2}}, orb.Point{-81.1, 28.1}, true},
		{"linestring midpoint index", orb.LineString{{0, 0}, {1, 1}, {2, 2}, {3, 3}}, orb.Point{2, 2}, true},
		{"polygon vertex mean", square, orb.Point{1, 1}, true},
		{"empty linestring", orb.LineString{}, orb.Point{}, false},
		{"out of range point", orb.Point{200, 28.5}, orb.Point{}, false},
		{"unsupported geometry", orb.MultiLineString{{{0, 0}, {1, 1}}}, orb.Point{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RepresentativePoint(tt.geom)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMean(t *testing.T) {
	fallback := orb.Point{-81.3792, 28.5383}
	if got := Mean(nil, fallback); !got.Equal(fallback) {
		t.Errorf("empty input should return fallback, got %v", got)
	}
	got := Mean([]orb.Point{{-81.4, 28.5}, {-81.2, 28.7}, {500, 0}}, fallback)
	if math.Abs(got.Lon()+81.3) > 1e-9 || math.Abs(got.Lat()-28.6) > 1e-9 {
		t.Errorf("Mean = %v, want [-81.3 28.6]", got)
	}
}
