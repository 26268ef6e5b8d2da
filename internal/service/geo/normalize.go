package geo

import "github.com/paulmach/orb"

// ValidLatLng reports whether a latitude/longitude pair is finite and in range
func ValidLatLng(lat, lng float64) bool {
	return finite(lat) && finite(lng) &&
		lat >= -90 && lat <= 90 &&
		lng >= -180 && lng <= 180
}

// ValidPoint checks an orb point, which stores [lng, lat]
func ValidPoint(p orb.Point) bool {
	return ValidLatLng(p.Lat(), p.Lon())
}

// RepresentativePoint returns one marker position for a geometry.
// Polygons use the unweighted mean of the outer ring's vertices, which is
// not the true centroid. Geometries without a rule return false.
func RepresentativePoint(g orb.Geometry) (orb.Point, bool) {
	var p orb.Point
	switch v := g.(type) {
	case orb.Point:
		p = v
	case orb.MultiPoint:
		if len(v) == 0 {
			return orb.Point{}, false
		}
		p = v[0]
	case orb.LineString:
		if len(v) == 0 {
			return orb.Point{}, false
		}
		p = v[len(v)/2]
	case orb.Polygon:
		if len(v) == 0 || len(v[0]) == 0 {
			return orb.Point{}, false
		}
		var sumLng, sumLat float64
		for _, c := range v[0] {
			sumLng += c[0]
			sumLat += c[1]
		}
		count := float64(len(v[0]))
		p = orb.Point{sumLng / count, sumLat / count}
	default:
		return orb.Point{}, false
	}

	if !ValidPoint(p) {
		return orb.Point{}, false
	}
	return p, true
}

// Mean returns the average of the valid points, or fallback when none is valid
func Mean(points []orb.Point, fallback orb.Point) orb.Point {
	var sumLng, sumLat float64
	n := 0
	for _, p := range points {
		if !ValidPoint(p) {
			continue
		}
		sumLng += p.Lon()
		sumLat += p.Lat()
		n++
	}
	if n == 0 {
		return fallback
	}
	return orb.Point{sumLng / float64(n), sumLat / float64(n)}
}
