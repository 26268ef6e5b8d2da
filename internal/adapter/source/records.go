package source

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"metromap/internal/domain/layer"
	"metromap/internal/service/geo"
)

// record is a loosely typed JSON object as returned by open-data APIs
type record map[string]any

// text returns the first non-empty string value among keys
func (r record) text(keys ...string) string {
	for _, k := range keys {
		switch v := r[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// number returns the first value among keys that parses as a finite float
func (r record) number(keys ...string) (float64, bool) {
	for _, k := range keys {
		if f, ok := toFloat(r[k]); ok {
			return f, true
		}
	}
	return 0, false
}

// time returns the first value among keys that parses as a timestamp
func (r record) time(keys ...string) *time.Time {
	for _, k := range keys {
		s, ok := r[k].(string)
		if !ok || s == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.000", "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return &t
			}
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// appendValid appends p when its coordinates are usable
func appendValid(points []layer.Point, p layer.Point) []layer.Point {
	if !geo.ValidLatLng(p.Latitude, p.Longitude) {
		return points
	}
	return append(points, p)
}

// stableID prefers the source identifier and falls back to position
func stableID(prefix, sourceID string, index int) string {
	if sourceID != "" {
		return prefix + "-" + sourceID
	}
	return fmt.Sprintf("%s-%d", prefix, index)
}
