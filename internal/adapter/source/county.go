package source

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/serjvanilla/go-overpass"

	"metromap/internal/domain/layer"
	"metromap/internal/service/geo"
)

const (
	// DefaultOCGISBaseURL is the Orange County public ArcGIS map service
	DefaultOCGISBaseURL = "https://ocgis4.ocfl.net/arcgis/rest/services/Public_Dynamic/MapServer"

	// DefaultOverpassURL is the public Overpass API interpreter
	DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

	countyTimeout = 15 * time.Second

	// metro bounding box as south,west,north,east
	overpassBBox = "28.30,-81.60,28.80,-81.10"
)

type countyCategory struct {
	layerID int
	label   string
	color   string
	icon    string
}

var countyCategories = []countyCategory{
	{layerID: 30, label: "Parks", color: "#22c55e", icon: "park"},
	{layerID: 70, label: "Trails", color: "#84cc16", icon: "trail"},
	{layerID: 47, label: "Public Art", color: "#a855f7", icon: "art"},
	{layerID: 27, label: "Fire Stations", color: "#ef4444", icon: "fire"},
}

var libraryCategory = countyCategory{label: "Libraries", color: "#f97316", icon: "library"}

var countyNameFields = []string{"PARK_NAME", "TRAIL_NAME", "ART_TITLE", "STATION_NAME", "NAME", "name"}

// OverpassQuerier runs an Overpass QL query
type OverpassQuerier interface {
	Query(query string) (overpass.Result, error)
}

// NewOverpassClient wraps go-overpass with a bounded HTTP client
func NewOverpassClient(endpoint string) OverpassQuerier {
	if endpoint == "" {
		endpoint = DefaultOverpassURL
	}
	client := overpass.NewWithSettings(endpoint, 2, &http.Client{Timeout: countyTimeout})
	return &client
}

// CountyPlaces merges county GIS layers and, optionally, OSM libraries
type CountyPlaces struct {
	client   *Client
	baseURL  string
	overpass OverpassQuerier
	timeout  time.Duration
	now      func() time.Time
}

// NewCountyPlaces creates the county places source. A nil overpass querier
// disables the library category.
func NewCountyPlaces(client *Client, baseURL string, op OverpassQuerier) *CountyPlaces {
	if baseURL == "" {
		baseURL = DefaultOCGISBaseURL
	}
	return &CountyPlaces{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		overpass: op,
		timeout:  countyTimeout,
		now:      time.Now,
	}
}

// Key implements layer.Source
func (s *CountyPlaces) Key() layer.Key { return layer.CountyData }

// Fetch implements layer.Source. Categories are fetched concurrently; a
// failed category is reported in warnings and contributes no points.
func (s *CountyPlaces) Fetch(ctx context.Context) (layer.Envelope, error) {
	categories := append([]countyCategory(nil), countyCategories...)
	tasks := make([]func(context.Context) ([]layer.Point, error), 0, len(categories)+1)
	for _, cat := range countyCategories {
		tasks = append(tasks, func(ctx context.Context) ([]layer.Point, error) {
			return s.fetchCategory(ctx, cat)
		})
	}
	if s.overpass != nil {
		categories = append(categories, libraryCategory)
		tasks = append(tasks, func(ctx context.Context) ([]layer.Point, error) {
			return s.fetchLibraries(ctx)
		})
	}

	results := gatherAll(ctx, tasks...)

	var points []layer.Point
	summary := make(map[string]int)
	var warnings []string
	failed := 0
	for i, res := range results {
		cat := categories[i]
		if res.Err != nil {
			failed++
			warnings = append(warnings, fmt.Sprintf("%s: %v", cat.label, res.Err))
			summary[cat.label] = 0
			continue
		}
		summary[cat.label] = len(res.Value)
		points = append(points, res.Value...)
	}
	if failed == len(results) {
		return layer.Envelope{}, results[0].Err
	}

	env := layer.NewEnvelope(s.Key(), points, nil, s.now())
	summary["total"] = len(env.Items)
	env.Summary = summary
	env.Warnings = warnings
	return env, nil
}

func (s *CountyPlaces) fetchCategory(ctx context.Context, cat countyCategory) ([]layer.Point, error) {
	url := fmt.Sprintf("%s/%d/query?where=1%%3D1&outFields=*&outSR=4326&f=geojson&resultRecordCount=100", s.baseURL, cat.layerID)
	body, err := s.client.get(ctx, s.Key(), url, s.timeout, "application/geo+json")
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, layer.Decode(s.Key(), err)
	}

	points := make([]layer.Point, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		pt, ok := geo.RepresentativePoint(f.Geometry)
		if !ok {
			continue
		}
		props := record(f.Properties)
		name := props.text(countyNameFields...)
		if name == "" {
			name = "Unknown"
		}

		var sourceID string
		if f.ID != nil {
			sourceID = fmt.Sprint(f.ID)
		}
		points = appendValid(points, layer.Point{
			ID:        stableID("county-"+cat.icon, sourceID, i),
			Type:      cat.icon,
			Title:     name,
			Address:   props.text("ADDRESS", "LOCATION"),
			Latitude:  pt.Lat(),
			Longitude: pt.Lon(),
			Color:     cat.color,
			Details:   layer.POIDetails{Category: cat.label, Icon: cat.icon, Source: "ocgis"},
		})
	}
	return points, nil
}

func (s *CountyPlaces) fetchLibraries(ctx context.Context) ([]layer.Point, error) {
	query := fmt.Sprintf(`[out:json][timeout:15];node["amenity"="library"](%s);out body;`, overpassBBox)

	type outcome struct {
		res overpass.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.overpass.Query(query)
		done <- outcome{res, err}
	}()

	var res overpass.Result
	select {
	case <-ctx.Done():
		return nil, layer.Upstream(s.Key(), ctx.Err())
	case out := <-done:
		if out.err != nil {
			return nil, layer.Upstream(s.Key(), fmt.Errorf("overpass query failed: %w", out.err))
		}
		res = out.res
	}

	ids := make([]int64, 0, len(res.Nodes))
	for id := range res.Nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	points := make([]layer.Point, 0, len(ids))
	for _, id := range ids {
		node := res.Nodes[id]
		if node == nil {
			continue
		}
		name := node.Tags["name"]
		if name == "" {
			name = "Library"
		}
		points = appendValid(points, layer.Point{
			ID:        "county-library-" + strconv.FormatInt(node.ID, 10),
			Type:      libraryCategory.icon,
			Title:     name,
			Address:   strings.TrimSpace(node.Tags["addr:housenumber"] + " " + node.Tags["addr:street"]),
			Latitude:  node.Lat,
			Longitude: node.Lon,
			Color:     libraryCategory.color,
			Details:   layer.POIDetails{Category: libraryCategory.label, Icon: libraryCategory.icon, Source: "osm"},
		})
	}
	return points, nil
}
