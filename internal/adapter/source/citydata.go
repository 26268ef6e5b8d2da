package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"metromap/internal/domain/layer"
	"metromap/internal/service/geo"
)

const (
	// DefaultSocrataBaseURL is the City of Orlando open data portal
	DefaultSocrataBaseURL = "https://data.cityoforlando.net/resource"

	cityDataTimeout = 10 * time.Second
	socrataQuery    = "?$limit=200&$order=:created_at+DESC"
)

// cityDataset describes one Socrata resource and how to read its records
type cityDataset struct {
	name         string
	pointType    string
	prefix       string
	resource     string
	color        string
	defaultTitle string
	idFields     []string
	titleFields  []string
	descFields   []string
	addrFields   []string
	dateFields   []string
	statusFields []string
}

var cityDatasets = []cityDataset{
	{
		name:         "codeEnforcement",
		pointType:    "codeEnforcement",
		prefix:       "ce",
		resource:     "k6e8-nw6w",
		color:        "#ef4444",
		defaultTitle: "Code Enforcement",
		idFields:     []string{"apno"},
		titleFields:  []string{"casetype", "case_type"},
		descFields:   []string{"casename"},
		addrFields:   []string{"derived_address"},
		dateFields:   []string{"casedt"},
		statusFields: []string{"casestatus", "status"},
	},
	{
		name:         "commercialPermits",
		pointType:    "commercialPermit",
		prefix:       "cp",
		resource:     "rrba-s48e",
		color:        "#3b82f6",
		defaultTitle: "Commercial Permit",
		idFields:     []string{"permit_number"},
		titleFields:  []string{"application_type", "worktype"},
		descFields:   []string{"worktype"},
		addrFields:   []string{"permit_address"},
		dateFields:   []string{"issue_permit_date", "processed_date"},
		statusFields: []string{"application_status", "status"},
	},
	{
		name:         "residentialPermits",
		pointType:    "residentialPermit",
		prefix:       "rp",
		resource:     "3ypu-438f",
		color:        "#22c55e",
		defaultTitle: "Residential Permit",
		idFields:     []string{"permit_number"},
		titleFields:  []string{"application_type", "worktype"},
		descFields:   []string{"worktype"},
		addrFields:   []string{"permit_address"},
		dateFields:   []string{"issue_permit_date", "processed_date"},
		statusFields: []string{"application_status", "status"},
	},
}

// CityRecords merges the city's code enforcement and permit datasets
type CityRecords struct {
	client  *Client
	baseURL string
	timeout time.Duration
	now     func() time.Time
}

// NewCityRecords creates the city permit source
func NewCityRecords(client *Client, baseURL string) *CityRecords {
	if baseURL == "" {
		baseURL = DefaultSocrataBaseURL
	}
	return &CityRecords{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: cityDataTimeout,
		now:     time.Now,
	}
}

// Key implements layer.Source
func (s *CityRecords) Key() layer.Key { return layer.CityData }

// Fetch implements layer.Source. Datasets are fetched concurrently and a
// failing dataset only removes its own records.
func (s *CityRecords) Fetch(ctx context.Context) (layer.Envelope, error) {
	tasks := make([]func(context.Context) ([]record, error), len(cityDatasets))
	for i, ds := range cityDatasets {
		url := fmt.Sprintf("%s/%s.json%s", s.baseURL, ds.resource, socrataQuery)
		tasks[i] = func(ctx context.Context) ([]record, error) {
			var records []record
			if err := s.client.getJSON(ctx, s.Key(), url, s.timeout, &records); err != nil {
				return nil, err
			}
			return records, nil
		}
	}
	results := gatherAll(ctx, tasks...)

	var points []layer.Point
	summary := make(map[string]int)
	var warnings []string
	failed := 0

	for i, res := range results {
		ds := cityDatasets[i]
		if res.Err != nil {
			failed++
			warnings = append(warnings, fmt.Sprintf("%s: %v", ds.name, res.Err))
			summary[ds.name] = 0
			summary[ds.name+"Total"] = 0
			continue
		}

		mapped := 0
		for j, rec := range res.Value {
			p, ok := ds.point(rec, j)
			if !ok {
				continue
			}
			points = append(points, p)
			mapped++
		}
		summary[ds.name] = mapped
		summary[ds.name+"Total"] = len(res.Value)
	}

	if failed == len(cityDatasets) {
		return layer.Envelope{}, results[0].Err
	}

	env := layer.NewEnvelope(s.Key(), points, nil, s.now())
	summary["total"] = len(env.Items)
	env.Summary = summary
	env.Warnings = warnings
	return env, nil
}

// point converts one record; records without usable coordinates return false
func (ds cityDataset) point(rec record, index int) (layer.Point, bool) {
	lat, lng, projected, ok := cityCoordinates(rec)
	if !ok {
		return layer.Point{}, false
	}

	title := rec.text(ds.titleFields...)
	if title == "" {
		title = ds.defaultTitle
	}
	number := rec.text(ds.idFields...)

	p := layer.Point{
		ID:          stableID(ds.prefix, number, index),
		Type:        ds.pointType,
		Title:       title,
		Description: rec.text(ds.descFields...),
		Address:     rec.text(ds.addrFields...),
		Latitude:    lat,
		Longitude:   lng,
		Color:       ds.color,
		Timestamp:   rec.time(ds.dateFields...),
		Details: layer.PermitDetails{
			Dataset:   ds.name,
			Number:    number,
			Status:    rec.text(ds.statusFields...),
			Kind:      title,
			Projected: projected,
		},
	}
	return p, geo.ValidLatLng(lat, lng)
}

// cityCoordinates prefers projected gpsx/gpsy and falls back to WGS84 fields
func cityCoordinates(rec record) (lat, lng float64, projected, ok bool) {
	x, okX := rec.number("gpsx")
	y, okY := rec.number("gpsy")
	if okX && okY {
		if lat, lng, ok := geo.ReprojectStatePlane(x, y); ok {
			return lat, lng, true, true
		}
	}

	lat, okLat := rec.number("latitude", "lat", "y")
	lng, okLng := rec.number("longitude", "lng", "lon", "x")
	if okLat && okLng && lat != 0 && lng != 0 && lat >= 25 && lat <= 30 {
		return lat, lng, false, true
	}
	return 0, 0, false, false
}
