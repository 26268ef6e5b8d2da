package source

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"metromap/internal/domain/layer"
)

const (
	// DefaultGTFSStaticURL is the LYNX static GTFS archive
	DefaultGTFSStaticURL = "http://www.golynx.com/files/GTFS/google_transit.zip"

	shapesTimeout     = 30 * time.Second
	defaultRouteColor = "#FFD700"
)

var errMissingGTFSFile = errors.New("missing required GTFS file")

type shapePoint struct {
	lat, lon float64
	seq      int
}

type routeInfo struct {
	shortName string
	longName  string
	color     string
}

// RouteShapes turns a static GTFS archive into one MultiLineString per route
type RouteShapes struct {
	client  *Client
	url     string
	timeout time.Duration
	now     func() time.Time
}

// NewRouteShapes creates the route geometry source
func NewRouteShapes(client *Client, url string) *RouteShapes {
	if url == "" {
		url = DefaultGTFSStaticURL
	}
	return &RouteShapes{client: client, url: url, timeout: shapesTimeout, now: time.Now}
}

// Key implements layer.Source
func (s *RouteShapes) Key() layer.Key { return layer.TransitShapes }

// Fetch implements layer.Source
func (s *RouteShapes) Fetch(ctx context.Context) (layer.Envelope, error) {
	body, err := s.client.get(ctx, s.Key(), s.url, s.timeout, "application/zip")
	if err != nil {
		return layer.Envelope{}, err
	}

	fc, err := BuildRouteShapes(body)
	if err != nil {
		return layer.Envelope{}, layer.Decode(s.Key(), err)
	}

	env := layer.NewEnvelope(s.Key(), nil, fc, s.now())
	env.Summary = map[string]int{"routes": len(fc.Features)}
	return env, nil
}

// BuildRouteShapes parses shapes.txt, trips.txt and routes.txt out of a GTFS zip.
// Any missing file or malformed row fails the whole archive.
func BuildRouteShapes(archive []byte) (*geojson.FeatureCollection, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	shapes := make(map[string][]shapePoint)
	var shapeOrder []string
	err = readTable(zr, "shapes.txt", func(get func(string) string) error {
		id := get("shape_id")
		if id == "" {
			return errors.New("shape row without shape_id")
		}
		lat, err := strconv.ParseFloat(get("shape_pt_lat"), 64)
		if err != nil {
			return fmt.Errorf("shape %s: bad shape_pt_lat: %w", id, err)
		}
		lon, err := strconv.ParseFloat(get("shape_pt_lon"), 64)
		if err != nil {
			return fmt.Errorf("shape %s: bad shape_pt_lon: %w", id, err)
		}
		seq, err := strconv.Atoi(get("shape_pt_sequence"))
		if err != nil {
			return fmt.Errorf("shape %s: bad shape_pt_sequence: %w", id, err)
		}
		if _, seen := shapes[id]; !seen {
			shapeOrder = append(shapeOrder, id)
		}
		shapes[id] = append(shapes[id], shapePoint{lat: lat, lon: lon, seq: seq})
		return nil
	})
	if err != nil {
		return nil, err
	}

	shapeRoute := make(map[string]string)
	err = readTable(zr, "trips.txt", func(get func(string) string) error {
		shapeID := get("shape_id")
		if shapeID == "" {
			return nil
		}
		if _, ok := shapeRoute[shapeID]; !ok {
			shapeRoute[shapeID] = get("route_id")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	routes := make(map[string]routeInfo)
	err = readTable(zr, "routes.txt", func(get func(string) string) error {
		routes[get("route_id")] = routeInfo{
			shortName: get("route_short_name"),
			longName:  get("route_long_name"),
			color:     get("route_color"),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	lines := make(map[string]orb.MultiLineString)
	var routeOrder []string
	for _, shapeID := range shapeOrder {
		routeID, ok := shapeRoute[shapeID]
		if !ok || routeID == "" {
			continue
		}
		pts := shapes[shapeID]
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].seq < pts[j].seq })

		ls := make(orb.LineString, 0, len(pts))
		for _, p := range pts {
			ls = append(ls, orb.Point{p.lon, p.lat})
		}
		if _, seen := lines[routeID]; !seen {
			routeOrder = append(routeOrder, routeID)
		}
		lines[routeID] = append(lines[routeID], ls)
	}

	fc := geojson.NewFeatureCollection()
	for _, routeID := range routeOrder {
		info, known := routes[routeID]

		f := geojson.NewFeature(lines[routeID])
		f.ID = routeID
		f.Properties["routeId"] = routeID
		f.Properties["shortName"] = routeID
		f.Properties["longName"] = ""
		f.Properties["color"] = defaultRouteColor
		if known {
			if info.shortName != "" {
				f.Properties["shortName"] = info.shortName
			}
			f.Properties["longName"] = info.longName
			if info.color != "" {
				f.Properties["color"] = "#" + info.color
			}
		}
		fc.Append(f)
	}
	return fc, nil
}

// readTable streams a header-keyed CSV file from the archive into fn
func readTable(zr *zip.Reader, name string, fn func(get func(string) string) error) error {
	file, err := zr.Open(name)
	if err != nil {
		return fmt.Errorf("%w: %s", errMissingGTFSFile, name)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read %s header: %w", name, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	h := headerIndex(header)

	for {
		row, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s row: %w", name, err)
		}

		get := func(k string) string {
			i, ok := h[k]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		if err := fn(get); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
}

func headerIndex(hdr []string) map[string]int {
	m := make(map[string]int, len(hdr))
	for i, k := range hdr {
		m[strings.TrimSpace(k)] = i
	}
	return m
}
