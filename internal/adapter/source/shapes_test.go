package source

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/paulmach/orb"

	"metromap/internal/domain/layer"
)

func gtfsZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

const (
	shapesCSV = "shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence\r\n" +
		"S1,28.50,-81.30,2\r\n" +
		"S1,28.40,-81.40,1\r\n" +
		"S1,28.60,-81.20,3\r\n" +
		"S2,28.10,-81.10,1\r\n" +
		"S2,28.20,-81.20,2\r\n" +
		"S3,28.70,-81.50,1\r\n" +
		"S3,28.80,-81.60,2\r\n" +
		"S4,28.00,-81.00,1\r\n"

	tripsCSV = "route_id,service_id,trip_id,shape_id\n" +
		"R1,WK,T1,S1\n" +
		"R1,WK,T2,S2\n" +
		"R2,WK,T3,S3\n" +
		"R9,WK,T4,S1\n" +
		"R3,WK,T5,\n"

	routesCSV = "\ufeffroute_id,route_short_name,route_long_name,route_color\n" +
		"R1,1,Downtown Loop,FF0000\n" +
		"R2,,Airport Express,\n"
)

func TestBuildRouteShapes(t *testing.T) {
	fc, err := BuildRouteShapes(gtfsZip(t, map[string]string{
		"shapes.txt": shapesCSV,
		"trips.txt":  tripsCSV,
		"routes.txt": routesCSV,
	}))
	if err != nil {
		t.Fatalf("BuildRouteShapes: %v", err)
	}

	// R1 and R2 have shapes; R9 only reuses S1 and R3 has no shape.
	if len(fc.Features) != 2 {
		t.Fatalf("got %d features, want 2", len(fc.Features))
	}

	r1 := fc.Features[0]
	if r1.Properties["routeId"] != "R1" || r1.Properties["shortName"] != "1" ||
		r1.Properties["longName"] != "Downtown Loop" || r1.Properties["color"] != "#FF0000" {
		t.Errorf("R1 properties = %v", r1.Properties)
	}
	mls, ok := r1.Geometry.(orb.MultiLineString)
	if !ok {
		t.Fatalf("R1 geometry = %T, want MultiLineString", r1.Geometry)
	}
	if len(mls) != 2 {
		t.Fatalf("R1 has %d lines, want 2", len(mls))
	}
	want := orb.LineString{{-81.40, 28.40}, {-81.30, 28.50}, {-81.20, 28.60}}
	if !mls[0].Equal(want) {
		t.Errorf("S1 not sorted by sequence: got %v, want %v", mls[0], want)
	}

	r2 := fc.Features[1]
	if r2.Properties["shortName"] != "R2" || r2.Properties["color"] != defaultRouteColor {
		t.Errorf("R2 defaults not applied: %v", r2.Properties)
	}
}

func TestBuildRouteShapesFailures(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
	}{
		{"missing routes", map[string]string{"shapes.txt": shapesCSV, "trips.txt": tripsCSV}},
		{"missing shapes", map[string]string{"trips.txt": tripsCSV, "routes.txt": routesCSV}},
		{"bad latitude", map[string]string{
			"shapes.txt": "shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence\nS1,north,-81.3,1\n",
			"trips.txt":  tripsCSV,
			"routes.txt": routesCSV,
		}},
		{"bad sequence", map[string]string{
			"shapes.txt": "shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence\nS1,28.5,-81.3,first\n",
			"trips.txt":  tripsCSV,
			"routes.txt": routesCSV,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildRouteShapes(gtfsZip(t, tt.files)); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if _, err := BuildRouteShapes([]byte("not a zip")); err == nil {
		t.Error("expected error for non-zip body")
	}
}

func TestRouteShapesFetch(t *testing.T) {
	archive := gtfsZip(t, map[string]string{
		"shapes.txt": shapesCSV,
		"trips.txt":  tripsCSV,
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	_, err := NewRouteShapes(testClient(), srv.URL).Fetch(context.Background())
	if !errors.Is(err, layer.ErrDecodeFailure) {
		t.Fatalf("err = %v, want decode failure for incomplete archive", err)
	}
	if !errors.Is(err, errMissingGTFSFile) {
		t.Errorf("err = %v, want missing file cause", err)
	}
}
