package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"metromap/internal/domain/layer"
)

func testClient() *Client {
	return NewClientWithHTTP(&http.Client{}, "metromap-test")
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func vehicleFeed(t *testing.T) []byte {
	t.Helper()
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(1772366400),
		},
		Entity: []*gtfs.FeedEntity{
			{
				Id: proto.String("e1"),
				Vehicle: &gtfs.VehiclePosition{
					Vehicle:   &gtfs.VehicleDescriptor{Id: proto.String("101")},
					Trip:      &gtfs.TripDescriptor{RouteId: proto.String("8")},
					Position:  &gtfs.Position{Latitude: proto.Float32(28.54), Longitude: proto.Float32(-81.38), Bearing: proto.Float32(90)},
					Timestamp: proto.Uint64(1772366400),
				},
			},
			{
				Id:      proto.String("e2"),
				Vehicle: &gtfs.VehiclePosition{Vehicle: &gtfs.VehicleDescriptor{Id: proto.String("102")}},
			},
			{
				Id: proto.String("e3"),
				Vehicle: &gtfs.VehiclePosition{
					Position: &gtfs.Position{Latitude: proto.Float32(28.60), Longitude: proto.Float32(-81.20)},
				},
			},
			{
				Id: proto.String("e4"),
				Vehicle: &gtfs.VehiclePosition{
					Vehicle:  &gtfs.VehicleDescriptor{Id: proto.String("104")},
					Trip:     &gtfs.TripDescriptor{RouteId: proto.String("8")},
					Position: &gtfs.Position{Latitude: proto.Float32(95), Longitude: proto.Float32(-81.20)},
				},
			},
		},
	}
	body, err := proto.Marshal(feed)
	if err != nil {
		t.Fatalf("marshal feed: %v", err)
	}
	return body
}

func TestVehiclePositionsFetch(t *testing.T) {
	body := vehicleFeed(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-protobuf")
		w.Write(body)
	}))
	defer srv.Close()

	src := NewVehiclePositions(testClient(), srv.URL)
	src.now = fixedNow

	env, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if env.Layer != layer.Transit {
		t.Errorf("Layer = %q", env.Layer)
	}
	if len(env.Items) != 2 {
		t.Fatalf("got %d buses, want 2 (no position and out of range dropped): %+v", len(env.Items), env.Items)
	}

	first := env.Items[0]
	if first.ID != "bus-101" || first.Title != "Route 8" {
		t.Errorf("first bus = %+v", first)
	}
	d := first.Details.(layer.VehicleDetails)
	if d.Bearing == nil || *d.Bearing != 90 {
		t.Errorf("bearing = %v, want 90", d.Bearing)
	}
	if d.Speed != nil {
		t.Errorf("speed should be nil when absent, got %v", *d.Speed)
	}
	if first.Timestamp == nil || first.Timestamp.Unix() != 1772366400 {
		t.Errorf("timestamp = %v", first.Timestamp)
	}

	second := env.Items[1]
	if second.ID != "bus-e3" {
		t.Errorf("entity id fallback: got %q, want bus-e3", second.ID)
	}
	if sd := second.Details.(layer.VehicleDetails); sd.RouteID != "unknown" || sd.Bearing != nil {
		t.Errorf("second bus details = %+v", sd)
	}
	if second.Timestamp != nil {
		t.Error("timestamp should be nil when absent")
	}

	if env.Summary["buses"] != 2 || env.Summary["routes"] != 2 {
		t.Errorf("summary = %v", env.Summary)
	}
	if !env.FetchedAt.Equal(fixedNow()) {
		t.Errorf("FetchedAt = %v", env.FetchedAt)
	}
}

func TestVehiclePositionsFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		kind    error
	}{
		{
			name: "non-2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "down", http.StatusBadGateway)
			},
			kind: layer.ErrUpstreamUnavailable,
		},
		{
			name: "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("not a protobuf"))
			},
			kind: layer.ErrDecodeFailure,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				<-r.Context().Done()
			},
			kind: layer.ErrUpstreamUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			src := NewVehiclePositions(testClient(), srv.URL)
			src.timeout = 50 * time.Millisecond

			_, err := src.Fetch(context.Background())
			if !errors.Is(err, tt.kind) {
				t.Fatalf("err = %v, want kind %v", err, tt.kind)
			}
			var se *layer.SourceError
			if !errors.As(err, &se) || se.Source != layer.Transit {
				t.Errorf("expected SourceError for transit, got %#v", err)
			}
		})
	}
}
