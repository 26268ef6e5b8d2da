package source

import (
	"context"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"metromap/internal/domain/layer"
)

const (
	// DefaultVehiclePositionsURL is the LYNX GTFS-Realtime vehicle feed
	DefaultVehiclePositionsURL = "http://gtfsrt.golynx.com/gtfsrt/GTFS_VehiclePositions.pb"

	transitTimeout = 8 * time.Second
	busColor       = "#3b82f6"
)

// VehiclePositions decodes a GTFS-Realtime vehicle position feed
type VehiclePositions struct {
	client  *Client
	url     string
	timeout time.Duration
	now     func() time.Time
}

// NewVehiclePositions creates the live bus source
func NewVehiclePositions(client *Client, url string) *VehiclePositions {
	if url == "" {
		url = DefaultVehiclePositionsURL
	}
	return &VehiclePositions{client: client, url: url, timeout: transitTimeout, now: time.Now}
}

// Key implements layer.Source
func (s *VehiclePositions) Key() layer.Key { return layer.Transit }

// Fetch implements layer.Source
func (s *VehiclePositions) Fetch(ctx context.Context) (layer.Envelope, error) {
	body, err := s.client.get(ctx, s.Key(), s.url, s.timeout, "application/x-protobuf")
	if err != nil {
		return layer.Envelope{}, err
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return layer.Envelope{}, layer.Decode(s.Key(), err)
	}

	points := make([]layer.Point, 0, len(feed.GetEntity()))
	routes := make(map[string]struct{})

	for i, entity := range feed.GetEntity() {
		vehicle := entity.GetVehicle()
		if vehicle == nil || vehicle.GetPosition() == nil {
			continue
		}
		pos := vehicle.GetPosition()

		vehicleID := vehicle.GetVehicle().GetId()
		if vehicleID == "" {
			vehicleID = entity.GetId()
		}
		routeID := vehicle.GetTrip().GetRouteId()
		if routeID == "" {
			routeID = "unknown"
		}

		details := layer.VehicleDetails{VehicleID: vehicleID, RouteID: routeID}
		if vehicleID == "" {
			details.VehicleID = "unknown"
		}
		if pos.Bearing != nil {
			b := float64(pos.GetBearing())
			details.Bearing = &b
		}
		if pos.Speed != nil {
			sp := float64(pos.GetSpeed())
			details.Speed = &sp
		}

		p := layer.Point{
			ID:        stableID("bus", vehicleID, i),
			Type:      "bus",
			Title:     "Route " + routeID,
			Latitude:  float64(pos.GetLatitude()),
			Longitude: float64(pos.GetLongitude()),
			Color:     busColor,
			Details:   details,
		}
		if vehicle.Timestamp != nil {
			ts := time.Unix(int64(vehicle.GetTimestamp()), 0).UTC()
			p.Timestamp = &ts
		}

		before := len(points)
		points = appendValid(points, p)
		if len(points) > before {
			routes[routeID] = struct{}{}
		}
	}

	env := layer.NewEnvelope(s.Key(), points, nil, s.now())
	env.Summary = map[string]int{
		"buses":  len(points),
		"routes": len(routes),
	}
	return env, nil
}
