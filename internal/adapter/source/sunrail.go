package source

import (
	"context"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"metromap/internal/domain/layer"
)

type railStation struct {
	name     string
	lat, lng float64
	zone     string
}

// stations run north to south, DeBary to Poinciana
var sunRailStations = []railStation{
	{"DeBary", 28.8600, -81.3136, "north"},
	{"Sanford", 28.8123, -81.2695, "north"},
	{"Lake Mary", 28.7588, -81.3178, "north"},
	{"Longwood", 28.7031, -81.3385, "north"},
	{"Altamonte Springs", 28.6614, -81.3651, "north"},
	{"Maitland", 28.6275, -81.3633, "central"},
	{"Winter Park / Amtrak", 28.5994, -81.3523, "central"},
	{"Florida Hospital Health Village", 28.5758, -81.3720, "central"},
	{"LYNX Central / Church Street", 28.5411, -81.3792, "central"},
	{"Orlando Health / Amtrak", 28.5270, -81.3825, "central"},
	{"Sand Lake Road", 28.4517, -81.3754, "south"},
	{"Meadow Woods", 28.3913, -81.3668, "south"},
	{"Tupperware / Kissimmee", 28.3419, -81.3908, "south"},
	{"Kissimmee / Amtrak", 28.3040, -81.4076, "south"},
	{"Poinciana", 28.2398, -81.4611, "south"},
}

var zoneColors = map[string]string{
	"north":   "#E31837",
	"central": "#00A651",
	"south":   "#005DAA",
}

// CommuterRail serves the static SunRail stations and corridor line
type CommuterRail struct {
	now func() time.Time
}

// NewCommuterRail creates the SunRail source
func NewCommuterRail() *CommuterRail {
	return &CommuterRail{now: time.Now}
}

// Key implements layer.Source
func (s *CommuterRail) Key() layer.Key { return layer.SunRail }

// Fetch implements layer.Source
func (s *CommuterRail) Fetch(ctx context.Context) (layer.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return layer.Envelope{}, layer.Upstream(s.Key(), err)
	}

	points := make([]layer.Point, 0, len(sunRailStations))
	line := make(orb.LineString, 0, len(sunRailStations))
	zones := make(map[string]int)

	for i, st := range sunRailStations {
		points = appendValid(points, layer.Point{
			ID:          stableID("sunrail", "", i),
			Type:        "railStation",
			Title:       st.name,
			Description: strings.ToUpper(st.zone[:1]) + st.zone[1:] + " zone",
			Latitude:    st.lat,
			Longitude:   st.lng,
			Color:       zoneColors[st.zone],
			Details:     layer.StationDetails{Zone: st.zone, Order: i},
		})
		line = append(line, orb.Point{st.lng, st.lat})
		zones[st.zone]++
	}

	corridor := geojson.NewFeature(line)
	corridor.ID = "sunrail-corridor"
	corridor.Properties["name"] = "SunRail Corridor"
	fc := geojson.NewFeatureCollection().Append(corridor)

	env := layer.NewEnvelope(s.Key(), points, fc, s.now())
	env.Summary = map[string]int{
		"stations": len(points),
		"north":    zones["north"],
		"central":  zones["central"],
		"south":    zones["south"],
	}
	return env, nil
}
