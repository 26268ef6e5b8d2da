package source

import (
	"context"
	"math"
	"strings"
	"time"

	"metromap/internal/domain/layer"
)

const (
	// DefaultOpenSkyURL covers roughly 50nm around MCO
	DefaultOpenSkyURL = "https://opensky-network.org/api/states/all?lamin=27.9&lomin=-82.0&lamax=29.0&lomax=-80.8"

	aircraftTimeout = 10 * time.Second
	metersToFeet    = 3.281
	msToKnots       = 1.944

	airborneColor = "#0ea5e9"
	groundColor   = "#64748b"
)

// state vector indexes in the OpenSky array encoding
const (
	stateICAO24 = iota
	stateCallsign
	stateOriginCountry
	stateTimePosition
	stateLastContact
	stateLongitude
	stateLatitude
	stateBaroAltitude
	stateOnGround
	stateVelocity
	stateTrueTrack
)

// Flights decodes OpenSky state vectors
type Flights struct {
	client  *Client
	url     string
	timeout time.Duration
	now     func() time.Time
}

// NewFlights creates the live aircraft source
func NewFlights(client *Client, url string) *Flights {
	if url == "" {
		url = DefaultOpenSkyURL
	}
	return &Flights{client: client, url: url, timeout: aircraftTimeout, now: time.Now}
}

// Key implements layer.Source
func (s *Flights) Key() layer.Key { return layer.Aircraft }

// Fetch implements layer.Source
func (s *Flights) Fetch(ctx context.Context) (layer.Envelope, error) {
	var payload struct {
		States [][]any `json:"states"`
	}
	if err := s.client.getJSON(ctx, s.Key(), s.url, s.timeout, &payload); err != nil {
		return layer.Envelope{}, err
	}

	points := make([]layer.Point, 0, len(payload.States))
	inFlight := 0

	for i, state := range payload.States {
		if len(state) <= stateLatitude {
			continue
		}
		lng, okLng := state[stateLongitude].(float64)
		lat, okLat := state[stateLatitude].(float64)
		if !okLng || !okLat {
			continue
		}

		icao := stringAt(state, stateICAO24)
		callsign := strings.TrimSpace(stringAt(state, stateCallsign))
		onGround, _ := at(state, stateOnGround).(bool)

		details := layer.AircraftDetails{
			ICAO24:     icao,
			Callsign:   callsign,
			AltitudeFt: int(math.Round(floatAt(state, stateBaroAltitude) * metersToFeet)),
			SpeedKt:    int(math.Round(floatAt(state, stateVelocity) * msToKnots)),
			Heading:    int(math.Round(floatAt(state, stateTrueTrack))),
			OnGround:   onGround,
			Origin:     stringAt(state, stateOriginCountry),
		}

		title := callsign
		if title == "" {
			title = strings.ToUpper(icao)
		}
		color := airborneColor
		if onGround {
			color = groundColor
		}

		p := layer.Point{
			ID:        stableID("aircraft", icao, i),
			Type:      "aircraft",
			Title:     title,
			Latitude:  lat,
			Longitude: lng,
			Color:     color,
			Details:   details,
		}
		if ts := floatAt(state, stateTimePosition); ts > 0 {
			t := time.Unix(int64(ts), 0).UTC()
			p.Timestamp = &t
		}

		before := len(points)
		points = appendValid(points, p)
		if len(points) > before && !onGround {
			inFlight++
		}
	}

	env := layer.NewEnvelope(s.Key(), points, nil, s.now())
	env.Summary = map[string]int{
		"aircraft": len(points),
		"inFlight": inFlight,
	}
	return env, nil
}

func at(state []any, i int) any {
	if i >= len(state) {
		return nil
	}
	return state[i]
}

func stringAt(state []any, i int) string {
	s, _ := at(state, i).(string)
	return s
}

func floatAt(state []any, i int) float64 {
	f, _ := at(state, i).(float64)
	return f
}
