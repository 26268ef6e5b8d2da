package source

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"metromap/internal/domain/layer"
)

const (
	// DefaultNRELURL is the Alternative Fuels Station Locator endpoint
	DefaultNRELURL = "https://developer.nrel.gov/api/alt-fuel-stations/v1.json"

	chargersTimeout = 15 * time.Second

	dcFastColor = "#a855f7"
	level2Color = "#22c55e"
	level1Color = "#84cc16"
)

type nrelStation struct {
	ID            int64   `json:"id"`
	StationName   string  `json:"station_name"`
	StreetAddress string  `json:"street_address"`
	City          string  `json:"city"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Level1        *int    `json:"ev_level1_evse_num"`
	Level2        *int    `json:"ev_level2_evse_num"`
	DCFast        *int    `json:"ev_dc_fast_num"`
	Network       string  `json:"ev_network"`
	AccessCode    string  `json:"access_code"`
}

// ChargingStations lists public EV chargers around downtown
type ChargingStations struct {
	client  *Client
	url     string
	apiKey  string
	timeout time.Duration
	now     func() time.Time
}

// NewChargingStations creates the EV charger source. An empty key makes every
// fetch report missing configuration.
func NewChargingStations(client *Client, baseURL, apiKey string) *ChargingStations {
	if baseURL == "" {
		baseURL = DefaultNRELURL
	}
	return &ChargingStations{client: client, url: baseURL, apiKey: apiKey, timeout: chargersTimeout, now: time.Now}
}

// Key implements layer.Source
func (s *ChargingStations) Key() layer.Key { return layer.EVChargers }

// Fetch implements layer.Source
func (s *ChargingStations) Fetch(ctx context.Context) (layer.Envelope, error) {
	if s.apiKey == "" {
		return layer.Envelope{}, layer.MissingConfig(s.Key(),
			"NREL_API_KEY not configured. Get a free key at https://developer.nrel.gov/signup/")
	}

	params := url.Values{}
	params.Set("api_key", s.apiKey)
	params.Set("fuel_type", "ELEC")
	params.Set("zip", "32801")
	params.Set("radius", "20")
	params.Set("limit", "200")
	params.Set("status", "E")

	var payload struct {
		FuelStations   []nrelStation `json:"fuel_stations"`
		AltFuelStation []nrelStation `json:"alt_fuel_station"`
	}
	if err := s.client.getJSON(ctx, s.Key(), s.url+"?"+params.Encode(), s.timeout, &payload); err != nil {
		return layer.Envelope{}, err
	}
	stations := payload.FuelStations
	if stations == nil {
		stations = payload.AltFuelStation
	}

	points := make([]layer.Point, 0, len(stations))
	totalPorts := 0
	for i, st := range stations {
		d := layer.ChargerDetails{
			City:       orDefault(st.City, "Orlando"),
			Level1:     intOrZero(st.Level1),
			Level2:     intOrZero(st.Level2),
			DCFast:     intOrZero(st.DCFast),
			Network:    orDefault(st.Network, "Unknown"),
			AccessCode: orDefault(st.AccessCode, "public"),
		}

		var sourceID string
		if st.ID != 0 {
			sourceID = strconv.FormatInt(st.ID, 10)
		}
		before := len(points)
		points = appendValid(points, layer.Point{
			ID:          stableID("ev", sourceID, i),
			Type:        "evCharger",
			Title:       orDefault(strings.TrimSpace(st.StationName), "Unknown"),
			Description: chargerDescription(d),
			Address:     st.StreetAddress,
			Latitude:    st.Latitude,
			Longitude:   st.Longitude,
			Color:       chargerColor(d),
			Details:     d,
		})
		if len(points) > before {
			totalPorts += d.Level1 + d.Level2 + d.DCFast
		}
	}

	env := layer.NewEnvelope(s.Key(), points, nil, s.now())
	env.Summary = map[string]int{
		"stations":   len(points),
		"totalPorts": totalPorts,
	}
	return env, nil
}

func chargerColor(d layer.ChargerDetails) string {
	switch {
	case d.DCFast > 0:
		return dcFastColor
	case d.Level2 > 0:
		return level2Color
	default:
		return level1Color
	}
}

func chargerDescription(d layer.ChargerDetails) string {
	var parts []string
	if d.DCFast > 0 {
		parts = append(parts, strconv.Itoa(d.DCFast)+" DC fast")
	}
	if d.Level2 > 0 {
		parts = append(parts, strconv.Itoa(d.Level2)+" Level 2")
	}
	if d.Level1 > 0 {
		parts = append(parts, strconv.Itoa(d.Level1)+" Level 1")
	}
	return strings.Join(parts, ", ")
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
