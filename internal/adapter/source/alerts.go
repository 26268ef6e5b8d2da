package source

import (
	"context"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"metromap/internal/domain/layer"
)

const (
	// DefaultNWSAlertsURL lists active Florida alerts
	DefaultNWSAlertsURL = "https://api.weather.gov/alerts/active?area=FL&status=actual&message_type=alert"

	alertsTimeout = 10 * time.Second
)

// MetroCounties are the counties whose alerts are kept
var MetroCounties = []string{"Orange", "Seminole", "Osceola", "Lake", "Volusia", "Brevard", "Polk", "Sumter"}

var severityColors = map[string]string{
	"Extreme":  "#ff0000",
	"Severe":   "#ff6600",
	"Moderate": "#ffcc00",
	"Minor":    "#00cc66",
}

const unknownSeverityColor = "#999999"

// SeverityColor maps an NWS severity to its display colour
func SeverityColor(severity string) string {
	if c, ok := severityColors[severity]; ok {
		return c
	}
	return unknownSeverityColor
}

// WeatherAlerts filters NWS alerts to the metro counties
type WeatherAlerts struct {
	client  *Client
	url     string
	timeout time.Duration
	now     func() time.Time
}

// NewWeatherAlerts creates the NWS alert source
func NewWeatherAlerts(client *Client, url string) *WeatherAlerts {
	if url == "" {
		url = DefaultNWSAlertsURL
	}
	return &WeatherAlerts{client: client, url: url, timeout: alertsTimeout, now: time.Now}
}

// Key implements layer.Source
func (s *WeatherAlerts) Key() layer.Key { return layer.NWSAlerts }

// Fetch implements layer.Source. Alerts without geometry are counted but
// left out of the collection since they cannot be drawn.
func (s *WeatherAlerts) Fetch(ctx context.Context) (layer.Envelope, error) {
	body, err := s.client.get(ctx, s.Key(), s.url, s.timeout, "application/geo+json")
	if err != nil {
		return layer.Envelope{}, err
	}

	all, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return layer.Envelope{}, layer.Decode(s.Key(), err)
	}

	kept := geojson.NewFeatureCollection()
	summary := map[string]int{"alerts": 0, "zoneOnly": 0}
	for _, f := range all.Features {
		if f == nil {
			continue
		}
		area, _ := f.Properties["areaDesc"].(string)
		if !inMetro(area) {
			continue
		}
		summary["alerts"]++

		severity, _ := f.Properties["severity"].(string)
		if severity == "" {
			severity = "Unknown"
		}
		summary[strings.ToLower(severity)]++

		if f.Geometry == nil {
			summary["zoneOnly"]++
			continue
		}
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		f.Properties["color"] = SeverityColor(severity)
		kept.Append(f)
	}

	env := layer.NewEnvelope(s.Key(), nil, kept, s.now())
	env.Summary = summary
	return env, nil
}

func inMetro(areaDesc string) bool {
	for _, county := range MetroCounties {
		if strings.Contains(areaDesc, county) {
			return true
		}
	}
	return false
}
