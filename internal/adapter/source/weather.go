package source

import (
	"context"
	"fmt"
	"math"
	"time"

	"metromap/internal/domain/layer"
)

const (
	// DefaultOpenMeteoURL requests current conditions at the metro centre
	DefaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast?latitude=28.54&longitude=-81.38" +
		"&current=temperature_2m,weathercode,windspeed_10m,winddirection_10m,relative_humidity_2m," +
		"apparent_temperature,precipitation,cloudcover" +
		"&temperature_unit=fahrenheit&windspeed_unit=mph&precipitation_unit=inch"

	// DefaultRainViewerURL lists available radar frames
	DefaultRainViewerURL = "https://api.rainviewer.com/public/weather-maps.json"

	weatherTimeout = 10 * time.Second
	weatherLat     = 28.54
	weatherLng     = -81.38
)

// WeatherCondition converts a WMO weather code to a short label and colour
func WeatherCondition(code int) (label, color string) {
	switch {
	case code == 0:
		return "Clear", "#facc15"
	case code <= 3:
		return "Partly cloudy", "#cbd5e1"
	case code <= 49:
		return "Foggy", "#94a3b8"
	case code <= 59:
		return "Drizzle", "#60a5fa"
	case code <= 69:
		return "Rainy", "#3b82f6"
	case code <= 79:
		return "Snowy", "#e0e7ff"
	case code <= 82:
		return "Showers", "#2563eb"
	case code <= 86:
		return "Snow showers", "#c7d2fe"
	case code <= 99:
		return "Thunderstorm", "#7c3aed"
	}
	return "Unknown", "#999999"
}

type openMeteoCurrent struct {
	Time          string  `json:"time"`
	Temperature   float64 `json:"temperature_2m"`
	Apparent      float64 `json:"apparent_temperature"`
	WeatherCode   *int    `json:"weathercode"`
	WeatherCode2  *int    `json:"weather_code"`
	WindSpeed     float64 `json:"windspeed_10m"`
	WindDirection float64 `json:"winddirection_10m"`
	Humidity      float64 `json:"relative_humidity_2m"`
	Precipitation float64 `json:"precipitation"`
	CloudCover    float64 `json:"cloudcover"`
}

// CurrentWeather reports conditions at the metro centre plus the latest radar frame
type CurrentWeather struct {
	client   *Client
	url      string
	radarURL string
	timeout  time.Duration
	now      func() time.Time
}

// NewCurrentWeather creates the weather source. An empty radar URL disables radar.
func NewCurrentWeather(client *Client, forecastURL, radarURL string) *CurrentWeather {
	if forecastURL == "" {
		forecastURL = DefaultOpenMeteoURL
	}
	return &CurrentWeather{client: client, url: forecastURL, radarURL: radarURL, timeout: weatherTimeout, now: time.Now}
}

// Key implements layer.Source
func (s *CurrentWeather) Key() layer.Key { return layer.Weather }

// Fetch implements layer.Source. Radar is best effort and never fails the layer.
func (s *CurrentWeather) Fetch(ctx context.Context) (layer.Envelope, error) {
	tasks := []func(context.Context) (any, error){
		func(ctx context.Context) (any, error) {
			var payload struct {
				Current *openMeteoCurrent `json:"current"`
			}
			if err := s.client.getJSON(ctx, s.Key(), s.url, s.timeout, &payload); err != nil {
				return nil, err
			}
			if payload.Current == nil {
				return nil, layer.Decode(s.Key(), fmt.Errorf("response has no current block"))
			}
			return payload.Current, nil
		},
	}
	if s.radarURL != "" {
		tasks = append(tasks, func(ctx context.Context) (any, error) {
			return s.latestRadarPath(ctx)
		})
	}
	results := gatherAll(ctx, tasks...)

	if results[0].Err != nil {
		return layer.Envelope{}, results[0].Err
	}
	cur := results[0].Value.(*openMeteoCurrent)

	code := 0
	switch {
	case cur.WeatherCode != nil:
		code = *cur.WeatherCode
	case cur.WeatherCode2 != nil:
		code = *cur.WeatherCode2
	}
	label, color := WeatherCondition(code)

	p := layer.Point{
		ID:          "weather-current",
		Type:        "weather",
		Title:       fmt.Sprintf("%s, %d°F", label, int(math.Round(cur.Temperature))),
		Description: fmt.Sprintf("Feels like %d°F, wind %d mph", int(math.Round(cur.Apparent)), int(math.Round(cur.WindSpeed))),
		Latitude:    weatherLat,
		Longitude:   weatherLng,
		Color:       color,
		Details: layer.WeatherDetails{
			TemperatureF:    cur.Temperature,
			ApparentF:       cur.Apparent,
			WeatherCode:     code,
			Condition:       label,
			WindMph:         cur.WindSpeed,
			WindDirection:   cur.WindDirection,
			Humidity:        cur.Humidity,
			PrecipitationIn: cur.Precipitation,
			CloudCover:      cur.CloudCover,
		},
	}
	if t, err := time.Parse("2006-01-02T15:04", cur.Time); err == nil {
		p.Timestamp = &t
	}

	env := layer.NewEnvelope(s.Key(), []layer.Point{p}, nil, s.now())
	env.Attributes = map[string]string{"condition": label}
	if len(results) > 1 {
		if results[1].Err != nil {
			env.Warnings = []string{fmt.Sprintf("radar: %v", results[1].Err)}
		} else if path, _ := results[1].Value.(string); path != "" {
			env.Attributes["radarTileUrl"] = "https://tilecache.rainviewer.com" + path + "/256/{z}/{x}/{y}/6/1_1.png"
		}
	}
	return env, nil
}

func (s *CurrentWeather) latestRadarPath(ctx context.Context) (string, error) {
	var maps struct {
		Radar struct {
			Past []struct {
				Time int64  `json:"time"`
				Path string `json:"path"`
			} `json:"past"`
		} `json:"radar"`
	}
	if err := s.client.getJSON(ctx, s.Key(), s.radarURL, s.timeout, &maps); err != nil {
		return "", err
	}
	frames := maps.Radar.Past
	if len(frames) == 0 {
		return "", nil
	}
	return frames[len(frames)-1].Path, nil
}
