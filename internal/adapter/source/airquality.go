package source

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"metromap/internal/domain/layer"
)

const (
	// DefaultAirNowURL is the AirNow current observation endpoint
	DefaultAirNowURL = "https://www.airnowapi.org/aq/observation/latLong/current/"

	airQualityTimeout = 10 * time.Second
)

var aqiColors = map[string]string{
	"Good":                           "#00e400",
	"Moderate":                       "#ffff00",
	"Unhealthy for Sensitive Groups": "#ff7e00",
	"Unhealthy":                      "#ff0000",
	"Very Unhealthy":                 "#8f3f97",
	"Hazardous":                      "#7e0023",
}

// AQIColor maps an AirNow category name to its standard colour
func AQIColor(category string) string {
	if c, ok := aqiColors[category]; ok {
		return c
	}
	return unknownSeverityColor
}

type airNowObservation struct {
	DateObserved  string  `json:"DateObserved"`
	HourObserved  int     `json:"HourObserved"`
	ParameterName string  `json:"ParameterName"`
	AQI           int     `json:"AQI"`
	Latitude      float64 `json:"Latitude"`
	Longitude     float64 `json:"Longitude"`
	ReportingArea string  `json:"ReportingArea"`
	Category      struct {
		Name   string `json:"Name"`
		Number int    `json:"Number"`
	} `json:"Category"`
}

// AirQuality reports current AirNow observations near downtown
type AirQuality struct {
	client  *Client
	url     string
	apiKey  string
	timeout time.Duration
	now     func() time.Time
}

// NewAirQuality creates the air quality source
func NewAirQuality(client *Client, baseURL, apiKey string) *AirQuality {
	if baseURL == "" {
		baseURL = DefaultAirNowURL
	}
	return &AirQuality{client: client, url: baseURL, apiKey: apiKey, timeout: airQualityTimeout, now: time.Now}
}

// Key implements layer.Source
func (s *AirQuality) Key() layer.Key { return layer.AirQuality }

// Fetch implements layer.Source
func (s *AirQuality) Fetch(ctx context.Context) (layer.Envelope, error) {
	if s.apiKey == "" {
		return layer.Envelope{}, layer.MissingConfig(s.Key(),
			"AIRNOW_API_KEY not configured. Get a free key at https://docs.airnowapi.org/account/request/")
	}

	params := url.Values{}
	params.Set("format", "application/json")
	params.Set("latitude", "28.5383")
	params.Set("longitude", "-81.3792")
	params.Set("distance", "25")
	params.Set("API_KEY", s.apiKey)

	var observations []airNowObservation
	if err := s.client.getJSON(ctx, s.Key(), s.url+"?"+params.Encode(), s.timeout, &observations); err != nil {
		return layer.Envelope{}, err
	}

	points := make([]layer.Point, 0, len(observations))
	primary := -1
	for i, obs := range observations {
		if primary < 0 || (obs.ParameterName == "PM2.5" && observations[primary].ParameterName != "PM2.5") {
			primary = i
		}
		category := orDefault(obs.Category.Name, "Unknown")
		p := layer.Point{
			ID:          stableID("aqi", obs.ReportingArea+"-"+obs.ParameterName, i),
			Type:        "airQuality",
			Title:       obs.ParameterName + " AQI " + strconv.Itoa(obs.AQI),
			Description: category,
			Address:     obs.ReportingArea,
			Latitude:    obs.Latitude,
			Longitude:   obs.Longitude,
			Color:       AQIColor(category),
			Details: layer.AirQualityDetails{
				Parameter:     obs.ParameterName,
				AQI:           obs.AQI,
				Category:      category,
				ReportingArea: obs.ReportingArea,
			},
		}
		points = appendValid(points, p)
	}

	env := layer.NewEnvelope(s.Key(), points, nil, s.now())
	env.Summary = map[string]int{"observations": len(points), "primaryAqi": 0}
	env.Attributes = map[string]string{"primaryCategory": "Unknown"}
	if primary >= 0 {
		env.Summary["primaryAqi"] = observations[primary].AQI
		env.Attributes["primaryCategory"] = orDefault(observations[primary].Category.Name, "Unknown")
		env.Attributes["primaryParameter"] = observations[primary].ParameterName
	}
	return env, nil
}
