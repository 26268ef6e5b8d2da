// internal/domain/layer/model.go

package layer

import (
	"context"
	"time"

	"github.com/paulmach/orb/geojson"
)

// Key identifies one data layer. The set of keys is closed.
type Key string

const (
	Weather       Key = "weather"
	Transit       Key = "transit"
	TransitShapes Key = "transitShapes"
	CityData      Key = "cityData"
	NWSAlerts     Key = "nwsAlerts"
	Aircraft      Key = "aircraft"
	SunRail       Key = "sunrail"
	Developments  Key = "developments"
	CountyData    Key = "countyData"
	EVChargers    Key = "evChargers"
	AirQuality    Key = "airQuality"
)

// Category groups layers in the catalogue
type Category string

const (
	CategoryEnvironment    Category = "environment"
	CategoryTransportation Category = "transportation"
	CategoryCity           Category = "city"
	CategoryInfrastructure Category = "infrastructure"
)

// WeatherSubType selects which weather rendering is shown
type WeatherSubType string

const (
	WeatherTemperature   WeatherSubType = "temperature"
	WeatherWind          WeatherSubType = "wind"
	WeatherPrecipitation WeatherSubType = "precipitation"
	WeatherRadar         WeatherSubType = "radar"
)

// Valid reports whether the sub-type is one of the known selectors
func (w WeatherSubType) Valid() bool {
	switch w {
	case WeatherTemperature, WeatherWind, WeatherPrecipitation, WeatherRadar:
		return true
	}
	return false
}

// Point is a normalized map marker produced by a source adapter
type Point struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Address     string     `json:"address,omitempty"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	Color       string     `json:"color"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	Details     Details    `json:"details,omitempty"`
}

// Envelope is the uniform response for one layer
type Envelope struct {
	Layer      Key                        `json:"layer"`
	Items      []Point                    `json:"items"`
	Features   *geojson.FeatureCollection `json:"features,omitempty"`
	Count      int                        `json:"count"`
	Summary    map[string]int             `json:"summary,omitempty"`
	Attributes map[string]string          `json:"attributes,omitempty"`
	Warnings   []string                   `json:"warnings,omitempty"`
	FetchedAt  time.Time                  `json:"fetchedAt"`
	Error      string                     `json:"error,omitempty"`
	Stale      bool                       `json:"stale,omitempty"`
}

// NewEnvelope builds a successful envelope from items and optional features.
// Count is the feature count for feature-only layers, the item count otherwise.
func NewEnvelope(key Key, items []Point, features *geojson.FeatureCollection, fetchedAt time.Time) Envelope {
	if items == nil {
		items = []Point{}
	}
	count := len(items)
	if features != nil && len(items) == 0 {
		count = len(features.Features)
	}
	return Envelope{
		Layer:     key,
		Items:     items,
		Features:  features,
		Count:     count,
		FetchedAt: fetchedAt.UTC(),
	}
}

// Empty builds a well-formed envelope with no data and the given error message
func Empty(key Key, message string, fetchedAt time.Time) Envelope {
	env := NewEnvelope(key, nil, nil, fetchedAt)
	if ConfigFor(key).Features {
		env.Features = geojson.NewFeatureCollection()
	}
	env.Error = message
	return env
}

// Source fetches and normalizes one upstream layer
type Source interface {
	// Key returns the layer this source serves
	Key() Key

	// Fetch retrieves the layer. Failures are returned as *SourceError.
	Fetch(ctx context.Context) (Envelope, error)
}
