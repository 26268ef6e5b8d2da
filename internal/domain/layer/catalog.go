package layer

import (
	"net/http"
	"time"
)

// Config describes a layer for the catalogue and for cache policy
type Config struct {
	Key         Key           `json:"key"`
	Label       string        `json:"label"`
	Description string        `json:"description"`
	Category    Category      `json:"category"`
	TTL         time.Duration `json:"-"`
	TTLSeconds  int           `json:"ttlSeconds"`
	RequiresKey string        `json:"requiresKey,omitempty"`
	Features    bool          `json:"features"`

	// FailureMessage is returned when the source fails and nothing is cached
	FailureMessage string `json:"-"`

	// FailureStatus is the HTTP status used in that case
	FailureStatus int `json:"-"`
}

// Keys lists every layer in display order
var Keys = []Key{
	Weather,
	NWSAlerts,
	AirQuality,
	Transit,
	TransitShapes,
	SunRail,
	Aircraft,
	CityData,
	Developments,
	CountyData,
	EVChargers,
}

var configs = map[Key]Config{
	Weather: {
		Label:          "Weather",
		Description:    "Current conditions and radar",
		Category:       CategoryEnvironment,
		TTL:            10 * time.Minute,
		FailureMessage: "Failed to fetch weather data",
	},
	NWSAlerts: {
		Label:          "Weather Alerts",
		Description:    "Active National Weather Service alerts for the metro counties",
		Category:       CategoryEnvironment,
		TTL:            5 * time.Minute,
		Features:       true,
		FailureMessage: "Failed to fetch NWS alerts",
	},
	AirQuality: {
		Label:          "Air Quality",
		Description:    "Current AirNow observations",
		Category:       CategoryEnvironment,
		TTL:            30 * time.Minute,
		RequiresKey:    "AIRNOW_API_KEY",
		FailureMessage: "Failed to fetch air quality data",
	},
	Transit: {
		Label:          "Live Buses",
		Description:    "Real-time bus positions",
		Category:       CategoryTransportation,
		TTL:            15 * time.Second,
		FailureMessage: "Failed to fetch transit data",
	},
	TransitShapes: {
		Label:          "Bus Routes",
		Description:    "Route geometry from the static GTFS feed",
		Category:       CategoryTransportation,
		TTL:            24 * time.Hour,
		Features:       true,
		FailureMessage: "Failed to fetch GTFS shapes",
		FailureStatus:  http.StatusServiceUnavailable,
	},
	SunRail: {
		Label:          "SunRail",
		Description:    "Commuter rail stations and corridor",
		Category:       CategoryTransportation,
		TTL:            24 * time.Hour,
		FailureMessage: "Failed to load SunRail data",
	},
	Aircraft: {
		Label:          "Aircraft",
		Description:    "Live flight positions over the metro area",
		Category:       CategoryTransportation,
		TTL:            15 * time.Second,
		FailureMessage: "Failed to fetch aircraft data",
	},
	CityData: {
		Label:          "City Permits",
		Description:    "Code enforcement cases and building permits",
		Category:       CategoryCity,
		TTL:            15 * time.Minute,
		FailureMessage: "Failed to fetch city data",
	},
	Developments: {
		Label:          "Developments",
		Description:    "Curated development projects",
		Category:       CategoryCity,
		TTL:            5 * time.Minute,
		FailureMessage: "Failed to load developments",
	},
	CountyData: {
		Label:          "County Places",
		Description:    "Parks, trails, public art, fire stations and libraries",
		Category:       CategoryInfrastructure,
		TTL:            time.Hour,
		FailureMessage: "Failed to fetch county data",
	},
	EVChargers: {
		Label:          "EV Chargers",
		Description:    "Public electric vehicle charging stations",
		Category:       CategoryInfrastructure,
		TTL:            time.Hour,
		RequiresKey:    "NREL_API_KEY",
		FailureMessage: "Failed to fetch EV charger data",
	},
}

func init() {
	for k, c := range configs {
		c.Key = k
		c.TTLSeconds = int(c.TTL / time.Second)
		if c.FailureStatus == 0 {
			c.FailureStatus = http.StatusInternalServerError
		}
		configs[k] = c
	}
}

// ConfigFor returns the catalogue entry for a key. Unknown keys yield a zero Config.
func ConfigFor(k Key) Config {
	return configs[k]
}

// Valid reports whether k is a known layer key
func (k Key) Valid() bool {
	_, ok := configs[k]
	return ok
}

// ParseKey converts a raw string into a known key
func ParseKey(s string) (Key, bool) {
	k := Key(s)
	return k, k.Valid()
}

// Catalog returns every layer config in display order
func Catalog() []Config {
	out := make([]Config, 0, len(Keys))
	for _, k := range Keys {
		out = append(out, configs[k])
	}
	return out
}
