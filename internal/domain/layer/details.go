package layer

import "encoding/json"

// Details carries the source-specific attributes of a Point.
// Each source has exactly one concrete variant.
type Details interface {
	detailsKind() string
}

// VehicleDetails describes a live bus position
type VehicleDetails struct {
	VehicleID string   `json:"vehicleId"`
	RouteID   string   `json:"routeId"`
	Bearing   *float64 `json:"bearing,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
}

// AircraftDetails describes one flight state vector
type AircraftDetails struct {
	ICAO24     string `json:"icao24"`
	Callsign   string `json:"callsign"`
	AltitudeFt int    `json:"altitudeFt"`
	SpeedKt    int    `json:"speedKt"`
	Heading    int    `json:"heading"`
	OnGround   bool   `json:"onGround"`
	Origin     string `json:"originCountry,omitempty"`
}

// PermitDetails describes a code case or building permit
type PermitDetails struct {
	Dataset   string `json:"dataset"`
	Number    string `json:"number"`
	Status    string `json:"status,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Projected bool   `json:"projected"`
}

// POIDetails describes a county place
type POIDetails struct {
	Category string `json:"category"`
	Icon     string `json:"icon"`
	Source   string `json:"source"`
}

// ChargerDetails describes an EV charging station
type ChargerDetails struct {
	City       string `json:"city,omitempty"`
	Level1     int    `json:"level1"`
	Level2     int    `json:"level2"`
	DCFast     int    `json:"dcFast"`
	Network    string `json:"network,omitempty"`
	AccessCode string `json:"accessCode,omitempty"`
}

// AirQualityDetails describes one AirNow observation
type AirQualityDetails struct {
	Parameter     string `json:"parameter"`
	AQI           int    `json:"aqi"`
	Category      string `json:"category"`
	ReportingArea string `json:"reportingArea"`
}

// WeatherDetails describes current conditions at the metro centre
type WeatherDetails struct {
	TemperatureF    float64 `json:"temperatureF"`
	ApparentF       float64 `json:"apparentF"`
	WeatherCode     int     `json:"weatherCode"`
	Condition       string  `json:"condition"`
	WindMph         float64 `json:"windMph"`
	WindDirection   float64 `json:"windDirection"`
	Humidity        float64 `json:"humidity"`
	PrecipitationIn float64 `json:"precipitationIn"`
	CloudCover      float64 `json:"cloudCover"`
}

// StationDetails describes a commuter rail station
type StationDetails struct {
	Zone  string `json:"zone"`
	Order int    `json:"order"`
}

// DevelopmentDetails describes a curated development project
type DevelopmentDetails struct {
	Status             string `json:"status"`
	Category           string `json:"category"`
	ImageURL           string `json:"imageUrl,omitempty"`
	TimelineStart      string `json:"timelineStart,omitempty"`
	TimelineCompletion string `json:"timelineCompletion,omitempty"`
	Investment         string `json:"investment,omitempty"`
	StatusColor        string `json:"statusColor"`
}

func (VehicleDetails) detailsKind() string     { return "vehicle" }
func (AircraftDetails) detailsKind() string    { return "aircraft" }
func (PermitDetails) detailsKind() string      { return "permit" }
func (POIDetails) detailsKind() string         { return "poi" }
func (ChargerDetails) detailsKind() string     { return "charger" }
func (AirQualityDetails) detailsKind() string  { return "airQuality" }
func (WeatherDetails) detailsKind() string     { return "weather" }
func (StationDetails) detailsKind() string     { return "station" }
func (DevelopmentDetails) detailsKind() string { return "development" }

// RawDetails holds details decoded from JSON whose concrete variant is unknown
type RawDetails json.RawMessage

func (RawDetails) detailsKind() string { return "raw" }

// MarshalJSON writes the raw bytes back unchanged
func (r RawDetails) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON decodes a point, keeping details as RawDetails
func (p *Point) UnmarshalJSON(data []byte) error {
	type alias Point
	aux := struct {
		*alias
		Details json.RawMessage `json:"details,omitempty"`
	}{alias: (*alias)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	p.Details = nil
	if len(aux.Details) > 0 && string(aux.Details) != "null" {
		p.Details = RawDetails(aux.Details)
	}
	return nil
}
