package source

import "metromap/internal/domain/layer"

// Options holds upstream endpoints and credentials. Empty URLs use the defaults.
type Options struct {
	VehiclePositionsURL string
	GTFSStaticURL       string
	SocrataBaseURL      string
	NWSAlertsURL        string
	OpenSkyURL          string
	OCGISBaseURL        string
	OverpassURL         string
	EnableOverpass      bool
	NRELURL             string
	NRELAPIKey          string
	AirNowURL           string
	AirNowAPIKey        string
	OpenMeteoURL        string
	RainViewerURL       string
	Projects            layer.ProjectStore
}

// All builds one source per layer key
func All(client *Client, opts Options) []layer.Source {
	var op OverpassQuerier
	if opts.EnableOverpass {
		op = NewOverpassClient(opts.OverpassURL)
	}

	return []layer.Source{
		NewCurrentWeather(client, opts.OpenMeteoURL, opts.RainViewerURL),
		NewWeatherAlerts(client, opts.NWSAlertsURL),
		NewAirQuality(client, opts.AirNowURL, opts.AirNowAPIKey),
		NewVehiclePositions(client, opts.VehiclePositionsURL),
		NewRouteShapes(client, opts.GTFSStaticURL),
		NewCommuterRail(),
		NewFlights(client, opts.OpenSkyURL),
		NewCityRecords(client, opts.SocrataBaseURL),
		NewDevelopments(opts.Projects),
		NewCountyPlaces(client, opts.OCGISBaseURL, op),
		NewChargingStations(client, opts.NRELURL, opts.NRELAPIKey),
	}
}
