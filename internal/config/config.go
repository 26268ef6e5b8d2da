// internal/config/config.go

package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"metromap/internal/domain/layer"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	NATS        NATSConfig
	Sources     SourcesConfig
	Assist      AssistConfig
	Live        LiveConfig
	Log         LogConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CorsOrigins     []string
}

// DatabaseConfig holds the optional Postgres connection for the development registry
type DatabaseConfig struct {
	Enabled      bool
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxLifetime  time.Duration
	SSLMode      string
	SeedOnStart  bool
}

// DSN renders the connection string understood by pgxpool
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   "/" + d.Database,
	}
	q := url.Values{}
	q.Set("sslmode", d.SSLMode)
	q.Set("pool_max_conns", strconv.Itoa(d.MaxOpenConns))
	q.Set("pool_max_conn_lifetime", d.MaxLifetime.String())
	u.RawQuery = q.Encode()
	return u.String()
}

// NATSConfig holds NATS configuration. An empty URL disables live streaming.
type NATSConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
	SubjectPrefix  string
}

// SourcesConfig holds upstream endpoints, credentials and TTL overrides.
// Empty URLs fall back to each adapter's default.
type SourcesConfig struct {
	UserAgent           string
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
	TTLOverrides        map[layer.Key]time.Duration
}

// TTL returns the override for key, or the catalogue TTL
func (s SourcesConfig) TTL(key layer.Key) time.Duration {
	if ttl, ok := s.TTLOverrides[key]; ok {
		return ttl
	}
	return layer.ConfigFor(key).TTL
}

// AssistConfig holds the analysis and narration collaborators
type AssistConfig struct {
	AnalysisURL      string
	AnalysisAPIKey   string
	AnalysisModel    string
	AnalysisTimeout  time.Duration
	NarrationURL     string
	NarrationAPIKey  string
	NarrationVoiceID string
	NarrationTimeout time.Duration
}

// LiveConfig selects the layers the poller streams
type LiveConfig struct {
	Enabled bool
	Layers  []layer.Key
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables
func Load() (Config, error) {
	env := getEnv("APP_ENV", "development")

	corsOrigins := getEnvAsSlice("SERVER_CORS_ORIGINS", nil)
	if corsOrigins == nil && env == "development" {
		corsOrigins = []string{"*"}
	}

	liveLayers, err := parseKeys(getEnvAsSlice("LIVE_LAYERS", []string{string(layer.Transit), string(layer.Aircraft)}))
	if err != nil {
		return Config{}, fmt.Errorf("LIVE_LAYERS: %w", err)
	}

	config := Config{
		Environment: env,
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CorsOrigins:     corsOrigins,
		},
		Database: DatabaseConfig{
			Enabled:      getEnvAsBool("DB_ENABLED", false),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Database:     getEnv("DB_NAME", "metromap"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxLifetime:  getEnvAsDuration("DB_MAX_LIFETIME", 5*time.Minute),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			SeedOnStart:  getEnvAsBool("DB_SEED_ON_START", true),
		},
		NATS: NATSConfig{
			URL:            getEnv("NATS_URL", ""),
			MaxReconnects:  getEnvAsInt("NATS_MAX_RECONNECTS", 10),
			ReconnectWait:  getEnvAsDuration("NATS_RECONNECT_WAIT", 1*time.Second),
			ConnectTimeout: getEnvAsDuration("NATS_CONNECT_TIMEOUT", 2*time.Second),
			SubjectPrefix:  getEnv("NATS_SUBJECT_PREFIX", "layers"),
		},
		Sources: SourcesConfig{
			UserAgent:           getEnv("SOURCES_USER_AGENT", ""),
			VehiclePositionsURL: getEnv("GTFS_RT_VEHICLES_URL", ""),
			GTFSStaticURL:       getEnv("GTFS_STATIC_URL", ""),
			SocrataBaseURL:      getEnv("SOCRATA_BASE_URL", ""),
			NWSAlertsURL:        getEnv("NWS_ALERTS_URL", ""),
			OpenSkyURL:          getEnv("OPENSKY_URL", ""),
			OCGISBaseURL:        getEnv("OCGIS_BASE_URL", ""),
			OverpassURL:         getEnv("OVERPASS_URL", ""),
			EnableOverpass:      getEnvAsBool("OVERPASS_ENABLED", false),
			NRELURL:             getEnv("NREL_URL", ""),
			NRELAPIKey:          getEnv("NREL_API_KEY", ""),
			AirNowURL:           getEnv("AIRNOW_URL", ""),
			AirNowAPIKey:        getEnv("AIRNOW_API_KEY", ""),
			OpenMeteoURL:        getEnv("OPEN_METEO_URL", ""),
			RainViewerURL:       getEnv("RAINVIEWER_URL", "https://api.rainviewer.com/public/weather-maps.json"),
			TTLOverrides:        ttlOverrides(),
		},
		Assist: AssistConfig{
			AnalysisURL:      getEnv("ANALYSIS_URL", ""),
			AnalysisAPIKey:   getEnv("ANALYSIS_API_KEY", ""),
			AnalysisModel:    getEnv("ANALYSIS_MODEL", ""),
			AnalysisTimeout:  getEnvAsDuration("ANALYSIS_TIMEOUT", 15*time.Second),
			NarrationURL:     getEnv("NARRATION_URL", ""),
			NarrationAPIKey:  getEnv("CARTESIA_API_KEY", ""),
			NarrationVoiceID: getEnv("NARRATION_VOICE_ID", ""),
			NarrationTimeout: getEnvAsDuration("NARRATION_TIMEOUT", 20*time.Second),
		},
		Live: LiveConfig{
			Enabled: getEnvAsBool("LIVE_ENABLED", true),
			Layers:  liveLayers,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	return config, validate(config)
}

// validate checks if config is valid
func validate(config Config) error {
	if config.Environment != "development" && len(config.Server.CorsOrigins) == 0 {
		return fmt.Errorf("SERVER_CORS_ORIGINS must be set in non-development environments")
	}

	for key, ttl := range config.Sources.TTLOverrides {
		if ttl <= 0 {
			return fmt.Errorf("TTL override for %s must be positive, got %s", key, ttl)
		}
	}

	switch strings.ToLower(config.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", config.Log.Format)
	}

	return nil
}

// ttlOverrides reads LAYER_TTL_<KEY> for every layer, e.g. LAYER_TTL_TRANSIT=30s
func ttlOverrides() map[layer.Key]time.Duration {
	out := make(map[layer.Key]time.Duration)
	for _, key := range layer.Keys {
		name := "LAYER_TTL_" + strings.ToUpper(string(key))
		if v := getEnv(name, ""); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				// Unparseable values are surfaced by validate as non-positive.
				d = 0
			}
			out[key] = d
		}
	}
	return out
}

func parseKeys(values []string) ([]layer.Key, error) {
	keys := make([]layer.Key, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key, ok := layer.ParseKey(v)
		if !ok {
			return nil, fmt.Errorf("unknown layer %q", v)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
