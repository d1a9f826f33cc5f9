package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v2"

	"rental-finder/geo"
)

// Store backends.
const (
	BackendSheets   = "sheets"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Fetch modes.
const (
	FetchHTTP    = "http"
	FetchBrowser = "browser"
)

// Config holds all application configuration loaded from environment
// variables, optionally overlaid by a YAML file.
type Config struct {
	Port string

	StoreBackend          string
	SheetID               string
	GoogleCredentialsFile string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	GridKey          string

	TransitAPIKey  string
	TransitBaseURL string
	TransitRadius  int
	TransitTimeout time.Duration

	HomeLabel string
	Home      geo.Point
	Sources   []string

	FetchMode    string
	FetchTimeout time.Duration
	ChromeBin    string

	MaxRetries     int
	MaxConcurrency int
	RateLimit      time.Duration

	AuditCSVPath string
	MongoURI     string
	MongoDB      string

	AutoEnrich bool
}

// overlay is the optional YAML file named by CONFIG_FILE.
type overlay struct {
	Home *struct {
		Label string  `yaml:"label"`
		Lat   float64 `yaml:"lat"`
		Lon   float64 `yaml:"lon"`
	} `yaml:"home"`
	Sources []string `yaml:"sources"`
	Transit *struct {
		Radius  int    `yaml:"radius"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"transit"`
}

// Load reads the .env file and the environment, applies the CONFIG_FILE
// overlay if one is set and returns the populated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		Port: getEnv("PORT", "3000"),

		StoreBackend:          strings.ToLower(getEnv("STORE_BACKEND", BackendSheets)),
		SheetID:               getEnv("SHEET_ID", ""),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", "./rental-finder-key.json"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "rental"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "rental123"),
		PostgresDB:       getEnv("POSTGRES_DB", "rental_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		GridKey:          getEnv("GRID_KEY", "listings"),

		TransitAPIKey:  getEnv("TRANSLINK_API_KEY", ""),
		TransitBaseURL: getEnv("TRANSIT_BASE_URL", "https://api.translink.ca"),
		TransitRadius:  getEnvInt("TRANSIT_RADIUS", 750),
		TransitTimeout: getEnvDuration("TRANSIT_TIMEOUT", 10*time.Second),

		HomeLabel: getEnv("HOME_LABEL", "UBC"),
		Home: geo.Point{
			Lat: getEnvFloat("HOME_LAT", 49.2606),
			Lon: getEnvFloat("HOME_LON", -123.2460),
		},
		Sources: []string{"craigslist"},

		FetchMode:    strings.ToLower(getEnv("FETCH_MODE", FetchHTTP)),
		FetchTimeout: getEnvDuration("FETCH_TIMEOUT", 20*time.Second),
		ChromeBin:    getEnv("CHROME_BIN", ""),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 4),
		RateLimit:      time.Duration(getEnvInt("RATE_LIMIT_MS", 250)) * time.Millisecond,

		AuditCSVPath: getEnv("AUDIT_CSV_PATH", ""),
		MongoURI:     getEnv("MONGO_URI", ""),
		MongoDB:      getEnv("MONGO_DB", "rental_finder"),

		AutoEnrich: getEnvBool("AUTO_ENRICH", false),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyOverlay(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *Config) applyOverlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "config: read %s", path)
	}
	var o overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return eris.Wrapf(err, "config: parse %s", path)
	}

	if o.Home != nil {
		if o.Home.Label != "" {
			c.HomeLabel = o.Home.Label
		}
		c.Home = geo.Point{Lat: o.Home.Lat, Lon: o.Home.Lon}
	}
	if len(o.Sources) > 0 {
		c.Sources = o.Sources
	}
	if o.Transit != nil {
		if o.Transit.Radius > 0 {
			c.TransitRadius = o.Transit.Radius
		}
		if o.Transit.BaseURL != "" {
			c.TransitBaseURL = o.Transit.BaseURL
		}
	}
	return nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendSheets:
		if c.SheetID == "" {
			return eris.New("config: STORE_BACKEND=sheets requires SHEET_ID")
		}
		if c.GoogleCredentialsFile == "" {
			return eris.New("config: STORE_BACKEND=sheets requires GOOGLE_CREDENTIALS_FILE")
		}
	case BackendPostgres:
		if c.PostgresHost == "" || c.PostgresDB == "" {
			return eris.New("config: STORE_BACKEND=postgres requires POSTGRES_HOST and POSTGRES_DB")
		}
	case BackendMemory:
	default:
		return eris.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.FetchMode != FetchHTTP && c.FetchMode != FetchBrowser {
		return eris.Errorf("config: unknown FETCH_MODE %q", c.FetchMode)
	}
	if !c.Home.Valid() {
		return eris.Errorf("config: home coordinates out of range: %v", c.Home)
	}
	if len(c.Sources) == 0 {
		return eris.New("config: no sources enabled")
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
