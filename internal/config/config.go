package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/i474232898/retail-price-tracker/internal/common"
	"github.com/i474232898/retail-price-tracker/internal/prices"
)

type AppConfig struct {
	Port          string        `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	FetchInterval time.Duration `envconfig:"FETCH_INTERVAL" default:"24h" validate:"gte=1m"`
	HTTPTimeout   time.Duration `envconfig:"HTTP_TIMEOUT" default:"20s" validate:"gt=0"`

	// GroupsRaw is "Name=ZIP" pairs separated by ';'. Names may contain commas.
	GroupsRaw string         `envconfig:"TRACKER_GROUPS" default:"Nashville, TN=37203;Knoxville, TN=37902;Atlanta, GA=30303;Louisville, KY=40202;Cincinnati, OH=45202;Myrtle Beach, SC=29577"`
	Groups    []prices.Group `ignored:"true" validate:"min=1,dive"`

	ItemCodesRaw string   `envconfig:"ITEM_CODES" default:"0001111060903,0001111061748,0001111002449,0001111061830"`
	CustomUPC    string   `envconfig:"CUSTOM_UPC"`
	ItemCodes    []string `ignored:"true" validate:"min=1,dive,required"`

	WindowDays       int    `envconfig:"WINDOW_DAYS" default:"7" validate:"gte=1,lte=365"`
	DecimalPrecision int32  `envconfig:"DECIMAL_PRECISION" default:"2" validate:"gte=1,lte=8"`
	ReportTitle      string `envconfig:"REPORT_TITLE" default:"Egg Price Report"`

	KrogerClientID     string  `envconfig:"KROGER_CLIENT_ID"`
	KrogerClientSecret string  `envconfig:"KROGER_CLIENT_SECRET"`
	KrogerBaseURL      string  `envconfig:"KROGER_BASE_URL" default:"https://api.kroger.com/v1" validate:"url"`
	RadiusMiles        int     `envconfig:"LOCATION_RADIUS_MILES" default:"15" validate:"gte=1,lte=100"`
	LocationLimit      int     `envconfig:"LOCATION_LIMIT" default:"20" validate:"gte=1,lte=200"`
	APIRatePerSec      float64 `envconfig:"API_RATE_PER_SEC" default:"5" validate:"gt=0"`
	FetchConcurrency   int     `envconfig:"FETCH_CONCURRENCY" default:"3" validate:"gte=1,lte=32"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"csv" validate:"oneof=memory csv sqlite postgres"`
	DatasetPath string `envconfig:"DATASET_PATH" default:"./data/egg_prices.csv"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"./data/prices.db"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" validate:"required_if=StoreDriver postgres"`
	OutputDir   string `envconfig:"OUTPUT_DIR" default:"./public" validate:"required"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"true"`
}

var validate = validator.New()

// Load reads configuration from the environment, after an optional .env file.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}
	return FromEnv()
}

// FromEnv reads configuration from the process environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	groups, err := ParseGroups(cfg.GroupsRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid TRACKER_GROUPS: %w", err)
	}
	cfg.Groups = groups

	if code := strings.TrimSpace(cfg.CustomUPC); code != "" {
		cfg.ItemCodes = []string{code}
	} else {
		cfg.ItemCodes = common.SplitList(cfg.ItemCodesRaw, ",")
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ParseGroups reads "Name=ZIP;Name=ZIP". Group names must be unique.
func ParseGroups(raw string) ([]prices.Group, error) {
	var groups []prices.Group
	seen := make(map[string]bool)
	for _, entry := range common.SplitList(raw, ";") {
		name, zip, ok := strings.Cut(entry, "=")
		name, zip = strings.TrimSpace(name), strings.TrimSpace(zip)
		if !ok || name == "" || zip == "" {
			return nil, fmt.Errorf("entry %q: expected Name=ZIP", entry)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate group %q", name)
		}
		seen[name] = true
		groups = append(groups, prices.Group{Name: name, ZipCode: zip})
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("no groups configured")
	}
	return groups, nil
}
