package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"salonbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig        `yaml:"app"`
	Database     DatabaseConfig   `yaml:"database"`
	Redis        RedisConfig      `yaml:"redis"`
	Backup       BackupConfig     `yaml:"backup"`
	Monitoring   MonitoringConfig `yaml:"monitoring"`
	Logging      LoggingConfig    `yaml:"logging"`
	API          APIConfig        `yaml:"api"`
	Salon        SalonConfig      `yaml:"salon"`
	Booking      BookingConfig    `yaml:"booking"`
	Telegram     TelegramConfig   `yaml:"telegram"`
	AMQP         AMQPConfig       `yaml:"amqp"`
	Google       GoogleConfig     `yaml:"google"`
	Exports      ExportConfig     `yaml:"exports"`
	ServicesFile string           `yaml:"services_file"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path          string `yaml:"path"`
	BusyTimeoutMs int    `yaml:"busy_timeout_ms"`
	MaxRetries    int    `yaml:"max_retries"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// TimeRange is one open interval of a working day.
type TimeRange struct {
	Open  models.Clock `yaml:"open"`
	Close models.Clock `yaml:"close"`
}

// SalonConfig describes when the salon takes bookings. OpeningHours is keyed
// by lowercase English weekday name; a missing or empty day means closed.
type SalonConfig struct {
	Timezone             string                 `yaml:"timezone"`
	OpeningHours         map[string][]TimeRange `yaml:"opening_hours"`
	SlotStepMinutes      int                    `yaml:"slot_step_minutes"`
	PlaceholderServiceID int64                  `yaml:"placeholder_service_id"`
}

type BookingConfig struct {
	MaxDaysAhead         int           `yaml:"max_days_ahead"`
	AllowPastDates       bool          `yaml:"allow_past_dates"`
	VerificationAttempts int           `yaml:"verification_attempts"`
	VerificationWindow   time.Duration `yaml:"verification_window"`
}

type TelegramConfig struct {
	BotToken    string `yaml:"bot_token"`
	AdminChatID int64  `yaml:"admin_chat_id"`
	Debug       bool   `yaml:"debug"`
}

type AMQPConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Queue   string `yaml:"queue"`
}

type GoogleConfig struct {
	CredentialsFile           string `yaml:"credentials_file"`
	ReservationsSpreadsheetID string `yaml:"reservations_spreadsheet_id"`
	SheetName                 string `yaml:"sheet_name"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional: in containers the variables come from the environment
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// ${VAR} references are resolved from the environment before parsing
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

var weekdays = map[string]bool{
	"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
	"friday": true, "saturday": true, "sunday": true,
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if err := ValidateOpeningHours(c.Salon.OpeningHours); err != nil {
		return err
	}

	if c.Salon.Timezone != "" {
		if _, err := time.LoadLocation(c.Salon.Timezone); err != nil {
			return fmt.Errorf("invalid salon timezone %q: %w", c.Salon.Timezone, err)
		}
	}

	if c.AMQP.Enabled && c.AMQP.URL == "" {
		return errors.New("amqp url is required when amqp is enabled")
	}

	return nil
}

// ValidateOpeningHours checks weekday names and that every range is non-empty.
func ValidateOpeningHours(hours map[string][]TimeRange) error {
	for day, ranges := range hours {
		if !weekdays[strings.ToLower(day)] {
			return fmt.Errorf("unknown weekday %q in opening hours", day)
		}
		for _, r := range ranges {
			if r.Close <= r.Open {
				return fmt.Errorf("opening hours for %s: close %s must be after open %s", day, r.Close, r.Open)
			}
		}
	}
	return nil
}

// ValidateServices checks ids and parent links of a catalog seed.
func ValidateServices(services []models.Service) error {
	ids := make(map[int64]models.Service)
	for _, svc := range services {
		if svc.ID == 0 {
			return fmt.Errorf("service '%s' has invalid ID 0", svc.Name)
		}
		if _, dup := ids[svc.ID]; dup {
			return fmt.Errorf("duplicate service ID found: %d", svc.ID)
		}
		if !svc.Type.Valid() {
			return fmt.Errorf("service %d has unknown type %q", svc.ID, svc.Type)
		}
		if svc.Price < 0 || svc.Duration < 0 {
			return fmt.Errorf("service %d has negative price or duration", svc.ID)
		}
		ids[svc.ID] = svc
	}
	for _, svc := range services {
		if svc.ParentID == 0 {
			continue
		}
		if _, ok := ids[svc.ParentID]; !ok {
			return fmt.Errorf("service %d references missing parent %d", svc.ID, svc.ParentID)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	if c.Database.BusyTimeoutMs == 0 {
		c.Database.BusyTimeoutMs = 5000
	}
	if c.Database.MaxRetries == 0 {
		c.Database.MaxRetries = 3
	}

	if c.Salon.SlotStepMinutes == 0 {
		c.Salon.SlotStepMinutes = int(models.SlotStep / time.Minute)
	}
	if c.Salon.OpeningHours == nil {
		c.Salon.OpeningHours = defaultOpeningHours()
	}

	if c.Booking.MaxDaysAhead == 0 {
		c.Booking.MaxDaysAhead = models.DefaultMaxDaysAhead
	}
	if c.Booking.VerificationAttempts == 0 {
		c.Booking.VerificationAttempts = models.DefaultVerificationAttempts
	}
	if c.Booking.VerificationWindow == 0 {
		c.Booking.VerificationWindow = models.DefaultVerificationWindow
	}

	if c.AMQP.Queue == "" {
		c.AMQP.Queue = "salon.reservations"
	}
	if c.Google.SheetName == "" {
		c.Google.SheetName = "Reservations"
	}
	if c.ServicesFile == "" {
		c.ServicesFile = "configs/services.yaml"
	}
}

func defaultOpeningHours() map[string][]TimeRange {
	day := []TimeRange{{Open: models.MustClock("09:00"), Close: models.MustClock("19:00")}}
	return map[string][]TimeRange{
		"monday":    day,
		"tuesday":   day,
		"wednesday": day,
		"thursday":  day,
		"friday":    day,
		"saturday":  {{Open: models.MustClock("10:00"), Close: models.MustClock("16:00")}},
	}
}

// Location returns the salon timezone, falling back to local time.
func (s SalonConfig) Location() *time.Location {
	if s.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
