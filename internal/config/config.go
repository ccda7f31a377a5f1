package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"consultbook/internal/availability"
	"consultbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Booking    BookingConfig    `yaml:"booking"`
	Database   DatabaseConfig   `yaml:"database"`
	Backup     BackupConfig     `yaml:"backup"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Google     GoogleConfig     `yaml:"google"`
	Exports    ExportConfig     `yaml:"exports"`
}

// BookingConfig описывает окно приёма и правила слотов.
type BookingConfig struct {
	Timezone           string             `yaml:"timezone"`
	Policy             string             `yaml:"policy"`
	FixedSlots         []models.TimeOfDay `yaml:"fixed_slots"`
	OpeningTime        *models.TimeOfDay  `yaml:"opening_time"`
	ClosingTime        *models.TimeOfDay  `yaml:"closing_time"`
	StepMinutes        int                `yaml:"step_minutes"`
	AllowedDurations   []models.Duration  `yaml:"allowed_durations"`
	DefaultDuration    models.Duration    `yaml:"default_duration"`
	ClosingCheck       string             `yaml:"closing_check"`
	PreselectFirstDate *bool              `yaml:"preselect_first_date"`
	MaxCalendarDays    int                `yaml:"max_calendar_days"`
	SessionTTL         int                `yaml:"session_ttl"`        // секунды
	SubmitRateLimit    int                `yaml:"submit_rate_limit"`  // отправок на сессию
	SubmitRateWindow   int                `yaml:"submit_rate_window"` // секунды
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
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

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	BotToken       string  `yaml:"bot_token"`
	ManagerChatIDs []int64 `yaml:"manager_chat_ids"`
	Debug          bool    `yaml:"debug"`
}

// Enabled reports whether manager notifications can be sent.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.BotToken != "YOUR_BOT_TOKEN_HERE" && len(t.ManagerChatIDs) > 0
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
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

type GoogleConfig struct {
	CredentialsFile            string `yaml:"credentials_file"`
	ConsultationsSpreadsheetID string `yaml:"consultations_spreadsheet_id"`
	SheetName                  string `yaml:"sheet_name"`
}

// Enabled reports whether the spreadsheet mirror is configured.
func (g GoogleConfig) Enabled() bool {
	return g.CredentialsFile != "" && g.ConsultationsSpreadsheetID != ""
}

func Load(configPath string) (*Config, error) {
	// .env не обязателен
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
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

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Google.ConsultationsSpreadsheetID != "" && c.Google.CredentialsFile == "" {
		return errors.New("google credentials file is required for the spreadsheet mirror")
	}
	for _, k := range c.API.Auth.APIKeys {
		if k.Key == "" {
			return fmt.Errorf("api key %q is empty", k.Name)
		}
	}
	return c.Booking.Validate()
}

// Validate checks the timezone and the slot policy.
func (b BookingConfig) Validate() error {
	if _, err := b.Location(); err != nil {
		return err
	}
	p, err := b.SlotPolicy()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if b.MaxCalendarDays < 0 || b.SessionTTL < 0 || b.SubmitRateLimit < 0 || b.SubmitRateWindow < 0 {
		return errors.New("booking limits must not be negative")
	}
	return nil
}

// Location resolves the business timezone; empty means the server's local zone.
func (b BookingConfig) Location() (*time.Location, error) {
	if b.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return nil, fmt.Errorf("booking timezone %q: %w", b.Timezone, err)
	}
	return loc, nil
}

// SlotPolicy builds the availability policy from the booking section.
func (b BookingConfig) SlotPolicy() (availability.Policy, error) {
	var closing models.TimeOfDay
	if b.ClosingTime != nil {
		closing = *b.ClosingTime
	}

	var p availability.Policy
	switch availability.PolicyKind(b.Policy) {
	case availability.PolicyFixedList:
		p = availability.FixedListPolicy(b.FixedSlots, closing, b.DefaultDuration)
		if len(b.AllowedDurations) > 0 {
			p.AllowedDurations = b.AllowedDurations
		}
	case availability.PolicyGeneratedRange:
		var opening models.TimeOfDay
		if b.OpeningTime != nil {
			opening = *b.OpeningTime
		}
		p = availability.GeneratedRangePolicy(opening, closing, b.StepMinutes, b.AllowedDurations)
	default:
		return p, fmt.Errorf("%w: unknown policy %q", availability.ErrInvalidPolicy, b.Policy)
	}

	p.DefaultDuration = b.DefaultDuration
	p.ClosingCheck = availability.ClosingCheck(b.ClosingCheck)
	return p, nil
}

// Preselect reports whether new sessions start on the first selectable date.
func (b BookingConfig) Preselect() bool {
	return b.PreselectFirstDate == nil || *b.PreselectFirstDate
}

func (b BookingConfig) SessionTTLDuration() time.Duration {
	return time.Duration(b.SessionTTL) * time.Second
}

func (b BookingConfig) SubmitRateWindowDuration() time.Duration {
	return time.Duration(b.SubmitRateWindow) * time.Second
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "consultbook"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
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
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 20
	}
	if c.Google.SheetName == "" {
		c.Google.SheetName = "Consultations"
	}
	if c.Backup.Enabled && c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}

	c.Booking.applyDefaults()
}

func (b *BookingConfig) applyDefaults() {
	if b.Policy == "" {
		b.Policy = string(availability.PolicyGeneratedRange)
	}
	if b.OpeningTime == nil {
		t := models.MustTimeOfDay(10, 0)
		b.OpeningTime = &t
	}
	if b.ClosingTime == nil {
		t := models.MustTimeOfDay(17, 0)
		b.ClosingTime = &t
	}
	if b.StepMinutes == 0 {
		b.StepMinutes = models.DefaultStepMinutes
	}
	if len(b.AllowedDurations) == 0 {
		if b.Policy == string(availability.PolicyFixedList) {
			b.AllowedDurations = []models.Duration{models.DefaultMeetingDuration}
		} else {
			b.AllowedDurations = []models.Duration{30, 60, 90, 120}
		}
	}
	if b.DefaultDuration == 0 {
		b.DefaultDuration = models.DefaultMeetingDuration
		if !contains(b.AllowedDurations, b.DefaultDuration) {
			b.DefaultDuration = b.AllowedDurations[0]
		}
	}
	if b.ClosingCheck == "" {
		b.ClosingCheck = string(availability.ClosingExact)
	}
	if b.MaxCalendarDays == 0 {
		b.MaxCalendarDays = models.DefaultMaxCalendarDays
	}
	if b.SessionTTL == 0 {
		b.SessionTTL = models.DefaultSessionTTL
	}
	if b.SubmitRateLimit == 0 {
		b.SubmitRateLimit = models.SubmitRateLimit
	}
	if b.SubmitRateWindow == 0 {
		b.SubmitRateWindow = models.SubmitRateWindow
	}
}

func contains(ds []models.Duration, d models.Duration) bool {
	for _, x := range ds {
		if x == d {
			return true
		}
	}
	return false
}
