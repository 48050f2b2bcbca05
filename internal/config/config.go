package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type SLAConfig struct {
	// HoursByPriority is keyed by priority name.
	HoursByPriority      map[string]int `yaml:"hours_by_priority"`
	DefaultHours         int            `yaml:"default_hours"`
	EscalationThreshold  time.Duration  `yaml:"escalation_threshold"`
	NotificationDebounce time.Duration  `yaml:"notification_debounce"`
}

type RiskConfig struct {
	Weights domain.RiskWeights `yaml:"weights"`
}

type EnvironmentConfig struct {
	TTLMinutes int    `yaml:"ttl_minutes"`
	BaseDomain string `yaml:"base_domain"`
}

type NotificationsConfig struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

type EscalationConfig struct {
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	Concurrency      int           `yaml:"concurrency"`
	ReminderDebounce time.Duration `yaml:"reminder_debounce"`
}

type UserSeed struct {
	ID       string   `yaml:"id"`
	Username string   `yaml:"username"`
	Email    string   `yaml:"email"`
	FullName string   `yaml:"full_name"`
	Roles    []string `yaml:"roles"`
}

type Config struct {
	HTTP          *HTTPConfig         `yaml:"http"`
	DB            DatabaseConfig      `yaml:"database"`
	Storage       StorageConfig       `yaml:"storage"`
	Log           LogConfig           `yaml:"log"`
	SLA           SLAConfig           `yaml:"sla"`
	Risk          RiskConfig          `yaml:"risk"`
	Environment   EnvironmentConfig   `yaml:"environment"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Escalation    EscalationConfig    `yaml:"escalation"`
	Users         []UserSeed          `yaml:"users"`
}

func (c Config) HTTPAddr() string {
	if c.HTTP == nil || c.HTTP.Addr == "" {
		return ":8080"
	}
	return c.HTTP.Addr
}

func (db DatabaseConfig) ConnString() string {
	host := db.Host
	if host == "" {
		host = "localhost"
	}

	port := db.Port
	if port == 0 {
		port = 5432
	}

	sslMode := db.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.User,
		db.Password,
		host,
		port,
		db.Name,
		sslMode,
	)
}

// Hours resolves the per-priority SLA table. Unknown priority names are
// rejected.
func (s SLAConfig) Hours() (map[domain.Priority]int, error) {
	out := make(map[domain.Priority]int, len(s.HoursByPriority))
	for name, hours := range s.HoursByPriority {
		p, err := domain.ParsePriority(name)
		if err != nil {
			return nil, fmt.Errorf("sla.hours_by_priority: %w", err)
		}
		if hours <= 0 {
			return nil, fmt.Errorf("sla.hours_by_priority.%s must be positive, got %d", name, hours)
		}
		out[p] = hours
	}
	return out, nil
}

func (u UserSeed) ParsedRoles() ([]domain.Role, error) {
	roles := make([]domain.Role, 0, len(u.Roles))
	for _, name := range u.Roles {
		r, err := domain.ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", u.Username, err)
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// Logger builds the process logger. Level and format are validated by
// Config.Validate.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.HTTP == nil {
		c.HTTP = &HTTPConfig{}
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout <= 0 {
		c.HTTP.WriteTimeout = 10 * time.Second
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Risk.Weights == (domain.RiskWeights{}) {
		c.Risk.Weights = domain.DefaultRiskWeights()
	}
	if c.Environment.TTLMinutes == 0 {
		c.Environment.TTLMinutes = domain.DefaultEnvironmentTTLMinutes
	}
	if c.Escalation.SweepInterval <= 0 {
		c.Escalation.SweepInterval = time.Minute
	}
}

var envOverrides = []struct {
	key string
	set func(*Config, string)
}{
	{"REVIEW_DB_USER", func(c *Config, v string) { c.DB.User = v }},
	{"REVIEW_DB_PASSWORD", func(c *Config, v string) { c.DB.Password = v }},
	{"REVIEW_DB_HOST", func(c *Config, v string) { c.DB.Host = v }},
	{"REVIEW_HTTP_ADDR", func(c *Config, v string) {
		if c.HTTP == nil {
			c.HTTP = &HTTPConfig{}
		}
		c.HTTP.Addr = v
	}},
	{"REVIEW_STORAGE_DRIVER", func(c *Config, v string) { c.Storage.Driver = v }},
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	for _, o := range envOverrides {
		if v, ok := lookup(o.key); ok && v != "" {
			o.set(c, v)
		}
	}
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.DB.User == "" || c.DB.Password == "" {
			errs = append(errs, errors.New("database user and password must be set for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("log.format must be json or text, got %q", c.Log.Format))
	}

	if err := c.Risk.Weights.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("risk.weights: %w", err))
	}
	if _, err := c.SLA.Hours(); err != nil {
		errs = append(errs, err)
	}
	if c.SLA.DefaultHours < 0 {
		errs = append(errs, fmt.Errorf("sla.default_hours must not be negative, got %d", c.SLA.DefaultHours))
	}
	if c.Environment.TTLMinutes <= 0 {
		errs = append(errs, fmt.Errorf("environment.ttl_minutes must be positive, got %d", c.Environment.TTLMinutes))
	}
	if c.Notifications.Rate < 0 || c.Notifications.Burst < 0 {
		errs = append(errs, errors.New("notifications.rate and notifications.burst must not be negative"))
	}
	if c.Escalation.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("escalation.concurrency must not be negative, got %d", c.Escalation.Concurrency))
	}

	for _, u := range c.Users {
		if u.Username == "" {
			errs = append(errs, errors.New("seed user without username"))
			continue
		}
		if _, err := u.ParsedRoles(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// LoadEnvFiles loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML file at path, applies environment overrides and
// defaults, and validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		// #nosec G304 -- config file path is provided via command line flag
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config yaml: %w", err)
		}
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
