package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete agent configuration
type Config struct {
	Agent    AgentConfig    `mapstructure:"agent"`
	Server   ServerConfig   `mapstructure:"server"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Probes   ProbesConfig   `mapstructure:"probes"`
	PublicIP PublicIPConfig `mapstructure:"public_ip"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AgentConfig holds the identity fields sent with every report
type AgentConfig struct {
	Name        string `mapstructure:"name"`        // Defaults to the hostname when empty
	Description string `mapstructure:"description"`
}

// ServerConfig describes the inventory server the agent reports to
type ServerConfig struct {
	URL      string        `mapstructure:"url"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
	TLS      TLSConfig     `mapstructure:"tls"`
}

// ScheduleConfig controls when the daily report runs
type ScheduleConfig struct {
	At         string `mapstructure:"at"` // Wall-clock time, HH:MM
	RunOnStart bool   `mapstructure:"run_on_start"`
}

// ProbesConfig controls external command execution
type ProbesConfig struct {
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// PublicIPConfig controls the public IPv4 lookup
type PublicIPConfig struct {
	URL     string        `mapstructure:"url"` // Empty disables the lookup
	Timeout time.Duration `mapstructure:"timeout"`
}

// NATSConfig holds the optional NATS publisher settings
type NATSConfig struct {
	URLs          []string      `mapstructure:"urls"` // Empty disables NATS
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	Auth          AuthConfig    `mapstructure:"auth"`
	TLS           TLSConfig     `mapstructure:"tls"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	DrainTimeout  time.Duration `mapstructure:"drain_timeout"`
}

// Enabled reports whether a NATS server is configured
func (c NATSConfig) Enabled() bool {
	return len(c.URLs) > 0
}

// AuthConfig holds NATS authentication settings
type AuthConfig struct {
	Type      string `mapstructure:"type"` // "none", "token", "userpass", "creds"
	Token     string `mapstructure:"token"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	CredsFile string `mapstructure:"creds_file"`
}

// TLSConfig holds TLS settings shared by the HTTP reporter and NATS
type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled"` // NATS only; HTTPS is decided by the URL scheme
	CertFile           string `mapstructure:"cert_file"`
	KeyFile            string `mapstructure:"key_file"`
	CAFile             string `mapstructure:"ca_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// MetricsConfig controls the Prometheus textfile output
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"` // Empty disables the textfile
}

// LoggingConfig controls log level and destination
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Output     string `mapstructure:"output"` // "stdout" or "file"
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Load reads the optional config file, overlays environment variables and
// validates the result. A missing file at the default path is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) || configPath != GetDefaultConfigPath() {
				return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Logging.Level = NormalizeLevel(cfg.Logging.Level)
	cfg.Logging.Output = strings.ToLower(strings.TrimSpace(cfg.Logging.Output))
	cfg.Schedule.At = strings.TrimSpace(cfg.Schedule.At)
	cfg.NATS.URLs = compact(cfg.NATS.URLs)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate checks the configuration. Any error here is fatal at startup.
func validate(cfg *Config) error {
	// Required settings are reported together so one restart fixes them all
	var missing []string
	if cfg.Server.URL == "" {
		missing = append(missing, "SERVER_URL")
	}
	if cfg.Server.Username == "" {
		missing = append(missing, "DISCOVERY_GENERIC_USER")
	}
	if cfg.Server.Password == "" {
		missing = append(missing, "DISCOVERY_GENERIC_PASSWORD")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	u, err := url.Parse(cfg.Server.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("SERVER_URL must be an absolute http(s) URL: %q", cfg.Server.URL)
	}
	if cfg.Server.Timeout <= 0 {
		return fmt.Errorf("report timeout must be positive")
	}
	if err := validateTLSFiles("report", cfg.Server.TLS); err != nil {
		return err
	}

	if _, _, err := ParseClock(cfg.Schedule.At); err != nil {
		return fmt.Errorf("JOB_SCHEDULE_HOUR: %w", err)
	}

	if cfg.Probes.CommandTimeout < time.Second {
		return fmt.Errorf("command timeout must be at least 1 second")
	}
	if cfg.Probes.CommandTimeout > 5*time.Minute {
		return fmt.Errorf("command timeout must not exceed 5 minutes")
	}

	if cfg.PublicIP.URL != "" {
		if _, err := url.ParseRequestURI(cfg.PublicIP.URL); err != nil {
			return fmt.Errorf("PUBLIC_IP_URL is invalid: %w", err)
		}
		if cfg.PublicIP.Timeout <= 0 {
			return fmt.Errorf("public IP timeout must be positive")
		}
	}

	if cfg.NATS.Enabled() {
		if err := validateSubjectPrefix(cfg.NATS.SubjectPrefix); err != nil {
			return err
		}
		if err := validateNATSAuth(cfg.NATS.Auth); err != nil {
			return err
		}
		if cfg.NATS.TLS.Enabled {
			if err := validateTLSFiles("nats", cfg.NATS.TLS); err != nil {
				return err
			}
		}
	}

	if err := validateLogging(cfg.Logging); err != nil {
		return err
	}

	return nil
}

func validateNATSAuth(auth AuthConfig) error {
	switch auth.Type {
	case "none":
	case "token":
		if auth.Token == "" {
			return fmt.Errorf("nats: token is required for token auth")
		}
	case "userpass":
		if auth.Username == "" || auth.Password == "" {
			return fmt.Errorf("nats: username and password are required for userpass auth")
		}
	case "creds":
		if auth.CredsFile == "" {
			return fmt.Errorf("nats: creds_file is required for creds auth")
		}
	default:
		return fmt.Errorf("nats: invalid auth type: %s", auth.Type)
	}
	return nil
}

func validateTLSFiles(name string, tls TLSConfig) error {
	if tls.CertFile != "" && tls.KeyFile == "" {
		return fmt.Errorf("%s tls: key_file is required when cert_file is set", name)
	}
	if tls.KeyFile != "" && tls.CertFile == "" {
		return fmt.Errorf("%s tls: cert_file is required when key_file is set", name)
	}
	if tls.CertFile != "" {
		if _, err := os.Stat(tls.CertFile); err != nil {
			return fmt.Errorf("%s tls: certificate file not found: %s", name, tls.CertFile)
		}
	}
	if tls.KeyFile != "" {
		if _, err := os.Stat(tls.KeyFile); err != nil {
			return fmt.Errorf("%s tls: key file not found: %s", name, tls.KeyFile)
		}
	}
	if tls.CAFile != "" {
		if _, err := os.Stat(tls.CAFile); err != nil {
			return fmt.Errorf("%s tls: CA file not found: %s", name, tls.CAFile)
		}
	}
	return nil
}

func validateLogging(cfg LoggingConfig) error {
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", cfg.Level)
	}

	switch cfg.Output {
	case "stdout":
	case "file":
		if cfg.File == "" {
			return fmt.Errorf("LOG_FILE is required when LOG_OUTPUT is file")
		}
		if cfg.MaxSizeMB <= 0 {
			return fmt.Errorf("log max size must be positive")
		}
	default:
		return fmt.Errorf("invalid log output %q (must be stdout or file)", cfg.Output)
	}
	return nil
}

var subjectTokenPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validateSubjectPrefix checks that the prefix is a valid dotted NATS subject
// without wildcards
func validateSubjectPrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("nats: subject_prefix is required")
	}
	if len(prefix) > 50 {
		return fmt.Errorf("nats: subject_prefix must not exceed 50 characters")
	}
	if strings.HasPrefix(prefix, ".") || strings.HasSuffix(prefix, ".") {
		return fmt.Errorf("nats: subject_prefix cannot start or end with a dot")
	}
	if strings.Contains(prefix, "..") {
		return fmt.Errorf("nats: subject_prefix has consecutive dots not allowed")
	}
	for _, token := range strings.Split(prefix, ".") {
		if !subjectTokenPattern.MatchString(token) {
			return fmt.Errorf("nats: subject_prefix token %q contains invalid characters", token)
		}
	}
	return nil
}

// ParseClock parses an HH:MM wall-clock time
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q (expected HH:MM)", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

// NormalizeLevel maps level names (including Python-style WARNING and
// CRITICAL) onto zap level names
func NormalizeLevel(level string) string {
	switch l := strings.ToLower(strings.TrimSpace(level)); l {
	case "", "info":
		return "info"
	case "warning":
		return "warn"
	case "critical", "fatal":
		return "error"
	default:
		return l
	}
}

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
