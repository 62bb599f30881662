package config

import (
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// Defaults that do not depend on the platform
const (
	DefaultScheduleAt       = "00:00"
	DefaultCommandTimeout   = 10 * time.Second
	DefaultPublicIPURL      = "https://api.ipify.org?format=json"
	DefaultPublicIPTimeout  = 5 * time.Second
	DefaultReportTimeout    = 30 * time.Second
	DefaultSubjectPrefix    = "inventory"
	DefaultNATSDrainTimeout = 5 * time.Second
)

// PlatformDefaults returns platform-specific default values
type PlatformDefaults struct {
	LogFile    string
	ConfigPath string
}

// GetPlatformDefaults returns platform-specific defaults based on runtime.GOOS
func GetPlatformDefaults() PlatformDefaults {
	switch runtime.GOOS {
	case "windows":
		return PlatformDefaults{
			LogFile:    `C:\ProgramData\InventoryAgent\agent.log`,
			ConfigPath: `C:\ProgramData\InventoryAgent\config.yaml`,
		}
	case "freebsd":
		return PlatformDefaults{
			LogFile:    "/var/log/inventory-agent/agent.log",
			ConfigPath: "/usr/local/etc/inventory-agent/config.yaml",
		}
	default:
		// Linux and anything unknown
		return PlatformDefaults{
			LogFile:    "/var/log/inventory-agent/agent.log",
			ConfigPath: "/etc/inventory-agent/config.yaml",
		}
	}
}

// GetDefaultConfigPath returns the platform-specific default config path
func GetDefaultConfigPath() string {
	return GetPlatformDefaults().ConfigPath
}

// setDefaults registers every default with viper so that environment
// variables and the config file only need to override what they change.
func setDefaults(v *viper.Viper) {
	platform := GetPlatformDefaults()

	v.SetDefault("agent.name", "")
	v.SetDefault("agent.description", "")

	v.SetDefault("server.timeout", DefaultReportTimeout)
	v.SetDefault("server.tls.insecure_skip_verify", false)

	v.SetDefault("schedule.at", DefaultScheduleAt)
	v.SetDefault("schedule.run_on_start", false)

	v.SetDefault("probes.command_timeout", DefaultCommandTimeout)

	v.SetDefault("public_ip.url", DefaultPublicIPURL)
	v.SetDefault("public_ip.timeout", DefaultPublicIPTimeout)

	v.SetDefault("nats.subject_prefix", DefaultSubjectPrefix)
	v.SetDefault("nats.auth.type", "none")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.drain_timeout", DefaultNATSDrainTimeout)

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file", platform.LogFile)
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
}

// envBindings maps config keys to the environment variables the agent has
// always been driven by.
var envBindings = map[string]string{
	"server.url":                      "SERVER_URL",
	"server.username":                 "DISCOVERY_GENERIC_USER",
	"server.password":                 "DISCOVERY_GENERIC_PASSWORD",
	"server.timeout":                  "REPORT_TIMEOUT",
	"server.tls.insecure_skip_verify": "REPORT_TLS_INSECURE_SKIP_VERIFY",
	"server.tls.ca_file":              "REPORT_TLS_CA_FILE",
	"agent.name":                      "AGENT_NAME",
	"agent.description":               "AGENT_DESCRIPTION",
	"schedule.at":                     "JOB_SCHEDULE_HOUR",
	"schedule.run_on_start":           "RUN_ON_START",
	"probes.command_timeout":          "COMMAND_TIMEOUT",
	"public_ip.url":                   "PUBLIC_IP_URL",
	"public_ip.timeout":               "PUBLIC_IP_TIMEOUT",
	"nats.urls":                       "NATS_URL",
	"nats.subject_prefix":             "NATS_SUBJECT_PREFIX",
	"nats.auth.type":                  "NATS_AUTH_TYPE",
	"nats.auth.token":                 "NATS_TOKEN",
	"nats.auth.username":              "NATS_USER",
	"nats.auth.password":              "NATS_PASSWORD",
	"nats.auth.creds_file":            "NATS_CREDS_FILE",
	"metrics.textfile":                "METRICS_TEXTFILE",
	"logging.level":                   "LOG_LEVEL",
	"logging.output":                  "LOG_OUTPUT",
	"logging.file":                    "LOG_FILE",
	"logging.max_size_mb":             "LOG_MAX_SIZE_MB",
	"logging.max_backups":             "LOG_MAX_BACKUPS",
}

func bindEnv(v *viper.Viper) error {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}
