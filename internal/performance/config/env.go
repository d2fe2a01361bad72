package config

import (
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Viper keys for the run environment. Each key is bound to its environment
// variable and, in the CLI, to a flag.
const (
	KeyGatewayURL    = "gateway_url"
	KeyMetricsURL    = "metrics_url"
	KeyMetricsDB     = "metrics_db"
	KeyMetricsListen = "metrics_listen"
	KeyDashboardURL  = "dashboard_url"
	KeyDebug         = "debug"
	KeyLogLevel      = "log_level"
	KeyLogFormat     = "log_format"
)

// EnvGatewayURL is the environment variable naming the gateway.
const EnvGatewayURL = "AIRBRX_URL"

// Environment defaults.
const (
	DefaultGatewayURL   = "http://localhost:8080"
	DefaultMetricsDB    = "brxload"
	DefaultDashboardURL = "http://localhost:3000"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
)

// Environment is the process-level configuration read from the environment.
type Environment struct {
	// GatewayURL is the AirBrx gateway base URL
	GatewayURL string

	// MetricsURL is the Pushgateway URL; empty disables push
	MetricsURL string

	// MetricsDB is the push job name
	MetricsDB string

	// MetricsListen is the address serving /metrics during the run
	MetricsListen string

	// DashboardURL is where teardown points the user
	DashboardURL string

	Debug     bool
	LogLevel  string
	LogFormat string
}

// BindEnvironment registers defaults and environment bindings on v. The
// INFLUXDB_* names are accepted as aliases for deployments that still
// export them.
func BindEnvironment(v *viper.Viper) {
	v.SetDefault(KeyGatewayURL, DefaultGatewayURL)
	v.SetDefault(KeyMetricsDB, DefaultMetricsDB)
	v.SetDefault(KeyDashboardURL, DefaultDashboardURL)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyLogFormat, DefaultLogFormat)

	_ = v.BindEnv(KeyGatewayURL, EnvGatewayURL)
	_ = v.BindEnv(KeyMetricsURL, "METRICS_URL", "INFLUXDB_URL")
	_ = v.BindEnv(KeyMetricsDB, "METRICS_DB", "INFLUXDB_DB")
	_ = v.BindEnv(KeyMetricsListen, "METRICS_LISTEN")
	_ = v.BindEnv(KeyDashboardURL, "DASHBOARD_URL")
	_ = v.BindEnv(KeyDebug, "DEBUG")
	_ = v.BindEnv(KeyLogLevel, "LOG_LEVEL")
	_ = v.BindEnv(KeyLogFormat, "LOG_FORMAT")
}

// LoadEnvironment reads the bound keys from v.
func LoadEnvironment(v *viper.Viper) Environment {
	return Environment{
		GatewayURL:    strings.TrimRight(v.GetString(KeyGatewayURL), "/"),
		MetricsURL:    v.GetString(KeyMetricsURL),
		MetricsDB:     v.GetString(KeyMetricsDB),
		MetricsListen: v.GetString(KeyMetricsListen),
		DashboardURL:  v.GetString(KeyDashboardURL),
		Debug:         isEnabled(v.GetString(KeyDebug)),
		LogLevel:      v.GetString(KeyLogLevel),
		LogFormat:     v.GetString(KeyLogFormat),
	}
}

// isEnabled reads a toggle such as DEBUG. Boolean spellings are honoured
// and any other non-empty value ("yes", "on", "verbose") turns it on.
func isEnabled(s string) bool {
	s = strings.TrimSpace(s)
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s != ""
}
