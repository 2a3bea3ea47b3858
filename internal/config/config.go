package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the taskmill CLI.
type Config struct {
	LogLevel       string
	LogFile        string
	Workers        int
	Jobs           int
	MetricsAddr    string
	LogInterval    int
	HighlightMs    int
	RetryBaseDelay time.Duration
	SummaryFile    string
	OTelEndpoint   string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:       v.GetString("log_level"),
		LogFile:        v.GetString("log_file"),
		Workers:        v.GetInt("workers"),
		Jobs:           v.GetInt("jobs"),
		MetricsAddr:    v.GetString("metrics_addr"),
		LogInterval:    v.GetInt("log_interval"),
		HighlightMs:    v.GetInt("highlight_ms"),
		RetryBaseDelay: v.GetDuration("retry_base_delay"),
		SummaryFile:    v.GetString("summary_file"),
		OTelEndpoint:   v.GetString("otel_endpoint"),
	}
}
