package models

// MConfig Structure
type MConfig struct {
	Name     string         `yaml:"name"`
	Host     string         `yaml:"host"`
	Port     int            `yaml:"port"`
	LogLevel string         `yaml:"log_level"`
	Storage  MStorageConfig `yaml:"storage"`
	Network  MNetworkConfig `yaml:"network"`
	Upstream MUpstreamConfig `yaml:"upstream"`
	Chart    MChartConfig   `yaml:"chart"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	DataRetentionDays  int    `yaml:"data_retention_days"`
}

type MNetworkConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Proxies            []string `yaml:"proxies"`
	RequestTimeout     int      `yaml:"timeout"`
	MaxRetries         int      `yaml:"retries"`
	ConcurrentRequests int      `yaml:"concurrent_requests"`
	UserAgent          string   `yaml:"user_agent"`
}

// MUpstreamConfig points at the market-data provider (REST + streaming).
type MUpstreamConfig struct {
	RestBaseURL string `yaml:"rest_base_url"`
	WsURL       string `yaml:"ws_url"`
	APIKey      string `yaml:"api_key"`
}

// MChartConfig holds the chart hub tuning knobs. The gap factor and the
// extreme-move threshold are heuristics carried over from production use,
// kept configurable pending product-owner confirmation.
type MChartConfig struct {
	MaxBufferBars        int     `yaml:"max_buffer_bars"`
	MaxMinuteBars        int     `yaml:"max_minute_bars"`
	GapFactor            float64 `yaml:"gap_factor"`
	ExtremeMoveThreshold float64 `yaml:"extreme_move_threshold"`
	QualityLogSize       int     `yaml:"quality_log_size"`
	DefaultTimeframe     string  `yaml:"default_timeframe"`
}
