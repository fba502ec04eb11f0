package app

import "time"

// Config holds runtime configuration for the service.
type Config struct {
	// Upstreams. An empty token disables the client.
	GQLV2URL   string
	GQLV2Token string
	GQLV3URL   string
	GQLV3Token string
	RESTV3URL  string
	WebhookURL string

	// Quota service.
	BillingURL string

	// Budgets.
	RequestTimeout time.Duration // per-upstream wall clock
	Envelope       time.Duration // total per-request budget
	CacheTTL       time.Duration
	PerUserRPM     int

	// Metrics store.
	MetricsDBPath        string
	MetricsRetentionDays int
	MetricsMaxSizeMB     int

	// Optional shared cache; empty means in-process.
	RedisAddr string

	// Optional JSON override for the reference tables.
	RefsPath string

	// HTTP surface.
	ListenAddr string

	// InsecureSkipTLSVerify disables TLS verification. Development only;
	// the zero value keeps verification on.
	InsecureSkipTLSVerify bool

	Verbose bool
}

// Defaults per the documented configuration surface.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultEnvelope       = 30 * time.Second
	DefaultCacheTTL       = 300 * time.Second
	DefaultPerUserRPM     = 30
	DefaultRetentionDays  = 90
	DefaultMaxSizeMB      = 100
	DefaultListenAddr     = ":8080"
	DefaultMetricsDBPath  = "lotsearch-metrics.db"
)

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.Envelope <= 0 {
		c.Envelope = DefaultEnvelope
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.PerUserRPM <= 0 {
		c.PerUserRPM = DefaultPerUserRPM
	}
	if c.MetricsRetentionDays <= 0 {
		c.MetricsRetentionDays = DefaultRetentionDays
	}
	if c.MetricsMaxSizeMB <= 0 {
		c.MetricsMaxSizeMB = DefaultMaxSizeMB
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.MetricsDBPath == "" {
		c.MetricsDBPath = DefaultMetricsDBPath
	}
}
