package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvToConfig populates unset fields of cfg from environment
// variables. Explicit cfg values take precedence over env.
func ApplyEnvToConfig(cfg *Config) {
	if cfg == nil {
		return
	}

	setStr := func(dst *string, keys ...string) {
		if *dst != "" {
			return
		}
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	setStr(&cfg.GQLV2URL, "GQL_V2_URL")
	setStr(&cfg.GQLV2Token, "GQL_V2_TOKEN")
	setStr(&cfg.GQLV3URL, "GQL_V3_URL")
	setStr(&cfg.GQLV3Token, "GQL_V3_TOKEN")
	setStr(&cfg.RESTV3URL, "REST_V3_URL")
	setStr(&cfg.WebhookURL, "WEBHOOK_URL")
	setStr(&cfg.BillingURL, "BILLING_URL")
	setStr(&cfg.RedisAddr, "REDIS_ADDR")
	setStr(&cfg.RefsPath, "REFS_PATH")
	setStr(&cfg.ListenAddr, "LISTEN_ADDR")
	setStr(&cfg.MetricsDBPath, "METRICS_DB_PATH")

	setSeconds := func(dst *time.Duration, key string) {
		if *dst != 0 {
			return
		}
		if s := os.Getenv(key); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				*dst = time.Duration(n) * time.Second
			}
		}
	}
	setSeconds(&cfg.RequestTimeout, "REQUEST_TIMEOUT_S")
	setSeconds(&cfg.Envelope, "ORCHESTRATOR_ENVELOPE_S")
	setSeconds(&cfg.CacheTTL, "CACHE_TTL_S")

	setInt := func(dst *int, key string) {
		if *dst != 0 {
			return
		}
		if s := os.Getenv(key); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	setInt(&cfg.PerUserRPM, "PER_USER_RPM")
	setInt(&cfg.MetricsRetentionDays, "METRICS_RETENTION_DAYS")
	setInt(&cfg.MetricsMaxSizeMB, "METRICS_MAX_SIZE_MB")

	// SSL verification defaults to on; only an explicit falsy value
	// disables it.
	if s := strings.ToLower(strings.TrimSpace(os.Getenv("SSL_VERIFY"))); s != "" {
		if s == "0" || s == "false" || s == "no" || s == "off" {
			cfg.InsecureSkipTLSVerify = true
		}
	}
}
