package app

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig is the single-file YAML configuration schema. Nested sections
// map naturally onto flags and env.
type FileConfig struct {
	Upstreams struct {
		GQLV2URL   string `yaml:"gqlV2Url"`
		GQLV2Token string `yaml:"gqlV2Token"`
		GQLV3URL   string `yaml:"gqlV3Url"`
		GQLV3Token string `yaml:"gqlV3Token"`
		RESTV3URL  string `yaml:"restV3Url"`
		WebhookURL string `yaml:"webhookUrl"`
	} `yaml:"upstreams"`

	Billing struct {
		URL string `yaml:"url"`
	} `yaml:"billing"`

	Budgets struct {
		RequestTimeoutS int `yaml:"requestTimeoutS"`
		EnvelopeS       int `yaml:"envelopeS"`
		CacheTTLS       int `yaml:"cacheTtlS"`
		PerUserRPM      int `yaml:"perUserRpm"`
	} `yaml:"budgets"`

	Metrics struct {
		DBPath        string `yaml:"dbPath"`
		RetentionDays int    `yaml:"retentionDays"`
		MaxSizeMB     int    `yaml:"maxSizeMb"`
	} `yaml:"metrics"`

	RedisAddr  string `yaml:"redisAddr"`
	RefsPath   string `yaml:"refsPath"`
	ListenAddr string `yaml:"listenAddr"`
	SSLVerify  *bool  `yaml:"sslVerify"`
	Verbose    bool   `yaml:"verbose"`
}

// LoadConfigFile reads path and overlays its values onto cfg. File values
// fill only fields the flags/env left unset, matching the precedence
// flags > env > file > defaults.
func LoadConfigFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	overlay := func(dst *string, v string) {
		if *dst == "" && v != "" {
			*dst = v
		}
	}
	overlay(&cfg.GQLV2URL, fc.Upstreams.GQLV2URL)
	overlay(&cfg.GQLV2Token, fc.Upstreams.GQLV2Token)
	overlay(&cfg.GQLV3URL, fc.Upstreams.GQLV3URL)
	overlay(&cfg.GQLV3Token, fc.Upstreams.GQLV3Token)
	overlay(&cfg.RESTV3URL, fc.Upstreams.RESTV3URL)
	overlay(&cfg.WebhookURL, fc.Upstreams.WebhookURL)
	overlay(&cfg.BillingURL, fc.Billing.URL)
	overlay(&cfg.RedisAddr, fc.RedisAddr)
	overlay(&cfg.RefsPath, fc.RefsPath)
	overlay(&cfg.ListenAddr, fc.ListenAddr)
	overlay(&cfg.MetricsDBPath, fc.Metrics.DBPath)

	if cfg.RequestTimeout == 0 && fc.Budgets.RequestTimeoutS > 0 {
		cfg.RequestTimeout = time.Duration(fc.Budgets.RequestTimeoutS) * time.Second
	}
	if cfg.Envelope == 0 && fc.Budgets.EnvelopeS > 0 {
		cfg.Envelope = time.Duration(fc.Budgets.EnvelopeS) * time.Second
	}
	if cfg.CacheTTL == 0 && fc.Budgets.CacheTTLS > 0 {
		cfg.CacheTTL = time.Duration(fc.Budgets.CacheTTLS) * time.Second
	}
	if cfg.PerUserRPM == 0 {
		cfg.PerUserRPM = fc.Budgets.PerUserRPM
	}
	if cfg.MetricsRetentionDays == 0 {
		cfg.MetricsRetentionDays = fc.Metrics.RetentionDays
	}
	if cfg.MetricsMaxSizeMB == 0 {
		cfg.MetricsMaxSizeMB = fc.Metrics.MaxSizeMB
	}
	if fc.SSLVerify != nil && !*fc.SSLVerify {
		cfg.InsecureSkipTLSVerify = true
	}
	if fc.Verbose {
		cfg.Verbose = true
	}
	return nil
}
