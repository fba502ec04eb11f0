package app

import (
	"testing"
	"time"
)

func TestApplyEnvToConfig(t *testing.T) {
	t.Setenv("GQL_V2_URL", "https://v2.example")
	t.Setenv("GQL_V2_TOKEN", "tok-2")
	t.Setenv("REST_V3_URL", "https://v3.example")
	t.Setenv("PER_USER_RPM", "12")
	t.Setenv("CACHE_TTL_S", "120")
	t.Setenv("SSL_VERIFY", "false")

	var cfg Config
	ApplyEnvToConfig(&cfg)
	if cfg.GQLV2URL != "https://v2.example" || cfg.GQLV2Token != "tok-2" {
		t.Fatalf("gql v2 = %q %q", cfg.GQLV2URL, cfg.GQLV2Token)
	}
	if cfg.RESTV3URL != "https://v3.example" {
		t.Fatalf("rest v3 = %q", cfg.RESTV3URL)
	}
	if cfg.PerUserRPM != 12 {
		t.Fatalf("rpm = %d", cfg.PerUserRPM)
	}
	if cfg.CacheTTL != 120*time.Second {
		t.Fatalf("ttl = %v", cfg.CacheTTL)
	}
	if !cfg.InsecureSkipTLSVerify {
		t.Fatal("SSL_VERIFY=false should disable verification")
	}
}

func TestApplyEnvToConfig_ExplicitValuesWin(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("PER_USER_RPM", "50")

	cfg := Config{ListenAddr: ":7777", PerUserRPM: 5}
	ApplyEnvToConfig(&cfg)
	if cfg.ListenAddr != ":7777" {
		t.Fatalf("listen = %q, explicit value must win", cfg.ListenAddr)
	}
	if cfg.PerUserRPM != 5 {
		t.Fatalf("rpm = %d, explicit value must win", cfg.PerUserRPM)
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Envelope != DefaultEnvelope || cfg.CacheTTL != DefaultCacheTTL {
		t.Fatalf("budgets = %v %v", cfg.Envelope, cfg.CacheTTL)
	}
	if cfg.PerUserRPM != DefaultPerUserRPM || cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.InsecureSkipTLSVerify {
		t.Fatal("TLS verification must stay on by default")
	}

	set := Config{Envelope: time.Second, PerUserRPM: 1}
	set.ApplyDefaults()
	if set.Envelope != time.Second || set.PerUserRPM != 1 {
		t.Fatalf("defaults clobbered explicit values: %+v", set)
	}
}
