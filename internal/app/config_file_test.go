package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
upstreams:
  gqlV2Url: https://ows.goszakup.gov.kz/v2/graphql
  gqlV2Token: file-token
  restV3Url: https://ows.goszakup.gov.kz
billing:
  url: http://billing:8091
budgets:
  envelopeS: 20
  cacheTtlS: 60
  perUserRpm: 15
metrics:
  dbPath: /data/metrics.db
  retentionDays: 30
listenAddr: ":9090"
sslVerify: false
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	var cfg Config
	if err := LoadConfigFile(writeConfig(t, sampleConfig), &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GQLV2Token != "file-token" || cfg.RESTV3URL != "https://ows.goszakup.gov.kz" {
		t.Fatalf("upstreams = %+v", cfg)
	}
	if cfg.BillingURL != "http://billing:8091" {
		t.Fatalf("billing = %q", cfg.BillingURL)
	}
	if cfg.Envelope != 20*time.Second || cfg.CacheTTL != 60*time.Second || cfg.PerUserRPM != 15 {
		t.Fatalf("budgets = %+v", cfg)
	}
	if cfg.MetricsDBPath != "/data/metrics.db" || cfg.MetricsRetentionDays != 30 {
		t.Fatalf("metrics = %+v", cfg)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("listen = %q", cfg.ListenAddr)
	}
	if !cfg.InsecureSkipTLSVerify {
		t.Fatal("sslVerify: false should disable verification")
	}
}

func TestLoadConfigFile_DoesNotOverrideExisting(t *testing.T) {
	cfg := Config{GQLV2Token: "env-token", PerUserRPM: 99, ListenAddr: ":7070"}
	if err := LoadConfigFile(writeConfig(t, sampleConfig), &cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GQLV2Token != "env-token" || cfg.PerUserRPM != 99 || cfg.ListenAddr != ":7070" {
		t.Fatalf("file values overrode higher-precedence settings: %+v", cfg)
	}
}

func TestLoadConfigFile_Errors(t *testing.T) {
	var cfg Config
	if err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"), &cfg); err == nil {
		t.Fatal("missing file must fail")
	}
	if err := LoadConfigFile(writeConfig(t, "upstreams: ["), &cfg); err == nil {
		t.Fatal("malformed yaml must fail")
	}
}
