package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/env"

	"github.com/larivierec/whatismyip/pkg/ipify"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "whatismyip.yaml")
	assert.NilError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil)
	assert.NilError(t, err)
	assert.DeepEqual(t, cfg.IPify, *ipify.DefaultSettings())
	assert.Equal(t, cfg.Log.Level, "info")
	assert.Equal(t, cfg.Server.HealthAddr, ":8080")
	assert.Equal(t, cfg.Server.TrafficAddr, ":9000")
	assert.Equal(t, cfg.Publish.Interval, 3*time.Minute)
	assert.Assert(t, !cfg.Publishing())

	families, err := cfg.Families()
	assert.NilError(t, err)
	assert.DeepEqual(t, families, []ipify.Family{ipify.IPv4})
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
ipify:
  timeout_seconds: 3
  ipv6_endpoint: https://api6.ipify.org
publish:
  provider: route53
  zone: example.com
  record: home.example.com
  interval: 30s
  families: [ipv4, ipv6]
`)
	cfg, err := Load(path, nil)
	assert.NilError(t, err)
	assert.Equal(t, cfg.IPify.TimeoutSeconds, 3)
	assert.Equal(t, cfg.IPify.IPv4Endpoint, ipify.DefaultIPv4Endpoint)
	assert.Equal(t, cfg.IPify.IPv6Endpoint, "https://api6.ipify.org")
	assert.Equal(t, cfg.Publish.Interval, 30*time.Second)
	assert.Assert(t, cfg.Publishing())

	families, err := cfg.Families()
	assert.NilError(t, err)
	assert.DeepEqual(t, families, []ipify.Family{ipify.IPv4, ipify.IPv6})
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoad_Environment(t *testing.T) {
	defer env.PatchAll(t, map[string]string{
		"WHATISMYIP_IPIFY_TIMEOUT_SECONDS": "7",
		"WHATISMYIP_LOG_LEVEL":             "debug",
		"ACCOUNT_TOKEN":                    "test-token",
		"API_KEY":                          "test-api-key",
	})()

	cfg, err := Load("", nil)
	assert.NilError(t, err)
	assert.Equal(t, cfg.IPify.TimeoutSeconds, 7)
	assert.Equal(t, cfg.Log.Level, "debug")
	assert.Equal(t, cfg.Cloudflare.CloudflareToken, "test-token")
	assert.Equal(t, cfg.Cloudflare.ApiKey, "test-api-key")
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	defer env.Patch(t, "WHATISMYIP_IPIFY_TIMEOUT_SECONDS", "7")()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("timeout", ipify.DefaultTimeoutSeconds, "")
	flags.String("ipv4-endpoint", ipify.DefaultIPv4Endpoint, "")
	flags.String("family", "ipv4", "")
	flags.Duration("ticker", 3*time.Minute, "")
	assert.NilError(t, flags.Parse([]string{"--timeout=2", "--ipv4-endpoint=http://127.0.0.1:8081", "--family=both", "--ticker=1m"}))

	cfg, err := Load("", flags)
	assert.NilError(t, err)
	assert.Equal(t, cfg.IPify.TimeoutSeconds, 2)
	assert.Equal(t, cfg.IPify.IPv4Endpoint, "http://127.0.0.1:8081")
	assert.Equal(t, cfg.Publish.Interval, time.Minute)

	families, err := cfg.Families()
	assert.NilError(t, err)
	assert.DeepEqual(t, families, []ipify.Family{ipify.IPv4, ipify.IPv6})
}

func TestLoad_UnchangedFlagKeepsFileValue(t *testing.T) {
	path := writeConfig(t, "ipify:\n  timeout_seconds: 4\n")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("timeout", ipify.DefaultTimeoutSeconds, "")
	assert.NilError(t, flags.Parse(nil))

	cfg, err := Load(path, flags)
	assert.NilError(t, err)
	assert.Equal(t, cfg.IPify.TimeoutSeconds, 4)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"timeout", func(c *Config) { c.IPify.TimeoutSeconds = -1 }, "timeout_seconds must be positive"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "invalid log level"},
		{"family", func(c *Config) { c.Publish.Families = []string{"ipx"} }, "unknown address family"},
		{"provider", func(c *Config) { c.Publish.Provider = "gandi" }, "unknown cloud provider"},
		{"record", func(c *Config) { c.Publish.Provider = ProviderCloudflare; c.Publish.Zone = "example.com" }, "publish.record are required"},
		{"interval", func(c *Config) {
			c.Publish.Provider = ProviderCloudflare
			c.Publish.Zone = "example.com"
			c.Publish.Record = "home.example.com"
			c.Publish.Interval = 0
		}, "publish.interval must be positive"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load("", nil)
			assert.NilError(t, err)
			tc.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tc.errMsg)
		})
	}
}
