package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/larivierec/whatismyip/pkg/cloudprovider/cloudflare"
	"github.com/larivierec/whatismyip/pkg/ipify"
	"github.com/larivierec/whatismyip/pkg/logger"
)

const (
	AppName   = "whatismyip"
	envPrefix = "WHATISMYIP"

	ProviderNone       = "none"
	ProviderCloudflare = "cloudflare"
	ProviderRoute53    = "route53"
)

type Config struct {
	IPify      ipify.Settings           `mapstructure:"ipify"`
	Log        logger.Config            `mapstructure:"log"`
	Server     ServerConfig             `mapstructure:"server"`
	Publish    PublishConfig            `mapstructure:"publish"`
	Cloudflare cloudflare.Configuration `mapstructure:"cloudflare"`
}

type ServerConfig struct {
	HealthAddr  string `mapstructure:"health_addr"`
	TrafficAddr string `mapstructure:"traffic_addr"`
}

type PublishConfig struct {
	Provider string        `mapstructure:"provider"`
	Zone     string        `mapstructure:"zone"`
	Record   string        `mapstructure:"record"`
	TTL      int           `mapstructure:"ttl"`
	Proxied  bool          `mapstructure:"proxied"`
	Interval time.Duration `mapstructure:"interval"`
	Families []string      `mapstructure:"families"`
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"timeout":        "ipify.timeout_seconds",
	"ipv4-endpoint":  "ipify.ipv4_endpoint",
	"ipv6-endpoint":  "ipify.ipv6_endpoint",
	"log-level":      "log.level",
	"log-file":       "log.file",
	"health-addr":    "server.health_addr",
	"traffic-addr":   "server.traffic_addr",
	"cloud-provider": "publish.provider",
	"zone-name":      "publish.zone",
	"record-name":    "publish.record",
	"ttl":            "publish.ttl",
	"proxied":        "publish.proxied",
	"ticker":         "publish.interval",
	"family":         "publish.families",
}

func setDefaults(v *viper.Viper) {
	settings := ipify.DefaultSettings()
	v.SetDefault("ipify.timeout_seconds", settings.TimeoutSeconds)
	v.SetDefault("ipify.ipv4_endpoint", settings.IPv4Endpoint)
	v.SetDefault("ipify.ipv6_endpoint", settings.IPv6Endpoint)

	logCfg := logger.DefaultConfig()
	v.SetDefault("log.level", logCfg.Level)
	v.SetDefault("log.file", logCfg.File)
	v.SetDefault("log.max_size", logCfg.MaxSize)
	v.SetDefault("log.max_backups", logCfg.MaxBackups)
	v.SetDefault("log.max_age", logCfg.MaxAge)
	v.SetDefault("log.compress", logCfg.Compress)

	v.SetDefault("server.health_addr", ":8080")
	v.SetDefault("server.traffic_addr", ":9000")

	v.SetDefault("publish.provider", ProviderNone)
	v.SetDefault("publish.zone", "")
	v.SetDefault("publish.record", "")
	v.SetDefault("publish.ttl", 0)
	v.SetDefault("publish.proxied", false)
	v.SetDefault("publish.interval", 3*time.Minute)
	v.SetDefault("publish.families", []string{"ipv4"})
}

// Load reads configuration from defaults, an optional YAML file, the
// environment and flags, later sources winning.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// credential variables kept from the ddns deployment manifests
	for key, env := range map[string]string{
		"cloudflare.api_key":       "API_KEY",
		"cloudflare.account_email": "ACCOUNT_EMAIL",
		"cloudflare.token":         "ACCOUNT_TOKEN",
	} {
		if err := v.BindEnv(key, envPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, errors.Wrapf(err, "failed to bind %s", key)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if flag := flags.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, errors.Wrapf(err, "failed to bind flag %s", name)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := c.IPify.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if _, err := c.Families(); err != nil {
		return err
	}

	switch c.Publish.Provider {
	case "", ProviderNone:
		return nil
	case ProviderCloudflare, ProviderRoute53:
	default:
		return errors.Errorf("unknown cloud provider %q", c.Publish.Provider)
	}
	if c.Publish.Zone == "" || c.Publish.Record == "" {
		return errors.New("publish.zone and publish.record are required when a cloud provider is set")
	}
	if c.Publish.Interval <= 0 {
		return errors.New("publish.interval must be positive")
	}
	return nil
}

// Publishing reports whether a cloud provider is configured.
func (c *Config) Publishing() bool {
	return c.Publish.Provider != "" && c.Publish.Provider != ProviderNone
}

// Families expands publish.families; "both" selects ipv4 and ipv6.
func (c *Config) Families() ([]ipify.Family, error) {
	var families []ipify.Family
	seen := map[ipify.Family]bool{}
	for _, name := range c.Publish.Families {
		for _, part := range strings.Split(name, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			var expanded []ipify.Family
			if strings.EqualFold(part, "both") {
				expanded = []ipify.Family{ipify.IPv4, ipify.IPv6}
			} else {
				family, err := ipify.ParseFamily(part)
				if err != nil {
					return nil, err
				}
				expanded = []ipify.Family{family}
			}
			for _, family := range expanded {
				if !seen[family] {
					seen[family] = true
					families = append(families, family)
				}
			}
		}
	}
	if len(families) == 0 {
		families = []ipify.Family{ipify.IPv4}
	}
	return families, nil
}
