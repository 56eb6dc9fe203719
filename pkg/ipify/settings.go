package ipify

import (
	"net/url"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultTimeoutSeconds = 10
	DefaultIPv4Endpoint   = "https://api.ipify.org"
	DefaultIPv6Endpoint   = "https://api64.ipify.org"
)

// Settings configures where and how long the service asks for the public address.
type Settings struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	IPv4Endpoint   string `mapstructure:"ipv4_endpoint" yaml:"ipv4_endpoint"`
	IPv6Endpoint   string `mapstructure:"ipv6_endpoint" yaml:"ipv6_endpoint"`
}

func DefaultSettings() *Settings {
	return &Settings{
		TimeoutSeconds: DefaultTimeoutSeconds,
		IPv4Endpoint:   DefaultIPv4Endpoint,
		IPv6Endpoint:   DefaultIPv6Endpoint,
	}
}

func (s Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Endpoint returns the configured URL for the given family.
func (s Settings) Endpoint(family Family) string {
	if family == IPv6 {
		return s.IPv6Endpoint
	}
	return s.IPv4Endpoint
}

func (s Settings) Validate() error {
	if s.TimeoutSeconds <= 0 {
		return errors.Errorf("timeout_seconds must be positive, got %d", s.TimeoutSeconds)
	}
	for _, endpoint := range []string{s.IPv4Endpoint, s.IPv6Endpoint} {
		u, err := url.ParseRequestURI(endpoint)
		if err != nil {
			return errors.Wrapf(err, "invalid endpoint %q", endpoint)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.Errorf("endpoint %q must use http or https", endpoint)
		}
	}
	return nil
}

// withDefaults fills unset fields so a zero Settings behaves like DefaultSettings.
func (s Settings) withDefaults() Settings {
	if s.TimeoutSeconds <= 0 {
		s.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if s.IPv4Endpoint == "" {
		s.IPv4Endpoint = DefaultIPv4Endpoint
	}
	if s.IPv6Endpoint == "" {
		s.IPv6Endpoint = DefaultIPv6Endpoint
	}
	return s
}
