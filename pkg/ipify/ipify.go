package ipify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/larivierec/whatismyip/pkg/metrics"
)

const (
	userAgent = "whatismyip"

	// an address literal is at most a few dozen bytes
	maxBodySize = 4 << 10
)

// Family selects which lookup endpoint is queried.
type Family int

const (
	IPv4 Family = iota
	IPv6
)

func (f Family) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ipv4", "v4", "4":
		return IPv4, nil
	case "ipv6", "v6", "6":
		return IPv6, nil
	default:
		return 0, errors.Wrapf(ErrInvalidArgument, "unknown address family %q", s)
	}
}

// Service retrieves the caller's public addresses.
type Service interface {
	GetExternalIPv4(ctx context.Context) (netip.Addr, error)
	GetExternalIPv6(ctx context.Context) (netip.Addr, error)
}

// IPService asks an ipify style endpoint for the public address. It keeps no
// mutable state and is safe for concurrent use.
type IPService struct {
	clients  HTTPClientFactory
	logger   *zap.Logger
	settings Settings
}

var _ Service = (*IPService)(nil)

// NewService falls back to DefaultSettings when settings is nil.
func NewService(clients HTTPClientFactory, logger *zap.Logger, settings *Settings) (*IPService, error) {
	if clients == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "http client factory cannot be nil")
	}
	if logger == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "logger cannot be nil")
	}
	if settings == nil {
		settings = DefaultSettings()
	}

	return &IPService{
		clients:  clients,
		logger:   logger,
		settings: settings.withDefaults(),
	}, nil
}

func (s *IPService) Settings() Settings {
	return s.settings
}

func (s *IPService) GetExternalIPv4(ctx context.Context) (netip.Addr, error) {
	return s.Lookup(ctx, IPv4)
}

func (s *IPService) GetExternalIPv6(ctx context.Context) (netip.Addr, error) {
	return s.Lookup(ctx, IPv6)
}

func (s *IPService) Lookup(ctx context.Context, family Family) (netip.Addr, error) {
	endpoint := s.settings.Endpoint(family)
	logger := s.logger.With(zap.Stringer("family", family), zap.String("endpoint", endpoint))
	logger.Info("external ip requested")

	start := time.Now()
	addr, err := s.lookup(ctx, logger, endpoint)
	metrics.ObserveLookup(family.String(), outcome(err), time.Since(start))
	if err != nil {
		return netip.Addr{}, err
	}
	return addr, nil
}

func (s *IPService) lookup(ctx context.Context, logger *zap.Logger, endpoint string) (netip.Addr, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return netip.Addr{}, errors.Wrapf(err, "failed to create request for %s", endpoint)
	}
	request.Header.Set("User-Agent", userAgent)
	request.Header.Set("Accept", "text/plain")

	body, err := s.doRequest(request)
	if err != nil {
		return netip.Addr{}, err
	}
	logger.Info("request completed successfully")

	return ParseAddress(body)
}

// doRequest returns once headers arrive, then drains the body as text.
func (s *IPService) doRequest(request *http.Request) (string, error) {
	client := s.scopedClient()

	response, err := client.Do(request)
	if err != nil {
		return "", errors.Wrapf(err, "request to %s failed", request.URL)
	}
	defer response.Body.Close()

	if err := parseResponseError(response); err != nil {
		return "", err
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxBodySize))
	if err != nil {
		return "", errors.Wrapf(err, "failed to read response from %s", request.URL)
	}
	return string(body), nil
}

// scopedClient copies the factory's client so the timeout never leaks into
// a client the factory might share.
func (s *IPService) scopedClient() *http.Client {
	client := http.Client{}
	if created := s.clients.CreateClient(); created != nil {
		client = *created
	}
	client.Timeout = s.settings.Timeout()
	return &client
}

func parseResponseError(response *http.Response) error {
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return &HTTPRequestError{
			StatusCode: response.StatusCode,
			Status:     response.Status,
			URL:        response.Request.URL.String(),
		}
	}
	return nil
}

func outcome(err error) string {
	var httpErr *HTTPRequestError
	var formatErr *AddressFormatError
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &httpErr):
		return metrics.OutcomeHTTPError
	case errors.As(err, &formatErr), errors.Is(err, ErrInvalidArgument):
		return metrics.OutcomeFormatError
	default:
		return metrics.OutcomeTransportError
	}
}
