package publisher

import (
	"context"
	"net/netip"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/larivierec/whatismyip/pkg/cloudprovider"
	"github.com/larivierec/whatismyip/pkg/ipify"
	"github.com/larivierec/whatismyip/pkg/metrics"
)

type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
	ActionSkipped   Action = "skipped"
)

type Options struct {
	Zone     string
	Record   string
	TTL      int
	Proxied  bool
	Families []ipify.Family
}

type Result struct {
	Family  ipify.Family
	Address netip.Addr
	Action  Action
}

// Publisher keeps the A/AAAA records of one name in line with the public
// addresses. The DNS record is read on every sync.
type Publisher struct {
	service  ipify.Service
	provider cloudprovider.Provider
	options  Options
	logger   *zap.Logger
}

func New(service ipify.Service, provider cloudprovider.Provider, options Options, logger *zap.Logger) (*Publisher, error) {
	if service == nil || provider == nil || logger == nil {
		return nil, errors.Wrap(ipify.ErrInvalidArgument, "publisher needs a service, a provider and a logger")
	}
	if options.Zone == "" || options.Record == "" {
		return nil, errors.Wrap(ipify.ErrInvalidArgument, "zone and record names are required")
	}
	if len(options.Families) == 0 {
		options.Families = []ipify.Family{ipify.IPv4}
	}
	return &Publisher{
		service:  service,
		provider: provider,
		options:  options,
		logger:   logger.With(zap.String("provider", provider.Name()), zap.String("record", options.Record)),
	}, nil
}

// Sync publishes every configured family; one family failing does not stop
// the others.
func (p *Publisher) Sync(ctx context.Context) ([]Result, error) {
	var (
		results []Result
		errs    error
	)
	for _, family := range p.options.Families {
		result, err := p.syncFamily(ctx, family)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "%s", family))
			continue
		}
		results = append(results, result)
	}
	return results, errs
}

func (p *Publisher) syncFamily(ctx context.Context, family ipify.Family) (Result, error) {
	addr, err := lookup(ctx, p.service, family)
	if err != nil {
		return Result{}, errors.Wrap(err, "unable to get public ip, skipping update")
	}
	result := Result{Family: family, Address: addr}

	recordType := cloudprovider.RecordType(addr)
	if family == ipify.IPv6 && recordType != "AAAA" {
		// the dual stack endpoint answers with IPv4 when there is no IPv6 route
		p.logger.Warn("no public ipv6 address, skipping AAAA record", zap.Stringer("address", addr))
		result.Action = ActionSkipped
		return result, nil
	}

	record, err := p.provider.GetDNSRecord(ctx, p.options.Zone, p.options.Record, recordType)
	switch {
	case errors.Is(err, cloudprovider.ErrRecordNotFound):
		_, err = p.provider.CreateDNSRecord(ctx, p.options.Zone, &cloudprovider.Record{
			Type:    recordType,
			Name:    p.options.Record,
			Content: addr.String(),
			TTL:     p.options.TTL,
			Proxied: p.options.Proxied,
		})
		if err != nil {
			return Result{}, errors.Wrapf(err, "unable to create record %s", p.options.Record)
		}
		result.Action = ActionCreated
	case err != nil:
		return Result{}, errors.Wrapf(err, "unable to retrieve record %s in zone %s", p.options.Record, p.options.Zone)
	case sameAddress(record.Content, addr):
		p.logger.Debug("record is the same, ignoring", zap.String("type", recordType))
		result.Action = ActionUnchanged
		return result, nil
	default:
		updated := *record
		updated.Content = addr.String()
		if p.options.TTL > 0 {
			updated.TTL = p.options.TTL
		}
		if _, err := p.provider.UpdateDNSRecord(ctx, p.options.Zone, &updated); err != nil {
			return Result{}, errors.Wrapf(err, "unable to update record %s", p.options.Record)
		}
		result.Action = ActionUpdated
	}

	metrics.IncrementRecordChange(p.provider.Name(), string(result.Action))
	p.logger.Info("record published", zap.String("type", recordType), zap.Stringer("address", addr), zap.String("action", string(result.Action)))
	return result, nil
}

func lookup(ctx context.Context, service ipify.Service, family ipify.Family) (netip.Addr, error) {
	if family == ipify.IPv6 {
		return service.GetExternalIPv6(ctx)
	}
	return service.GetExternalIPv4(ctx)
}

// sameAddress compares by value so "2001:DB8:0::1" matches "2001:db8::1".
func sameAddress(content string, addr netip.Addr) bool {
	current, err := netip.ParseAddr(strings.TrimSpace(content))
	return err == nil && current == addr
}
