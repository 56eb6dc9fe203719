package route53

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/larivierec/whatismyip/pkg/cloudprovider"
)

const (
	ProviderName = "route53"
	defaultTTL   = 300
)

// API is the subset of the Route53 client used by the provider.
type API interface {
	ListHostedZonesByName(ctx context.Context, params *route53.ListHostedZonesByNameInput, optFns ...func(*route53.Options)) (*route53.ListHostedZonesByNameOutput, error)
	ListResourceRecordSets(ctx context.Context, params *route53.ListResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ListResourceRecordSetsOutput, error)
	ChangeResourceRecordSets(ctx context.Context, params *route53.ChangeResourceRecordSetsInput, optFns ...func(*route53.Options)) (*route53.ChangeResourceRecordSetsOutput, error)
}

type Route53Provider struct {
	api    API
	logger *zap.Logger
}

// NewRoute53Provider loads credentials and region the usual AWS way
// (environment, shared config, instance role).
func NewRoute53Provider(ctx context.Context, logger *zap.Logger) (*Route53Provider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load aws config")
	}
	return New(route53.NewFromConfig(cfg), logger), nil
}

func New(api API, logger *zap.Logger) *Route53Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Route53Provider{api: api, logger: logger}
}

func (p *Route53Provider) Name() string {
	return ProviderName
}

func (p *Route53Provider) GetDNSRecord(ctx context.Context, zone, recordName, recordType string) (*cloudprovider.Record, error) {
	zoneID, err := p.getZoneID(ctx, zone)
	if err != nil {
		return nil, err
	}

	out, err := p.api.ListResourceRecordSets(ctx, &route53.ListResourceRecordSetsInput{
		HostedZoneId:    aws.String(zoneID),
		StartRecordName: aws.String(fqdn(recordName)),
		StartRecordType: types.RRType(recordType),
		MaxItems:        aws.Int32(1),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list resource record sets")
	}

	for _, set := range out.ResourceRecordSets {
		if strings.EqualFold(fqdn(aws.ToString(set.Name)), fqdn(recordName)) && string(set.Type) == recordType {
			return toRecord(set), nil
		}
	}
	return nil, errors.Wrapf(cloudprovider.ErrRecordNotFound, "%s record %s in zone %s", recordType, recordName, zone)
}

func (p *Route53Provider) CreateDNSRecord(ctx context.Context, zone string, record *cloudprovider.Record) (*cloudprovider.Record, error) {
	if err := p.change(ctx, zone, types.ChangeActionCreate, record); err != nil {
		return nil, errors.Wrap(err, "failed to create DNS record")
	}
	p.logger.Info("DNS record created", zap.String("name", record.Name), zap.String("content", record.Content))
	return withID(record), nil
}

func (p *Route53Provider) UpdateDNSRecord(ctx context.Context, zone string, record *cloudprovider.Record) (*cloudprovider.Record, error) {
	if err := p.change(ctx, zone, types.ChangeActionUpsert, record); err != nil {
		return nil, errors.Wrap(err, "failed to update DNS record")
	}
	p.logger.Info("DNS record updated", zap.String("name", record.Name), zap.String("content", record.Content))
	return withID(record), nil
}

// DeleteDNSRecord needs the record's current content and TTL; Route53 only
// deletes an exact match.
func (p *Route53Provider) DeleteDNSRecord(ctx context.Context, zone string, record *cloudprovider.Record) error {
	if err := p.change(ctx, zone, types.ChangeActionDelete, record); err != nil {
		return errors.Wrap(err, "failed to delete DNS record")
	}
	p.logger.Info("DNS record deleted", zap.String("name", record.Name))
	return nil
}

func (p *Route53Provider) change(ctx context.Context, zone string, action types.ChangeAction, record *cloudprovider.Record) error {
	zoneID, err := p.getZoneID(ctx, zone)
	if err != nil {
		return err
	}

	ttl := int64(record.TTL)
	if ttl <= 0 {
		ttl = defaultTTL
	}

	_, err = p.api.ChangeResourceRecordSets(ctx, &route53.ChangeResourceRecordSetsInput{
		HostedZoneId: aws.String(zoneID),
		ChangeBatch: &types.ChangeBatch{
			Comment: aws.String("whatismyip"),
			Changes: []types.Change{{
				Action: action,
				ResourceRecordSet: &types.ResourceRecordSet{
					Name:            aws.String(fqdn(record.Name)),
					Type:            types.RRType(record.Type),
					TTL:             aws.Int64(ttl),
					ResourceRecords: []types.ResourceRecord{{Value: aws.String(record.Content)}},
				},
			}},
		},
	})
	return err
}

func (p *Route53Provider) getZoneID(ctx context.Context, zone string) (string, error) {
	out, err := p.api.ListHostedZonesByName(ctx, &route53.ListHostedZonesByNameInput{
		DNSName:  aws.String(fqdn(zone)),
		MaxItems: aws.Int32(1),
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to list hosted zones")
	}
	for _, hz := range out.HostedZones {
		if strings.EqualFold(aws.ToString(hz.Name), fqdn(zone)) {
			return aws.ToString(hz.Id), nil
		}
	}
	return "", errors.Errorf("zone %s not found", zone)
}

func fqdn(name string) string {
	if strings.HasSuffix(name, ".") {
		return name
	}
	return name + "."
}

func toRecord(set types.ResourceRecordSet) *cloudprovider.Record {
	record := &cloudprovider.Record{
		Type: string(set.Type),
		Name: strings.TrimSuffix(aws.ToString(set.Name), "."),
		TTL:  int(aws.ToInt64(set.TTL)),
	}
	if len(set.ResourceRecords) > 0 {
		record.Content = aws.ToString(set.ResourceRecords[0].Value)
	}
	return withID(record)
}

// withID fills the ID Route53 lacks with name/type, which is unique per zone
// for simple routing.
func withID(record *cloudprovider.Record) *cloudprovider.Record {
	out := *record
	out.ID = strings.TrimSuffix(record.Name, ".") + "/" + record.Type
	return &out
}
