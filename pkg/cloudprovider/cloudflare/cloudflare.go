package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/larivierec/whatismyip/pkg/cloudprovider"
)

const (
	ProviderName     = "cloudflare"
	cloudflareAPIUrl = "https://api.cloudflare.com/client/v4"
)

type CloudflareProvider struct {
	config     Configuration
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

type Configuration struct {
	ApiKey          string `mapstructure:"api_key"`
	AccountEmail    string `mapstructure:"account_email"`
	CloudflareToken string `mapstructure:"token"`
}

type Option func(*CloudflareProvider)

// WithBaseURL points the provider at another API root, e.g. a test server.
func WithBaseURL(baseURL string) Option {
	return func(c *CloudflareProvider) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *CloudflareProvider) {
		c.httpClient = client
	}
}

type zone struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type dnsRecord struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Success bool            `json:"success"`
	Errors  []apiError      `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

func NewCloudflareProvider(config Configuration, logger *zap.Logger, opts ...Option) *CloudflareProvider {
	c := &CloudflareProvider{
		config:     config,
		baseURL:    cloudflareAPIUrl,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

func (c *CloudflareProvider) Name() string {
	return ProviderName
}

func (c *CloudflareProvider) GetDNSRecord(ctx context.Context, zoneName, recordName, recordType string) (*cloudprovider.Record, error) {
	zoneID, err := c.getZoneID(ctx, zoneName)
	if err != nil {
		return nil, err
	}

	query := url.Values{"name": {recordName}, "type": {recordType}}
	var records []dnsRecord
	if err := c.do(ctx, http.MethodGet, "/zones/"+zoneID+"/dns_records?"+query.Encode(), nil, &records); err != nil {
		return nil, errors.Wrap(err, "failed to get DNS record")
	}

	for _, record := range records {
		if strings.EqualFold(record.Name, recordName) && strings.EqualFold(record.Type, recordType) {
			return toRecord(record), nil
		}
	}
	return nil, errors.Wrapf(cloudprovider.ErrRecordNotFound, "%s record %s in zone %s", recordType, recordName, zoneName)
}

func (c *CloudflareProvider) CreateDNSRecord(ctx context.Context, zoneName string, rec *cloudprovider.Record) (*cloudprovider.Record, error) {
	zoneID, err := c.getZoneID(ctx, zoneName)
	if err != nil {
		return nil, err
	}

	var created dnsRecord
	if err := c.do(ctx, http.MethodPost, "/zones/"+zoneID+"/dns_records", fromRecord(rec), &created); err != nil {
		return nil, errors.Wrap(err, "failed to create DNS record")
	}

	c.logger.Info("DNS record created", zap.String("name", created.Name), zap.String("content", created.Content))
	return toRecord(created), nil
}

func (c *CloudflareProvider) UpdateDNSRecord(ctx context.Context, zoneName string, rec *cloudprovider.Record) (*cloudprovider.Record, error) {
	zoneID, err := c.getZoneID(ctx, zoneName)
	if err != nil {
		return nil, err
	}

	var updated dnsRecord
	if err := c.do(ctx, http.MethodPut, "/zones/"+zoneID+"/dns_records/"+rec.ID, fromRecord(rec), &updated); err != nil {
		return nil, errors.Wrap(err, "failed to update DNS record")
	}

	c.logger.Info("DNS record updated", zap.String("name", updated.Name), zap.String("content", updated.Content))
	return toRecord(updated), nil
}

func (c *CloudflareProvider) DeleteDNSRecord(ctx context.Context, zoneName string, rec *cloudprovider.Record) error {
	zoneID, err := c.getZoneID(ctx, zoneName)
	if err != nil {
		return err
	}

	if err := c.do(ctx, http.MethodDelete, "/zones/"+zoneID+"/dns_records/"+rec.ID, nil, nil); err != nil {
		return errors.Wrap(err, "failed to delete DNS record")
	}

	c.logger.Info("DNS record deleted", zap.String("id", rec.ID))
	return nil
}

func (c *CloudflareProvider) getZoneID(ctx context.Context, zoneName string) (string, error) {
	var zones []zone
	if err := c.do(ctx, http.MethodGet, "/zones?"+url.Values{"name": {zoneName}}.Encode(), nil, &zones); err != nil {
		return "", errors.Wrap(err, "failed to list zones")
	}
	if len(zones) == 0 {
		return "", errors.Errorf("zone %s not found", zoneName)
	}
	return zones[0].ID, nil
}

// do sends one API call and decodes the envelope's result into out.
func (c *CloudflareProvider) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var result envelope
	if err := json.Unmarshal(data, &result); err != nil {
		return errors.Wrapf(err, "unexpected response (%s)", resp.Status)
	}
	if resp.StatusCode != http.StatusOK || !result.Success {
		return errors.Errorf("cloudflare api: %s%s", resp.Status, formatErrors(result.Errors))
	}
	if out == nil || len(result.Result) == 0 {
		return nil
	}
	return json.Unmarshal(result.Result, out)
}

func (c *CloudflareProvider) setHeaders(req *http.Request) {
	if c.config.CloudflareToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.CloudflareToken)
	} else {
		req.Header.Set("X-Auth-Email", c.config.AccountEmail)
		req.Header.Set("X-Auth-Key", c.config.ApiKey)
	}
	req.Header.Set("Content-Type", "application/json")
}

func formatErrors(errs []apiError) string {
	if len(errs) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, fmt.Sprintf("%d %s", e.Code, e.Message))
	}
	return ": " + strings.Join(msgs, "; ")
}

func fromRecord(rec *cloudprovider.Record) dnsRecord {
	ttl := rec.TTL
	if ttl <= 0 {
		// automatic
		ttl = 1
	}
	return dnsRecord{
		Type:    rec.Type,
		Name:    rec.Name,
		Content: rec.Content,
		TTL:     ttl,
		Proxied: rec.Proxied,
	}
}

func toRecord(r dnsRecord) *cloudprovider.Record {
	return &cloudprovider.Record{
		ID:      r.ID,
		Type:    r.Type,
		Name:    r.Name,
		Content: r.Content,
		TTL:     r.TTL,
		Proxied: r.Proxied,
	}
}
