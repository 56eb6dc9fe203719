package cloudflare_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"
	"gotest.tools/v3/assert"

	"github.com/larivierec/whatismyip/pkg/cloudprovider"
	"github.com/larivierec/whatismyip/pkg/cloudprovider/cloudflare"
)

type fakeAPI struct {
	mu      sync.Mutex
	records map[string]map[string]interface{}
	auth    []string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	api := &fakeAPI{records: map[string]map[string]interface{}{
		"rec-1": {"id": "rec-1", "type": "A", "name": "home.example.com", "content": "192.0.2.1", "ttl": 300, "proxied": false},
	}}
	server := httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(server.Close)
	return api, server
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))

	path := strings.TrimPrefix(r.URL.Path, "/")
	switch {
	case path == "zones":
		if r.URL.Query().Get("name") != "example.com" {
			writeResult(w, []interface{}{})
			return
		}
		writeResult(w, []map[string]string{{"id": "zone-1", "name": "example.com"}})
	case path == "zones/zone-1/dns_records" && r.Method == http.MethodGet:
		var found []map[string]interface{}
		for _, rec := range f.records {
			if rec["name"] == r.URL.Query().Get("name") && rec["type"] == r.URL.Query().Get("type") {
				found = append(found, rec)
			}
		}
		writeResult(w, found)
	case path == "zones/zone-1/dns_records" && r.Method == http.MethodPost:
		var rec map[string]interface{}
		json.NewDecoder(r.Body).Decode(&rec)
		rec["id"] = "rec-2"
		f.records["rec-2"] = rec
		writeResult(w, rec)
	case strings.HasPrefix(path, "zones/zone-1/dns_records/"):
		id := strings.TrimPrefix(path, "zones/zone-1/dns_records/")
		if _, ok := f.records[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"errors":  []map[string]interface{}{{"code": 81044, "message": "Record does not exist."}},
			})
			return
		}
		if r.Method == http.MethodDelete {
			delete(f.records, id)
			writeResult(w, map[string]string{"id": id})
			return
		}
		var rec map[string]interface{}
		json.NewDecoder(r.Body).Decode(&rec)
		rec["id"] = id
		f.records[id] = rec
		writeResult(w, rec)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeAPI) recordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func (f *fakeAPI) lastAuth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth[len(f.auth)-1]
}

func writeResult(w http.ResponseWriter, result interface{}) {
	json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "errors": []interface{}{}, "result": result})
}

func newProvider(t *testing.T, server *httptest.Server) *cloudflare.CloudflareProvider {
	return cloudflare.NewCloudflareProvider(
		cloudflare.Configuration{CloudflareToken: "test-token"},
		zaptest.NewLogger(t),
		cloudflare.WithBaseURL(server.URL+"/"),
		cloudflare.WithHTTPClient(server.Client()),
	)
}

func TestCloudflareProvider_ImplementsInterface(t *testing.T) {
	var _ cloudprovider.Provider = &cloudflare.CloudflareProvider{}
}

func TestNewCloudflareProvider(t *testing.T) {
	provider := cloudflare.NewCloudflareProvider(cloudflare.Configuration{ApiKey: "key", AccountEmail: "test@example.com"}, nil)
	assert.Assert(t, provider != nil, "Provider should not be nil")
	assert.Equal(t, provider.Name(), "cloudflare")
}

func TestGetDNSRecord(t *testing.T) {
	api, server := newFakeAPI(t)
	provider := newProvider(t, server)

	record, err := provider.GetDNSRecord(context.Background(), "example.com", "home.example.com", "A")
	assert.NilError(t, err)
	assert.Equal(t, record.ID, "rec-1")
	assert.Equal(t, record.Content, "192.0.2.1")
	assert.Equal(t, record.TTL, 300)
	assert.Equal(t, api.lastAuth(), "Bearer test-token")
}

func TestGetDNSRecord_NotFound(t *testing.T) {
	_, server := newFakeAPI(t)
	provider := newProvider(t, server)

	_, err := provider.GetDNSRecord(context.Background(), "example.com", "home.example.com", "AAAA")
	assert.Assert(t, errors.Is(err, cloudprovider.ErrRecordNotFound))
}

func TestGetDNSRecord_UnknownZone(t *testing.T) {
	_, server := newFakeAPI(t)
	provider := newProvider(t, server)

	_, err := provider.GetDNSRecord(context.Background(), "other.org", "home.other.org", "A")
	assert.ErrorContains(t, err, "zone other.org not found")
}

func TestCreateUpdateDeleteDNSRecord(t *testing.T) {
	api, server := newFakeAPI(t)
	provider := newProvider(t, server)
	ctx := context.Background()

	created, err := provider.CreateDNSRecord(ctx, "example.com", &cloudprovider.Record{
		Type:    "AAAA",
		Name:    "home.example.com",
		Content: "2001:db8::1",
	})
	assert.NilError(t, err)
	assert.Equal(t, created.ID, "rec-2")
	assert.Equal(t, created.TTL, 1)

	created.Content = "2001:db8::2"
	updated, err := provider.UpdateDNSRecord(ctx, "example.com", created)
	assert.NilError(t, err)
	assert.Equal(t, updated.Content, "2001:db8::2")

	assert.NilError(t, provider.DeleteDNSRecord(ctx, "example.com", updated))
	assert.Equal(t, api.recordCount(), 1)
}

func TestUpdateDNSRecord_APIError(t *testing.T) {
	_, server := newFakeAPI(t)
	provider := newProvider(t, server)

	_, err := provider.UpdateDNSRecord(context.Background(), "example.com", &cloudprovider.Record{ID: "missing", Type: "A", Name: "x.example.com", Content: "192.0.2.9"})
	assert.ErrorContains(t, err, "Record does not exist.")
}
