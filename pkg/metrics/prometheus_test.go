package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gotest.tools/v3/assert"
)

func TestRegisterTwice(t *testing.T) {
	registry := prometheus.NewRegistry()
	Register(registry)
	Register(registry)
}

func TestObserveLookup(t *testing.T) {
	before := testutil.ToFloat64(LookupRequests.WithLabelValues("ipv4", OutcomeHTTPError))
	ObserveLookup("ipv4", OutcomeHTTPError, 20*time.Millisecond)
	assert.Equal(t, testutil.ToFloat64(LookupRequests.WithLabelValues("ipv4", OutcomeHTTPError)), before+1)
}

func TestIncrementRecordChange(t *testing.T) {
	before := testutil.ToFloat64(RecordChanges.WithLabelValues("route53", "updated"))
	IncrementRecordChange("route53", "updated")
	assert.Equal(t, testutil.ToFloat64(RecordChanges.WithLabelValues("route53", "updated")), before+1)
}

func TestIncrementReqs(t *testing.T) {
	before := testutil.ToFloat64(TotalRequests.WithLabelValues("/v1/ipv4"))
	IncrementReqs(httptest.NewRequest("GET", "/v1/ipv4", nil))
	assert.Equal(t, testutil.ToFloat64(TotalRequests.WithLabelValues("/v1/ipv4")), before+1)
}
