package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess        = "success"
	OutcomeHTTPError      = "http_error"
	OutcomeFormatError    = "format_error"
	OutcomeTransportError = "transport_error"
)

var TotalRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Number of get requests.",
	},
	[]string{"path"},
)

var LookupRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ip_lookup_requests_total",
		Help: "Number of public ip lookups by address family and outcome.",
	},
	[]string{"family", "outcome"},
)

var LookupDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "ip_lookup_duration_seconds",
		Help:    "Duration of public ip lookups.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"family"},
)

var RecordChanges = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dns_record_changes_total",
		Help: "Number of dns record changes by cloud provider and action.",
	},
	[]string{"provider", "action"},
)

// InitMetrics registers the collectors with the default registry. Calling it
// twice is harmless.
func InitMetrics() {
	Register(prometheus.DefaultRegisterer)
}

func Register(registerer prometheus.Registerer) {
	for _, c := range []prometheus.Collector{TotalRequests, LookupRequests, LookupDuration, RecordChanges} {
		if err := registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
}

func ObserveLookup(family, outcome string, elapsed time.Duration) {
	LookupRequests.WithLabelValues(family, outcome).Inc()
	LookupDuration.WithLabelValues(family).Observe(elapsed.Seconds())
}

func IncrementRecordChange(provider, action string) {
	RecordChanges.WithLabelValues(provider, action).Inc()
}

func IncrementReqs(r *http.Request) {
	TotalRequests.WithLabelValues(r.URL.Path).Inc()
}
