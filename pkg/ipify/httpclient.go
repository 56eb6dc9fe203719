package ipify

import (
	"net/http"
)

// HTTPClientFactory hands out a client for a single lookup.
type HTTPClientFactory interface {
	CreateClient() *http.Client
}

type HTTPClientFactoryFunc func() *http.Client

func (f HTTPClientFactoryFunc) CreateClient() *http.Client {
	return f()
}

// DefaultHTTPClientFactory creates clients sharing one transport, so
// connections are pooled across lookups while each call owns its client.
type DefaultHTTPClientFactory struct {
	transport http.RoundTripper
}

func NewDefaultHTTPClientFactory() *DefaultHTTPClientFactory {
	return &DefaultHTTPClientFactory{
		transport: http.DefaultTransport.(*http.Transport).Clone(),
	}
}

func (f *DefaultHTTPClientFactory) CreateClient() *http.Client {
	return &http.Client{Transport: f.transport}
}
