package cloudprovider

import (
	"context"
	"net/netip"

	"github.com/pkg/errors"
)

var ErrRecordNotFound = errors.New("record not found")

type Record struct {
	ID      string
	Type    string
	Name    string
	Content string
	TTL     int
	Proxied bool
}

type Provider interface {
	Name() string
	GetDNSRecord(ctx context.Context, zone, recordName, recordType string) (*Record, error)
	CreateDNSRecord(ctx context.Context, zone string, record *Record) (*Record, error)
	UpdateDNSRecord(ctx context.Context, zone string, record *Record) (*Record, error)
	DeleteDNSRecord(ctx context.Context, zone string, record *Record) error
}

// RecordType returns the address record type able to hold addr.
func RecordType(addr netip.Addr) string {
	if addr.Unmap().Is4() {
		return "A"
	}
	return "AAAA"
}
