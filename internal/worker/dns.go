package worker

import (
	"context"
	"time"
)

// Refresher is implemented by *dnscache.Resolver.
type Refresher interface {
	Refresh(clearUnused bool)
}

// DNSRefresher keeps the origin DNS cache warm and drops unused hosts.
type DNSRefresher struct {
	interval time.Duration
	resolver Refresher
}

// NewDNSRefresher creates a refresher for resolver.
func NewDNSRefresher(interval time.Duration, resolver Refresher) *DNSRefresher {
	return &DNSRefresher{interval: interval, resolver: resolver}
}

// Run refreshes every interval until ctx is cancelled.
func (d *DNSRefresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.resolver.Refresh(true)
		}
	}
}
