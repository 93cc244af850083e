// ABOUTME: Pushes a gatherer's metrics to a Prometheus Pushgateway.
// ABOUTME: Used by short-lived send runs that are never scraped.

package metrics

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Push replaces the metrics of job on the gateway at url with everything g
// gathers. The instance grouping label is the local hostname.
func Push(ctx context.Context, url, job string, g prometheus.Gatherer) error {
	p := push.New(url, job).Gatherer(g)
	if host, err := os.Hostname(); err == nil && host != "" {
		p = p.Grouping("instance", host)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
