package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Push sends everything in gatherer to the Pushgateway at url under the
// given job grouping. An empty url is a no-op since local runs have no gateway.
func Push(ctx context.Context, url, job string, gatherer prometheus.Gatherer) error {
	if url == "" {
		return nil
	}
	if gatherer == nil {
		return fmt.Errorf("gatherer required")
	}
	if err := push.New(url, job).Gatherer(gatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
