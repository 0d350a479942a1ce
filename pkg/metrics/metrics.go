package metrics

import (
	"context"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// RecordCount records a count metric
func RecordCount(ctx context.Context, metricName string, count uint64) {
	if app := applicationFromContext(ctx); app != nil {
		app.RecordCustomMetric(metricName, float64(count))
	}
}

// RecordDuration records a duration metric in milliseconds
func RecordDuration(ctx context.Context, metricName string, duration time.Duration) {
	if app := applicationFromContext(ctx); app != nil {
		app.RecordCustomMetric(metricName, float64(duration)/float64(time.Millisecond))
	}
}

// RecordEvent records a new event with a name and set of key-value pairs
func RecordEvent(ctx context.Context, eventName string, kvPairs map[string]interface{}) {
	if app := applicationFromContext(ctx); app != nil {
		app.RecordCustomEvent(eventName, kvPairs)
	}
}

// applicationFromContext returns the application set with NewContext, or the
// one owning the transaction in ctx.
func applicationFromContext(ctx context.Context) *newrelic.Application {
	if app, ok := ctx.Value(NewRelicContextKey).(*newrelic.Application); ok && app != nil {
		return app
	}

	if txn := newrelic.FromContext(ctx); txn != nil {
		return txn.Application()
	}
	return nil
}
