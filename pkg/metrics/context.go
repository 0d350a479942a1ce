package metrics

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"
)

type contextKey int

// NewRelicContextKey is the context key under which the New Relic application
// is stored for custom metrics and events.
const NewRelicContextKey contextKey = iota

// NewContext returns a copy of ctx carrying app, enabling RecordCount,
// RecordDuration and RecordEvent for everything downstream.
func NewContext(ctx context.Context, app *newrelic.Application) context.Context {
	return context.WithValue(ctx, NewRelicContextKey, app)
}
