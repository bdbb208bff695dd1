package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics. A nil *Metrics records nothing.
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	PostsExecuted       metric.Int64Counter
	PublishDuration     metric.Float64Histogram
	GraphAPICalls       metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
	ScheduledJobs       metric.Int64UpDownCounter
	DatabaseOperations  metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("instagram-automation")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	postsExecuted, err := meter.Int64Counter(
		"posts.executed.total",
		metric.WithDescription("Post executions by kind and terminal status"),
	)
	if err != nil {
		return nil, err
	}

	publishDuration, err := meter.Float64Histogram(
		"posts.publish.duration",
		metric.WithDescription("Time spent in the publish sequence in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	graphAPICalls, err := meter.Int64Counter(
		"graph_api.calls.total",
		metric.WithDescription("Graph API calls by operation and outcome"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	scheduledJobs, err := meter.Int64UpDownCounter(
		"jobs.pending",
		metric.WithDescription("Posts waiting on an in-process timer"),
	)
	if err != nil {
		return nil, err
	}

	databaseOperations, err := meter.Int64Counter(
		"database.operations.total",
		metric.WithDescription("Total database operations"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		PostsExecuted:       postsExecuted,
		PublishDuration:     publishDuration,
		GraphAPICalls:       graphAPICalls,
		CircuitBreakerState: circuitBreakerState,
		ScheduledJobs:       scheduledJobs,
		DatabaseOperations:  databaseOperations,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordPostExecution records one executor attempt
func (m *Metrics) RecordPostExecution(kind, status string, duration float64) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("post.kind", kind),
		attribute.String("post.status", status),
	}

	m.PostsExecuted.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.PublishDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordGraphAPICall records a single Graph API request
func (m *Metrics) RecordGraphAPICall(operation, outcome string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("graph.operation", operation),
		attribute.String("graph.outcome", outcome),
	}

	m.GraphAPICalls.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordScheduledJobs moves the pending-job gauge by delta
func (m *Metrics) RecordScheduledJobs(delta int64) {
	if m == nil {
		return
	}
	m.ScheduledJobs.Add(context.Background(), delta)
}

// RecordDatabaseOperation records database operation metrics
func (m *Metrics) RecordDatabaseOperation(operation, collection string, success bool) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("db.operation", operation),
		attribute.String("db.collection", collection),
		attribute.Bool("db.success", success),
	}

	m.DatabaseOperations.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
