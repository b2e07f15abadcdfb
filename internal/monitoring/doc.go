// Package monitoring provides Prometheus metrics for the service: engine
// flush/drop/eviction counters aggregated across sessions, session and
// stream gauges, and HTTP request instrumentation. The flow engine stays
// free of prometheus types; it reports through the flow.Observer returned
// by Metrics.Observer.
package monitoring
