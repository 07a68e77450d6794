// Package metrics defines the Prometheus instruments recorded by the runner.
//
// Instruments live on a dedicated registry so tests and multiple instances do
// not collide on the global default registry. All recording methods are safe
// to call on a nil *Metrics.
package metrics
