// Package metrics records sync coordinator metrics.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics stay optional:
//
//	recorder := metrics.NewPrometheusRecorder(registry)
//	coord := coordinator.New(deps, coordinator.WithRecorder(recorder))
//
// PrometheusRecorder methods are safe on a nil receiver.
package metrics
