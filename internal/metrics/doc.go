// Package metrics provides the observability hooks for texcache builds.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics collection needs no nil checks at call sites:
//
//	engine := render.NewEngine(store, cache, pipe, logger) // uses NoopRecorder
//	engine.WithRecorder(metrics.NewPrometheusRecorder(reg))
//
// PrometheusRecorder registers its collectors on a caller-owned registry and
// HTTPHandler exposes that registry for scraping in watch mode.
package metrics
