// Package metrics holds the Prometheus collectors for the irrigation
// controller.
//
// Collectors live on a private registry rather than the global default so
// that tests and multiple controllers in one process do not collide:
//
//	m := metrics.New()
//	m.MessageHandled("actuated")
//	http.Handle("/metrics", m.Handler())
package metrics
