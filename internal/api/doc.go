// Package api implements the operational HTTP surface of the irrigation
// controller.
//
// This package provides:
//   - GET /health: JSON status with the result of each dependency check
//   - GET /metrics: Prometheus exposition of the controller's collectors
//   - Middleware stack (request ID, logging, recovery)
//
// There is no control surface here. Operators observe the controller
// through logs, health and metrics only; the valve is driven exclusively by
// telemetry arriving over MQTT.
//
// # Graceful Degradation
//
// A failing check turns /health into a 503 but never stops the server, so a
// scraper can still read /metrics while the broker or database is down.
package api
