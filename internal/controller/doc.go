// Package controller implements the irrigation control loop.
//
// The Controller turns broker events into valve actuations. Every event,
// connection or message, goes through one FIFO queue drained by Run, so
// events are handled one at a time in the order the transport observed them.
//
// # Connection events
//
// On every accepted connection, first or reconnect, the controller issues
// exactly one subscription to the sensor topic. The transport uses clean
// sessions and never restores subscriptions, so skipping this after a
// network blip would silently stop all deliveries. A refused connection is
// logged and nothing is subscribed; reconnecting is the transport's job.
//
// # Messages
//
// Each telemetry message moves through
//
//	Received -> Decoded -> Persisted -> Decided -> (Actuated | Skipped) -> Done
//
// and leaves early on failure:
//   - an invalid payload is logged and dropped
//   - a reading that could not be stored never reaches the policy, so the
//     valve is never driven by a reading without a record to attach to
//   - a failed publish means nothing was actuated, so nothing is recorded
//   - a failed watering record after a successful publish is logged only;
//     a physical actuation cannot be rolled back
//
// Panics raised while handling a message are recovered and logged, and the
// loop carries on with the next event.
package controller
