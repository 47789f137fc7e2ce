// Package storage records sensor readings and valve actuations.
//
// Gateway is the contract the control loop depends on. The concrete pieces
// compose as decorators around a SQL store:
//
//	Observed{ Breaker{ SQLStore } }
//
// SQLStore is the source of truth (SQLite or PostgreSQL). Breaker fails fast
// with ErrUnavailable while the backend keeps erroring. Observed copies every
// successful save to best-effort observers such as the Redis cache and the
// InfluxDB mirror; their failures are logged and never fail the save.
package storage
