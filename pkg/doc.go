// Package pkg provides shared utilities for the dmauart transport engine.
//
// This package contains common functionality used by the engine, the DMA
// channel manager and the HAL backends, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error values returned synchronously by the engine API
//   - [StopReason] values carried by receive-stopped events
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component attribute:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentRx, "receive enabled", "capacity", 32)
//
// The default level is [slog.LevelWarn]; bounded-wait expiries and hardware
// faults are logged at that level, buffer rotation at debug.
//
// # Errors
//
// Errors are plain sentinels compared with [errors.Is]:
//
//	if err := e.Send(nil, 0); errors.Is(err, pkg.ErrInvalidArgument) {
//	    // rejected synchronously, no event follows
//	}
package pkg
