// Package timeouts defines shared timeout constants used across dofsim
// processes so the durations stay discoverable in one place.
package timeouts

import "time"

// GRPCDial caps the wait for a dialed peer to report SERVING.
const GRPCDial = 2 * time.Second

// GRPCRequest caps a single client request to the DoF service.
const GRPCRequest = 5 * time.Second

// Reload caps an admin-triggered model reload, which loads every model on disk.
const Reload = 2 * time.Minute

// Shutdown limits how long the server waits for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second
