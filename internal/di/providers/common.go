package providers

import "time"

const (
	// shutdownTimeout is the maximum time to wait for graceful shutdown of services.
	shutdownTimeout = 30 * time.Second

	// startupPingTimeout bounds the reachability checks run while wiring.
	startupPingTimeout = 5 * time.Second
)
