// Package server provides the HTTP and WebSocket gateway for UI clients
package server

import "time"

// Server configuration constants
const (
	// Per-connection command rate limiting
	RateLimitMessages = 20          // Max commands per connection per window
	RateLimitWindow   = time.Second // Sliding window duration

	// Upper bound on one-shot synthesis text
	SayTextLimit = 500
)
