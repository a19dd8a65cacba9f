package middleware

import "time"

// DefaultStack returns the recommended baseline stack: panic recovery,
// request ID injection and logging, in that order. Policy middleware
// (rate limiting, caching, retries) is appended by the host as needed.
func DefaultStack(logger Logger) []Middleware {
	return []Middleware{
		Recover(),
		RequestID(),
		Logging(logger),
	}
}

// DefaultStackWithTimeout is DefaultStack with a deadline racing the
// rest of the chain.
func DefaultStackWithTimeout(logger Logger, timeout time.Duration) []Middleware {
	return []Middleware{
		Recover(),
		RequestID(),
		Timeout(timeout),
		Logging(logger),
	}
}
