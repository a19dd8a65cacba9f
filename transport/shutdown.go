package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// ShutdownConfig configures graceful shutdown.
type ShutdownConfig struct {
	// Timeout bounds the wait for in-flight requests. Zero means 30
	// seconds.
	Timeout time.Duration

	// DrainDelay is how long to keep accepting requests after shutdown
	// begins, giving load balancers time to remove the instance from
	// their pool. Zero drains immediately.
	DrainDelay time.Duration

	// OnShutdownStart is called when shutdown begins.
	OnShutdownStart func()

	// OnDrainStart is called once draining begins, after DrainDelay.
	OnDrainStart func()

	// OnShutdownComplete is called with the shutdown outcome.
	OnShutdownComplete func(err error)
}

// DefaultShutdownConfig returns the default shutdown configuration.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		Timeout:    30 * time.Second,
		DrainDelay: 0,
	}
}

// ShutdownManager coordinates graceful shutdown: it tracks in-flight
// requests, rejects new ones once draining starts and waits for the
// remainder to complete, bounded by the configured timeout.
type ShutdownManager struct {
	config ShutdownConfig

	draining  atomic.Bool
	inFlight  atomic.Int64
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewShutdownManager creates a shutdown manager with the given config.
func NewShutdownManager(config ShutdownConfig) *ShutdownManager {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &ShutdownManager{
		config: config,
		doneCh: make(chan struct{}),
	}
}

// IsDraining reports whether the manager has started draining.
func (sm *ShutdownManager) IsDraining() bool {
	return sm.draining.Load()
}

// InFlightRequests returns the number of tracked requests.
func (sm *ShutdownManager) InFlightRequests() int64 {
	return sm.inFlight.Load()
}

// TrackRequest registers an in-flight request. It returns false once
// draining has begun; the caller must then reject the request.
func (sm *ShutdownManager) TrackRequest() bool {
	if sm.draining.Load() {
		return false
	}
	sm.inFlight.Add(1)
	return true
}

// CompleteRequest deregisters a request tracked with TrackRequest.
func (sm *ShutdownManager) CompleteRequest() {
	sm.inFlight.Add(-1)
}

// Shutdown runs the shutdown sequence: drain delay, then draining until
// in-flight requests reach zero or the timeout fires. A non-nil return
// means requests were still in flight at the deadline.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	if sm.config.OnShutdownStart != nil {
		sm.config.OnShutdownStart()
	}

	if sm.config.DrainDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sm.config.DrainDelay):
		}
	}

	sm.draining.Store(true)
	if sm.config.OnDrainStart != nil {
		sm.config.OnDrainStart()
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, sm.config.Timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	var shutdownErr error
	for {
		select {
		case <-timeoutCtx.Done():
			if sm.inFlight.Load() > 0 {
				shutdownErr = timeoutCtx.Err()
			}
			goto done
		case <-ticker.C:
			if sm.inFlight.Load() == 0 {
				goto done
			}
		}
	}

done:
	sm.closeOnce.Do(func() {
		close(sm.doneCh)
	})

	if sm.config.OnShutdownComplete != nil {
		sm.config.OnShutdownComplete(shutdownErr)
	}

	return shutdownErr
}

// Done returns a channel closed when shutdown has completed.
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.doneCh
}

// WithShutdownTimeout sets the HTTP transport's shutdown timeout.
func WithShutdownTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.shutdownTimeout = d
	}
}

// WithShutdownDrainDelay sets the HTTP transport's drain delay.
func WithShutdownDrainDelay(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.drainDelay = d
	}
}
