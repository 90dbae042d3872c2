// Package client - observer.go notifies the surrounding application about
// rate-limit pressure and failures.
package client

import (
	"sync"

	"github.com/storelane/graphmeter/internal/usage"
)

// DefaultApproachingThreshold is the used-percentage at which the
// approaching-limit callback fires.
const DefaultApproachingThreshold = 80.0

// Callbacks are implemented by the surrounding application (dashboard or
// notification layer). Nil fields are skipped.
type Callbacks struct {
	OnRateLimitApproaching func(usage.ThrottleStatus)
	OnThrottled            func(usage.ThrottleStatus)
	OnError                func(error)
}

// limitTracker turns a stream of throttle statuses into edge-triggered
// callbacks: each threshold is signalled once per crossing, not on every
// request while usage stays past it.
type limitTracker struct {
	mu          sync.Mutex
	threshold   float64
	approaching bool
	throttled   bool
}

func newLimitTracker(threshold float64) *limitTracker {
	if threshold <= 0 {
		threshold = DefaultApproachingThreshold
	}
	return &limitTracker{threshold: threshold}
}

// observe processes the status of a successful response.
func (lt *limitTracker) observe(status usage.ThrottleStatus, cb Callbacks) {
	lt.mu.Lock()
	pct := status.UsedPercentage()
	fireApproaching := false
	if pct >= lt.threshold {
		if !lt.approaching {
			lt.approaching = true
			fireApproaching = true
		}
	} else {
		// Recovery below the threshold re-arms both edges.
		lt.approaching = false
		lt.throttled = false
	}
	lt.mu.Unlock()

	if fireApproaching && cb.OnRateLimitApproaching != nil {
		cb.OnRateLimitApproaching(status)
	}
}

// throttledEvent signals an upstream throttle rejection. Re-arms only once
// usage recovers below the approaching threshold.
func (lt *limitTracker) throttledEvent(status usage.ThrottleStatus, cb Callbacks) {
	lt.mu.Lock()
	fire := !lt.throttled
	lt.throttled = true
	lt.mu.Unlock()

	if fire && cb.OnThrottled != nil {
		cb.OnThrottled(status)
	}
}

// notifyError forwards err to the error observer, if one is installed.
func (c *Client) notifyError(err error) {
	if c.callbacks.OnError != nil {
		c.callbacks.OnError(err)
	}
}
