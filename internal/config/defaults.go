// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined
// here. This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// API DEFAULTS
// =============================================================================

// DefaultAPIVersion is the upstream API version requested when unset.
const DefaultAPIVersion = "2025-07"

// DefaultTimeout is the HTTP client timeout.
const DefaultTimeout = 30 * time.Second

// DefaultApproachingThreshold is the used-percentage that triggers the
// approaching-limit callback.
const DefaultApproachingThreshold = 80.0

// =============================================================================
// RETRY DEFAULTS
// =============================================================================

// DefaultMaxRetries is the maximum attempt count per logical call.
const DefaultMaxRetries = 3

// DefaultInitialDelay seeds the exponential backoff.
const DefaultInitialDelay = 500 * time.Millisecond

// DefaultMaxDelay caps the backoff.
const DefaultMaxDelay = 5 * time.Second

// DefaultBackoffFactor multiplies the delay per attempt.
const DefaultBackoffFactor = 2.0

// =============================================================================
// CACHE DEFAULTS
// =============================================================================

// DefaultCacheTTL applies to entries stored without an explicit TTL.
const DefaultCacheTTL = 5 * time.Minute

// DefaultCleanupInterval is the background eviction frequency.
const DefaultCleanupInterval = 5 * time.Minute

// =============================================================================
// USAGE DEFAULTS
// =============================================================================

// DefaultMaxHistory bounds the in-memory usage history.
const DefaultMaxHistory = 1000

// DefaultUsageDBPath is the local usage snapshot database.
const DefaultUsageDBPath = "graphmeter-usage.db"
