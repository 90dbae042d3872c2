// Package usage - types.go defines the shared cost and throttle types.
//
// DESIGN: These types cross the client/usage boundary (the transport parses
// them, the monitor aggregates them). Defined here once to avoid duplication
// and circular imports.
package usage

import "time"

// ThrottleStatus is a snapshot of the API's token bucket, returned alongside
// every response. Immutable; replaced wholesale per response.
type ThrottleStatus struct {
	MaximumAvailable   float64 `json:"maximumAvailable"`
	CurrentlyAvailable float64 `json:"currentlyAvailable"`
	RestoreRate        float64 `json:"restoreRate"`
}

// UsedPercentage is the consumed share of the bucket, 0..100.
func (s ThrottleStatus) UsedPercentage() float64 {
	if s.MaximumAvailable <= 0 {
		return 0
	}
	return 100 * (s.MaximumAvailable - s.CurrentlyAvailable) / s.MaximumAvailable
}

// CostExtensions is the cost metadata attached to a successful response.
type CostExtensions struct {
	RequestedQueryCost float64        `json:"requestedQueryCost"`
	ActualQueryCost    float64        `json:"actualQueryCost"`
	ThrottleStatus     ThrottleStatus `json:"throttleStatus"`
}

// Record is one request outcome. Append-only: once recorded it is never
// mutated.
type Record struct {
	ID                 string         `json:"id"`
	Timestamp          time.Time      `json:"timestamp"`
	RequestedQueryCost float64        `json:"requested_query_cost"`
	ActualQueryCost    float64        `json:"actual_query_cost"`
	ThrottleStatus     ThrottleStatus `json:"throttle_status"`
	Endpoint           string         `json:"endpoint,omitempty"`
	Operation          string         `json:"operation,omitempty"`
	Success            bool           `json:"success"`
	Throttled          bool           `json:"throttled"`
}

// BucketStat aggregates cost over one time bucket.
type BucketStat struct {
	Start     time.Time `json:"start"`
	TotalCost float64   `json:"total_cost"`
	Requests  int       `json:"requests"`
}

// Summary is the read-only view consumed by dashboards.
type Summary struct {
	CurrentStatus         *ThrottleStatus `json:"current_status,omitempty"`
	UsagePercentage       float64         `json:"usage_percentage"`
	RecentRecords         []Record        `json:"recent_records"`
	HourlyUsage           []BucketStat    `json:"hourly_usage"`
	DailyUsage            []BucketStat    `json:"daily_usage"`
	ThrottledRequests     int             `json:"throttled_requests"`
	AverageCostPerRequest float64         `json:"average_cost_per_request"`
}
