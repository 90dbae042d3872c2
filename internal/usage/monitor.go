// Package usage - monitor.go tracks observed rate-limit headroom and a
// bounded history of request outcomes.
package usage

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxHistory bounds the in-memory record history.
const DefaultMaxHistory = 1000

// recentWindow is how many records Summary returns verbatim.
const recentWindow = 10

// Monitor accumulates request outcomes. Insertion evicts the oldest record
// once the history bound is exceeded. Safe for concurrent use.
type Monitor struct {
	mu            sync.RWMutex
	records       []Record
	maxHistory    int
	currentStatus *ThrottleStatus
	throttled     int
}

// NewMonitor creates a monitor bounded to maxHistory records; non-positive
// means DefaultMaxHistory.
func NewMonitor(maxHistory int) *Monitor {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Monitor{maxHistory: maxHistory}
}

// Record appends the outcome of a completed request. Only successful
// outcomes move the current throttle status.
func (m *Monitor) Record(cost CostExtensions, endpoint, operation string, success, throttled bool) {
	rec := Record{
		ID:                 uuid.New().String(),
		Timestamp:          time.Now(),
		RequestedQueryCost: cost.RequestedQueryCost,
		ActualQueryCost:    cost.ActualQueryCost,
		ThrottleStatus:     cost.ThrottleStatus,
		Endpoint:           endpoint,
		Operation:          operation,
		Success:            success,
		Throttled:          throttled,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.append(rec)
	if success {
		status := cost.ThrottleStatus
		m.currentStatus = &status
	}
	if throttled {
		m.throttled++
	}
}

// RecordThrottled appends a throttled outcome. The last known status is
// carried on the record for context but does not replace the current one.
func (m *Monitor) RecordThrottled(lastKnown *ThrottleStatus, endpoint, operation string) {
	rec := Record{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Endpoint:  endpoint,
		Operation: operation,
		Throttled: true,
	}
	if lastKnown != nil {
		rec.ThrottleStatus = *lastKnown
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.append(rec)
	m.throttled++
}

func (m *Monitor) append(rec Record) {
	m.records = append(m.records, rec)
	if over := len(m.records) - m.maxHistory; over > 0 {
		m.records = append(m.records[:0:0], m.records[over:]...)
	}
}

// CurrentStatus returns the throttle status of the most recent successful
// response, or nil if none has been observed.
func (m *Monitor) CurrentStatus() *ThrottleStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.currentStatus == nil {
		return nil
	}
	status := *m.currentStatus
	return &status
}

// Len returns the stored history length.
func (m *Monitor) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Snapshot copies the full stored history, oldest first.
func (m *Monitor) Snapshot() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Restore replaces the history with a previously saved snapshot, keeping
// only the newest maxHistory records.
func (m *Monitor) Restore(records []Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if over := len(records) - m.maxHistory; over > 0 {
		records = records[over:]
	}
	m.records = append([]Record(nil), records...)
	m.throttled = 0
	m.currentStatus = nil
	for _, r := range m.records {
		if r.Throttled {
			m.throttled++
		}
		if r.Success {
			status := r.ThrottleStatus
			m.currentStatus = &status
		}
	}
}

// Summary aggregates the stored history for operational display.
func (m *Monitor) Summary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Summary{
		ThrottledRequests: m.throttled,
		HourlyUsage:       bucketize(m.records, time.Hour),
		DailyUsage:        bucketize(m.records, 24*time.Hour),
	}

	if m.currentStatus != nil {
		status := *m.currentStatus
		s.CurrentStatus = &status
		s.UsagePercentage = status.UsedPercentage()
	}

	start := len(m.records) - recentWindow
	if start < 0 {
		start = 0
	}
	s.RecentRecords = append([]Record(nil), m.records[start:]...)

	var total float64
	for _, r := range m.records {
		total += r.ActualQueryCost
	}
	if n := len(m.records); n > 0 {
		s.AverageCostPerRequest = total / float64(n)
	}

	return s
}

// bucketize groups records by truncating their timestamp to the bucket
// boundary, summing actual cost and counting occurrences, in chronological
// order.
func bucketize(records []Record, size time.Duration) []BucketStat {
	byStart := make(map[time.Time]*BucketStat)
	for _, r := range records {
		start := r.Timestamp.Truncate(size)
		b, ok := byStart[start]
		if !ok {
			b = &BucketStat{Start: start}
			byStart[start] = b
		}
		b.TotalCost += r.ActualQueryCost
		b.Requests++
	}

	out := make([]BucketStat, 0, len(byStart))
	for _, b := range byStart {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
