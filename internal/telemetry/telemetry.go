// Package telemetry collects in-memory query metrics: a ring buffer of
// recent query events, counters for drop reasons and degraded calls, and
// an LRU of recent query patterns. Operators read these through logs and
// the workspace_status surface; nothing is exported to an external
// system.
package telemetry

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryEvent records one pipeline run.
type QueryEvent struct {
	Time        time.Time     `json:"time"`
	WorkspaceID string        `json:"workspace_id"`
	QueryTerms  int           `json:"query_terms"`
	Latency     time.Duration `json:"latency"`
	Degraded    bool          `json:"degraded"`
	Kept        int           `json:"kept"`
	Dropped     int           `json:"dropped"`
}

// Snapshot is a point-in-time view of collected metrics.
type Snapshot struct {
	TotalQueries    int64            `json:"total_queries"`
	DegradedQueries int64            `json:"degraded_queries"`
	DropReasons     map[string]int64 `json:"drop_reasons"`
	RecentEvents    []QueryEvent     `json:"recent_events"`
}

const (
	defaultRingSize   = 256
	queryPatternCache = 1024
)

// Recorder accumulates events. Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	ring     []QueryEvent
	next     int
	filled   bool
	total    int64
	degraded int64
	reasons  map[string]int64
	patterns *lru.Cache[string, int]
}

// NewRecorder builds a recorder with the given ring size. Zero means the
// default.
func NewRecorder(ringSize int) *Recorder {
	if ringSize <= 0 {
		ringSize = defaultRingSize
	}
	patterns, _ := lru.New[string, int](queryPatternCache)
	return &Recorder{
		ring:     make([]QueryEvent, ringSize),
		reasons:  map[string]int64{},
		patterns: patterns,
	}
}

// RecordQuery appends an event to the ring.
func (r *Recorder) RecordQuery(ev QueryEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	r.ring[r.next] = ev
	r.next = (r.next + 1) % len(r.ring)
	if r.next == 0 {
		r.filled = true
	}
	r.total++
	if ev.Degraded {
		r.degraded++
	}
}

// RecordDrop bumps a drop-reason counter.
func (r *Recorder) RecordDrop(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons[reason]++
}

// RecordPattern counts a normalized query pattern. Normalization
// lowercases and collapses whitespace so near-duplicate queries group.
func (r *Recorder) RecordPattern(query string) {
	key := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	if key == "" {
		return
	}
	n, _ := r.patterns.Get(key)
	r.patterns.Add(key, n+1)
}

// Snapshot returns a copy of the current state, events oldest-first.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	var events []QueryEvent
	if r.filled {
		events = append(events, r.ring[r.next:]...)
		events = append(events, r.ring[:r.next]...)
	} else {
		events = append(events, r.ring[:r.next]...)
	}

	reasons := make(map[string]int64, len(r.reasons))
	for k, v := range r.reasons {
		reasons[k] = v
	}
	return Snapshot{
		TotalQueries:    r.total,
		DegradedQueries: r.degraded,
		DropReasons:     reasons,
		RecentEvents:    events,
	}
}
