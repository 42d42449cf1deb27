// Package heartbeat maintains the externally visible liveness record. The
// recorder updates it on every step and cycle; a separate health CLI reads
// the file at any instant.
package heartbeat

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"lifeos/internal/clock"
	"lifeos/internal/state"
)

// Ring capacities. Property: |hourly_log| <= 24 after any sequence of
// updates.
const (
	MaxHourlyBuckets = 24
	MaxRecentActions = 20
)

// Status of the engine as visible from outside.
type Status string

const (
	StatusRunning Status = "running"
	StatusStalled Status = "stalled"
	StatusStopped Status = "stopped"
	StatusNoData  Status = "no_data"
)

// HourlyBucket aggregates one hour of activity.
type HourlyBucket struct {
	Hour      string `json:"hour"` // "2026-08-31T14"
	Beats     int    `json:"beats"`
	WorkItems int    `json:"work_items"`
	Errors    int    `json:"errors"`
}

// RecentAction is a short human-readable record of recent engine work.
type RecentAction struct {
	At          time.Time `json:"at"`
	Description string    `json:"description"`
}

// Heartbeat is the persisted liveness document.
type Heartbeat struct {
	Status        Status         `json:"status"`
	LastBeat      time.Time      `json:"last_beat"`
	LastWork      time.Time      `json:"last_work,omitzero"`
	UptimeStarted time.Time      `json:"uptime_started"`
	TotalWork     int            `json:"total_work"`
	TotalErrors   int            `json:"total_errors"`
	Restarts      int            `json:"restarts"`
	RecentActions []RecentAction `json:"recent_actions,omitempty"`
	HourlyLog     []HourlyBucket `json:"hourly_log,omitempty"`
}

// Recorder owns the heartbeat document and its file. Writes are small and
// frequent (after every step).
type Recorder struct {
	mu     sync.Mutex
	path   string
	clk    clock.Clock
	logger *zap.Logger
	hb     Heartbeat
}

// NewRecorder loads any existing heartbeat file (counting a restart) and
// returns a recorder over it.
func NewRecorder(path string, clk clock.Clock, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{path: path, clk: clk, logger: logger.Named("heartbeat")}

	now := clk.Now()
	if prev, err := Read(path); err == nil {
		r.hb = *prev
		r.hb.Restarts++
	}
	r.hb.Status = StatusRunning
	r.hb.UptimeStarted = now
	r.hb.LastBeat = now
	return r
}

// Beat records a liveness beat and flushes the file.
func (r *Recorder) Beat() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clk.Now()
	r.hb.LastBeat = now
	r.bucketFor(now).Beats++
	r.flushLocked()
}

// Work records a completed unit of work (a successful cycle).
func (r *Recorder) Work(description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clk.Now()
	r.hb.LastBeat = now
	r.hb.LastWork = now
	r.hb.TotalWork++
	r.bucketFor(now).WorkItems++

	r.hb.RecentActions = append([]RecentAction{{At: now, Description: description}}, r.hb.RecentActions...)
	if len(r.hb.RecentActions) > MaxRecentActions {
		r.hb.RecentActions = r.hb.RecentActions[:MaxRecentActions]
	}
	r.flushLocked()
}

// Error records a failed cycle.
func (r *Recorder) Error() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clk.Now()
	r.hb.LastBeat = now
	r.hb.TotalErrors++
	r.bucketFor(now).Errors++
	r.flushLocked()
}

// Stop marks the engine stopped and flushes.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hb.Status = StatusStopped
	r.flushLocked()
}

// Snapshot returns a copy of the current document.
func (r *Recorder) Snapshot() Heartbeat {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hb
}

// bucketFor returns the bucket for the given hour, creating it and rotating
// the log to exactly MaxHourlyBuckets entries when needed.
func (r *Recorder) bucketFor(now time.Time) *HourlyBucket {
	hour := now.Format("2006-01-02T15")
	for i := range r.hb.HourlyLog {
		if r.hb.HourlyLog[i].Hour == hour {
			return &r.hb.HourlyLog[i]
		}
	}
	r.hb.HourlyLog = append(r.hb.HourlyLog, HourlyBucket{Hour: hour})
	if len(r.hb.HourlyLog) > MaxHourlyBuckets {
		r.hb.HourlyLog = r.hb.HourlyLog[len(r.hb.HourlyLog)-MaxHourlyBuckets:]
	}
	return &r.hb.HourlyLog[len(r.hb.HourlyLog)-1]
}

func (r *Recorder) flushLocked() {
	data, err := json.MarshalIndent(&r.hb, "", "  ")
	if err != nil {
		r.logger.Warn("marshal heartbeat", zap.Error(err))
		return
	}
	if err := state.AtomicWrite(r.path, data); err != nil {
		r.logger.Warn("write heartbeat", zap.Error(err))
	}
}

// Read loads a heartbeat file. Used by the health CLI.
func Read(path string) (*Heartbeat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var hb Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return nil, fmt.Errorf("parse heartbeat: %w", err)
	}
	return &hb, nil
}

// DeriveStatus maps last-beat age onto the externally visible status:
// running flips to stalled once the age exceeds twice the step deadline.
func DeriveStatus(hb *Heartbeat, now time.Time, stepTimeout time.Duration) Status {
	if hb == nil {
		return StatusNoData
	}
	if hb.Status == StatusStopped {
		return StatusStopped
	}
	if now.Sub(hb.LastBeat) > 2*stepTimeout {
		return StatusStalled
	}
	return StatusRunning
}
