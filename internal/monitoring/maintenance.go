package monitoring

import (
	"sort"
	"sync"
	"time"

	"github.com/charlesng35/launchpad/pkg/metrics"
)

// JobSummary is the recorded history of one background job.
type JobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	LastSuccessAt       time.Time     `json:"last_success_at"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	TotalRuns           uint64        `json:"total_runs"`
}

// JobTracker records background job runs for health checks and metrics.
type JobTracker struct {
	mu   sync.Mutex
	jobs map[string]*JobSummary
	now  func() time.Time
}

// NewJobTracker returns an empty tracker.
func NewJobTracker() *JobTracker {
	return &JobTracker{jobs: make(map[string]*JobSummary), now: time.Now}
}

// Register makes job visible before its first run so a job that never runs is reported.
func (t *JobTracker) Register(job string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.jobs[job]; !ok {
		t.jobs[job] = &JobSummary{Job: job}
	}
}

// Record stores the outcome of one run of job.
func (t *JobTracker) Record(job string, err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.MaintenanceRuns.WithLabelValues(job, result).Inc()
	metrics.MaintenanceDuration.WithLabelValues(job).Observe(duration.Seconds())

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.jobs[job]
	if !ok {
		entry = &JobSummary{Job: job}
		t.jobs[job] = entry
	}

	now := t.now()
	entry.TotalRuns++
	entry.LastRunAt = now
	entry.LastDuration = duration
	entry.LastStatus = result
	if err != nil {
		entry.LastError = err.Error()
		entry.ConsecutiveFailures++
		return
	}
	entry.LastError = ""
	entry.LastSuccessAt = now
	entry.ConsecutiveFailures = 0
}

// Snapshot returns a copy of every job summary, ordered by job name.
func (t *JobTracker) Snapshot() []JobSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]JobSummary, 0, len(t.jobs))
	for _, entry := range t.jobs {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}
