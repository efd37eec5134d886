// Package telemetry accumulates lightweight cost and latency counters for
// LLM calls, one accumulator per project.
package telemetry

import (
	"sync"
	"time"
)

// Usage is one recorded LLM call's token and latency cost.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	Latency      time.Duration
}

// ProjectTotals is the accumulated usage for a single project.
type ProjectTotals struct {
	Calls        int64
	InputTokens  int64
	OutputTokens int64
	TotalLatency time.Duration
}

// Tracker records per-project LLM usage. CanProceed always permits
// further calls — ralph has no budget enforcement, only observability.
type Tracker struct {
	mu       sync.Mutex
	projects map[string]*ProjectTotals
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{projects: make(map[string]*ProjectTotals)}
}

// RecordUsage accumulates u against project.
func (t *Tracker) RecordUsage(project string, u Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	totals, ok := t.projects[project]
	if !ok {
		totals = &ProjectTotals{}
		t.projects[project] = totals
	}
	totals.Calls++
	totals.InputTokens += u.InputTokens
	totals.OutputTokens += u.OutputTokens
	totals.TotalLatency += u.Latency
}

// CanProceed always returns true: ralph tracks cost for observability only,
// it never blocks a call on budget.
func (t *Tracker) CanProceed(project string) (bool, string) {
	return true, ""
}

// Totals returns a snapshot of the accumulated usage for project, or the
// zero value if nothing has been recorded yet.
func (t *Tracker) Totals(project string) ProjectTotals {
	t.mu.Lock()
	defer t.mu.Unlock()

	if totals, ok := t.projects[project]; ok {
		return *totals
	}
	return ProjectTotals{}
}
