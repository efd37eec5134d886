package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecordUsageAccumulates(t *testing.T) {
	tr := New()
	tr.RecordUsage("p1", Usage{InputTokens: 100, OutputTokens: 50, Latency: time.Second})
	tr.RecordUsage("p1", Usage{InputTokens: 20, OutputTokens: 10, Latency: 500 * time.Millisecond})

	totals := tr.Totals("p1")
	assert.Equal(t, int64(2), totals.Calls)
	assert.Equal(t, int64(120), totals.InputTokens)
	assert.Equal(t, int64(60), totals.OutputTokens)
	assert.Equal(t, 1500*time.Millisecond, totals.TotalLatency)
}

func TestTotalsForUnknownProjectIsZero(t *testing.T) {
	tr := New()
	totals := tr.Totals("nope")
	assert.Equal(t, ProjectTotals{}, totals)
}

func TestCanProceedAlwaysTrue(t *testing.T) {
	tr := New()
	ok, reason := tr.CanProceed("p1")
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestProjectsAreIndependent(t *testing.T) {
	tr := New()
	tr.RecordUsage("p1", Usage{InputTokens: 10})
	tr.RecordUsage("p2", Usage{InputTokens: 99})

	assert.Equal(t, int64(10), tr.Totals("p1").InputTokens)
	assert.Equal(t, int64(99), tr.Totals("p2").InputTokens)
}
