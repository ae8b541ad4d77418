package launcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUsageDelta(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := &UsageInfo{TotalCpuUsage: 1 * time.Second, MemUsage: 1024, When: t0}
	next := &UsageInfo{TotalCpuUsage: 3 * time.Second, MemUsage: 2048, When: t0.Add(4 * time.Second)}

	record := usageDelta(prev, next, 2)

	assert.Equal(t, 2*time.Second, record.CpuUsage)
	// 2s of CPU time out of 8 available core-seconds.
	assert.InDelta(t, 25.0, record.CpuUsagePercent, 0.0001)
	assert.Equal(t, int64(2048), record.MemUsage)
	assert.Equal(t, 4*time.Second, record.Delta)
	assert.Equal(t, next.When, record.When)
}

func TestUsageDeltaZeroInterval(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := &UsageInfo{TotalCpuUsage: time.Second, When: t0}
	next := &UsageInfo{TotalCpuUsage: time.Second, When: t0}

	record := usageDelta(prev, next, 8)

	assert.Zero(t, record.CpuUsage)
	assert.Zero(t, record.CpuUsagePercent)
}
