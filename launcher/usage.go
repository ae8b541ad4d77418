package launcher

import (
	"errors"
	"github.com/shirou/gopsutil/v3/process"
	"runtime"
	"time"
)

type UsageInfo struct {
	// TotalCpuUsage is the CPU time consumed by the whole process tree.
	// MemUsage is the total resident memory of the tree in B.
	TotalCpuUsage time.Duration
	MemUsage      int64
	When          time.Time
}

func (la *LaunchedApp) getUsageInfo() (*UsageInfo, error) {
	if la.Cmd.ProcessState != nil && la.Cmd.ProcessState.Exited() || la.Cmd.Process == nil || la.Cmd.Process.Pid == 0 {
		return nil, errors.New("application has exited")
	}
	return treeUsage(int32(la.Cmd.Process.Pid))
}

// treeUsage sums CPU time and resident memory over pid and every live
// descendant. Applications are free to spawn helpers, so a single-process
// sample would undercount badly. Processes that exit mid-walk are skipped.
func treeUsage(pid int32) (*UsageInfo, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, err
	}
	info := &UsageInfo{When: UtcNow()}
	collectUsage(proc, info)
	return info, nil
}

func collectUsage(proc *process.Process, info *UsageInfo) {
	if times, err := proc.Times(); err == nil {
		info.TotalCpuUsage += time.Duration((times.User + times.System) * float64(time.Second))
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		info.MemUsage += int64(mem.RSS)
	}
	children, err := proc.Children()
	if err != nil {
		return
	}
	for _, child := range children {
		collectUsage(child, info)
	}
}

type UsageRecord struct {
	CpuUsage        time.Duration
	CpuUsagePercent float64
	MemUsage        int64
	When            time.Time
	Delta           time.Duration
}

// getUsageRecording turns two consecutive samples into a record.
// Due to the CPU time being recorded by delta, the first sample yields nothing.
func (la *LaunchedApp) getUsageRecording() (*UsageRecord, error) {
	var err error
	if la.LastUsage == nil {
		la.LastUsage, err = la.getUsageInfo()
		if err != nil {
			return nil, err
		}
		return nil, nil
	}

	newUsage, err := la.getUsageInfo()
	if err != nil {
		return nil, err
	}

	record := usageDelta(la.LastUsage, newUsage, runtime.NumCPU())
	la.LastUsage = newUsage
	return record, nil
}

// usageDelta computes the usage record for the interval between prev and next.
// The percentage is relative to the total CPU time available on numCPU cores
// over that interval.
func usageDelta(prev, next *UsageInfo, numCPU int) *UsageRecord {
	cpuUsageDelta := next.TotalCpuUsage - prev.TotalCpuUsage
	timeDelta := next.When.Sub(prev.When)

	totalCpuNano := time.Duration(numCPU) * timeDelta

	record := &UsageRecord{
		CpuUsage: cpuUsageDelta,
		MemUsage: next.MemUsage,
		When:     next.When,
		Delta:    timeDelta,
	}
	if totalCpuNano > 0 {
		record.CpuUsagePercent = (float64(cpuUsageDelta) / float64(totalCpuNano)) * 100.0
	}
	return record
}
