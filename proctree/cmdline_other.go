//go:build !windows

package proctree

import (
	"errors"

	"github.com/shirou/gopsutil/v3/process"
)

func rawCommandLine(pid int32) (string, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return "", nil
		}
		return "", err
	}
	return proc.Cmdline()
}
