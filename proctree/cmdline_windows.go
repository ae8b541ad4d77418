//go:build windows

package proctree

import (
	"fmt"

	"github.com/StackExchange/wmi"
)

type win32Process struct {
	ProcessId   uint32
	CommandLine *string
}

//goland:noinspection SqlResolve,SqlDialectInspection,SqlType
func rawCommandLine(pid int32) (string, error) {
	var procs []win32Process
	query := fmt.Sprintf("SELECT ProcessId, CommandLine FROM Win32_Process WHERE ProcessId = %d", pid)
	if err := wmi.Query(query, &procs); err != nil {
		return "", err
	}
	// CommandLine is NULL for some system processes; an unknown pid yields
	// no rows. Both come back as empty.
	if len(procs) == 0 || procs[0].CommandLine == nil {
		return "", nil
	}
	return *procs[0].CommandLine, nil
}
