package proctree

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apepenkov/yalog"

	"launchman_backend/safeop"
)

// DefaultKillTimeout is how long a process gets to exit after being asked
// to, before the force-kill utility is brought in.
const DefaultKillTimeout = 3000 * time.Millisecond

const defaultPollInterval = 100 * time.Millisecond

// Outcome describes how a single process was brought down.
type Outcome int

const (
	// OutcomeAlreadyGone: the process had exited before we signalled it.
	OutcomeAlreadyGone Outcome = iota
	// OutcomeTerminated: the process exited within the timeout.
	OutcomeTerminated
	// OutcomeFallback: the process did not go down on its own, but the
	// force-kill utility was issued for it.
	OutcomeFallback
	// OutcomeFailed: neither the signal nor the force-kill utility could
	// be delivered.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAlreadyGone:
		return "AlreadyGone"
	case OutcomeTerminated:
		return "Terminated"
	case OutcomeFallback:
		return "Fallback"
	case OutcomeFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown Outcome (%d)", int(o))
	}
}

// Ok reports whether the process can be considered dealt with. A fallback
// kill counts: the utility was issued and is not verified further.
func (o Outcome) Ok() bool {
	return o != OutcomeFailed
}

// Manager stops process trees and answers questions about them. All
// operations are safe to call concurrently, never panic and never return
// errors other than context cancellation on CommandLine.
type Manager struct {
	Inspector Inspector
	Killer    ForceKiller
	Logger    *yalog.Logger

	// Notifier, when set, is told about processes that survived both the
	// signal and the force kill. Delivery is asynchronous and best-effort.
	Notifier Notifier

	// KillTimeout applies per process, not per tree. Zero means
	// DefaultKillTimeout.
	KillTimeout time.Duration

	// PollInterval is how often a signalled process is checked for exit.
	PollInterval time.Duration
}

// NewManager wires a Manager against the real process table and kill
// utility of the host system.
func NewManager(logger *yalog.Logger) *Manager {
	return &Manager{
		Inspector:   systemInspector{},
		Killer:      newSystemKiller(),
		Logger:      logger,
		KillTimeout: DefaultKillTimeout,
	}
}

// Children snapshots the live direct children of ppid. A dead or unknown
// ppid yields an empty list, as does any enumeration failure; the failure
// is logged and handles opened before it are released.
func (m *Manager) Children(ppid int32) (kids []Handle) {
	defer func() {
		if r := recover(); r != nil {
			m.errorf("Listing children of %d panicked: %v\n", ppid, r)
			kids = nil
		}
	}()

	kids, err := m.Inspector.Children(ppid)
	if err != nil {
		for _, kid := range kids {
			_ = kid.Close()
		}
		m.warningf("Failed to list children of %d: %v\n", ppid, err)
		return nil
	}
	return kids
}

// TerminateTree stops pid and every process below it, children before
// parents. Sibling subtrees are stopped concurrently. A pid that is
// already gone is a success. Child failures are logged but only the kill
// of pid itself decides the result. TerminateTree never panics.
func (m *Manager) TerminateTree(pid int32) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.errorf("Terminating tree of %d panicked: %v\n", pid, r)
			ok = false
		}
	}()

	handle, err := m.Inspector.Open(pid)
	if err != nil {
		if errors.Is(err, ErrProcessGone) {
			m.debugf("Process %d is already gone\n", pid)
			return true
		}
		m.errorf("Failed to open process %d: %v\n", pid, err)
		return false
	}
	return m.terminateBranch(handle)
}

// terminateBranch takes ownership of handle and brings down its subtree.
func (m *Manager) terminateBranch(handle Handle) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.errorf("Terminating subtree of %d panicked: %v\n", handle.PID(), r)
			ok = false
		}
	}()

	children := m.Children(handle.PID())
	if len(children) > 0 {
		var wg sync.WaitGroup
		for _, child := range children {
			wg.Add(1)
			go func(child Handle) {
				defer wg.Done()
				pid, name := child.PID(), child.Name()
				if !m.terminateBranch(child) {
					m.warningf("Failed to stop subtree of %d (%s)\n", pid, name)
				}
			}(child)
		}
		wg.Wait()
	}

	return m.Kill(handle, m.KillTimeout).Ok()
}

// Kill asks the process behind handle to exit and waits up to timeout for
// it to do so. A process that is already gone is OutcomeAlreadyGone. If
// the signal cannot be delivered, the wait runs out, or anything panics,
// the force-kill fallback is invoked and its result returned. The handle
// is released exactly once no matter which path is taken; a release
// failure is logged and never changes the outcome.
func (m *Manager) Kill(handle Handle, timeout time.Duration) (out Outcome) {
	pid, name := handle.PID(), handle.Name()

	defer func() {
		if err := handle.Close(); err != nil {
			m.warningf("Failed to release handle of %d: %v\n", pid, err)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			m.errorf("Stopping %d (%s) panicked: %v\n", pid, name, r)
			out = m.fallback(name, pid)
		}
	}()

	if !handle.Running() {
		m.debugf("Process %d (%s) had already exited\n", pid, name)
		return OutcomeAlreadyGone
	}

	if err := handle.Terminate(); err != nil {
		m.warningf("Failed to signal %d (%s): %v\n", pid, name, err)
		return m.fallback(name, pid)
	}

	timeout = m.killTimeout(timeout)
	deadline := time.Now().Add(timeout)
	for {
		if !handle.Running() {
			m.debugf("Process %d (%s) exited\n", pid, name)
			return OutcomeTerminated
		}
		if !time.Now().Before(deadline) {
			break
		}
		time.Sleep(m.pollInterval())
	}

	m.warningf("Process %d (%s) did not exit within %v\n", pid, name, timeout)
	return m.fallback(name, pid)
}

func (m *Manager) fallback(name string, pid int32) Outcome {
	if m.FallbackKill(name, pid) {
		return OutcomeFallback
	}
	return OutcomeFailed
}

// FallbackKill force-kills by pid and by image name through the system
// kill utility. Whichever of the two inputs is usable is issued; both are
// when both apply. The result is not verified: true means the invocations
// went out, false means one of them could not be run at all, or neither
// input was usable.
func (m *Manager) FallbackKill(name string, pid int32) (issued bool) {
	defer func() {
		if r := recover(); r != nil {
			m.errorf("Force kill of %s (pid %d) panicked: %v\n", name, pid, r)
			issued = false
		}
	}()

	if pid > 0 {
		if err := m.Killer.KillByPID(pid); err != nil {
			m.errorf("Force kill by pid %d failed: %v\n", pid, err)
			m.notify(fmt.Sprintf("Failed to force kill pid %d (%s)", pid, name))
			return false
		}
		issued = true
	}
	if name != "" {
		if err := m.Killer.KillByName(name); err != nil {
			m.errorf("Force kill by name %s failed: %v\n", name, err)
			m.notify(fmt.Sprintf("Failed to force kill %s (pid %d)", name, pid))
			return false
		}
		issued = true
	}
	if !issued {
		m.debugf("Nothing to force kill: no pid and no name\n")
	}
	return issued
}

// CommandLine returns the full command line of pid. Cancellation of ctx is
// the only error it ever returns; any OS-level failure is logged and comes
// back as an empty string, as does an unknown pid.
func (m *Manager) CommandLine(ctx context.Context, pid int32) (line string, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.errorf("Command line query for %d panicked: %v\n", pid, r)
			line, err = "", nil
		}
	}()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	line, queryErr := m.Inspector.CommandLine(ctx, pid)
	if queryErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		m.warningf("Failed to query command line of %d: %v\n", pid, queryErr)
		return "", nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	return line, nil
}

func (m *Manager) killTimeout(timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	if m.KillTimeout > 0 {
		return m.KillTimeout
	}
	return DefaultKillTimeout
}

func (m *Manager) pollInterval() time.Duration {
	if m.PollInterval > 0 {
		return m.PollInterval
	}
	return defaultPollInterval
}

func (m *Manager) notify(text string) {
	if m.Notifier == nil {
		return
	}
	notifier := m.Notifier
	safeop.Go(m.Logger, "kill notification", func() {
		notifier.Notify(text)
	})
}

func (m *Manager) debugf(format string, args ...interface{}) {
	if m.Logger != nil {
		m.Logger.Debugf(format, args...)
	}
}

func (m *Manager) warningf(format string, args ...interface{}) {
	if m.Logger != nil {
		m.Logger.Warningf(format, args...)
	}
}

func (m *Manager) errorf(format string, args ...interface{}) {
	if m.Logger != nil {
		m.Logger.Errorf(format, args...)
	}
}
