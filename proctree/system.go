package proctree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// systemInspector reads the real process table.
type systemInspector struct{}

func (systemInspector) Open(pid int32) (Handle, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil, ErrProcessGone
		}
		return nil, err
	}
	return newSystemHandle(proc), nil
}

func (systemInspector) Children(ppid int32) ([]Handle, error) {
	parent, err := process.NewProcess(ppid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil, nil
		}
		return nil, err
	}
	procs, err := parent.Children()
	if err != nil {
		if noProcessesMatched(err) {
			return nil, nil
		}
		return nil, err
	}
	handles := make([]Handle, 0, len(procs))
	for _, proc := range procs {
		handles = append(handles, newSystemHandle(proc))
	}
	return handles, nil
}

func (systemInspector) CommandLine(ctx context.Context, pid int32) (string, error) {
	type reply struct {
		line string
		err  error
	}
	// Buffered so the query goroutine can finish after a cancelled wait.
	ch := make(chan reply, 1)
	go func() {
		line, err := rawCommandLine(pid)
		ch <- reply{line: line, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		return r.line, r.err
	}
}

// noProcessesMatched detects pgrep exiting with 1, which means the process
// simply has no children.
func noProcessesMatched(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == 1
}

type systemHandle struct {
	proc   *process.Process
	osProc *os.Process
	name   string

	mu     sync.Mutex
	closed bool
}

func newSystemHandle(proc *process.Process) *systemHandle {
	name, _ := proc.Name()
	// FindProcess can fail for processes we lack rights to; the handle
	// then works through the process table alone and Close is a no-op.
	osProc, err := os.FindProcess(int(proc.Pid))
	if err != nil {
		osProc = nil
	}
	return &systemHandle{proc: proc, osProc: osProc, name: name}
}

func (h *systemHandle) PID() int32 {
	return h.proc.Pid
}

func (h *systemHandle) Name() string {
	return h.name
}

func (h *systemHandle) Running() bool {
	running, err := h.proc.IsRunning()
	if err != nil {
		// Unknown state counts as running.
		return true
	}
	return running
}

func (h *systemHandle) Terminate() error {
	return h.proc.Terminate()
}

func (h *systemHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if h.osProc != nil {
		return h.osProc.Release()
	}
	return nil
}

// systemKiller shells out to the platform kill utility.
type systemKiller struct {
	wait time.Duration
}

func newSystemKiller() *systemKiller {
	return &systemKiller{wait: DefaultKillTimeout}
}

func (k *systemKiller) KillByPID(pid int32) error {
	return k.killByPID(pid)
}

func (k *systemKiller) KillByName(name string) error {
	return k.killByName(name)
}

// run invokes a kill utility and waits for it to finish. A non-zero exit
// means the target was not there to kill, which is not a failure here.
func (k *systemKiller) run(name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), k.wait)
	defer cancel()
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return nil
		}
		return fmt.Errorf("%s %s: %w (%s)", name, strings.Join(args, " "), err, bytes.TrimSpace(out))
	}
	return nil
}
