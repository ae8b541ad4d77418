package proctree

import (
	"context"
	"errors"
)

// ErrProcessGone is returned by Inspector.Open when the requested pid does
// not name a live process. Callers treat it as success for kill purposes.
var ErrProcessGone = errors.New("process does not exist")

// Handle is an opened reference to a single process. Each handle is owned
// by exactly one caller and must be released with Close on every path.
type Handle interface {
	PID() int32
	Name() string

	// Running reports whether the process behind the handle is still alive.
	// A pid that was reused by a new process counts as not running.
	Running() bool

	// Terminate asks the process to exit. It does not wait.
	Terminate() error

	// Close releases the underlying OS handle. Closing twice is a no-op.
	Close() error
}

// Inspector is the view of the system process table.
type Inspector interface {
	// Open resolves pid to a handle. Returns ErrProcessGone if no such
	// process is alive.
	Open(pid int32) (Handle, error)

	// Children snapshots the direct children of ppid. Children that exit
	// between the snapshot and resolution are skipped. On error the
	// returned handles, if any, are the ones opened before the failure.
	Children(ppid int32) ([]Handle, error)

	// CommandLine fetches the full command line of pid. The query itself
	// runs off the calling goroutine; ctx cancels the wait for it.
	CommandLine(ctx context.Context, pid int32) (string, error)
}

// ForceKiller invokes the system kill utility. A non-zero exit of the
// utility is not an error; only failing to run it is.
type ForceKiller interface {
	KillByPID(pid int32) error
	KillByName(name string) error
}

// Notifier receives human-readable reports about kill failures.
type Notifier interface {
	Notify(text string)
}
