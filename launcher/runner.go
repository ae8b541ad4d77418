package launcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/apepenkov/yalog"
	"github.com/jackc/pgx/v5/pgtype"
	"io"
	"launchman_backend/db"
	"launchman_backend/safeop"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

func UtcNow() time.Time {
	return time.Now().UTC()
}

type Signal int

// Signals a runner reacts to:
//
//	Stop     - take the application and its whole tree down. STOPPING -> STOPPED.
//	Launch   - start the application unless it is already up. LAUNCHING -> RUNNING.
//	Relaunch - stop the tree, then start again. STOPPING -> STOPPED -> LAUNCHING -> RUNNING.
//	Deleted  - stop everything and wipe the captures; the caller removes the session row.
//	Refresh  - re-read the session definition from the database and apply it.
const (
	Stop Signal = iota
	Launch
	Relaunch
	Deleted
	Refresh
)

func (s Signal) String() string {
	switch s {
	case Stop:
		return "Stop"
	case Launch:
		return "Launch"
	case Relaunch:
		return "Relaunch"
	case Deleted:
		return "Deleted"
	case Refresh:
		return "Refresh"
	default:
		return fmt.Sprintf("Unknown Signal (%d)", s)
	}
}

// Statuses the runner moves through besides the ones listed above:
// CRASHED means the application went down on its own and stays down,
// the *_WILL_RELAUNCH pair marks an exit or crash that is about to be
// retried, and UNKNOWN is the placeholder a fresh session starts with.

type SessionRunner struct {
	Manager *Manager
	Session *db.Session
	Logger  *yalog.Logger

	SignalIn chan Signal

	StdIn chan string

	status  db.SessionStatus
	capture *CaptureLog

	// currentPid is the pid of the running application, 0 otherwise. The
	// tree and cmdline endpoints read it from outside the Work goroutine.
	currentPid int32
	pidMu      sync.Mutex

	// stoppedByUser marks that the next exit was asked for, so the
	// classifier must not count it as a crash. Cleared after use.
	stoppedByUser bool
}

func NewSessionRunner(manager *Manager, session *db.Session) *SessionRunner {
	runner := &SessionRunner{
		Manager:  manager,
		Session:  session,
		SignalIn: make(chan Signal, 2),
		StdIn:    make(chan string, 2),
		status:   session.Status,
		Logger:   manager.Logger.NewLogger(fmt.Sprintf("ses-%d", session.ID)),
	}
	runner.capture = newCaptureLog(runner)
	return runner
}

func (sr *SessionRunner) SetStatus(status db.SessionStatus) error {
	sr.Logger.Debugf("Setting status to %s\n", status)
	err := sr.Manager.Queries.SetSessionStatus(context.Background(), db.SetSessionStatusParams{
		ID:     sr.Session.ID,
		Status: status,
	})
	if err != nil {
		sr.Logger.Errorf("Failed to set status %v: %v\n", status, err)
		return err
	}
	sr.Session.Status = status
	sr.status = status
	return nil
}

func (sr *SessionRunner) GetCmd() string {
	return sr.Session.ExecutablePath + " " + sr.Session.Arguments
}

func (sr *SessionRunner) setCurrentPid(pid int32) {
	sr.pidMu.Lock()
	defer sr.pidMu.Unlock()
	sr.currentPid = pid
}

// clearCurrentPid resets the pid, but only if it still belongs to the
// application that exited. A relaunch may already have installed a new one.
func (sr *SessionRunner) clearCurrentPid(pid int32) {
	sr.pidMu.Lock()
	defer sr.pidMu.Unlock()
	if sr.currentPid == pid {
		sr.currentPid = 0
	}
}

// CurrentPid returns the pid of the running application, or 0 when nothing
// is running.
func (sr *SessionRunner) CurrentPid() int32 {
	sr.pidMu.Lock()
	defer sr.pidMu.Unlock()
	return sr.currentPid
}

// notifyPhrase picks the notification text for an event and reports whether
// the session's configuration wants it sent at all.
func (sr *SessionRunner) notifyPhrase(eventType db.SessionEventType) (string, bool) {
	cfg := &sr.Session.Configuration
	switch eventType {
	case db.SessionEventTypeLAUNCH:
		return "has launched", cfg.GetNotifyOnLaunch()
	case db.SessionEventTypeEXIT:
		return "has exited", cfg.GetNotifyOnStop()
	case db.SessionEventTypeCRASH:
		return "has crashed", cfg.GetNotifyOnCrash()
	case db.SessionEventTypeFULLEXIT:
		return "has fully exited", cfg.GetNotifyOnStop()
	case db.SessionEventTypeFULLCRASH:
		return "has fully crashed", cfg.GetNotifyOnCrash()
	case db.SessionEventTypeMANUALLYSTOPPED:
		return "has been manually stopped", cfg.GetNotifyOnStop()
	case db.SessionEventTypeRELAUNCH:
		return "has been relaunched", cfg.GetNotifyOnRelaunch()
	}
	return "", false
}

func (sr *SessionRunner) notifyAsync(text string) {
	safeop.Go(sr.Logger, "event notification", func() {
		for _, r := range sr.Manager.Notifications.SendMessage(text) {
			if r.Success {
				continue
			}
			sr.Logger.Warningf("Failed to send notification: %v\n", r.Error)
		}
	})
}

// LogEvent records the event in the database and, when the session asks for
// it, pushes a notification. Notifications never block the runner.
func (sr *SessionRunner) LogEvent(eventType db.SessionEventType, extra []byte) error {
	if phrase, wanted := sr.notifyPhrase(eventType); wanted {
		sr.notifyAsync(fmt.Sprintf("Session %s %s", sr.Session.Name, phrase))
	}
	_, err := sr.Manager.Queries.InsertSessionEvent(context.Background(), db.InsertSessionEventParams{
		SessionID:      pgtype.Int4{Int32: sr.Session.ID, Valid: true},
		Event:          eventType,
		AdditionalInfo: extra,
	})
	if err != nil {
		sr.Logger.Errorf("Failed to record event %v: %v\n", eventType, err)
	}
	return err
}

// LaunchedApp bundles a started command with its stdin pipe and the last
// usage sample taken for it.
type LaunchedApp struct {
	Cmd       *exec.Cmd
	Stdin     io.WriteCloser
	LastUsage *UsageInfo
}

// stopTree takes the launched application down together with every process
// it spawned, children first. Returns false only if the application itself
// survived the kill. An application that already exited is left alone.
func (sr *SessionRunner) stopTree(app *LaunchedApp) bool {
	if app == nil || app.Cmd == nil || app.Cmd.Process == nil {
		return true
	}
	if app.Cmd.ProcessState != nil && app.Cmd.ProcessState.Exited() {
		return true
	}
	pid := app.Cmd.Process.Pid
	ok := sr.Manager.Tree.TerminateTree(int32(pid))
	_ = app.Cmd.Process.Release()

	extra, _ := json.Marshal(map[string]interface{}{"pid": pid})
	if ok {
		_ = sr.LogEvent(db.SessionEventTypeKILLED, extra)
	} else {
		_ = sr.LogEvent(db.SessionEventTypeKILLFAILED, extra)
	}
	return ok
}

// runnable rejects directories and, outside Windows, files without an
// execute bit. Windows has no such bit to check.
//
//goland:noinspection GoBoolExpressions
func runnable(info os.FileInfo) error {
	if info.IsDir() {
		return errors.New("source is a directory")
	}
	if runtime.GOOS != "windows" && info.Mode()&0111 == 0 {
		return errors.New("source is not executable")
	}
	return nil
}

// ResolvePath turns what the user typed into a runnable executable path.
// A path that stats directly is taken as is, anything else goes through
// PATH lookup.
func ResolvePath(source string) (string, error) {
	if info, err := os.Stat(source); err == nil {
		if err = runnable(info); err != nil {
			return "", err
		}
		return source, nil
	}
	fullPath, err := exec.LookPath(source)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return "", err
	}
	if err = runnable(info); err != nil {
		return "", err
	}
	return fullPath, nil
}

func (sr *SessionRunner) newLaunchedApp(executable string, argLine string, extraEnv map[string]string, workDir string) (*LaunchedApp, error) {
	resolved, err := ResolvePath(executable)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(resolved, strings.Fields(argLine)...)
	cmd.Env = os.Environ()
	cmd.Dir = workDir
	for k, v := range extraEnv {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	// StdoutPipe and StderrPipe cannot be flushed on demand, so the output
	// would not reach the capture file in real time. We hand the command our
	// own writers instead and manage their lifetime ourselves.

	if !sr.Session.Configuration.GetCaptureOutput() {
		cmd.Stdout = discard
		cmd.Stderr = discard
	} else {
		cmd.Stdout = sr.capture
		cmd.Stderr = sr.capture
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}

	return &LaunchedApp{
		Cmd:   cmd,
		Stdin: stdin,
	}, nil
}

func (sr *SessionRunner) RelaunchFrameSatisfied() bool {
	if sr.Session.Configuration.GetAutoRelaunchMaxRetriesFrame() == 0 {
		return true
	}

	events, err := sr.Manager.Queries.GetSessionEventsAfter(context.Background(), db.GetSessionEventsAfterParams{
		SessionID: pgtype.Int4{Int32: sr.Session.ID, Valid: true},
		CreatedAt: pgtype.Timestamp{
			Time:  UtcNow().Add(-(time.Second * time.Duration(sr.Session.Configuration.GetAutoRelaunchMaxRetriesFrame()))),
			Valid: true,
		},
	})
	if err != nil {
		sr.Logger.Errorf("Failed to get session events: %v\n", err)
		return false
	}

	exits := 0
	for _, event := range events {
		if event.Event == db.SessionEventTypeCRASH || event.Event == db.SessionEventTypeEXIT {
			exits++
		}
	}
	return exits < sr.Session.Configuration.GetAutoRelaunchMaxRetries()
}

func (sr *SessionRunner) RecordUsage(app *LaunchedApp) (bool, error) {
	if !sr.Session.Configuration.GetRecordUsage() {
		return false, nil
	}

	if app.LastUsage != nil {
		passed := UtcNow().Sub(app.LastUsage.When)
		if passed < sr.Manager.Config.UsageSampleInterval {
			return false, nil
		}
	}

	record, err := app.getUsageRecording()
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}

	// Truncated to three decimals.
	cpuPct := float64(int(record.CpuUsagePercent*1000)) / 1000

	_, err = sr.Manager.Queries.InsertSessionUsage(context.Background(), db.InsertSessionUsageParams{
		SessionID: pgtype.Int4{
			Int32: sr.Session.ID,
			Valid: true,
		},
		CpuUsage:           record.CpuUsage.Nanoseconds(),
		CpuUsagePercentage: cpuPct,
		MemoryUsage:        record.MemUsage,
	})

	return err == nil, err
}

// Work is the runner's main loop, meant to run in its own goroutine. It
// launches the application on request, reacts to signals, rotates capture
// files, samples usage and performs relaunches. Channel reads with a default
// branch plus a short sleep keep the loop responsive without spinning.
func (sr *SessionRunner) Work() {
	var app *LaunchedApp
	var launchErr error

	// Neither the tree nor the capture file may outlive the loop.
	defer func() {
		if app != nil {
			sr.stopTree(app)
		}
		if sr.capture != nil {
			_ = sr.capture.FinishCapture()
		}
	}()

	dropTree := func() {
		if app != nil {
			sr.stopTree(app)
		}
	}

	if sr.Session.Enabled {
		sr.SignalIn <- Launch
	}

	_ = sr.SetStatus(db.SessionStatusUNKNOWN)
	_ = sr.capture.cycle()

	for {
		select {
		case sig := <-sr.SignalIn:
			sr.Logger.Debugf("Received signal: %s\n", sig)
			switch sig {
			case Launch:
				if sr.status != db.SessionStatusRUNNING && sr.status != db.SessionStatusLAUNCHING {
					_ = sr.SetStatus(db.SessionStatusLAUNCHING)
					dropTree()
					app, launchErr = sr.launchSession(true)
					if launchErr != nil {
						sr.Logger.Errorf("Failed to launch application: %v\n", launchErr)
						_ = sr.SetStatus(db.SessionStatusCRASHED)
						continue
					}
					_ = sr.SetStatus(db.SessionStatusRUNNING)
				}

			case Stop, Deleted:
				if sig == Stop {
					_ = sr.SetStatus(db.SessionStatusSTOPPING)
				}

				if app != nil {
					sr.stopTree(app)
					app = nil
					sr.stoppedByUser = true
					sr.Manager.ClearActiveSession(sr.Session.ID)
				}

				if sig == Deleted {
					if err := sr.capture.FinishCaptureOnDelete(); err != nil {
						sr.Logger.Errorf("Error finishing capture: %v\n", err)
					}
					_ = os.RemoveAll(filepath.Join(sr.Manager.Config.CapturesFolder, fmt.Sprintf("%d", sr.Session.ID)))
					return
				} else {
					_ = sr.LogEvent(db.SessionEventTypeMANUALLYSTOPPED, nil)
					_ = sr.SetStatus(db.SessionStatusSTOPPED)
				}

			case Relaunch:
				_ = sr.SetStatus(db.SessionStatusSTOPPING)
				_ = sr.LogEvent(db.SessionEventTypeRELAUNCH, nil)
				sr.stoppedByUser = true
				dropTree()
				delay := sr.Session.Configuration.GetAutoRelaunchDelay()
				if delay > 0 {
					sr.Logger.Debugf("Sleeping for %s before relaunching\n", delay)
					time.Sleep(delay)
				}
				_ = sr.SetStatus(db.SessionStatusLAUNCHING)
				app, launchErr = sr.launchSession(false)
				if launchErr != nil {
					sr.Logger.Errorf("Failed to relaunch application: %v\n", launchErr)
					_ = sr.SetStatus(db.SessionStatusCRASHED)
					continue
				}
				_ = sr.SetStatus(db.SessionStatusRUNNING)

			case Refresh:
				sr.stoppedByUser = true
				session, err := sr.Manager.Queries.GetSession(context.Background(), sr.Session.ID)
				if err != nil {
					sr.Logger.Errorf("Failed to refresh session: %v\n", err)
					return
				}
				sr.Session = &session
				if sr.Session.Enabled {
					if err = sr.capture.cycle(); err != nil {
						sr.Logger.Errorf("Error cycling capture: %v\n", err)
					}
					sr.SignalIn <- Relaunch
				}
			}

		default:
			// Nothing signalled, do the periodic housekeeping. An exit
			// handler may have parked the session in a *_WILL_RELAUNCH
			// status, which is our cue to queue the relaunch.
			if sr.status == db.SessionStatusSTOPPEDWILLRELAUNCH || sr.status == db.SessionStatusCRASHEDWILLRELAUNCH {
				sr.Logger.Infoln("Auto-relaunch requested, queueing signal")
				sr.SignalIn <- Relaunch
			}

			if err := sr.capture.cycle(); err != nil {
				sr.Logger.Errorf("Error cycling capture: %v\n", err)
			}

			if app != nil && sr.status == db.SessionStatusRUNNING && sr.Session.Configuration.GetRecordUsage() {
				if _, err := sr.RecordUsage(app); err != nil {
					sr.Logger.Errorf("Error recording usage: %v\n", err)
				}
			}

			time.Sleep(100 * time.Millisecond)
		}
	}
}

func (sr *SessionRunner) launchSession(reportLaunch bool) (*LaunchedApp, error) {
	sr.stoppedByUser = false
	cmdStr, argsStr := sr.Session.ExecutablePath, sr.Session.Arguments
	app, err := sr.newLaunchedApp(cmdStr, argsStr, sr.Session.Environment, sr.Session.WorkingDirectory)
	if err != nil {
		return nil, err
	}

	if err = app.Cmd.Start(); err != nil {
		sr.stopTree(app)
		return nil, err
	}

	sr.setCurrentPid(int32(app.Cmd.Process.Pid))
	sr.Manager.SetActiveSession(sr.Session.ID)

	// Forward queued stdin lines to the application.
	go sr.handleStdIn(app.Stdin)

	if reportLaunch {
		_ = sr.LogEvent(db.SessionEventTypeLAUNCH, nil)
	}

	go sr.waitForExit(app)
	return app, nil
}

func (sr *SessionRunner) handleStdIn(stdin io.WriteCloser) {
	for input := range sr.StdIn {
		if _, err := stdin.Write([]byte(input + "\n")); err != nil {
			sr.Logger.Errorf("Error writing to stdin: %v\n", err)
			return
		}
	}
}

func (sr *SessionRunner) waitForExit(app *LaunchedApp) {
	pid := app.Cmd.Process.Pid
	err := app.Cmd.Wait()
	sr.clearCurrentPid(int32(pid))

	// A deliberate stop is already being handled by the signal branch.
	if sr.status == db.SessionStatusSTOPPING {
		sr.Logger.Debugln("Session is stopping, exit handler has nothing to do")
		return
	}

	userStop := sr.stoppedByUser
	sr.stoppedByUser = false

	sr.Logger.Debugln("Application exited, classifying the exit")
	_ = sr.capture.flush()
	sr.Manager.ClearActiveSession(sr.Session.ID)

	// settle writes the terminal status and the matching event. A clean
	// exit or a crash may be scheduled for relaunch when the configuration
	// allows it and the retry frame has room, everything else is final.
	settle := func(isStop bool, tryRelaunch bool) {
		if isStop {
			if tryRelaunch && sr.Session.Configuration.GetAutoRelaunchOnExit() && sr.RelaunchFrameSatisfied() {
				_ = sr.SetStatus(db.SessionStatusSTOPPEDWILLRELAUNCH)
				_ = sr.LogEvent(db.SessionEventTypeEXIT, nil)
			} else {
				_ = sr.SetStatus(db.SessionStatusSTOPPED)
				_ = sr.LogEvent(db.SessionEventTypeFULLEXIT, nil)
			}
			return
		}
		if tryRelaunch && sr.Session.Configuration.GetAutoRelaunchOnCrash() && sr.RelaunchFrameSatisfied() {
			_ = sr.SetStatus(db.SessionStatusCRASHEDWILLRELAUNCH)
			_ = sr.LogEvent(db.SessionEventTypeCRASH, nil)
		} else {
			_ = sr.SetStatus(db.SessionStatusCRASHED)
			_ = sr.LogEvent(db.SessionEventTypeFULLCRASH, nil)
		}
	}

	if userStop {
		sr.Logger.Debugln("Application was stopped by user")
		settle(true, false)
		return
	}

	if err == nil {
		settle(true, true)
		return
	}

	var exitErr *exec.ExitError
	var sysErr *os.SyscallError
	switch {
	case errors.As(err, &exitErr):
		// Non-zero exit code counts as a crash.
		sr.Logger.Errorf("Application crashed: %v\n", err)
		settle(false, true)
	case errors.As(err, &sysErr):
		// Wait tripping over a syscall usually means we took the
		// process down ourselves. Treat it as a stop.
		sr.Logger.Errorf("Application crashed (syscall): %v\n", err)
		settle(true, false)
	default:
		sr.Logger.Errorf("Application crashed (unknown error): %v\n", err)
		settle(false, true)
	}
}
