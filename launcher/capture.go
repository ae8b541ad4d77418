package launcher

import (
	"context"
	"errors"
	"fmt"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"launchman_backend/db"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CaptureLog stores the stdout/stderr of a launched application in
// time-sliced files under the captures folder, one row per file in the
// capture index.
type CaptureLog struct {
	runner    *SessionRunner
	current   *db.Capture
	file      *os.File
	lastFlush time.Time

	mu sync.Mutex
}

func newCaptureLog(runner *SessionRunner) *CaptureLog {
	return &CaptureLog{runner: runner}
}

// inTx runs fn inside a fresh transaction and commits when fn succeeds.
func (cl *CaptureLog) inTx(fn func(q *db.Queries) error) error {
	tx, queries, err := cl.runner.Manager.OpenTx(context.Background())
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := tx.Rollback(context.Background()); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			cl.runner.Logger.Errorf("Failed to rollback transaction: %v\n", err)
		}
	}()
	if err = fn(queries); err != nil {
		return err
	}
	if err = tx.Commit(context.Background()); err != nil {
		return err
	}
	committed = true
	return nil
}

// flush pushes buffered output to disk and remembers when it happened.
func (cl *CaptureLog) flush() error {
	if cl.file == nil {
		return nil
	}
	if err := cl.file.Sync(); err != nil {
		return err
	}
	cl.lastFlush = UtcNow()
	return nil
}

// closeFile flushes and closes the file. The index row is untouched.
func (cl *CaptureLog) closeFile() error {
	if cl.file == nil {
		return nil
	}
	if err := cl.flush(); err != nil {
		return err
	}
	if err := cl.file.Close(); err != nil {
		return err
	}
	cl.file = nil
	return nil
}

// startNew opens the next capture file and registers it in the index.
// The row insert and the file creation roll back together.
func (cl *CaptureLog) startNew() error {
	if cl.file != nil {
		if err := cl.closeFile(); err != nil {
			return err
		}
	}

	dir := filepath.Join(cl.runner.Manager.Config.CapturesFolder, fmt.Sprintf("%d", cl.runner.Session.ID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.capture", UtcNow().Unix()))

	return cl.inTx(func(q *db.Queries) error {
		row, err := q.NewSessionCapture(context.Background(), db.NewSessionCaptureParams{
			SessionID: pgtype.Int4{Int32: cl.runner.Session.ID, Valid: true},
			Path:      path,
		})
		if err != nil {
			return err
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		cl.current = &row
		cl.file = f
		cl.lastFlush = UtcNow()
		return nil
	})
}

// FinishCapture closes the file and stamps end_time on the index row.
// Neither the file nor the row are usable afterwards.
func (cl *CaptureLog) FinishCapture() error {
	if cl.file == nil {
		return nil
	}
	if err := cl.closeFile(); err != nil {
		return err
	}
	if cl.current == nil {
		return errors.New("no current capture to finish")
	}
	return cl.inTx(func(q *db.Queries) error {
		return q.SetCaptureEndTime(context.Background(), db.SetCaptureEndTimeParams{
			ID: cl.current.ID,
			EndTime: pgtype.Timestamp{
				Valid: true,
				Time:  UtcNow(),
			},
		})
	})
}

// FinishCaptureOnDelete closes the file and removes the whole capture
// folder of the session. The index rows go away with the session itself.
func (cl *CaptureLog) FinishCaptureOnDelete() error {
	if cl.current == nil {
		return nil
	}
	if cl.file != nil {
		if err := cl.closeFile(); err != nil {
			return err
		}
	}
	return os.RemoveAll(filepath.Dir(cl.current.Path))
}

// ensureCapture points the log at a usable capture file. The newest index
// row is reused while it is still within the timespan, anything older is
// closed in the index and replaced by a fresh file.
func (cl *CaptureLog) ensureCapture() error {
	var last *db.Capture
	stale := false

	err := cl.inTx(func(q *db.Queries) error {
		row, err := q.LastSessionCapture(context.Background(), pgtype.Int4{Int32: cl.runner.Session.ID, Valid: true})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		last = &row
		if row.StartTime.Time.Before(UtcNow().Add(-cl.runner.Manager.Config.CaptureTimespan)) {
			stale = true
			if !row.EndTime.Valid {
				return q.SetCaptureEndTime(context.Background(), db.SetCaptureEndTimeParams{
					ID: row.ID,
					EndTime: pgtype.Timestamp{
						Valid: true,
						Time:  UtcNow(),
					},
				})
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if last == nil || stale {
		return cl.startNew()
	}

	cl.current = last
	f, err := os.OpenFile(last.Path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		// A row whose file is gone cannot be resumed, start over.
		if errors.Is(err, os.ErrNotExist) {
			return cl.startNew()
		}
		return err
	}
	cl.file = f
	return nil
}

// expired reports whether the current capture has outlived the timespan.
func (cl *CaptureLog) expired() bool {
	if cl.current == nil {
		return false
	}
	return cl.current.StartTime.Time.Before(UtcNow().Add(-cl.runner.Manager.Config.CaptureTimespan))
}

// cycle is the periodic maintenance entry point. It attaches a capture on
// first use, rotates an expired one and flushes on the configured interval.
// Sessions that do not capture output leave it a no-op.
func (cl *CaptureLog) cycle() error {
	if !cl.runner.Session.Configuration.GetCaptureOutput() {
		return nil
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.current == nil {
		return cl.ensureCapture()
	}

	if cl.expired() {
		if err := cl.FinishCapture(); err != nil {
			return err
		}
		return cl.ensureCapture()
	}

	if UtcNow().After(cl.lastFlush.Add(cl.runner.Manager.Config.FlushInterval)) {
		return cl.flush()
	}
	return nil
}

func (cl *CaptureLog) Write(b []byte) (int, error) {
	if cl.file == nil {
		if err := cl.ensureCapture(); err != nil {
			return 0, err
		}
	}
	return cl.file.Write(b)
}

// Close is a no-op, file lifetime is managed by cycle and FinishCapture.
func (cl *CaptureLog) Close() error {
	return nil
}
