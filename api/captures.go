package api

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"fmt"
	"github.com/jackc/pgx/v5/pgtype"
	"io"
	"launchman_backend/db"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const WriteRepeatedThreshold = 20

// flushRun writes out a completed run of identical lines. A run longer
// than WriteRepeatedThreshold collapses into a marker, and at the end of
// input the marker stands in for the whole run.
func flushRun(w *bufio.Writer, line string, count int, atEOF bool) (int64, error) {
	if count > WriteRepeatedThreshold {
		out := fmt.Sprintf("%s\n{Last line repeated %d times}\n", line, count)
		if atEOF {
			out = fmt.Sprintf("{Last line repeated %d times}\n", count)
		}
		n, err := w.WriteString(out)
		return int64(n), err
	}
	var written int64
	for i := 0; i < count; i++ {
		n, err := w.WriteString(line + "\n")
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// copyAndMarkRepeatedLines pipes a capture from src to dst, collapsing
// long runs of identical lines. Empty input still renders as one newline.
func copyAndMarkRepeatedLines(dst io.Writer, src io.Reader) (int64, error) {
	reader := bufio.NewReader(src)
	writer := bufio.NewWriter(dst)

	var written int64
	var run, line string
	count := 0

	for {
		chunk, isPrefix, err := reader.ReadLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, err
		}
		line += string(chunk)
		if isPrefix {
			continue
		}
		switch {
		case count == 0:
			run, count = line, 1
		case line == run:
			count++
		default:
			n, err := flushRun(writer, run, count, false)
			written += n
			if err != nil {
				return written, err
			}
			run, count = line, 1
		}
		line = ""
	}

	if count == 0 {
		count = 1
	}
	n, err := flushRun(writer, run, count, true)
	written += n
	if err != nil {
		return written, err
	}
	if err := writer.Flush(); err != nil {
		return written, err
	}
	return written, nil
}

type CapturePiece struct {
	From    int64  `json:"from"`
	To      int64  `json:"to"`
	Text    string `json:"text"`
	Missing bool   `json:"missing"`
}

type CapturesResponse struct {
	Captures []CapturePiece `json:"captures"`
}

// capturesInWindow lists the capture index rows of a session overlapping
// the given window.
func (srv *HttpServer) capturesInWindow(ctx context.Context, id int32, from, to time.Time) ([]db.Capture, error) {
	return srv.Manager.Queries.GetCapturesFromTo(ctx, db.GetCapturesFromToParams{
		SessionID: pgtype.Int4{Int32: id, Valid: true},
		StartTime: pgtype.Timestamp{Time: from.UTC(), Valid: true},
		EndTime:   pgtype.Timestamp{Time: to.UTC(), Valid: true},
	})
}

// renderCapture loads one capture file into a response piece. A file that
// cannot be read back only marks the piece missing, the row still shows.
func renderCapture(c db.Capture) CapturePiece {
	piece := CapturePiece{From: c.StartTime.Time.Unix()}
	if c.EndTime.Valid {
		piece.To = c.EndTime.Time.Unix()
	}

	f, err := os.Open(c.Path)
	if err != nil {
		piece.Missing = true
		return piece
	}
	text := new(bytes.Buffer)
	if _, err = copyAndMarkRepeatedLines(text, f); err != nil {
		piece.Missing = true
	}
	_ = f.Close()

	piece.Text = text.String()
	// an empty capture collapses to a lone newline
	if len(piece.Text) == 1 {
		piece.Text = ""
	}
	return piece
}

func (srv *HttpServer) GetSessionCaptures(w http.ResponseWriter, r *http.Request) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)

	id, ok := rw.pathId(r)
	if !ok {
		return
	}
	if _, ok = srv.fetchSession(rw, r, id); !ok {
		return
	}
	from, to, ok := rw.timeWindow(r, time.Now().UTC().Add(-24*time.Hour), time.Now().UTC())
	if !ok {
		return
	}

	captures, err := srv.capturesInWindow(r.Context(), id, from, to)
	if err != nil {
		rw.E(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, err.Error())
		return
	}

	res := CapturesResponse{Captures: make([]CapturePiece, len(captures))}
	for i, capture := range captures {
		res.Captures[i] = renderCapture(capture)
	}
	rw.MarshalAndRespond(res)
}

type StdInRequest struct {
	Text string `json:"text"`
}

func (s *StdInRequest) Validate(ctx context.Context, srv *HttpServer) *Error {
	if s.Text == "" {
		return MakeE(MessageCodeTextRequired, "Text required", http.StatusBadRequest, "")
	}
	return nil
}

func (srv *HttpServer) PostStdin(w http.ResponseWriter, r *http.Request) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)
	req := r.Context().Value(ContextKeyUnmarshalledJson).(*StdInRequest)

	id, ok := rw.pathId(r)
	if !ok {
		return
	}
	session, ok := srv.fetchSession(rw, r, id)
	if !ok {
		return
	}
	if !session.Enabled || session.Status != db.SessionStatusRUNNING {
		rw.E(MessageCodeSessionNotRunning, "session is not running", http.StatusBadRequest, "")
		return
	}
	runner, ok := srv.liveRunner(rw, id)
	if !ok {
		return
	}

	runner.StdIn <- req.Text
	_ = rw.WriteHeader(http.StatusAccepted)
}

// addCaptureToZip copies one collapsed capture file into the archive. A
// file deleted from under us is skipped so the rest still export.
func (srv *HttpServer) addCaptureToZip(zw *zip.Writer, capture db.Capture) error {
	f, err := os.Open(capture.Path)
	if err != nil {
		if os.IsNotExist(err) {
			srv.Logger.Warningf("Capture file %s does not exist\n", capture.Path)
			return nil
		}
		return err
	}
	defer f.Close()

	entry, err := zw.Create(filepath.Base(capture.Path))
	if err != nil {
		return err
	}
	_, err = copyAndMarkRepeatedLines(entry, f)
	return err
}

func (srv *HttpServer) ExportCapturesAsZip(w http.ResponseWriter, r *http.Request) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)

	id, ok := rw.pathId(r)
	if !ok {
		return
	}
	if _, ok = srv.fetchSession(rw, r, id); !ok {
		return
	}
	from, to, ok := rw.timeWindow(r, time.Now().UTC().Add(-24*time.Hour), time.Now().UTC())
	if !ok {
		return
	}

	captures, err := srv.capturesInWindow(r.Context(), id, from, to)
	if err != nil {
		rw.E(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, err.Error())
		return
	}

	archive, err := os.CreateTemp("", "captures-*.zip")
	if err != nil {
		rw.E(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, err.Error())
		return
	}
	defer func() {
		_ = archive.Close()
		_ = os.Remove(archive.Name())
	}()

	zw := zip.NewWriter(archive)
	for _, capture := range captures {
		if err = srv.addCaptureToZip(zw, capture); err != nil {
			_ = zw.Close()
			rw.E(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, err.Error())
			return
		}
	}
	if err = zw.Close(); err != nil {
		rw.E(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, err.Error())
		return
	}

	if _, err = archive.Seek(0, 0); err != nil {
		rw.E(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename=captures.zip")
	w.Header().Set("Content-Type", "application/zip")
	if _, err = io.Copy(w, archive); err != nil {
		rw.E(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, err.Error())
		return
	}
}
