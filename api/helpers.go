package api

import (
	"compress/gzip"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ReqWrapper carries a single request through a handler: the raw
// request/writer pair, a short id for log correlation, and whether a
// response has been written yet.
type ReqWrapper struct {
	r   *http.Request
	w   http.ResponseWriter
	Srv *HttpServer
	// TODO: make the respond helpers bail out once responded is set.
	responded bool
	Id        string
}

func (rw *ReqWrapper) tag(format string) string {
	return "[" + rw.Id + "] " + format
}

func (rw *ReqWrapper) tagArgs(args []interface{}) []interface{} {
	return append([]interface{}{"[" + rw.Id + "]"}, args...)
}

func (rw *ReqWrapper) Debugf(format string, args ...interface{}) {
	rw.Srv.Logger.Debugf(rw.tag(format), args...)
}

func (rw *ReqWrapper) Infof(format string, args ...interface{}) {
	rw.Srv.Logger.Infof(rw.tag(format), args...)
}

func (rw *ReqWrapper) Errorf(format string, args ...interface{}) {
	rw.Srv.Logger.Errorf(rw.tag(format), args...)
}

func (rw *ReqWrapper) Debugln(args ...interface{}) {
	rw.Srv.Logger.Debugln(rw.tagArgs(args)...)
}

func (rw *ReqWrapper) Infoln(args ...interface{}) {
	rw.Srv.Logger.Infoln(rw.tagArgs(args)...)
}

func (rw *ReqWrapper) Errorln(args ...interface{}) {
	rw.Srv.Logger.Errorln(rw.tagArgs(args)...)
}

// pathId parses the {id} path segment. When it is missing or malformed the
// error response is written here and ok comes back false.
func (rw *ReqWrapper) pathId(r *http.Request) (int32, bool) {
	raw := r.PathValue("id")
	if raw == "" {
		rw.E(MessageCodeNoIdProvided, "No id provided", http.StatusBadRequest, "No id provided")
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		rw.E(MessageCodeInvalidId, "Invalid id", http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return int32(n), true
}

// timeWindow overrides the given defaults with the optional RFC3339
// from/to query parameters. A parse failure writes the error response.
func (rw *ReqWrapper) timeWindow(r *http.Request, from, to time.Time) (time.Time, time.Time, bool) {
	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			rw.E(MessageCodeInvalidTimeFrame, "Invalid time frame", http.StatusBadRequest, "Could not parse from time")
			return from, to, false
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			rw.E(MessageCodeInvalidTimeFrame, "Invalid time frame", http.StatusBadRequest, "Could not parse to time")
			return from, to, false
		}
	}
	return from, to, true
}

func randomString(length int) string {
	buf := make([]byte, (length+1)/2)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)[:length]
}

// MinForGzip is the smallest response body worth compressing.
const MinForGzip = 1024

func (rw *ReqWrapper) MarshalAndRespond(resp interface{}) {
	rw.MarshalAndRespondWithStatus(resp, http.StatusOK)
}

func (rw *ReqWrapper) MarshalAndRespondWithStatus(resp interface{}, status int) {
	body, err := json.Marshal(resp)
	if err != nil {
		http.Error(rw.w, "Error marshalling response", http.StatusInternalServerError)
		return
	}

	rw.w.Header().Set("Content-Type", "application/json")

	wantsGzip := strings.Contains(rw.r.Header.Get("Accept-Encoding"), "gzip")
	if !wantsGzip || len(body) <= MinForGzip {
		_ = rw.WriteHeader(status)
		_, _ = rw.w.Write(body)
		return
	}

	// Both headers have to be in place before anything hits the writer.
	rw.w.Header().Set("Content-Encoding", "gzip")
	_ = rw.WriteHeader(status)
	gz := gzip.NewWriter(rw.w)
	_, _ = gz.Write(body)
	_ = gz.Close()
}
