package api

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/apepenkov/yalog"
	"github.com/stretchr/testify/assert"
)

func testWrapper(srv *HttpServer, acceptEncoding string) (*ReqWrapper, *httptest.ResponseRecorder) {
	req := httptest.NewRequest("GET", "/sessions", nil)
	if acceptEncoding != "" {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}
	rec := httptest.NewRecorder()
	return &ReqWrapper{
		r:   req,
		w:   rec,
		Srv: srv,
		Id:  "deadbeef",
	}, rec
}

func TestRandomString(t *testing.T) {
	for _, length := range []int{1, 7, 8, 31} {
		s := randomString(length)
		assert.Len(t, s, length)
		for _, c := range s {
			assert.Contains(t, "0123456789abcdef", string(c))
		}
	}
}

func TestMarshalAndRespondSmallStaysPlain(t *testing.T) {
	srv := &HttpServer{Logger: yalog.NewLogger("test")}
	rw, rec := testWrapper(srv, "gzip")

	rw.MarshalAndRespond(map[string]string{"data": "x"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data": "x"}`, rec.Body.String())
}

func TestMarshalAndRespondLargeGetsGzipped(t *testing.T) {
	srv := &HttpServer{Logger: yalog.NewLogger("test")}
	rw, rec := testWrapper(srv, "gzip")

	payload := map[string]string{"data": strings.Repeat("x", MinForGzip*2)}
	rw.MarshalAndRespond(payload)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	gz, err := gzip.NewReader(rec.Body)
	assert.NoError(t, err)
	body, err := io.ReadAll(gz)
	assert.NoError(t, err)

	var decoded map[string]string
	assert.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestMarshalAndRespondLargeWithoutAcceptStaysPlain(t *testing.T) {
	srv := &HttpServer{Logger: yalog.NewLogger("test")}
	rw, rec := testWrapper(srv, "")

	rw.MarshalAndRespond(map[string]string{"data": strings.Repeat("x", MinForGzip*2)})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
}

func TestWriteHeaderRespondsOnce(t *testing.T) {
	srv := &HttpServer{Logger: yalog.NewLogger("test")}
	rw, rec := testWrapper(srv, "")

	assert.NoError(t, rw.WriteHeader(http.StatusNoContent))
	assert.Error(t, rw.WriteHeader(http.StatusOK))
	assert.Error(t, rw.WriteError(MakeE(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, "")))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWriteErrorBody(t *testing.T) {
	srv := &HttpServer{Logger: yalog.NewLogger("test")}
	rw, rec := testWrapper(srv, "")

	rw.E(MessageCodeSessionNotFound, "Session not found", http.StatusNotFound, "Session not found")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var e Error
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, MessageCodeSessionNotFound, e.MessageCode)
	assert.Equal(t, "Session not found", e.Details)
}
