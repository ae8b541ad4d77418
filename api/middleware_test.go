package api

import (
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/apepenkov/yalog"
	"github.com/stretchr/testify/assert"
)

func TestAuthMiddleware(t *testing.T) {
	rawKey := []byte("0123456789abcdef0123456789abcdef")
	oldHash := ExpectedAuthKeyHash
	ExpectedAuthKeyHash = sha256.Sum256(rawKey)
	defer func() { ExpectedAuthKeyHash = oldHash }()

	srv := &HttpServer{Logger: yalog.NewLogger("test")}
	called := false
	handler := srv.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/sessions", nil)
		if key != "" {
			req.Header.Set("X-Auth-Key", key)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, serve("").Code)
	assert.Equal(t, http.StatusUnauthorized, serve("not base64 at all !!!").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(base64.StdEncoding.EncodeToString([]byte("wrong key"))).Code)
	assert.False(t, called)

	rec := serve(base64.StdEncoding.EncodeToString(rawKey))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, called)
}

func TestWrapRequestMiddlewareAssignsId(t *testing.T) {
	srv := &HttpServer{Logger: yalog.NewLogger("test")}

	var got *ReqWrapper
	handler := srv.WrapRequestMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/sessions", nil))

	assert.NotNil(t, got)
	assert.Len(t, got.Id, 8)
	assert.Equal(t, got.Id, rec.Header().Get("X-Request-Id"))
}

func TestWrapAccessControlOrigin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	srv := &HttpServer{AllowOrigin: "https://launchman.example"}
	rec := httptest.NewRecorder()
	srv.WrapAccessControl(next).ServeHTTP(rec, httptest.NewRequest("GET", "/sessions", nil))
	assert.Equal(t, "https://launchman.example", rec.Header().Get("Access-Control-Allow-Origin"))

	srv = &HttpServer{}
	rec = httptest.NewRecorder()
	srv.WrapAccessControl(next).ServeHTTP(rec, httptest.NewRequest("GET", "/sessions", nil))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
