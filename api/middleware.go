package api

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// ExpectedAuthKeyHash is the sha256 of the raw auth key. Requests prove
// knowledge of the key by sending it base64-encoded in X-Auth-Key.
var ExpectedAuthKeyHash [32]byte

type ContextKey string

const ContextKeyUnmarshalledJson = ContextKey("unmarshalledJson")
const ContextKeyWrappedRequest = ContextKey("wrappedRequest")

func authorized(header string) bool {
	if header == "" {
		return false
	}
	rawKey, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return false
	}
	sum := sha256.Sum256(rawKey)
	return hmac.Equal(sum[:], ExpectedAuthKeyHash[:])
}

func (srv *HttpServer) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r.Header.Get("X-Auth-Key")) {
			http.Error(w, "invalid or missing auth key", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (srv *HttpServer) MustUnmarshalJsonMiddleware(next http.Handler, toGetter InterfaceGetter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)

		if !strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			http.Error(w, "expected application/json", http.StatusUnsupportedMediaType)
			return
		}

		raw, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "could not read request body", http.StatusInternalServerError)
			return
		}

		payload := toGetter()
		if err = json.Unmarshal(raw, payload); err != nil {
			http.Error(w, "request body is not valid json", http.StatusBadRequest)
			return
		}

		// Nested request models are validated by their parent's Validate.
		if validateErr := payload.Validate(r.Context(), srv); validateErr != nil {
			_ = rw.WriteError(validateErr)
			return
		}

		r = r.WithContext(context.WithValue(r.Context(), ContextKeyUnmarshalledJson, payload))
		next.ServeHTTP(w, r)
	})
}

func (srv *HttpServer) WrapRequestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &ReqWrapper{
			r:   r,
			w:   w,
			Srv: srv,
			Id:  randomString(8),
		}
		r = r.WithContext(context.WithValue(r.Context(), ContextKeyWrappedRequest, rw))
		w.Header().Set("X-Request-Id", rw.Id)
		rw.Debugf("Request: [%s] %s\n", r.Method, r.URL)

		next.ServeHTTP(w, r)
	})
}

func (srv *HttpServer) WrapAccessControl(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := srv.AllowOrigin
		if origin == "" {
			origin = "*"
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)

		next.ServeHTTP(w, r)
	})
}

// init loads auth.key, generating one on first run. The file holds the key
// base64-encoded; the process only ever keeps the hash.
func init() {
	encoded, err := os.ReadFile("auth.key")
	if err != nil {
		if !os.IsNotExist(err) {
			panic(err)
		}
		key := make([]byte, 64)
		_, _ = rand.Read(key)
		encoded = []byte(base64.StdEncoding.EncodeToString(key))
		_ = os.WriteFile("auth.key", encoded, 0600)
		fmt.Printf("Generated new auth key: %s\n", encoded)
	}

	rawKey, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(encoded)))
	if err != nil {
		panic(fmt.Errorf("auth.key is not valid base64: %w", err))
	}
	ExpectedAuthKeyHash = sha256.Sum256(rawKey)
}
