package api

import (
	"context"
	"github.com/apepenkov/yalog"
	"launchman_backend/launcher"
	"net/http"
	"time"
)

type InterfaceGetter func() ModelWithValidation

type ModelWithValidation interface {
	Validate(ctx context.Context, srv *HttpServer) *Error
}

type HttpServer struct {
	Mux         *http.ServeMux
	Server      *http.Server
	Manager     *launcher.Manager
	Logger      *yalog.Logger
	AllowOrigin string
}

func NewHttpServer(manager *launcher.Manager, serveAddr string, allowOrigin string) *HttpServer {
	srv := &HttpServer{
		Mux: http.NewServeMux(),
		Server: &http.Server{
			Addr:         serveAddr,
			ReadTimeout:  time.Second * 10,
			WriteTimeout: time.Second * 10,
		},
		Manager:     manager,
		Logger:      manager.Logger.NewLogger("http"),
		AllowOrigin: allowOrigin,
	}
	srv.Server.Handler = srv.Mux
	srv.routes()
	return srv
}

// routes wires every endpoint through the middleware stack, outermost
// first: CORS, request wrapping, auth, body decoding.
func (srv *HttpServer) routes() {
	plain := func(h http.HandlerFunc) http.Handler {
		return srv.WrapAccessControl(srv.WrapRequestMiddleware(h))
	}
	authed := func(h http.HandlerFunc) http.Handler {
		return srv.WrapAccessControl(srv.WrapRequestMiddleware(srv.AuthMiddleware(h)))
	}
	withBody := func(h http.HandlerFunc, model InterfaceGetter) http.Handler {
		return srv.WrapAccessControl(srv.WrapRequestMiddleware(srv.AuthMiddleware(srv.MustUnmarshalJsonMiddleware(h, model))))
	}

	srv.Mux.Handle("GET /sessions", authed(srv.GetSessions))
	srv.Mux.Handle("POST /sessions", withBody(srv.AddSession, func() ModelWithValidation { return &AddSessionRequest{} }))
	srv.Mux.Handle("GET /sessions/active", authed(srv.GetActiveSession))
	srv.Mux.Handle("GET /sessions/by_id/{id}", authed(srv.GetSession))
	srv.Mux.Handle("DELETE /sessions/by_id/{id}", authed(srv.DeleteSession))
	srv.Mux.Handle("PATCH /sessions/by_id/{id}", withBody(srv.UpdateSession, func() ModelWithValidation { return &UpdateSessionRequest{} }))

	srv.Mux.Handle("POST /sessions/by_id/{id}/stop", authed(srv.StopSession))
	srv.Mux.Handle("POST /sessions/by_id/{id}/launch", authed(srv.LaunchSession))
	srv.Mux.Handle("POST /sessions/by_id/{id}/relaunch", authed(srv.RelaunchSession))

	srv.Mux.Handle("GET /sessions/by_id/{id}/usage", authed(srv.GetSessionUsage))
	srv.Mux.Handle("GET /sessions/by_id/{id}/events", authed(srv.GetSessionEvents))
	srv.Mux.Handle("GET /sessions/by_id/{id}/captures", authed(srv.GetSessionCaptures))
	srv.Mux.Handle("GET /sessions/by_id/{id}/export_captures", authed(srv.ExportCapturesAsZip))
	srv.Mux.Handle("PUT /sessions/by_id/{id}/stdin", withBody(srv.PostStdin, func() ModelWithValidation { return &StdInRequest{} }))

	srv.Mux.Handle("GET /sessions/by_id/{id}/tree", authed(srv.GetSessionTree))
	srv.Mux.Handle("GET /sessions/by_id/{id}/cmdline", authed(srv.GetSessionCmdline))

	srv.Mux.Handle("GET /groups", authed(srv.GetGroups))
	srv.Mux.Handle("POST /groups", withBody(srv.CreateGroup, func() ModelWithValidation { return &CreateSessionGroupRequest{} }))
	srv.Mux.Handle("GET /groups/by_id/{id}", authed(srv.GetGroup))
	srv.Mux.Handle("DELETE /groups/by_id/{id}", authed(srv.DeleteGroup))
	srv.Mux.Handle("PATCH /groups/by_id/{id}", withBody(srv.UpdateGroup, func() ModelWithValidation { return &UpdateSessionGroupRequest{} }))

	srv.Mux.Handle("GET /notification_config", authed(srv.GetNotificationSettings))
	srv.Mux.Handle("PATCH /notification_config", withBody(srv.UpdateNotificationSettings, func() ModelWithValidation { return &PatchNotificationsConfig{} }))
	srv.Mux.Handle("POST /notification_config/test", withBody(srv.TestNotification, func() ModelWithValidation { return &TestMessage{} }))

	srv.Mux.Handle("GET /default_config", authed(srv.GetDefaultConfiguration))

	// health stays reachable without a key, check_auth exists so a client
	// can probe its key without side effects
	srv.Mux.Handle("GET /health", plain(srv.HealthCheck))
	srv.Mux.Handle("GET /check_auth", authed(srv.HealthCheck))

	srv.Mux.Handle("OPTIONS /", plain(srv.Preflight))
}

// Preflight answers CORS preflight requests for every route.
func (srv *HttpServer) Preflight(w http.ResponseWriter, r *http.Request) {
	origin := srv.AllowOrigin
	if origin == "" {
		origin = "*"
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS, PATCH, PUT")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Auth-Key")
	w.WriteHeader(http.StatusOK)
}

func (srv *HttpServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (srv *HttpServer) Close() {
	_ = srv.Server.Shutdown(context.Background())
}

func (srv *HttpServer) ListenAndServe() error {
	return srv.Server.ListenAndServe()
}
