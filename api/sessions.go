package api

import (
	"context"
	"errors"
	"fmt"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"launchman_backend/db"
	"launchman_backend/launcher"
	"maps"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// fetchSession loads a session row, writing the error response when the
// session is missing or the query fails.
func (srv *HttpServer) fetchSession(rw *ReqWrapper, r *http.Request, id int32) (*db.Session, bool) {
	session, err := srv.Manager.Queries.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			rw.E(MessageCodeSessionNotFound, "Session not found", http.StatusNotFound, "Session not found")
		} else {
			rw.E(MessageCodeErrorGettingSession, "Error getting session", http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	return &session, true
}

// liveRunner finds the goroutine owning the session. Every session row has
// one, a miss means the manager state is inconsistent.
func (srv *HttpServer) liveRunner(rw *ReqWrapper, id int32) (*launcher.SessionRunner, bool) {
	runner := srv.Manager.GetRunner(id)
	if runner == nil {
		srv.Logger.Errorf("Session %d's runner is nil\n", id)
		rw.E(MessageCodeInternalError, "internal server error", http.StatusInternalServerError, "runner is nil")
		return nil, false
	}
	return runner, true
}

type GetSessionsResponse struct {
	Sessions []db.Session `json:"sessions"`
}

func (srv *HttpServer) GetSessions(w http.ResponseWriter, r *http.Request) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)

	sessions, err := srv.Manager.Queries.GetSessions(r.Context())
	if err != nil {
		rw.E(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, err.Error())
		return
	}
	// a nil slice marshals to null
	if sessions == nil {
		sessions = make([]db.Session, 0)
	}

	rw.MarshalAndRespond(GetSessionsResponse{
		Sessions: sessions,
	})
}

func (srv *HttpServer) GetSession(w http.ResponseWriter, r *http.Request) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)

	id, ok := rw.pathId(r)
	if !ok {
		return
	}
	session, ok := srv.fetchSession(rw, r, id)
	if !ok {
		return
	}
	rw.MarshalAndRespond(session)
}

type ActiveSessionResponse struct {
	SessionId int32 `json:"session_id"`
	Active    bool  `json:"active"`
}

// GetActiveSession reports the session whose application is currently in
// front of the user, if any.
func (srv *HttpServer) GetActiveSession(w http.ResponseWriter, r *http.Request) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)

	id, ok := srv.Manager.ActiveSession()
	rw.MarshalAndRespond(ActiveSessionResponse{
		SessionId: id,
		Active:    ok,
	})
}

// execStatError classifies a stat result the way the launcher will judge
// it at start time.
//
//goland:noinspection GoBoolExpressions
func execStatError(info os.FileInfo) *Error {
	if info.IsDir() {
		return MakeE(MessageCodeExecutableNotFile, "executable_path is not a file", http.StatusBadRequest, "executable_path is not a file")
	}
	if runtime.GOOS != "windows" && info.Mode()&0111 == 0 {
		return MakeE(MessageCodeExecutableNotExecutable, "executable_path is not executable", http.StatusBadRequest, "executable_path is not executable")
	}
	return nil
}

// CheckPath validates a user-supplied executable path, trying the path
// itself first and PATH lookup second.
func CheckPath(source string) (string, *Error) {
	if info, err := os.Stat(source); err == nil {
		if e := execStatError(info); e != nil {
			return "", e
		}
		return source, nil
	}
	fullPath, err := exec.LookPath(source)
	if err != nil {
		return "", MakeE(MessageCodeExecutableNotFound, "executable_path does not exist", http.StatusBadRequest, "executable_path does not exist")
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return "", MakeE(MessageCodeExecutableNotFound, "executable_path does not exist", http.StatusBadRequest, "executable_path does not exist")
	}
	if e := execStatError(info); e != nil {
		return "", e
	}
	return fullPath, nil
}

// sessionBody carries the fields shared by the create and update payloads.
// The two only differ in how the group id is tagged.
type sessionBody struct {
	Name string `json:"name"`

	CreateNewGroup bool                      `json:"create_new_group"`
	NewGroup       CreateSessionGroupRequest `json:"new_group"`

	Color          pgtype.Text       `json:"color"`
	Enabled        bool              `json:"enabled"`
	ExecutablePath string            `json:"executable_path"`
	Arguments      string            `json:"arguments"`
	WorkingDir     string            `json:"working_dir"`
	Environment    map[string]string `json:"environment"`
	Config         db.Configuration  `json:"config"`
}

func (b *sessionBody) validate(ctx context.Context, srv *HttpServer, group pgtype.Int4) *Error {
	if b.Name == "" {
		return MakeE(MessageCodeNameRequired, "name is required", http.StatusBadRequest, "name is required")
	}
	if b.ExecutablePath == "" {
		return MakeE(MessageCodeExecutableRequired, "executable_path is required", http.StatusBadRequest, "executable_path is required")
	}
	realPath, e := CheckPath(b.ExecutablePath)
	if e != nil {
		return e
	}

	if b.WorkingDir == "" {
		b.WorkingDir = filepath.Dir(realPath)
	} else {
		info, err := os.Stat(b.WorkingDir)
		if err != nil {
			return MakeE(MessageCodeWdNotFound, "working_dir does not exist", http.StatusBadRequest, "working_dir does not exist")
		}
		if !info.IsDir() {
			return MakeE(MessageCodeWdNotDir, "working_dir is not a directory", http.StatusBadRequest, "working_dir is not a directory")
		}
	}

	if group.Valid {
		if _, err := srv.Manager.Queries.GetSessionGroup(ctx, group.Int32); err != nil {
			return MakeE(MessageCodeInvalidGroup, "invalid group", http.StatusBadRequest, "invalid group")
		}
	} else if b.CreateNewGroup {
		if e := b.NewGroup.Validate(ctx, srv); e != nil {
			return e
		}
	}

	if b.Environment == nil {
		b.Environment = make(map[string]string)
	}
	return nil
}

type AddSessionRequest struct {
	sessionBody
	Group pgtype.Int4 `json:"group"`
}

func (a *AddSessionRequest) Validate(ctx context.Context, srv *HttpServer) *Error {
	return a.sessionBody.validate(ctx, srv, a.Group)
}

type UpdateSessionRequest struct {
	sessionBody
	Group pgtype.Int4 `json:"group_id"`
}

func (u *UpdateSessionRequest) Validate(ctx context.Context, srv *HttpServer) *Error {
	return u.sessionBody.validate(ctx, srv, u.Group)
}

// resolveGroupID picks the group id to store on the session, creating a
// new group inside the transaction when the payload asks for one.
func resolveGroupID(ctx context.Context, queries *db.Queries, group pgtype.Int4, createNew bool, newGroup *CreateSessionGroupRequest) (pgtype.Int4, *Error) {
	if group.Valid {
		if _, err := queries.GetSessionGroup(ctx, group.Int32); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return group, MakeE(MessageCodeGroupNotFound, "Group not found", http.StatusNotFound, "Group not found")
			}
			return group, MakeE(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, err.Error())
		}
		return group, nil
	}
	if createNew {
		created, err := queries.CreateSessionGroup(ctx, db.CreateSessionGroupParams{
			Name:  newGroup.Name,
			Color: newGroup.Color,
		})
		if err != nil {
			return group, MakeE(MessageCodeCouldNotCreateGroup, "Could not create session group", http.StatusInternalServerError, err.Error())
		}
		return pgtype.Int4{Int32: created.ID, Valid: true}, nil
	}
	return pgtype.Int4{}, nil
}

func (srv *HttpServer) AddSession(w http.ResponseWriter, r *http.Request) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)
	req := r.Context().Value(ContextKeyUnmarshalledJson).(*AddSessionRequest)

	tx, queries, err := srv.Manager.OpenTx(r.Context())
	if err != nil {
		rw.E(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, err.Error())
		return
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(r.Context())
		}
	}()

	groupID, e := resolveGroupID(r.Context(), queries, req.Group, req.CreateNewGroup, &req.NewGroup)
	if e != nil {
		_ = rw.WriteError(e)
		return
	}

	created, err := queries.CreateSession(r.Context(), db.CreateSessionParams{
		Name:             req.Name,
		SessionGroupID:   groupID,
		Color:            req.Color,
		ExecutablePath:   req.ExecutablePath,
		Arguments:        req.Arguments,
		WorkingDirectory: req.WorkingDir,
		Environment:      req.Environment,
		Configuration:    req.Config,
		Enabled:          req.Enabled,
	})
	if err != nil {
		rw.E(MessageCodeCouldNotCreateSession, "Could not create session", http.StatusInternalServerError, err.Error())
		return
	}
	if err = tx.Commit(r.Context()); err != nil {
		rw.E(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, err.Error())
		return
	}
	committed = true

	go srv.Manager.AddRunner(&created).Work()
	rw.MarshalAndRespond(created)
}

func (srv *HttpServer) DeleteSession(w http.ResponseWriter, r *http.Request) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)

	id, ok := rw.pathId(r)
	if !ok {
		return
	}
	if _, ok = srv.fetchSession(rw, r, id); !ok {
		return
	}

	// Bring the tree down and wipe captures before the row disappears.
	if runner := srv.Manager.GetRunner(id); runner != nil {
		runner.SignalIn <- launcher.Deleted
		srv.Manager.RemoveRunner(id)
	}

	if err := srv.Manager.Queries.DeleteSession(r.Context(), id); err != nil {
		rw.E(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, fmt.Sprintf("Error deleting session: %s", err.Error()))
		return
	}
	_ = rw.WriteHeader(http.StatusNoContent)
}

type SessionStatusChange struct {
	Enabled bool `json:"enabled"`
}

// signalSession delivers a lifecycle signal to the session's runner and
// reports the resulting enabled state.
func (srv *HttpServer) signalSession(r *http.Request, sig launcher.Signal, enabled bool) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)

	id, ok := rw.pathId(r)
	if !ok {
		return
	}
	if _, ok = srv.fetchSession(rw, r, id); !ok {
		return
	}
	runner, ok := srv.liveRunner(rw, id)
	if !ok {
		return
	}

	runner.SignalIn <- sig
	rw.MarshalAndRespond(SessionStatusChange{Enabled: enabled})
}

func (srv *HttpServer) LaunchSession(w http.ResponseWriter, r *http.Request) {
	srv.signalSession(r, launcher.Launch, true)
}

func (srv *HttpServer) StopSession(w http.ResponseWriter, r *http.Request) {
	srv.signalSession(r, launcher.Stop, false)
}

func (srv *HttpServer) RelaunchSession(w http.ResponseWriter, r *http.Request) {
	srv.signalSession(r, launcher.Relaunch, true)
}

// relaunchNeeded reports whether an update touches anything the running
// application depends on.
func relaunchNeeded(old db.Session, req *UpdateSessionRequest) bool {
	return old.Enabled != req.Enabled ||
		req.ExecutablePath != old.ExecutablePath ||
		req.Arguments != old.Arguments ||
		req.WorkingDir != old.WorkingDirectory ||
		!maps.Equal(req.Environment, old.Environment) ||
		!req.Config.Equal(old.Configuration)
}

func (srv *HttpServer) UpdateSession(w http.ResponseWriter, r *http.Request) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)
	req := r.Context().Value(ContextKeyUnmarshalledJson).(*UpdateSessionRequest)

	id, ok := rw.pathId(r)
	if !ok {
		return
	}

	tx, queries, err := srv.Manager.OpenTx(r.Context())
	if err != nil {
		rw.E(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, err.Error())
		return
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(r.Context())
		}
	}()

	existing, err := queries.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			rw.E(MessageCodeSessionNotFound, "Session not found", http.StatusNotFound, "Session not found")
			return
		}
		rw.E(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, err.Error())
		return
	}

	groupID, e := resolveGroupID(r.Context(), queries, req.Group, req.CreateNewGroup, &req.NewGroup)
	if e != nil {
		_ = rw.WriteError(e)
		return
	}

	session, err := queries.UpdateSession(r.Context(), db.UpdateSessionParams{
		ID:               id,
		Name:             req.Name,
		SessionGroupID:   groupID,
		Color:            req.Color,
		ExecutablePath:   req.ExecutablePath,
		Arguments:        req.Arguments,
		WorkingDirectory: req.WorkingDir,
		Environment:      req.Environment,
		Configuration:    req.Config,
		Enabled:          req.Enabled,
	})
	if err != nil {
		rw.E(MessageCodeCouldNotCreateSession, "Could not edit session", http.StatusInternalServerError, err.Error())
		return
	}
	if err = tx.Commit(r.Context()); err != nil {
		rw.E(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, err.Error())
		return
	}
	committed = true

	// Signal after commit so the refresh sees the new row.
	if relaunchNeeded(existing, req) {
		if runner := srv.Manager.GetRunner(id); runner != nil {
			runner.SignalIn <- launcher.Refresh
		}
	}

	rw.MarshalAndRespond(session)
}

func (srv *HttpServer) GetDefaultConfiguration(w http.ResponseWriter, r *http.Request) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)

	rw.MarshalAndRespond(db.DefaultConfiguration)
}
