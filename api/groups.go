package api

import (
	"context"
	"errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"launchman_backend/db"
	"net/http"
)

// fetchGroup loads a group row, writing the error response when the group
// is missing or the query fails.
func (srv *HttpServer) fetchGroup(rw *ReqWrapper, r *http.Request, id int32) (*db.SessionGroup, bool) {
	group, err := srv.Manager.Queries.GetSessionGroup(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			rw.E(MessageCodeGroupNotFound, "Group not found", http.StatusNotFound, "Group not found")
		} else {
			rw.E(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	return &group, true
}

type CreateSessionGroupRequest struct {
	Name  string      `json:"name"`
	Color pgtype.Text `json:"color"`

	Config db.Configuration `json:"config"`
}

func (r *CreateSessionGroupRequest) Validate(ctx context.Context, srv *HttpServer) *Error {
	if r.Name == "" {
		return MakeE(MessageCodeNameRequired, "name is required", http.StatusBadRequest, "name is required")
	}

	exists, err := srv.Manager.Queries.GroupExistsByName(ctx, r.Name)
	if err != nil {
		return MakeE(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, err.Error())
	}
	if exists {
		return MakeE(MessageCodeGroupAlreadyExists, "group already exists", http.StatusBadRequest, "group already exists")
	}
	return nil
}

func (srv *HttpServer) CreateGroup(w http.ResponseWriter, r *http.Request) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)
	req := r.Context().Value(ContextKeyUnmarshalledJson).(*CreateSessionGroupRequest)

	group, err := srv.Manager.Queries.CreateSessionGroup(r.Context(), db.CreateSessionGroupParams{
		Name:          req.Name,
		Color:         req.Color,
		Configuration: req.Config,
	})
	if err != nil {
		rw.E(MessageCodeCouldNotCreateGroup, "Could not create session group", http.StatusInternalServerError, err.Error())
		return
	}

	rw.MarshalAndRespond(group)
}

func (srv *HttpServer) GetGroups(w http.ResponseWriter, r *http.Request) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)

	groups, err := srv.Manager.Queries.GetSessionGroups(r.Context())
	if err != nil {
		rw.E(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, err.Error())
		return
	}

	rw.MarshalAndRespond(groups)
}

func (srv *HttpServer) GetGroup(w http.ResponseWriter, r *http.Request) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)

	id, ok := rw.pathId(r)
	if !ok {
		return
	}
	group, ok := srv.fetchGroup(rw, r, id)
	if !ok {
		return
	}
	rw.MarshalAndRespond(group)
}

func (srv *HttpServer) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)

	id, ok := rw.pathId(r)
	if !ok {
		return
	}
	if _, ok = srv.fetchGroup(rw, r, id); !ok {
		return
	}

	if err := srv.Manager.Queries.DeleteSessionGroup(r.Context(), id); err != nil {
		rw.E(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, err.Error())
		return
	}
	_ = rw.WriteHeader(http.StatusNoContent)
}

type UpdateSessionGroupRequest struct {
	Name   string           `json:"name"`
	Color  pgtype.Text      `json:"color"`
	Config db.Configuration `json:"config"`
}

func (u *UpdateSessionGroupRequest) Validate(ctx context.Context, srv *HttpServer) *Error {
	if u.Name == "" {
		return MakeE(MessageCodeNameRequired, "Name required", http.StatusBadRequest, "Name required")
	}
	return nil
}

// groupNameFree rejects a rename that collides with a different group.
func (srv *HttpServer) groupNameFree(r *http.Request, name string, selfID int32) *Error {
	others, err := srv.Manager.Queries.GetSessionGroupsByName(r.Context(), name)
	if err != nil {
		return MakeE(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, err.Error())
	}
	for _, g := range others {
		if g.ID != selfID {
			return MakeE(MessageCodeGroupAlreadyExists, "Group already exists", http.StatusBadRequest, "Group already exists with the same name")
		}
	}
	return nil
}

func (srv *HttpServer) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)
	req := r.Context().Value(ContextKeyUnmarshalledJson).(*UpdateSessionGroupRequest)

	id, ok := rw.pathId(r)
	if !ok {
		return
	}
	if e := srv.groupNameFree(r, req.Name, id); e != nil {
		_ = rw.WriteError(e)
		return
	}
	if _, ok = srv.fetchGroup(rw, r, id); !ok {
		return
	}

	group, err := srv.Manager.Queries.UpdateSessionGroup(r.Context(), db.UpdateSessionGroupParams{
		ID:            id,
		Name:          req.Name,
		Color:         req.Color,
		Configuration: req.Config,
	})
	if err != nil {
		rw.E(MessageCodeCouldNotCreateGroup, "Could not update session group", http.StatusInternalServerError, err.Error())
		return
	}

	rw.MarshalAndRespond(group)
}
