package api

import (
	"github.com/jackc/pgx/v5/pgtype"
	"launchman_backend/db"
	"net/http"
	"strconv"
	"time"
)

type SessionEvent struct {
	Event db.SessionEventType `json:"event"`
	Time  int64               `json:"time"`
}

type EventsResponse struct {
	Events []SessionEvent `json:"events"`
}

func (srv *HttpServer) GetSessionEvents(w http.ResponseWriter, r *http.Request) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)

	id, ok := rw.pathId(r)
	if !ok {
		return
	}
	if _, ok = srv.fetchSession(rw, r, id); !ok {
		return
	}
	// default to the whole history
	from, to, ok := rw.timeWindow(r, time.Unix(0, 0), time.Now().UTC())
	if !ok {
		return
	}

	limit := int32(0x7fffffff)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			rw.E(MessageCodeInvalidLimit, "Invalid limit", http.StatusBadRequest, "Could not convert limit to int")
			return
		}
		limit = int32(n)
	}

	events, err := srv.Manager.Queries.GetSessionEventsFromTo(r.Context(), db.GetSessionEventsFromToParams{
		SessionID: pgtype.Int4{
			Int32: id,
			Valid: true,
		},
		CreatedAt: pgtype.Timestamp{
			Time:  from,
			Valid: true,
		},
		CreatedAt_2: pgtype.Timestamp{
			Time:  to,
			Valid: true,
		},
		Limit: limit,
	})
	if err != nil {
		rw.E(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, err.Error())
		return
	}

	res := EventsResponse{
		Events: make([]SessionEvent, len(events)),
	}
	for i, e := range events {
		res.Events[i] = SessionEvent{
			Event: e.Event,
			Time:  e.CreatedAt.Time.Unix(),
		}
	}

	rw.MarshalAndRespond(res)
}
