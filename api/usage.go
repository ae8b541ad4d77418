package api

import (
	"github.com/jackc/pgx/v5/pgtype"
	"launchman_backend/db"
	"net/http"
	"time"
)

const MaxUsageTimeFrame = time.Hour * 24 * 30

type UsageResponseCpu struct {
	RecordTime   int64   `json:"record_time"`
	UsagePercent float64 `json:"usage_percent"`
	UsageNs      int64   `json:"usage_ns"`
}

type UsageResponseMemory struct {
	RecordTime int64 `json:"record_time"`
	UsageBytes int64 `json:"usage_bytes"`
}

type UsageResponse struct {
	Cpu    []UsageResponseCpu    `json:"cpu"`
	Memory []UsageResponseMemory `json:"memory"`
}

func (srv *HttpServer) GetSessionUsage(w http.ResponseWriter, r *http.Request) {
	rw := r.Context().Value(ContextKeyWrappedRequest).(*ReqWrapper)

	id, ok := rw.pathId(r)
	if !ok {
		return
	}
	if _, ok = srv.fetchSession(rw, r, id); !ok {
		return
	}
	from, to, ok := rw.timeWindow(r, time.Now().UTC().Add(-1*time.Hour), time.Now().UTC())
	if !ok {
		return
	}
	if to.Sub(from) > MaxUsageTimeFrame {
		rw.E(MessageCodeInvalidTimeFrame, "Invalid time frame", http.StatusBadRequest, "Time frame too large")
		return
	}

	samples, err := srv.Manager.Queries.GetSessionUsageFromTo(r.Context(), db.GetSessionUsageFromToParams{
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
	})
	if err != nil {
		rw.E(MessageCodeInternalError, "Internal error", http.StatusInternalServerError, err.Error())
		return
	}

	// cpu and memory series share their sample timestamps
	res := UsageResponse{
		Cpu:    make([]UsageResponseCpu, len(samples)),
		Memory: make([]UsageResponseMemory, len(samples)),
	}
	for i, sample := range samples {
		res.Cpu[i] = UsageResponseCpu{
			RecordTime:   sample.CreatedAt.Time.Unix(),
			UsagePercent: sample.CpuUsagePercentage,
			UsageNs:      sample.CpuUsage,
		}
		res.Memory[i] = UsageResponseMemory{
			RecordTime: sample.CreatedAt.Time.Unix(),
			UsageBytes: sample.MemoryUsage,
		}
	}

	rw.MarshalAndRespond(res)
}
