package db

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type SessionStatus string

const (
	SessionStatusUNKNOWN             SessionStatus = "UNKNOWN"
	SessionStatusLAUNCHING           SessionStatus = "LAUNCHING"
	SessionStatusRUNNING             SessionStatus = "RUNNING"
	SessionStatusSTOPPING            SessionStatus = "STOPPING"
	SessionStatusSTOPPED             SessionStatus = "STOPPED"
	SessionStatusCRASHED             SessionStatus = "CRASHED"
	SessionStatusSTOPPEDWILLRELAUNCH SessionStatus = "STOPPED_WILL_RELAUNCH"
	SessionStatusCRASHEDWILLRELAUNCH SessionStatus = "CRASHED_WILL_RELAUNCH"
)

type SessionEventType string

const (
	SessionEventTypeLAUNCH          SessionEventType = "LAUNCH"
	SessionEventTypeRELAUNCH        SessionEventType = "RELAUNCH"
	SessionEventTypeEXIT            SessionEventType = "EXIT"
	SessionEventTypeCRASH           SessionEventType = "CRASH"
	SessionEventTypeFULLEXIT        SessionEventType = "FULL_EXIT"
	SessionEventTypeFULLCRASH       SessionEventType = "FULL_CRASH"
	SessionEventTypeMANUALLYSTOPPED SessionEventType = "MANUALLY_STOPPED"
	SessionEventTypeKILLED          SessionEventType = "KILLED"
	SessionEventTypeKILLFAILED      SessionEventType = "KILL_FAILED"
)

type Session struct {
	ID               int32             `json:"id"`
	Name             string            `json:"name"`
	SessionGroupID   pgtype.Int4       `json:"session_group_id"`
	Color            pgtype.Text       `json:"color"`
	ExecutablePath   string            `json:"executable_path"`
	Arguments        string            `json:"arguments"`
	WorkingDirectory string            `json:"working_directory"`
	Environment      map[string]string `json:"environment"`
	Configuration    Configuration     `json:"configuration"`
	Enabled          bool              `json:"enabled"`
	Status           SessionStatus     `json:"status"`
	CreatedAt        pgtype.Timestamp  `json:"created_at"`
}

type SessionGroup struct {
	ID            int32            `json:"id"`
	Name          string           `json:"name"`
	Color         pgtype.Text      `json:"color"`
	Configuration Configuration    `json:"configuration"`
	CreatedAt     pgtype.Timestamp `json:"created_at"`
}

type SessionEvent struct {
	ID             int32            `json:"id"`
	SessionID      pgtype.Int4      `json:"session_id"`
	Event          SessionEventType `json:"event"`
	AdditionalInfo []byte           `json:"additional_info"`
	CreatedAt      pgtype.Timestamp `json:"created_at"`
}

type Capture struct {
	ID        int32            `json:"id"`
	SessionID pgtype.Int4      `json:"session_id"`
	Path      string           `json:"path"`
	StartTime pgtype.Timestamp `json:"start_time"`
	EndTime   pgtype.Timestamp `json:"end_time"`
}

type UsageSample struct {
	ID                 int32            `json:"id"`
	SessionID          pgtype.Int4      `json:"session_id"`
	CpuUsage           int64            `json:"cpu_usage"`
	CpuUsagePercentage float64          `json:"cpu_usage_percentage"`
	MemoryUsage        int64            `json:"memory_usage"`
	CreatedAt          pgtype.Timestamp `json:"created_at"`
}
