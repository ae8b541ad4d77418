package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getSessions = `-- name: GetSessions :many
SELECT id, name, session_group_id, color, executable_path, arguments, working_directory, environment, configuration, enabled, status, created_at
FROM sessions
ORDER BY id
`

func (q *Queries) GetSessions(ctx context.Context) ([]Session, error) {
	rows, err := q.db.Query(ctx, getSessions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Session
	for rows.Next() {
		var i Session
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.SessionGroupID,
			&i.Color,
			&i.ExecutablePath,
			&i.Arguments,
			&i.WorkingDirectory,
			&i.Environment,
			&i.Configuration,
			&i.Enabled,
			&i.Status,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getSession = `-- name: GetSession :one
SELECT id, name, session_group_id, color, executable_path, arguments, working_directory, environment, configuration, enabled, status, created_at
FROM sessions
WHERE id = $1
`

func (q *Queries) GetSession(ctx context.Context, id int32) (Session, error) {
	row := q.db.QueryRow(ctx, getSession, id)
	var i Session
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.SessionGroupID,
		&i.Color,
		&i.ExecutablePath,
		&i.Arguments,
		&i.WorkingDirectory,
		&i.Environment,
		&i.Configuration,
		&i.Enabled,
		&i.Status,
		&i.CreatedAt,
	)
	return i, err
}

const createSession = `-- name: CreateSession :one
INSERT INTO sessions (name, session_group_id, color, executable_path, arguments, working_directory, environment, configuration, enabled)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, name, session_group_id, color, executable_path, arguments, working_directory, environment, configuration, enabled, status, created_at
`

type CreateSessionParams struct {
	Name             string
	SessionGroupID   pgtype.Int4
	Color            pgtype.Text
	ExecutablePath   string
	Arguments        string
	WorkingDirectory string
	Environment      map[string]string
	Configuration    Configuration
	Enabled          bool
}

func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error) {
	row := q.db.QueryRow(ctx, createSession,
		arg.Name,
		arg.SessionGroupID,
		arg.Color,
		arg.ExecutablePath,
		arg.Arguments,
		arg.WorkingDirectory,
		arg.Environment,
		arg.Configuration,
		arg.Enabled,
	)
	var i Session
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.SessionGroupID,
		&i.Color,
		&i.ExecutablePath,
		&i.Arguments,
		&i.WorkingDirectory,
		&i.Environment,
		&i.Configuration,
		&i.Enabled,
		&i.Status,
		&i.CreatedAt,
	)
	return i, err
}

const updateSession = `-- name: UpdateSession :one
UPDATE sessions
SET name = $2, session_group_id = $3, color = $4, executable_path = $5, arguments = $6, working_directory = $7, environment = $8, configuration = $9, enabled = $10
WHERE id = $1
RETURNING id, name, session_group_id, color, executable_path, arguments, working_directory, environment, configuration, enabled, status, created_at
`

type UpdateSessionParams struct {
	ID               int32
	Name             string
	SessionGroupID   pgtype.Int4
	Color            pgtype.Text
	ExecutablePath   string
	Arguments        string
	WorkingDirectory string
	Environment      map[string]string
	Configuration    Configuration
	Enabled          bool
}

func (q *Queries) UpdateSession(ctx context.Context, arg UpdateSessionParams) (Session, error) {
	row := q.db.QueryRow(ctx, updateSession,
		arg.ID,
		arg.Name,
		arg.SessionGroupID,
		arg.Color,
		arg.ExecutablePath,
		arg.Arguments,
		arg.WorkingDirectory,
		arg.Environment,
		arg.Configuration,
		arg.Enabled,
	)
	var i Session
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.SessionGroupID,
		&i.Color,
		&i.ExecutablePath,
		&i.Arguments,
		&i.WorkingDirectory,
		&i.Environment,
		&i.Configuration,
		&i.Enabled,
		&i.Status,
		&i.CreatedAt,
	)
	return i, err
}

const deleteSession = `-- name: DeleteSession :exec
DELETE FROM sessions
WHERE id = $1
`

func (q *Queries) DeleteSession(ctx context.Context, id int32) error {
	_, err := q.db.Exec(ctx, deleteSession, id)
	return err
}

const setSessionStatus = `-- name: SetSessionStatus :exec
UPDATE sessions
SET status = $2
WHERE id = $1
`

type SetSessionStatusParams struct {
	ID     int32
	Status SessionStatus
}

func (q *Queries) SetSessionStatus(ctx context.Context, arg SetSessionStatusParams) error {
	_, err := q.db.Exec(ctx, setSessionStatus, arg.ID, arg.Status)
	return err
}

const getSessionGroups = `-- name: GetSessionGroups :many
SELECT id, name, color, configuration, created_at
FROM session_groups
ORDER BY id
`

func (q *Queries) GetSessionGroups(ctx context.Context) ([]SessionGroup, error) {
	rows, err := q.db.Query(ctx, getSessionGroups)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SessionGroup
	for rows.Next() {
		var i SessionGroup
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.Color,
			&i.Configuration,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getSessionGroup = `-- name: GetSessionGroup :one
SELECT id, name, color, configuration, created_at
FROM session_groups
WHERE id = $1
`

func (q *Queries) GetSessionGroup(ctx context.Context, id int32) (SessionGroup, error) {
	row := q.db.QueryRow(ctx, getSessionGroup, id)
	var i SessionGroup
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Color,
		&i.Configuration,
		&i.CreatedAt,
	)
	return i, err
}

const getSessionGroupsByName = `-- name: GetSessionGroupsByName :many
SELECT id, name, color, configuration, created_at
FROM session_groups
WHERE name = $1
`

func (q *Queries) GetSessionGroupsByName(ctx context.Context, name string) ([]SessionGroup, error) {
	rows, err := q.db.Query(ctx, getSessionGroupsByName, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SessionGroup
	for rows.Next() {
		var i SessionGroup
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.Color,
			&i.Configuration,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const groupExistsByName = `-- name: GroupExistsByName :one
SELECT EXISTS (
    SELECT 1 FROM session_groups WHERE name = $1
)
`

func (q *Queries) GroupExistsByName(ctx context.Context, name string) (bool, error) {
	row := q.db.QueryRow(ctx, groupExistsByName, name)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

const createSessionGroup = `-- name: CreateSessionGroup :one
INSERT INTO session_groups (name, color, configuration)
VALUES ($1, $2, $3)
RETURNING id, name, color, configuration, created_at
`

type CreateSessionGroupParams struct {
	Name          string
	Color         pgtype.Text
	Configuration Configuration
}

func (q *Queries) CreateSessionGroup(ctx context.Context, arg CreateSessionGroupParams) (SessionGroup, error) {
	row := q.db.QueryRow(ctx, createSessionGroup, arg.Name, arg.Color, arg.Configuration)
	var i SessionGroup
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Color,
		&i.Configuration,
		&i.CreatedAt,
	)
	return i, err
}

const updateSessionGroup = `-- name: UpdateSessionGroup :one
UPDATE session_groups
SET name = $2, color = $3, configuration = $4
WHERE id = $1
RETURNING id, name, color, configuration, created_at
`

type UpdateSessionGroupParams struct {
	ID            int32
	Name          string
	Color         pgtype.Text
	Configuration Configuration
}

func (q *Queries) UpdateSessionGroup(ctx context.Context, arg UpdateSessionGroupParams) (SessionGroup, error) {
	row := q.db.QueryRow(ctx, updateSessionGroup, arg.ID, arg.Name, arg.Color, arg.Configuration)
	var i SessionGroup
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Color,
		&i.Configuration,
		&i.CreatedAt,
	)
	return i, err
}

const deleteSessionGroup = `-- name: DeleteSessionGroup :exec
DELETE FROM session_groups
WHERE id = $1
`

func (q *Queries) DeleteSessionGroup(ctx context.Context, id int32) error {
	_, err := q.db.Exec(ctx, deleteSessionGroup, id)
	return err
}

const insertSessionEvent = `-- name: InsertSessionEvent :one
INSERT INTO session_events (session_id, event, additional_info)
VALUES ($1, $2, $3)
RETURNING id, session_id, event, additional_info, created_at
`

type InsertSessionEventParams struct {
	SessionID      pgtype.Int4
	Event          SessionEventType
	AdditionalInfo []byte
}

func (q *Queries) InsertSessionEvent(ctx context.Context, arg InsertSessionEventParams) (SessionEvent, error) {
	row := q.db.QueryRow(ctx, insertSessionEvent, arg.SessionID, arg.Event, arg.AdditionalInfo)
	var i SessionEvent
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.Event,
		&i.AdditionalInfo,
		&i.CreatedAt,
	)
	return i, err
}

const getSessionEventsAfter = `-- name: GetSessionEventsAfter :many
SELECT id, session_id, event, additional_info, created_at
FROM session_events
WHERE session_id = $1 AND created_at >= $2
ORDER BY created_at
`

type GetSessionEventsAfterParams struct {
	SessionID pgtype.Int4
	CreatedAt pgtype.Timestamp
}

func (q *Queries) GetSessionEventsAfter(ctx context.Context, arg GetSessionEventsAfterParams) ([]SessionEvent, error) {
	rows, err := q.db.Query(ctx, getSessionEventsAfter, arg.SessionID, arg.CreatedAt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SessionEvent
	for rows.Next() {
		var i SessionEvent
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.Event,
			&i.AdditionalInfo,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getSessionEventsFromTo = `-- name: GetSessionEventsFromTo :many
SELECT id, session_id, event, additional_info, created_at
FROM session_events
WHERE session_id = $1 AND created_at >= $2 AND created_at <= $3
ORDER BY created_at
LIMIT $4
`

type GetSessionEventsFromToParams struct {
	SessionID   pgtype.Int4
	CreatedAt   pgtype.Timestamp
	CreatedAt_2 pgtype.Timestamp
	Limit       int32
}

func (q *Queries) GetSessionEventsFromTo(ctx context.Context, arg GetSessionEventsFromToParams) ([]SessionEvent, error) {
	rows, err := q.db.Query(ctx, getSessionEventsFromTo,
		arg.SessionID,
		arg.CreatedAt,
		arg.CreatedAt_2,
		arg.Limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SessionEvent
	for rows.Next() {
		var i SessionEvent
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.Event,
			&i.AdditionalInfo,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertSessionUsage = `-- name: InsertSessionUsage :one
INSERT INTO session_usage (session_id, cpu_usage, cpu_usage_percentage, memory_usage)
VALUES ($1, $2, $3, $4)
RETURNING id, session_id, cpu_usage, cpu_usage_percentage, memory_usage, created_at
`

type InsertSessionUsageParams struct {
	SessionID          pgtype.Int4
	CpuUsage           int64
	CpuUsagePercentage float64
	MemoryUsage        int64
}

func (q *Queries) InsertSessionUsage(ctx context.Context, arg InsertSessionUsageParams) (UsageSample, error) {
	row := q.db.QueryRow(ctx, insertSessionUsage,
		arg.SessionID,
		arg.CpuUsage,
		arg.CpuUsagePercentage,
		arg.MemoryUsage,
	)
	var i UsageSample
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.CpuUsage,
		&i.CpuUsagePercentage,
		&i.MemoryUsage,
		&i.CreatedAt,
	)
	return i, err
}

const getSessionUsageFromTo = `-- name: GetSessionUsageFromTo :many
SELECT id, session_id, cpu_usage, cpu_usage_percentage, memory_usage, created_at
FROM session_usage
WHERE session_id = $1 AND created_at >= $2 AND created_at <= $3
ORDER BY created_at
`

type GetSessionUsageFromToParams struct {
	SessionID   pgtype.Int4
	CreatedAt   pgtype.Timestamp
	CreatedAt_2 pgtype.Timestamp
}

func (q *Queries) GetSessionUsageFromTo(ctx context.Context, arg GetSessionUsageFromToParams) ([]UsageSample, error) {
	rows, err := q.db.Query(ctx, getSessionUsageFromTo, arg.SessionID, arg.CreatedAt, arg.CreatedAt_2)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []UsageSample
	for rows.Next() {
		var i UsageSample
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.CpuUsage,
			&i.CpuUsagePercentage,
			&i.MemoryUsage,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const newSessionCapture = `-- name: NewSessionCapture :one
INSERT INTO session_captures (session_id, path)
VALUES ($1, $2)
RETURNING id, session_id, path, start_time, end_time
`

type NewSessionCaptureParams struct {
	SessionID pgtype.Int4
	Path      string
}

func (q *Queries) NewSessionCapture(ctx context.Context, arg NewSessionCaptureParams) (Capture, error) {
	row := q.db.QueryRow(ctx, newSessionCapture, arg.SessionID, arg.Path)
	var i Capture
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.Path,
		&i.StartTime,
		&i.EndTime,
	)
	return i, err
}

const lastSessionCapture = `-- name: LastSessionCapture :one
SELECT id, session_id, path, start_time, end_time
FROM session_captures
WHERE session_id = $1
ORDER BY start_time DESC
LIMIT 1
`

func (q *Queries) LastSessionCapture(ctx context.Context, sessionID pgtype.Int4) (Capture, error) {
	row := q.db.QueryRow(ctx, lastSessionCapture, sessionID)
	var i Capture
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.Path,
		&i.StartTime,
		&i.EndTime,
	)
	return i, err
}

const setCaptureEndTime = `-- name: SetCaptureEndTime :exec
UPDATE session_captures
SET end_time = $2
WHERE id = $1
`

type SetCaptureEndTimeParams struct {
	ID      int32
	EndTime pgtype.Timestamp
}

func (q *Queries) SetCaptureEndTime(ctx context.Context, arg SetCaptureEndTimeParams) error {
	_, err := q.db.Exec(ctx, setCaptureEndTime, arg.ID, arg.EndTime)
	return err
}

const getCapturesFromTo = `-- name: GetCapturesFromTo :many
SELECT id, session_id, path, start_time, end_time
FROM session_captures
WHERE session_id = $1 AND start_time <= $3 AND (end_time IS NULL OR end_time >= $2)
ORDER BY start_time
`

type GetCapturesFromToParams struct {
	SessionID pgtype.Int4
	StartTime pgtype.Timestamp
	EndTime   pgtype.Timestamp
}

func (q *Queries) GetCapturesFromTo(ctx context.Context, arg GetCapturesFromToParams) ([]Capture, error) {
	rows, err := q.db.Query(ctx, getCapturesFromTo, arg.SessionID, arg.StartTime, arg.EndTime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Capture
	for rows.Next() {
		var i Capture
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.Path,
			&i.StartTime,
			&i.EndTime,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
