package db

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v5"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the tables and indexes the backend needs if they do
// not exist yet. It is safe to run on every start.
func EnsureSchema(ctx context.Context, db DBTX) error {
	// The schema is a multi-statement script, which the extended protocol
	// refuses to run.
	_, err := db.Exec(ctx, schemaSQL, pgx.QueryExecModeSimpleProtocol)
	return err
}
