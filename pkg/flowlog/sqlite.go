package flowlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"kiroproxy/gateway/pkg/orchestrator"
)

// SQLiteRecorder persists FlowRecords to a SQLite table, for
// deployments that want flow history to survive a restart. Grounded
// on pkg/evidence/storage/sqlite.go's connection setup and schema
// migration pattern, trimmed to this package's single table.
type SQLiteRecorder struct {
	db     *sql.DB
	logger *slog.Logger
}

const createFlowRecordsTable = `
CREATE TABLE IF NOT EXISTS flow_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	protocol TEXT NOT NULL,
	inbound_path TEXT NOT NULL,
	credential_id TEXT,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	stream INTEGER NOT NULL,
	pseudo_stream INTEGER NOT NULL,
	prompt_chars INTEGER NOT NULL,
	chunk_count INTEGER NOT NULL,
	stop_reason TEXT,
	error_type TEXT,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS idx_flow_records_started_at ON flow_records(started_at);
`

// NewSQLiteRecorder opens (creating if absent) the SQLite database at
// path and ensures the flow_records table exists.
func NewSQLiteRecorder(path string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("flowlog: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(4)

	if _, err := db.Exec(createFlowRecordsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("flowlog: migrate schema: %w", err)
	}

	return &SQLiteRecorder{db: db, logger: slog.Default().With("component", "flowlog.sqlite")}, nil
}

// Record implements orchestrator.FlowRecorder. Write failures are
// logged and swallowed — flow logging must never affect the request
// path that produced the record.
func (r *SQLiteRecorder) Record(ctx context.Context, rec orchestrator.FlowRecord) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO flow_records
		(protocol, inbound_path, credential_id, started_at, finished_at, stream, pseudo_stream, prompt_chars, chunk_count, stop_reason, error_type, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.Protocol), rec.InboundPath, rec.CredentialID,
		rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
		boolToInt(rec.Stream), boolToInt(rec.PseudoStream),
		rec.PromptChars, rec.ChunkCount, rec.StopReason,
		string(rec.ErrorType), rec.ErrorMessage,
	)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to persist flow record", "error", err)
	}
}

// Since reports duration, excluded from the insert above but kept as
// a small helper for admin-facing latency queries.
func Since(rec orchestrator.FlowRecord) time.Duration {
	return rec.FinishedAt.Sub(rec.StartedAt)
}

// Close releases the underlying database handle.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
