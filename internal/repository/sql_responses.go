package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

type sqlResponseRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewSQLResponseRepository(db *DB, logger *slog.Logger) ResponseRepository {
	return &sqlResponseRepo{db: db, logger: logger}
}

// Migrate creates the responses table when it does not exist.
func Migrate(ctx context.Context, db *DB) error {
	blob := "BLOB"
	if db.Dialect == DialectPostgres {
		blob = "BYTEA"
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS service_responses (
	session_id  TEXT NOT NULL,
	doc_id      TEXT NOT NULL,
	step        TEXT NOT NULL,
	attempt     INTEGER NOT NULL,
	seq         INTEGER NOT NULL DEFAULT 0,
	path        TEXT NOT NULL DEFAULT '',
	status_code INTEGER NOT NULL,
	body        %s,
	error       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL
)`, blob)
	if _, err := db.SQL.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate service_responses: %w", err)
	}
	_, err := db.SQL.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS service_responses_doc ON service_responses (doc_id)`)
	return err
}

func (r *sqlResponseRepo) SaveResponse(ctx context.Context, resp Response) error {
	q := r.rebind(`INSERT INTO service_responses (session_id, doc_id, step, attempt, seq, path, status_code, body, error, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.SQL.ExecContext(ctx, q,
		resp.SessionID, resp.DocumentID, resp.Step, resp.Attempt, resp.Seq, resp.Path, resp.StatusCode, resp.Body, resp.Error, resp.At.UTC())
	if err != nil {
		r.logger.Error("failed to save response", "doc_id", resp.DocumentID, "step", resp.Step, "error", err)
		return err
	}
	return nil
}

func (r *sqlResponseRepo) ListResponses(ctx context.Context, documentID string) ([]Response, error) {
	q := `SELECT session_id, doc_id, step, attempt, seq, path, status_code, body, error, created_at FROM service_responses`
	var args []any
	if documentID != "" {
		q += ` WHERE doc_id = ?`
		args = append(args, documentID)
	}
	q += ` ORDER BY created_at, attempt, seq`

	rows, err := r.db.SQL.QueryContext(ctx, r.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Response
	for rows.Next() {
		var (
			resp Response
			body []byte
			at   sql.NullTime
		)
		if err := rows.Scan(&resp.SessionID, &resp.DocumentID, &resp.Step, &resp.Attempt, &resp.Seq, &resp.Path, &resp.StatusCode, &body, &resp.Error, &at); err != nil {
			return nil, err
		}
		resp.Body = body
		if at.Valid {
			resp.At = at.Time
		}
		out = append(out, resp)
	}
	return out, rows.Err()
}

// rebind rewrites ? placeholders to $n for Postgres.
func (r *sqlResponseRepo) rebind(q string) string {
	if r.db.Dialect != DialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, c := range q {
		if c == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
