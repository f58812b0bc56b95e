package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"terrier/internal/audit"
	"terrier/pkg/domain"
	txcontext "terrier/pkg/platform/tx"
)

// Postgres appends audit entries. Writes join any transaction found in
// context so an entry lands atomically with the state change it describes.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) Append(ctx context.Context, entry audit.Entry) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO audit_entries (id, actor_ref, action, subject_ref, occurred_at, ledger_tx_ref, request_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.New(), entry.ActorRef.String(), string(entry.Action), entry.SubjectRef,
		entry.Timestamp, nullable(entry.LedgerTxRef), nullable(entry.RequestID), nullable(entry.Detail))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *Postgres) ListBySubject(ctx context.Context, subjectRef string) ([]audit.Entry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT actor_ref, action, subject_ref, occurred_at, ledger_tx_ref, request_id, detail
		FROM audit_entries
		WHERE subject_ref = $1
		ORDER BY occurred_at ASC
	`, subjectRef)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			e                        audit.Entry
			actor, action            string
			txRef, requestID, detail sql.NullString
		)
		if err := rows.Scan(&actor, &action, &e.SubjectRef, &e.Timestamp, &txRef, &requestID, &detail); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ActorRef = domain.ActorRef(actor)
		e.Action = audit.Action(action)
		e.LedgerTxRef = txRef.String
		e.RequestID = requestID.String
		e.Detail = detail.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
