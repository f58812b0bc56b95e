package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"terrier/internal/dispute/models"
	"terrier/pkg/domain"
	"terrier/pkg/platform/sentinel"
	txcontext "terrier/pkg/platform/tx"
)

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func execer(ctx context.Context, db *sql.DB) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return db
}

// PostgresDisputes persists disputes. The timeline is a JSONB column read
// only as a whole ordered list, and the one-active-dispute invariant is a
// partial unique index on (property_id) for active statuses.
type PostgresDisputes struct {
	db *sql.DB
}

func NewPostgresDisputes(db *sql.DB) *PostgresDisputes {
	return &PostgresDisputes{db: db}
}

type timelineRecord struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	TxRef     string    `json:"tx_ref,omitempty"`
}

const disputeColumns = `
	id, property_id, raised_by, reason, status, timeline, case_ref,
	created_at, updated_at, version`

func (s *PostgresDisputes) Create(ctx context.Context, dispute *models.Dispute) error {
	timeline, err := encodeTimeline(dispute.Timeline)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO disputes (` + disputeColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`
	_, err = execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(dispute.ID), dispute.PropertyID.String(), dispute.RaisedBy.String(),
		dispute.Reason, string(dispute.Status), timeline, nullUUID(uuid.UUID(dispute.CaseRef)),
		dispute.CreatedAt, dispute.UpdatedAt, dispute.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert dispute: %w", err)
	}
	return nil
}

func (s *PostgresDisputes) FindByID(ctx context.Context, id domain.DisputeID) (*models.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE id = $1`
	row := execer(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(id))
	dispute, err := scanDispute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return dispute, err
}

func (s *PostgresDisputes) FindActiveByProperty(ctx context.Context, propertyID domain.PropertyID) (*models.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE property_id = $1 AND status IN ('open', 'in-court')`
	row := execer(ctx, s.db).QueryRowContext(ctx, query, propertyID.String())
	dispute, err := scanDispute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return dispute, err
}

func (s *PostgresDisputes) Update(ctx context.Context, dispute *models.Dispute) error {
	timeline, err := encodeTimeline(dispute.Timeline)
	if err != nil {
		return err
	}

	query := `
		UPDATE disputes SET
			status = $2, timeline = $3, case_ref = $4, updated_at = $5,
			version = version + 1
		WHERE id = $1 AND version = $6
	`
	res, err := execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(dispute.ID), string(dispute.Status), timeline,
		nullUUID(uuid.UUID(dispute.CaseRef)), dispute.UpdatedAt, dispute.Version,
	)
	if err != nil {
		return fmt.Errorf("update dispute: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update dispute: %w", err)
	}
	if affected == 0 {
		if _, err := s.FindByID(ctx, dispute.ID); errors.Is(err, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrVersionConflict
	}
	dispute.Version++
	return nil
}

func (s *PostgresDisputes) ListByProperty(ctx context.Context, propertyID domain.PropertyID) ([]*models.Dispute, error) {
	query := `SELECT ` + disputeColumns + ` FROM disputes WHERE property_id = $1 ORDER BY created_at DESC`
	rows, err := execer(ctx, s.db).QueryContext(ctx, query, propertyID.String())
	if err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	defer rows.Close()

	var out []*models.Dispute
	for rows.Next() {
		dispute, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, dispute)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDispute(row rowScanner) (*models.Dispute, error) {
	var (
		d          models.Dispute
		id         uuid.UUID
		propertyID string
		raisedBy   string
		status     string
		timeline   []byte
		caseRef    uuid.NullUUID
	)
	err := row.Scan(&id, &propertyID, &raisedBy, &d.Reason, &status, &timeline, &caseRef,
		&d.CreatedAt, &d.UpdatedAt, &d.Version)
	if err != nil {
		return nil, err
	}
	d.ID = domain.DisputeID(id)
	d.PropertyID = domain.PropertyID(propertyID)
	d.RaisedBy = domain.ActorRef(raisedBy)
	d.Status = models.Status(status)
	if caseRef.Valid {
		d.CaseRef = domain.CaseID(caseRef.UUID)
	}
	if len(timeline) > 0 {
		var records []timelineRecord
		if err := json.Unmarshal(timeline, &records); err != nil {
			return nil, fmt.Errorf("decode timeline: %w", err)
		}
		d.Timeline = make([]models.TimelineEvent, 0, len(records))
		for _, r := range records {
			d.Timeline = append(d.Timeline, models.TimelineEvent(r))
		}
	}
	return &d, nil
}

func encodeTimeline(events []models.TimelineEvent) ([]byte, error) {
	records := make([]timelineRecord, 0, len(events))
	for _, e := range events {
		records = append(records, timelineRecord(e))
	}
	out, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode timeline: %w", err)
	}
	return out, nil
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
