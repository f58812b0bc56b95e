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

	"terrier/internal/application/models"
	"terrier/pkg/domain"
	"terrier/pkg/platform/sentinel"
	txcontext "terrier/pkg/platform/tx"
)

// Postgres persists applications. Approvals are stored as a JSONB column:
// they are only ever read as a whole ordered list, never queried by field.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

type approvalRecord struct {
	RegistrarRef string    `json:"registrar_ref"`
	Rank         string    `json:"rank,omitempty"`
	Decision     string    `json:"decision"`
	Comment      string    `json:"comment,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

const applicationColumns = `
	id, kind, status, applicant_ref,
	owner_name, address, area_sqft, declared_value, draft_property_id, document_refs,
	approvals, rejection_reason,
	certification_state, certification_property_id, certification_reserved_at,
	property_id, ledger_tx_hash,
	created_at, updated_at, version`

func (s *Postgres) Create(ctx context.Context, app *models.Application) error {
	approvals, docs, err := encodeLists(app)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO applications (` + applicationColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(app.ID), string(app.Kind), string(app.Status), app.ApplicantRef.String(),
		app.Draft.OwnerName, app.Draft.Address, app.Draft.AreaSqft, app.Draft.DeclaredValue,
		nullString(app.Draft.PropertyID.String()), docs,
		approvals, nullString(app.RejectionReason),
		nullString(string(app.Certification.State)), nullString(app.Certification.PropertyID.String()),
		nullTime(app.Certification.ReservedAt),
		nullString(app.PropertyID.String()), nullString(app.LedgerTxHash),
		app.CreatedAt, app.UpdatedAt, app.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id domain.ApplicationID) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	row := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(id))
	app, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find application: %w", err)
	}
	return app, nil
}

func (s *Postgres) Update(ctx context.Context, app *models.Application) error {
	approvals, docs, err := encodeLists(app)
	if err != nil {
		return err
	}

	query := `
		UPDATE applications SET
			status = $2, approvals = $3, rejection_reason = $4,
			certification_state = $5, certification_property_id = $6, certification_reserved_at = $7,
			property_id = $8, ledger_tx_hash = $9,
			document_refs = $10, updated_at = $11, version = version + 1
		WHERE id = $1 AND version = $12
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(app.ID), string(app.Status), approvals, nullString(app.RejectionReason),
		nullString(string(app.Certification.State)), nullString(app.Certification.PropertyID.String()),
		nullTime(app.Certification.ReservedAt),
		nullString(app.PropertyID.String()), nullString(app.LedgerTxHash),
		docs, app.UpdatedAt, app.Version,
	)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update application rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish missing row from stale version.
		var exists bool
		if err := s.execer(ctx).QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM applications WHERE id = $1)`, uuid.UUID(app.ID)).Scan(&exists); err != nil {
			return fmt.Errorf("update application existence check: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrVersionConflict
	}
	app.Version++
	return nil
}

func (s *Postgres) ListByApplicant(ctx context.Context, applicant domain.ActorRef) ([]*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE applicant_ref = $1 ORDER BY created_at DESC`
	rows, err := s.execer(ctx).QueryContext(ctx, query, applicant.String())
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var out []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app          models.Application
		id           uuid.UUID
		kind, status string
		applicant    string

		draftPropertyID sql.NullString
		docsJSON        []byte
		approvalsJSON   []byte
		rejection       sql.NullString

		certState      sql.NullString
		certPropertyID sql.NullString
		certReservedAt sql.NullTime

		propertyID sql.NullString
		txHash     sql.NullString
	)
	if err := row.Scan(
		&id, &kind, &status, &applicant,
		&app.Draft.OwnerName, &app.Draft.Address, &app.Draft.AreaSqft, &app.Draft.DeclaredValue,
		&draftPropertyID, &docsJSON,
		&approvalsJSON, &rejection,
		&certState, &certPropertyID, &certReservedAt,
		&propertyID, &txHash,
		&app.CreatedAt, &app.UpdatedAt, &app.Version,
	); err != nil {
		return nil, err
	}

	app.ID = domain.ApplicationID(id)
	app.Kind = domain.ApplicationKind(kind)
	app.Status = models.Status(status)
	app.ApplicantRef = domain.ActorRef(applicant)
	app.Draft.PropertyID = domain.PropertyID(draftPropertyID.String)
	app.RejectionReason = rejection.String
	app.Certification.State = models.CertificationState(certState.String)
	app.Certification.PropertyID = domain.PropertyID(certPropertyID.String)
	if certReservedAt.Valid {
		app.Certification.ReservedAt = certReservedAt.Time
	}
	app.PropertyID = domain.PropertyID(propertyID.String)
	app.LedgerTxHash = txHash.String

	if len(docsJSON) > 0 {
		if err := json.Unmarshal(docsJSON, &app.Draft.DocumentRefs); err != nil {
			return nil, fmt.Errorf("decode document refs: %w", err)
		}
	}
	if len(approvalsJSON) > 0 {
		var records []approvalRecord
		if err := json.Unmarshal(approvalsJSON, &records); err != nil {
			return nil, fmt.Errorf("decode approvals: %w", err)
		}
		for _, r := range records {
			app.Approvals = append(app.Approvals, models.Approval{
				RegistrarRef: domain.ActorRef(r.RegistrarRef),
				Rank:         r.Rank,
				Decision:     models.Decision(r.Decision),
				Comment:      r.Comment,
				Timestamp:    r.Timestamp,
			})
		}
	}
	return &app, nil
}

func encodeLists(app *models.Application) (approvals, docs []byte, err error) {
	records := make([]approvalRecord, 0, len(app.Approvals))
	for _, a := range app.Approvals {
		records = append(records, approvalRecord{
			RegistrarRef: a.RegistrarRef.String(),
			Rank:         a.Rank,
			Decision:     string(a.Decision),
			Comment:      a.Comment,
			Timestamp:    a.Timestamp,
		})
	}
	approvals, err = json.Marshal(records)
	if err != nil {
		return nil, nil, fmt.Errorf("encode approvals: %w", err)
	}
	docs, err = json.Marshal(app.Draft.DocumentRefs)
	if err != nil {
		return nil, nil, fmt.Errorf("encode document refs: %w", err)
	}
	return approvals, docs, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
