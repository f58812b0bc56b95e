package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"terrier/internal/property/models"
	"terrier/pkg/domain"
	"terrier/pkg/platform/sentinel"
	txcontext "terrier/pkg/platform/tx"
)

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

const propertyColumns = `
	property_id, owner_ref, address, area_sqft, value, status,
	content_hash, ledger_tx_hash, ledger_block_ref, document_refs,
	created_at, updated_at, version`

func (s *Postgres) Create(ctx context.Context, property *models.Property) error {
	docs, err := json.Marshal(property.DocumentRefs)
	if err != nil {
		return fmt.Errorf("encode document refs: %w", err)
	}

	query := `
		INSERT INTO properties (` + propertyColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		property.PropertyID.String(), property.OwnerRef.String(),
		property.Address, property.AreaSqft, property.Value, string(property.Status),
		property.ContentHash, property.LedgerTx.Hash, property.LedgerTx.BlockRef, docs,
		property.CreatedAt, property.UpdatedAt, property.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert property: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id domain.PropertyID) (*models.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE property_id = $1`
	row := s.execer(ctx).QueryRowContext(ctx, query, id.String())
	property, err := scanProperty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return property, err
}

func (s *Postgres) Update(ctx context.Context, property *models.Property) error {
	docs, err := json.Marshal(property.DocumentRefs)
	if err != nil {
		return fmt.Errorf("encode document refs: %w", err)
	}

	query := `
		UPDATE properties SET
			owner_ref = $2, address = $3, area_sqft = $4, value = $5, status = $6,
			content_hash = $7, ledger_tx_hash = $8, ledger_block_ref = $9,
			document_refs = $10, updated_at = $11,
			version = version + 1
		WHERE property_id = $1 AND version = $12
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		property.PropertyID.String(), property.OwnerRef.String(),
		property.Address, property.AreaSqft, property.Value, string(property.Status),
		property.ContentHash, property.LedgerTx.Hash, property.LedgerTx.BlockRef,
		docs, property.UpdatedAt, property.Version,
	)
	if err != nil {
		return fmt.Errorf("update property: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update property: %w", err)
	}
	if affected == 0 {
		if _, err := s.FindByID(ctx, property.PropertyID); errors.Is(err, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrVersionConflict
	}
	property.Version++
	return nil
}

func (s *Postgres) ListByOwner(ctx context.Context, owner domain.ActorRef) ([]*models.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties WHERE owner_ref = $1 ORDER BY created_at DESC`
	rows, err := s.execer(ctx).QueryContext(ctx, query, owner.String())
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()

	var out []*models.Property
	for rows.Next() {
		property, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, property)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProperty(row rowScanner) (*models.Property, error) {
	var (
		p          models.Property
		id, owner  string
		status     string
		docs       []byte
	)
	err := row.Scan(
		&id, &owner, &p.Address, &p.AreaSqft, &p.Value, &status,
		&p.ContentHash, &p.LedgerTx.Hash, &p.LedgerTx.BlockRef, &docs,
		&p.CreatedAt, &p.UpdatedAt, &p.Version,
	)
	if err != nil {
		return nil, err
	}
	p.PropertyID = domain.PropertyID(id)
	p.OwnerRef = domain.ActorRef(owner)
	p.Status = models.Status(status)
	if len(docs) > 0 {
		if err := json.Unmarshal(docs, &p.DocumentRefs); err != nil {
			return nil, fmt.Errorf("decode document refs: %w", err)
		}
	}
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
