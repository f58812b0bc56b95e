package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"terrier/internal/dispute/models"
	"terrier/pkg/domain"
	"terrier/pkg/platform/sentinel"
)

type PostgresCases struct {
	db *sql.DB
}

func NewPostgresCases(db *sql.DB) *PostgresCases {
	return &PostgresCases{db: db}
}

type orderRecord struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type hearingRecord struct {
	Date  time.Time `json:"date"`
	Venue string    `json:"venue,omitempty"`
}

const caseColumns = `
	id, dispute_id, property_id, status, orders, hearings, resolution,
	created_at, updated_at, version`

func (s *PostgresCases) Create(ctx context.Context, c *models.Case) error {
	orders, hearings, err := encodeCaseLists(c)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO cases (` + caseColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`
	_, err = execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(c.ID), uuid.UUID(c.DisputeID), c.PropertyID.String(),
		string(c.Status), orders, hearings, nullStr(c.Resolution),
		c.CreatedAt, c.UpdatedAt, c.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

func (s *PostgresCases) FindByID(ctx context.Context, id domain.CaseID) (*models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = $1`
	row := execer(ctx, s.db).QueryRowContext(ctx, query, uuid.UUID(id))
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return c, err
}

func (s *PostgresCases) Update(ctx context.Context, c *models.Case) error {
	orders, hearings, err := encodeCaseLists(c)
	if err != nil {
		return err
	}

	query := `
		UPDATE cases SET
			status = $2, orders = $3, hearings = $4, resolution = $5,
			updated_at = $6, version = version + 1
		WHERE id = $1 AND version = $7
	`
	res, err := execer(ctx, s.db).ExecContext(ctx, query,
		uuid.UUID(c.ID), string(c.Status), orders, hearings,
		nullStr(c.Resolution), c.UpdatedAt, c.Version,
	)
	if err != nil {
		return fmt.Errorf("update case: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update case: %w", err)
	}
	if affected == 0 {
		if _, err := s.FindByID(ctx, c.ID); errors.Is(err, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrVersionConflict
	}
	c.Version++
	return nil
}

func scanCase(row rowScanner) (*models.Case, error) {
	var (
		c          models.Case
		id         uuid.UUID
		disputeID  uuid.UUID
		propertyID string
		status     string
		orders     []byte
		hearings   []byte
		resolution sql.NullString
	)
	err := row.Scan(&id, &disputeID, &propertyID, &status, &orders, &hearings, &resolution,
		&c.CreatedAt, &c.UpdatedAt, &c.Version)
	if err != nil {
		return nil, err
	}
	c.ID = domain.CaseID(id)
	c.DisputeID = domain.DisputeID(disputeID)
	c.PropertyID = domain.PropertyID(propertyID)
	c.Status = models.CaseStatus(status)
	c.Resolution = resolution.String
	if len(orders) > 0 {
		var records []orderRecord
		if err := json.Unmarshal(orders, &records); err != nil {
			return nil, fmt.Errorf("decode orders: %w", err)
		}
		for _, r := range records {
			c.Orders = append(c.Orders, models.Order(r))
		}
	}
	if len(hearings) > 0 {
		var records []hearingRecord
		if err := json.Unmarshal(hearings, &records); err != nil {
			return nil, fmt.Errorf("decode hearings: %w", err)
		}
		for _, r := range records {
			c.Hearings = append(c.Hearings, models.Hearing(r))
		}
	}
	return &c, nil
}

func encodeCaseLists(c *models.Case) ([]byte, []byte, error) {
	orders := make([]orderRecord, 0, len(c.Orders))
	for _, o := range c.Orders {
		orders = append(orders, orderRecord(o))
	}
	hearings := make([]hearingRecord, 0, len(c.Hearings))
	for _, h := range c.Hearings {
		hearings = append(hearings, hearingRecord(h))
	}
	encodedOrders, err := json.Marshal(orders)
	if err != nil {
		return nil, nil, fmt.Errorf("encode orders: %w", err)
	}
	encodedHearings, err := json.Marshal(hearings)
	if err != nil {
		return nil, nil, fmt.Errorf("encode hearings: %w", err)
	}
	return encodedOrders, encodedHearings, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
