package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"terrier/internal/approval"
	"terrier/pkg/platform/sentinel"
	txcontext "terrier/pkg/platform/tx"
)

// Postgres keeps the policy in a single-row table. The fixed primary key plus
// version-checked writes serialize concurrent admin updates.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) Load(ctx context.Context) (approval.Settings, error) {
	var (
		out          approval.Settings
		approvalType string
		sequence     []byte
	)
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT enabled, required_approvals, approval_type, rank_sequence, updated_at, version
		FROM approval_settings WHERE id = 1
	`).Scan(&out.Enabled, &out.RequiredApprovals, &approvalType, &sequence, &out.UpdatedAt, &out.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return approval.Default(), nil
		}
		return approval.Settings{}, fmt.Errorf("load approval settings: %w", err)
	}
	out.ApprovalType = approval.Type(approvalType)
	if len(sequence) > 0 {
		if err := json.Unmarshal(sequence, &out.RankSequence); err != nil {
			return approval.Settings{}, fmt.Errorf("decode rank sequence: %w", err)
		}
	}
	return out, nil
}

func (s *Postgres) Save(ctx context.Context, settings approval.Settings) error {
	sequence, err := json.Marshal(settings.RankSequence)
	if err != nil {
		return fmt.Errorf("encode rank sequence: %w", err)
	}

	if settings.Version == 0 {
		res, err := s.execer(ctx).ExecContext(ctx, `
			INSERT INTO approval_settings (id, enabled, required_approvals, approval_type, rank_sequence, updated_at, version)
			VALUES (1, $1, $2, $3, $4, $5, 1)
			ON CONFLICT (id) DO NOTHING
		`, settings.Enabled, settings.RequiredApprovals, string(settings.ApprovalType), sequence, settings.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert approval settings: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert approval settings rows affected: %w", err)
		}
		if affected == 0 {
			return sentinel.ErrVersionConflict
		}
		return nil
	}

	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE approval_settings SET
			enabled = $1, required_approvals = $2, approval_type = $3,
			rank_sequence = $4, updated_at = $5, version = version + 1
		WHERE id = 1 AND version = $6
	`, settings.Enabled, settings.RequiredApprovals, string(settings.ApprovalType), sequence, settings.UpdatedAt, settings.Version)
	if err != nil {
		return fmt.Errorf("update approval settings: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update approval settings rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrVersionConflict
	}
	return nil
}
