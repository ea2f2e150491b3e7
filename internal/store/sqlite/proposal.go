// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/elemarin/paw/internal/store"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

var _ store.ProposalStore = (*ProposalStore)(nil)

// ProposalStore implements store.ProposalStore.
type ProposalStore struct {
	db *sql.DB
}

const proposalColumns = `id, name, description, kind, runtime, source, status, test_output, reject_reason,
approved_by, history, created_at, updated_at`

func (s *ProposalStore) CreateProposal(ctx context.Context, p *store.Proposal) error {
	if p.ID == "" || p.Name == "" {
		return pawerr.New(pawerr.CodeStoreInvalidInput, "proposal: ID and Name are required")
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt

	history, err := json.Marshal(p.History)
	if err != nil {
		return pawerr.Wrapf(err, pawerr.CodeStoreInvalidInput, "encoding history of proposal %s", p.ID)
	}

	q := `INSERT INTO proposals (` + proposalColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q,
		p.ID,
		p.Name,
		p.Description,
		string(p.Kind),
		p.Runtime,
		p.Source,
		string(p.Status),
		p.TestOutput,
		p.RejectReason,
		p.ApprovedBy,
		string(history),
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
	)
	if isConstraint(err) {
		return pawerr.Wrapf(store.ErrConflict, pawerr.CodeStoreConflict, "proposal %s already exists", p.ID)
	}
	if err != nil {
		return pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "creating proposal %s", p.ID)
	}
	return nil
}

func (s *ProposalStore) GetProposal(ctx context.Context, id string) (*store.Proposal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = ?`, id)
	p, err := scanProposal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(pawerr.CodeStoreProposalGetNotFound, "proposal %s not found", id)
	}
	if err != nil {
		return nil, pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "getting proposal %s", id)
	}
	return p, nil
}

func (s *ProposalStore) UpdateProposal(ctx context.Context, p *store.Proposal, expected store.ProposalStatus) error {
	history, err := json.Marshal(p.History)
	if err != nil {
		return pawerr.Wrapf(err, pawerr.CodeStoreInvalidInput, "encoding history of proposal %s", p.ID)
	}
	p.UpdatedAt = time.Now()

	const q = `UPDATE proposals SET name = ?, description = ?, source = ?, status = ?, test_output = ?,
reject_reason = ?, approved_by = ?, history = ?, updated_at = ? WHERE id = ? AND status = ?`
	result, err := s.db.ExecContext(ctx, q,
		p.Name,
		p.Description,
		p.Source,
		string(p.Status),
		p.TestOutput,
		p.RejectReason,
		p.ApprovedBy,
		string(history),
		formatTime(p.UpdatedAt),
		p.ID,
		string(expected),
	)
	if err != nil {
		return pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "updating proposal %s", p.ID)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "checking rows affected for proposal %s", p.ID)
	}
	if rows == 1 {
		return nil
	}

	current, err := s.GetProposal(ctx, p.ID)
	if err != nil {
		return err
	}
	return pawerr.Wrapf(store.ErrConflict, pawerr.CodeStoreProposalUpdateConflict,
		"proposal %s is %s, expected %s", p.ID, current.Status, expected)
}

func (s *ProposalStore) ListProposals(ctx context.Context, status store.ProposalStatus) ([]*store.Proposal, error) {
	q := `SELECT ` + proposalColumns + ` FROM proposals`
	var args []any
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "listing proposals")
	}
	defer rows.Close()

	var out []*store.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, pawerr.Wrapf(err, pawerr.CodeStoreDatabaseFailure, "scanning proposal row")
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProposal(row scanner) (*store.Proposal, error) {
	var p store.Proposal
	var history, createdAt, updatedAt string
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Kind,
		&p.Runtime,
		&p.Source,
		&p.Status,
		&p.TestOutput,
		&p.RejectReason,
		&p.ApprovedBy,
		&history,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	if history != "" && history != "null" {
		if err := json.Unmarshal([]byte(history), &p.History); err != nil {
			return nil, err
		}
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}
