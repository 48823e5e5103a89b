package payout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores payout requests in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const requestColumns = `id, vendor_id, amount, status, bank_account_id, transaction_id,
        requested_at, decided_at, decided_by, completed_at`

const heldSQL = `SELECT COALESCE(SUM(amount), 0)::bigint FROM payout_requests
        WHERE vendor_id = $1 AND status IN ('PENDING', 'APPROVED')`

// CreateWithinBalance serialises creates per vendor with a transaction-scoped
// advisory lock, so replicas cannot jointly over-commit a wallet.
func (r *PostgresRepository) CreateWithinBalance(ctx context.Context, req Request, balance int64) error {
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "payout:"+req.VendorID); err != nil {
			return err
		}
		var held int64
		if err := tx.QueryRow(ctx, heldSQL, req.VendorID).Scan(&held); err != nil {
			return err
		}
		if req.Amount+held > balance {
			return &ExceedsAvailableError{Requested: req.Amount, Balance: balance, Held: held}
		}
		_, err := tx.Exec(ctx, `INSERT INTO payout_requests
            (id, vendor_id, amount, status, bank_account_id, requested_at)
            VALUES ($1, $2, $3, $4, $5, $6)`,
			id, req.VendorID, req.Amount, string(req.Status), req.BankAccountID, req.RequestedAt.UTC())
		return err
	})
}

// Get fetches a payout request by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Request, error) {
	reqID, err := uuid.Parse(id)
	if err != nil {
		return Request{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM payout_requests WHERE id = $1`, reqID)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	return req, err
}

// List returns the vendor's requests newest first.
func (r *PostgresRepository) List(ctx context.Context, vendorID string, status Status) ([]Request, error) {
	rows, err := r.db.Query(ctx, `SELECT `+requestColumns+` FROM payout_requests
        WHERE vendor_id = $1 AND ($2::text = '' OR status = $2::text)
        ORDER BY requested_at DESC, id DESC`, vendorID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// HeldAmount sums the vendor's open requests.
func (r *PostgresRepository) HeldAmount(ctx context.Context, vendorID string) (int64, error) {
	var held int64
	err := r.db.QueryRow(ctx, heldSQL, vendorID).Scan(&held)
	return held, err
}

// Transition updates the request only while it is still in state from.
func (r *PostgresRepository) Transition(ctx context.Context, id string, from Status, change Change) (Request, error) {
	reqID, err := uuid.Parse(id)
	if err != nil {
		return Request{}, ErrNotFound
	}
	var txID *uuid.UUID
	if change.TransactionID != "" {
		parsed, err := uuid.Parse(change.TransactionID)
		if err != nil {
			return Request{}, err
		}
		txID = &parsed
	}

	row := r.db.QueryRow(ctx, `UPDATE payout_requests SET
            status = $3,
            decided_at = COALESCE($4, decided_at),
            decided_by = CASE WHEN $5::text = '' THEN decided_by ELSE $5::text END,
            transaction_id = COALESCE($6, transaction_id),
            completed_at = COALESCE($7, completed_at)
        WHERE id = $1 AND status = $2
        RETURNING `+requestColumns,
		reqID, string(from), string(change.To), utcPtr(change.DecidedAt), change.DecidedBy, txID, utcPtr(change.CompletedAt))
	req, err := scanRequest(row)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Request{}, err
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return Request{}, err
	}
	return Request{}, &TransitionError{ID: id, From: current.Status, To: change.To}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req    Request
		id     uuid.UUID
		txID   *uuid.UUID
		status string
	)
	if err := row.Scan(&id, &req.VendorID, &req.Amount, &status, &req.BankAccountID, &txID,
		&req.RequestedAt, &req.DecidedAt, &req.DecidedBy, &req.CompletedAt); err != nil {
		return Request{}, err
	}
	req.ID = id.String()
	req.Status = Status(status)
	if txID != nil {
		req.TransactionID = txID.String()
	}
	req.RequestedAt = req.RequestedAt.UTC()
	req.DecidedAt = utcPtr(req.DecidedAt)
	req.CompletedAt = utcPtr(req.CompletedAt)
	return req, nil
}
