package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"

	constraintOwnerKey       = "ledger_accounts_owner_key"
	constraintIdempotencyKey = "ledger_transactions_idempotency_key"
)

// PostgresStore persists accounts and transactions in PostgreSQL. Commit uses
// an optimistic version check on the account row inside one transaction.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const accountColumns = `id, owner_type, owner_id, currency_class, balance, total_credited, total_debited, version, created_at`

// Account fetches the account for key.
func (s *PostgresStore) Account(ctx context.Context, key AccountKey) (Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+`
        FROM ledger_accounts
        WHERE owner_type = $1 AND owner_id = $2 AND currency_class = $3`,
		string(key.OwnerType), key.OwnerID, string(key.Currency))
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, classify(err)
	}
	return acct, nil
}

// InsertAccount creates a zero-balance account row.
func (s *PostgresStore) InsertAccount(ctx context.Context, acct Account) error {
	id, err := uuid.Parse(acct.ID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO ledger_accounts
        (id, owner_type, owner_id, currency_class, balance, total_credited, total_debited, version, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, string(acct.Key.OwnerType), acct.Key.OwnerID, string(acct.Key.Currency),
		acct.Balance, acct.TotalCredited, acct.TotalDebited, acct.Version, acct.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraintOwnerKey {
			return ErrAccountExists
		}
		return classify(err)
	}
	return nil
}

const transactionColumns = `id, account_id, sequence, type, amount, balance_before, balance_after,
        related_entity_type, related_entity_id, description, actor_type, actor_id,
        COALESCE(idempotency_key, ''), created_at`

// TransactionByIdempotencyKey looks up a prior transaction by its key.
func (s *PostgresStore) TransactionByIdempotencyKey(ctx context.Context, accountID, key string) (Transaction, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return Transaction{}, err
	}
	row := s.db.QueryRow(ctx, `SELECT `+transactionColumns+`
        FROM ledger_transactions
        WHERE account_id = $1 AND idempotency_key = $2`, id, key)
	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, classify(err)
	}
	return tx, nil
}

// Commit updates the account row guarded by its version and appends tx.
func (s *PostgresStore) Commit(ctx context.Context, next Account, expectedVersion int64, tx Transaction) error {
	accountID, err := uuid.Parse(next.ID)
	if err != nil {
		return err
	}
	txID, err := uuid.Parse(tx.ID)
	if err != nil {
		return err
	}

	dbTx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(err)
	}
	defer dbTx.Rollback(ctx) // nolint:errcheck

	cmd, err := dbTx.Exec(ctx, `UPDATE ledger_accounts
        SET balance = $1, total_credited = $2, total_debited = $3, version = $4
        WHERE id = $5 AND version = $6`,
		next.Balance, next.TotalCredited, next.TotalDebited, next.Version, accountID, expectedVersion)
	if err != nil {
		return classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	var idemKey *string
	if tx.IdempotencyKey != "" {
		idemKey = &tx.IdempotencyKey
	}
	_, err = dbTx.Exec(ctx, `INSERT INTO ledger_transactions
        (id, account_id, sequence, type, amount, balance_before, balance_after,
         related_entity_type, related_entity_id, description, actor_type, actor_id, idempotency_key, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		txID, accountID, tx.Sequence, string(tx.Type), tx.Amount, tx.BalanceBefore, tx.BalanceAfter,
		tx.Related.Type, tx.Related.ID, tx.Description, tx.Actor.Type, tx.Actor.ID, idemKey, tx.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			if pgErr.ConstraintName == constraintIdempotencyKey {
				return ErrDuplicateIdempotencyKey
			}
			return ErrVersionConflict
		}
		return classify(err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// Transactions pages through an account's log newest first.
func (s *PostgresStore) Transactions(ctx context.Context, accountID string, filter TransactionFilter) ([]Transaction, int, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM ledger_transactions
        WHERE account_id = $1 AND ($2::text = '' OR type = $2::text)`, id, string(filter.Type)).Scan(&total); err != nil {
		return nil, 0, classify(err)
	}

	rows, err := s.db.Query(ctx, `SELECT `+transactionColumns+`
        FROM ledger_transactions
        WHERE account_id = $1 AND ($2::text = '' OR type = $2::text)
        ORDER BY sequence DESC
        LIMIT $3 OFFSET $4`, id, string(filter.Type), filter.PageSize, filter.Offset())
	if err != nil {
		return nil, 0, classify(err)
	}
	txs, err := collectTransactions(rows)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

// AllTransactions returns the full log in sequence order.
func (s *PostgresStore) AllTransactions(ctx context.Context, accountID string) ([]Transaction, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `SELECT `+transactionColumns+`
        FROM ledger_transactions
        WHERE account_id = $1
        ORDER BY sequence ASC`, id)
	if err != nil {
		return nil, classify(err)
	}
	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()
	txs := []Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, classify(err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return txs, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		acct      Account
		id        uuid.UUID
		ownerType string
		currency  string
	)
	if err := row.Scan(&id, &ownerType, &acct.Key.OwnerID, &currency, &acct.Balance,
		&acct.TotalCredited, &acct.TotalDebited, &acct.Version, &acct.CreatedAt); err != nil {
		return Account{}, err
	}
	acct.ID = id.String()
	acct.Key.OwnerType = OwnerType(ownerType)
	acct.Key.Currency = CurrencyClass(currency)
	acct.CreatedAt = acct.CreatedAt.UTC()
	return acct, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		tx        Transaction
		id        uuid.UUID
		accountID uuid.UUID
		txType    string
	)
	if err := row.Scan(&id, &accountID, &tx.Sequence, &txType, &tx.Amount, &tx.BalanceBefore, &tx.BalanceAfter,
		&tx.Related.Type, &tx.Related.ID, &tx.Description, &tx.Actor.Type, &tx.Actor.ID,
		&tx.IdempotencyKey, &tx.CreatedAt); err != nil {
		return Transaction{}, err
	}
	tx.ID = id.String()
	tx.AccountID = accountID.String()
	tx.Type = TxType(txType)
	tx.CreatedAt = tx.CreatedAt.UTC()
	return tx, nil
}

// classify maps driver errors onto the store's retryable sentinels.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected:
			return ErrVersionConflict
		}
		return fmt.Errorf("postgres %s: %w", pgErr.Code, err)
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
