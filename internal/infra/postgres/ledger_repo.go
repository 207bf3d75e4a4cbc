package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kislikjeka/chargehub/internal/ledger"
	"github.com/kislikjeka/chargehub/pkg/money"
)

// LedgerRepository implements the ledger repository interface using PostgreSQL
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new PostgreSQL ledger repository
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// ctxKey is the context key type for storing database transactions
type ctxKey string

const txContextKey ctxKey = "ledger_tx"

// queryer is satisfied by both *pgxpool.Pool and pgx.Tx
type queryer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// BeginTx starts a database transaction and stores it in the context
func (r *LedgerRepository) BeginTx(ctx context.Context) (context.Context, error) {
	if tx := r.txFromContext(ctx); tx != nil {
		return ctx, fmt.Errorf("transaction already in progress")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return ctx, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return context.WithValue(ctx, txContextKey, tx), nil
}

// CommitTx commits the database transaction from the context
func (r *LedgerRepository) CommitTx(ctx context.Context) error {
	tx := r.txFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTx rolls back the database transaction from the context
func (r *LedgerRepository) RollbackTx(ctx context.Context) error {
	tx := r.txFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}

	if err := tx.Rollback(ctx); err != nil {
		if errors.Is(err, pgx.ErrTxClosed) {
			return nil
		}
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

func (r *LedgerRepository) txFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// getQueryer returns the transaction if one exists in context, otherwise the
// pool. This lets every method work both inside and outside transactions.
func (r *LedgerRepository) getQueryer(ctx context.Context) queryer {
	if tx := r.txFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// Entry operations

// InsertEntry appends an immutable ledger entry. A duplicate id is rejected
// by the primary key.
func (r *LedgerRepository) InsertEntry(ctx context.Context, e *ledger.Entry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid entry: %w", err)
	}

	query := `
		INSERT INTO transactions
			(id, account_id, type, amount, balance_before, balance_after,
			 reference_id, description, admin_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	q := r.getQueryer(ctx)
	_, err := q.Exec(ctx, query,
		e.ID,
		e.AccountID,
		string(e.Type),
		money.Canonical(e.Amount),
		money.Canonical(e.BalanceBefore),
		money.Canonical(e.BalanceAfter),
		e.ReferenceID,
		e.Description,
		e.AdminID,
		e.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

// ListEntriesByReference lists entries stamped with the given reference id,
// ordered by creation time then id.
func (r *LedgerRepository) ListEntriesByReference(ctx context.Context, referenceID string) ([]*ledger.Entry, error) {
	query := `
		SELECT id, account_id, type, amount::text, balance_before::text,
		       balance_after::text, reference_id, description, admin_id, created_at
		FROM transactions
		WHERE reference_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.getQueryer(ctx).Query(ctx, query, referenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListEntriesByAccount lists an account's entries ordered by creation time
// then id, the order readers use to reconstruct balance history.
func (r *LedgerRepository) ListEntriesByAccount(ctx context.Context, accountID int64) ([]*ledger.Entry, error) {
	query := `
		SELECT id, account_id, type, amount::text, balance_before::text,
		       balance_after::text, reference_id, description, admin_id, created_at
		FROM transactions
		WHERE account_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.getQueryer(ctx).Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Wallet balance operations

// UpdateWalletBalance sets the durable balance for an account's wallet.
// Callers hold the wallet pair lock.
func (r *LedgerRepository) UpdateWalletBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	if err := money.ValidateBalance(balance); err != nil {
		return fmt.Errorf("invalid balance: %w", err)
	}

	query := `
		UPDATE wallets
		SET balance = $2, updated_at = now()
		WHERE account_id = $1
	`

	tag, err := r.getQueryer(ctx).Exec(ctx, query, accountID, money.Canonical(balance))
	if err != nil {
		return fmt.Errorf("failed to update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no wallet for account %d", accountID)
	}
	return nil
}

// SumEntryAmounts recomputes an account's balance from its ledger entries
func (r *LedgerRepository) SumEntryAmounts(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)::text
		FROM transactions
		WHERE account_id = $1
	`

	var sum string
	if err := r.getQueryer(ctx).QueryRow(ctx, query, accountID).Scan(&sum); err != nil {
		return money.Zero, fmt.Errorf("failed to sum entries: %w", err)
	}
	return money.Parse(sum)
}

// Credit request lifecycle

// CreateCreditRequest inserts a WAITING credit request
func (r *LedgerRepository) CreateCreditRequest(ctx context.Context, cr *ledger.CreditRequest) error {
	query := `
		INSERT INTO credit_requests (account_id, amount, status, admin_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := r.getQueryer(ctx).QueryRow(ctx, query,
		cr.AccountID,
		money.Canonical(cr.Amount),
		string(cr.Status),
		cr.AdminID,
		cr.CreatedAt,
		cr.UpdatedAt,
	).Scan(&cr.ID)
	if err != nil {
		return fmt.Errorf("failed to create credit request: %w", err)
	}
	return nil
}

// GetCreditRequest retrieves a credit request by id
func (r *LedgerRepository) GetCreditRequest(ctx context.Context, id int64) (*ledger.CreditRequest, error) {
	query := `
		SELECT id, account_id, amount::text, status, admin_id, created_at, updated_at
		FROM credit_requests
		WHERE id = $1
	`
	return r.scanCreditRequest(r.getQueryer(ctx).QueryRow(ctx, query, id))
}

// TransitionCreditRequest moves a request from WAITING to a terminal status,
// stamping the admin. The status precondition in the WHERE clause makes
// exactly one concurrent processor win.
func (r *LedgerRepository) TransitionCreditRequest(ctx context.Context, id int64, to ledger.CreditRequestStatus, adminID int64) (*ledger.CreditRequest, error) {
	if !to.IsTerminal() {
		return nil, fmt.Errorf("credit request transition target %s is not terminal", to)
	}

	query := `
		UPDATE credit_requests
		SET status = $2, admin_id = $3, updated_at = now()
		WHERE id = $1 AND status = 'WAITING'
		RETURNING id, account_id, amount::text, status, admin_id, created_at, updated_at
	`

	cr, err := r.scanCreditRequest(r.getQueryer(ctx).QueryRow(ctx, query, id, string(to), adminID))
	if err != nil {
		if errors.Is(err, ledger.ErrRequestNotWaiting) {
			return nil, ledger.ErrRequestNotWaiting
		}
		return nil, fmt.Errorf("failed to transition credit request: %w", err)
	}
	return cr, nil
}

func (r *LedgerRepository) scanCreditRequest(row pgx.Row) (*ledger.CreditRequest, error) {
	var cr ledger.CreditRequest
	var amount, status string

	err := row.Scan(
		&cr.ID,
		&cr.AccountID,
		&amount,
		&status,
		&cr.AdminID,
		&cr.CreatedAt,
		&cr.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrRequestNotWaiting
		}
		return nil, fmt.Errorf("failed to scan credit request: %w", err)
	}

	cr.Status = ledger.CreditRequestStatus(status)
	cr.Amount, err = money.Parse(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt credit request amount: %w", err)
	}
	return &cr, nil
}

// Charge sale lifecycle

// CreateChargeSale inserts a PENDING charge sale
func (r *LedgerRepository) CreateChargeSale(ctx context.Context, cs *ledger.ChargeSale) error {
	query := `
		INSERT INTO charge_sales (id, seller_id, phone_number, amount, status, transaction_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.getQueryer(ctx).Exec(ctx, query,
		cs.ID,
		cs.SellerID,
		cs.PhoneNumber,
		money.Canonical(cs.Amount),
		string(cs.Status),
		cs.TransactionID,
		cs.CreatedAt,
		cs.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create charge sale: %w", err)
	}
	return nil
}

// GetChargeSale retrieves a charge sale by id
func (r *LedgerRepository) GetChargeSale(ctx context.Context, id uuid.UUID) (*ledger.ChargeSale, error) {
	query := `
		SELECT id, seller_id, phone_number, amount::text, status, transaction_id, created_at, updated_at
		FROM charge_sales
		WHERE id = $1
	`

	var cs ledger.ChargeSale
	var amount, status string

	err := r.getQueryer(ctx).QueryRow(ctx, query, id).Scan(
		&cs.ID,
		&cs.SellerID,
		&cs.PhoneNumber,
		&amount,
		&status,
		&cs.TransactionID,
		&cs.CreatedAt,
		&cs.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrChargeSaleNotFound
		}
		return nil, fmt.Errorf("failed to get charge sale: %w", err)
	}

	cs.Status = ledger.ChargeSaleStatus(status)
	cs.Amount, err = money.Parse(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt charge sale amount: %w", err)
	}
	return &cs, nil
}

// UpdateChargeSale sets a charge sale's status and optional entry linkage
func (r *LedgerRepository) UpdateChargeSale(ctx context.Context, id uuid.UUID, status ledger.ChargeSaleStatus, transactionID *uuid.UUID) error {
	query := `
		UPDATE charge_sales
		SET status = $2, transaction_id = COALESCE($3, transaction_id), updated_at = now()
		WHERE id = $1
	`

	tag, err := r.getQueryer(ctx).Exec(ctx, query, id, string(status), transactionID)
	if err != nil {
		return fmt.Errorf("failed to update charge sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrChargeSaleNotFound
	}
	return nil
}

func scanEntries(rows pgx.Rows) ([]*ledger.Entry, error) {
	var entries []*ledger.Entry

	for rows.Next() {
		var e ledger.Entry
		var typ, amount, before, after string

		err := rows.Scan(
			&e.ID,
			&e.AccountID,
			&typ,
			&amount,
			&before,
			&after,
			&e.ReferenceID,
			&e.Description,
			&e.AdminID,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}

		e.Type = ledger.EntryType(typ)
		if e.Amount, err = money.Parse(amount); err != nil {
			return nil, fmt.Errorf("corrupt entry amount: %w", err)
		}
		if e.BalanceBefore, err = money.Parse(before); err != nil {
			return nil, fmt.Errorf("corrupt entry balance_before: %w", err)
		}
		if e.BalanceAfter, err = money.Parse(after); err != nil {
			return nil, fmt.Errorf("corrupt entry balance_after: %w", err)
		}

		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
