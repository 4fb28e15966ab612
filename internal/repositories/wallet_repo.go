package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/gton-market/settlement/internal/db"
	"github.com/gton-market/settlement/internal/models"
	"github.com/shopspring/decimal"
)

type WalletRepo struct {
	db db.Querier
}

func NewWalletRepo(q db.Querier) *WalletRepo {
	return &WalletRepo{db: q}
}

const walletColumns = `id, user_id, kind, balance, frozen, created_at, updated_at`

func scanWallet(row interface{ Scan(...any) error }) (*models.Wallet, error) {
	var w models.Wallet
	if err := row.Scan(&w.ID, &w.UserID, &w.Kind, &w.Balance, &w.Frozen, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &w, nil
}

// --- Unit of work (caller passes the transaction) ---

// LockWallet returns the wallet row locked FOR UPDATE, creating it on first use.
func (r *WalletRepo) LockWallet(ctx context.Context, q db.Querier, userID uuid.UUID, kind string) (*models.Wallet, error) {
	_, err := q.Exec(ctx, `
		INSERT INTO wallets (user_id, kind) VALUES ($1, $2)
		ON CONFLICT (user_id, kind) DO NOTHING
	`, userID, kind)
	if err != nil {
		return nil, err
	}

	return scanWallet(q.QueryRow(ctx, `
		SELECT `+walletColumns+`
		FROM wallets WHERE user_id = $1 AND kind = $2
		FOR UPDATE
	`, userID, kind))
}

func (r *WalletRepo) InsertEntry(ctx context.Context, q db.Querier, e *models.LedgerEntry) error {
	return q.QueryRow(ctx, `
		INSERT INTO ledger_entries (
			wallet_id, user_id, direction, amount, balance_before, balance_after,
			source, reference_type, reference_id, description
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`, e.WalletID, e.UserID, e.Direction, e.Amount, e.BalanceBefore, e.BalanceAfter,
		e.Source, e.ReferenceType, e.ReferenceID, e.Description,
	).Scan(&e.ID, &e.CreatedAt)
}

func (r *WalletRepo) UpdateBalance(ctx context.Context, q db.Querier, walletID uuid.UUID, balance, frozen decimal.Decimal) error {
	tag, err := q.Exec(ctx, `
		UPDATE wallets SET balance = $1, frozen = $2, updated_at = now()
		WHERE id = $3
	`, balance, frozen, walletID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Reads ---

func (r *WalletRepo) GetWallet(ctx context.Context, userID uuid.UUID, kind string) (*models.Wallet, error) {
	return scanWallet(r.db.QueryRow(ctx, `
		SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 AND kind = $2
	`, userID, kind))
}

func (r *WalletRepo) GetWalletByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	return scanWallet(r.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id))
}

func (r *WalletRepo) ListWallets(ctx context.Context, userID uuid.UUID) ([]models.Wallet, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 ORDER BY kind
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []models.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, *w)
	}
	return wallets, rows.Err()
}

func (r *WalletRepo) ListWalletIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM wallets ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const entryColumns = `id, wallet_id, user_id, direction, amount, balance_before, balance_after,
	source, reference_type, reference_id, description, created_at`

func (r *WalletRepo) scanEntries(ctx context.Context, sql string, args ...any) ([]models.LedgerEntry, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(
			&e.ID, &e.WalletID, &e.UserID, &e.Direction, &e.Amount, &e.BalanceBefore, &e.BalanceAfter,
			&e.Source, &e.ReferenceType, &e.ReferenceID, &e.Description, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListEntries returns newest first.
func (r *WalletRepo) ListEntries(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return r.scanEntries(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries WHERE wallet_id = $1
		ORDER BY seq DESC LIMIT $2 OFFSET $3
	`, walletID, limit, offset)
}

// ListChain returns every entry of a wallet in insertion order.
func (r *WalletRepo) ListChain(ctx context.Context, walletID uuid.UUID) ([]models.LedgerEntry, error) {
	return r.scanEntries(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries WHERE wallet_id = $1
		ORDER BY seq ASC
	`, walletID)
}
