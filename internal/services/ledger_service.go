package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/gton-market/settlement/internal/db"
	"github.com/gton-market/settlement/internal/models"
	"github.com/gton-market/settlement/internal/money"
	"github.com/gton-market/settlement/internal/repositories"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type WalletStore interface {
	LockWallet(ctx context.Context, q db.Querier, userID uuid.UUID, kind string) (*models.Wallet, error)
	InsertEntry(ctx context.Context, q db.Querier, e *models.LedgerEntry) error
	UpdateBalance(ctx context.Context, q db.Querier, walletID uuid.UUID, balance, frozen decimal.Decimal) error
	GetWallet(ctx context.Context, userID uuid.UUID, kind string) (*models.Wallet, error)
	GetWalletByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	ListWallets(ctx context.Context, userID uuid.UUID) ([]models.Wallet, error)
	ListEntries(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.LedgerEntry, error)
	ListChain(ctx context.Context, walletID uuid.UUID) ([]models.LedgerEntry, error)
	ListWalletIDs(ctx context.Context) ([]uuid.UUID, error)
}

// Transactor runs fn in one database transaction (db.Transactor).
type Transactor interface {
	InTx(ctx context.Context, fn func(q db.Querier) error) error
}

// DebitEvent is emitted after a debit committed.
type DebitEvent struct {
	UserID     uuid.UUID
	WalletKind string
	EntryID    uuid.UUID
	Amount     decimal.Decimal
}

type DebitObserver interface {
	OnDebit(ctx context.Context, ev DebitEvent) error
}

type CreditRequest struct {
	UserID        uuid.UUID
	Kind          string
	Amount        decimal.Decimal
	Source        string
	ReferenceType string
	ReferenceID   *uuid.UUID
	Description   string
}

type DebitRequest struct {
	UserID        uuid.UUID
	Kind          string
	Amount        decimal.Decimal
	Source        string
	Reason        string
	ReferenceType string
	ReferenceID   *uuid.UUID
}

type LedgerResult struct {
	Wallet *models.Wallet      `json:"wallet"`
	Entry  *models.LedgerEntry `json:"entry"`
}

// LedgerService is the only writer of wallet balances. Every mutation locks
// the wallet row, appends one ledger entry with before/after snapshots and
// updates the balance in the same transaction.
type LedgerService struct {
	wallets  WalletStore
	tx       Transactor
	observer DebitObserver
	log      *zap.Logger
}

func NewLedgerService(wallets WalletStore, tx Transactor, log *zap.Logger) *LedgerService {
	return &LedgerService{wallets: wallets, tx: tx, log: log}
}

// SetDebitObserver wires the commission cascade after both services exist.
func (s *LedgerService) SetDebitObserver(o DebitObserver) {
	s.observer = o
}

func validateMutation(kind *string, amount decimal.Decimal, source string) error {
	if *kind == "" {
		*kind = models.WalletKindMain
	}
	if !models.IsValidWalletKind(*kind) {
		return fmt.Errorf("%w: %q", ErrInvalidWalletKind, *kind)
	}
	if !models.IsValidSource(source) {
		return fmt.Errorf("%w: %q", ErrInvalidSource, source)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	if !amount.Equal(money.Round(amount)) {
		return fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, money.Scale)
	}
	return nil
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *LedgerService) Credit(ctx context.Context, req CreditRequest) (*LedgerResult, error) {
	var res *LedgerResult
	err := s.tx.InTx(ctx, func(q db.Querier) error {
		var err error
		res, err = s.CreditTx(ctx, q, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CreditTx is Credit inside a caller-owned transaction.
func (s *LedgerService) CreditTx(ctx context.Context, q db.Querier, req CreditRequest) (*LedgerResult, error) {
	if err := validateMutation(&req.Kind, req.Amount, req.Source); err != nil {
		return nil, err
	}

	w, err := s.wallets.LockWallet(ctx, q, req.UserID, req.Kind)
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}

	entry := &models.LedgerEntry{
		WalletID:      w.ID,
		UserID:        req.UserID,
		Direction:     models.DirectionCredit,
		Amount:        req.Amount,
		BalanceBefore: w.Balance,
		BalanceAfter:  w.Balance.Add(req.Amount),
		Source:        req.Source,
		ReferenceType: optString(req.ReferenceType),
		ReferenceID:   req.ReferenceID,
		Description:   optString(req.Description),
	}
	if err := s.apply(ctx, q, w, entry); err != nil {
		return nil, err
	}
	return &LedgerResult{Wallet: w, Entry: entry}, nil
}

// Debit fails with ErrInsufficientBalance when amount exceeds balance minus
// frozen. After commit the debit observer runs; its failure never affects
// the debit.
func (s *LedgerService) Debit(ctx context.Context, req DebitRequest) (*LedgerResult, error) {
	var res *LedgerResult
	err := s.tx.InTx(ctx, func(q db.Querier) error {
		var err error
		res, err = s.DebitTx(ctx, q, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifyDebit(ctx, res)
	return res, nil
}

// DebitTx is Debit inside a caller-owned transaction. The observer is not
// called: the caller has not committed yet.
func (s *LedgerService) DebitTx(ctx context.Context, q db.Querier, req DebitRequest) (*LedgerResult, error) {
	if err := validateMutation(&req.Kind, req.Amount, req.Source); err != nil {
		return nil, err
	}

	w, err := s.wallets.LockWallet(ctx, q, req.UserID, req.Kind)
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	if req.Amount.GreaterThan(w.Available()) {
		return nil, fmt.Errorf("%w: available %s, requested %s", ErrInsufficientBalance, money.String(w.Available()), money.String(req.Amount))
	}

	entry := &models.LedgerEntry{
		WalletID:      w.ID,
		UserID:        req.UserID,
		Direction:     models.DirectionDebit,
		Amount:        req.Amount,
		BalanceBefore: w.Balance,
		BalanceAfter:  w.Balance.Sub(req.Amount),
		Source:        req.Source,
		ReferenceType: optString(req.ReferenceType),
		ReferenceID:   req.ReferenceID,
		Description:   optString(req.Reason),
	}
	if err := s.apply(ctx, q, w, entry); err != nil {
		return nil, err
	}
	return &LedgerResult{Wallet: w, Entry: entry}, nil
}

func (s *LedgerService) apply(ctx context.Context, q db.Querier, w *models.Wallet, entry *models.LedgerEntry) error {
	if err := s.wallets.InsertEntry(ctx, q, entry); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	if err := s.wallets.UpdateBalance(ctx, q, w.ID, entry.BalanceAfter, w.Frozen); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	w.Balance = entry.BalanceAfter
	return nil
}

func (s *LedgerService) notifyDebit(ctx context.Context, res *LedgerResult) {
	if s.observer == nil {
		return
	}
	ev := DebitEvent{
		UserID:     res.Entry.UserID,
		WalletKind: res.Wallet.Kind,
		EntryID:    res.Entry.ID,
		Amount:     res.Entry.Amount,
	}
	if err := s.observer.OnDebit(ctx, ev); err != nil {
		s.log.Error("debit observer failed",
			zap.String("user_id", ev.UserID.String()),
			zap.String("entry_id", ev.EntryID.String()),
			zap.Error(err),
		)
	}
}

// Freeze reserves part of the available balance. No ledger entry: the
// balance itself does not change.
func (s *LedgerService) Freeze(ctx context.Context, userID uuid.UUID, kind string, amount decimal.Decimal) (*models.Wallet, error) {
	if err := validateMutation(&kind, amount, models.SourceService); err != nil {
		return nil, err
	}
	var w *models.Wallet
	err := s.tx.InTx(ctx, func(q db.Querier) error {
		var err error
		w, err = s.wallets.LockWallet(ctx, q, userID, kind)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}
		if amount.GreaterThan(w.Available()) {
			return ErrInsufficientBalance
		}
		w.Frozen = w.Frozen.Add(amount)
		return s.wallets.UpdateBalance(ctx, q, w.ID, w.Balance, w.Frozen)
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (s *LedgerService) Unfreeze(ctx context.Context, userID uuid.UUID, kind string, amount decimal.Decimal) (*models.Wallet, error) {
	if err := validateMutation(&kind, amount, models.SourceService); err != nil {
		return nil, err
	}
	var w *models.Wallet
	err := s.tx.InTx(ctx, func(q db.Querier) error {
		var err error
		w, err = s.wallets.LockWallet(ctx, q, userID, kind)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}
		if amount.GreaterThan(w.Frozen) {
			return fmt.Errorf("%w: frozen %s, requested %s", ErrInvalidAmount, money.String(w.Frozen), money.String(amount))
		}
		w.Frozen = w.Frozen.Sub(amount)
		return s.wallets.UpdateBalance(ctx, q, w.ID, w.Balance, w.Frozen)
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// GetWallet returns a zero wallet when the user never had one of this kind.
func (s *LedgerService) GetWallet(ctx context.Context, userID uuid.UUID, kind string) (*models.Wallet, error) {
	if !models.IsValidWalletKind(kind) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWalletKind, kind)
	}
	w, err := s.wallets.GetWallet(ctx, userID, kind)
	if errors.Is(err, repositories.ErrNotFound) {
		return &models.Wallet{UserID: userID, Kind: kind}, nil
	}
	return w, err
}

func (s *LedgerService) ListWallets(ctx context.Context, userID uuid.UUID) ([]models.Wallet, error) {
	return s.wallets.ListWallets(ctx, userID)
}

func (s *LedgerService) ListEntries(ctx context.Context, userID uuid.UUID, kind string, limit, offset int) ([]models.LedgerEntry, error) {
	if !models.IsValidWalletKind(kind) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWalletKind, kind)
	}
	w, err := s.wallets.GetWallet(ctx, userID, kind)
	if errors.Is(err, repositories.ErrNotFound) {
		return []models.LedgerEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.wallets.ListEntries(ctx, w.ID, limit, offset)
}

type ChainBreak struct {
	EntryID uuid.UUID `json:"entry_id"`
	Reason  string    `json:"reason"`
}

type ChainReport struct {
	WalletID uuid.UUID       `json:"wallet_id"`
	Entries  int             `json:"entries"`
	Balance  decimal.Decimal `json:"balance"`
	Computed decimal.Decimal `json:"computed"`
	Breaks   []ChainBreak    `json:"breaks,omitempty"`
}

func (r *ChainReport) OK() bool {
	return len(r.Breaks) == 0 && r.Balance.Equal(r.Computed)
}

// VerifyChain replays a wallet's entries: each before must equal the previous
// after, each after must equal before +/- amount, and the last after must
// equal the stored balance.
func (s *LedgerService) VerifyChain(ctx context.Context, walletID uuid.UUID) (*ChainReport, error) {
	w, err := s.wallets.GetWalletByID(ctx, walletID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	entries, err := s.wallets.ListChain(ctx, walletID)
	if err != nil {
		return nil, err
	}

	report := &ChainReport{WalletID: walletID, Entries: len(entries), Balance: w.Balance}
	running := decimal.Zero
	for _, e := range entries {
		if !e.Amount.IsPositive() {
			report.Breaks = append(report.Breaks, ChainBreak{EntryID: e.ID, Reason: "non-positive amount"})
		}
		if !e.BalanceBefore.Equal(running) {
			report.Breaks = append(report.Breaks, ChainBreak{
				EntryID: e.ID,
				Reason:  fmt.Sprintf("balance_before %s, expected %s", money.String(e.BalanceBefore), money.String(running)),
			})
		}
		if !e.BalanceAfter.Equal(e.BalanceBefore.Add(e.Signed())) {
			report.Breaks = append(report.Breaks, ChainBreak{EntryID: e.ID, Reason: "balance_after does not match amount"})
		}
		if e.BalanceAfter.IsNegative() {
			report.Breaks = append(report.Breaks, ChainBreak{EntryID: e.ID, Reason: "negative balance"})
		}
		running = e.BalanceAfter
	}
	report.Computed = running
	return report, nil
}

// AllWalletIDs is used by the audit command.
func (s *LedgerService) AllWalletIDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.wallets.ListWalletIDs(ctx)
}
