package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"veilink/internal/metrics"
	"veilink/internal/models"
	"veilink/internal/payments"
)

// Sentinel errors surfaced to callers.
var (
	// ErrInsufficientFunds means a charge would drive available below zero.
	// No partial charge is made.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	// ErrPaymentDeclined means the upstream capture rejected a deposit. No
	// balance mutation occurred.
	ErrPaymentDeclined = errors.New("ledger: payment declined")
	// ErrPaymentFailed means a transient processor or storage failure. The
	// caller may retry.
	ErrPaymentFailed = errors.New("ledger: payment failed")
)

const lockStripes = 64

// WalletStore persists per-account balances. Debit must be conditional: it
// fails with ErrInsufficientFunds instead of going negative.
type WalletStore interface {
	Get(ctx context.Context, accountID int64) (*models.Wallet, error)
	Debit(ctx context.Context, accountID, amountCents int64) (*models.Wallet, error)
	Credit(ctx context.Context, accountID, amountCents int64) (*models.Wallet, error)
	AdjustPending(ctx context.Context, accountID, deltaCents int64) (*models.Wallet, error)
}

// TransactionStore appends ledger entries and finalizes pending ones.
type TransactionStore interface {
	Append(ctx context.Context, tx *models.Transaction) error
	Finalize(ctx context.Context, id uuid.UUID, status string, balanceAfterCents int64, reference string) error
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]models.Transaction, error)
}

// Service is the authoritative wallet mutation path. Every balance change goes
// through Charge, Deposit or Refund and leaves a matching transaction row.
// Operations on the same account are serialized with striped mutexes.
type Service struct {
	wallets WalletStore
	txs     TransactionStore
	capture payments.CaptureProvider
	logger  *zap.Logger
	locks   [lockStripes]sync.Mutex
}

// NewService builds the ledger service.
func NewService(wallets WalletStore, txs TransactionStore, capture payments.CaptureProvider, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		wallets: wallets,
		txs:     txs,
		capture: capture,
		logger:  logger,
	}
}

func (s *Service) lock(accountID int64) *sync.Mutex {
	return &s.locks[uint64(accountID)%lockStripes]
}

// Balance returns the current wallet aggregate.
func (s *Service) Balance(ctx context.Context, accountID int64) (*models.Wallet, error) {
	return s.wallets.Get(ctx, accountID)
}

// History returns the most recent transactions for the account.
func (s *Service) History(ctx context.Context, accountID int64, limit int) ([]models.Transaction, error) {
	return s.txs.ListByAccount(ctx, accountID, limit)
}

// Charge atomically checks available >= amount, decrements it, and appends a
// completed charge transaction. Fails with ErrInsufficientFunds otherwise; no
// partial charge is ever recorded.
func (s *Service) Charge(ctx context.Context, accountID, amountCents int64, readingID uuid.UUID) (*models.Wallet, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("ledger: invalid charge amount %d", amountCents)
	}

	mu := s.lock(accountID)
	mu.Lock()
	defer mu.Unlock()

	wallet, err := s.wallets.Debit(ctx, accountID, amountCents)
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			metrics.ChargesTotal.WithLabelValues("insufficient").Inc()
			return nil, ErrInsufficientFunds
		}
		metrics.ChargesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("ledger: debit: %w", err)
	}

	readingRef := readingID
	tx := &models.Transaction{
		ID:                uuid.New(),
		AccountID:         accountID,
		ReadingID:         &readingRef,
		Type:              models.TransactionTypeCharge,
		AmountCents:       amountCents,
		BalanceAfterCents: wallet.AvailableCents,
		Status:            models.TransactionStatusCompleted,
	}
	if err := s.txs.Append(ctx, tx); err != nil {
		// Put the money back so wallet and history stay reconciled.
		if _, compErr := s.wallets.Credit(ctx, accountID, amountCents); compErr != nil {
			s.logger.Error("charge compensation failed",
				zap.Int64("account_id", accountID),
				zap.Int64("amount_cents", amountCents),
				zap.Error(compErr),
			)
		}
		metrics.ChargesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("ledger: append charge: %w", err)
	}

	metrics.ChargesTotal.WithLabelValues("ok").Inc()
	return wallet, nil
}

// Deposit records a pending transaction, asks the capture provider to move
// money, and only credits available balance once the capture confirms. A
// declined or failed capture leaves the balance untouched.
func (s *Service) Deposit(ctx context.Context, accountID, amountCents int64, methodRef string) (*models.Wallet, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("ledger: invalid deposit amount %d", amountCents)
	}

	mu := s.lock(accountID)
	mu.Lock()
	defer mu.Unlock()

	tx := &models.Transaction{
		ID:          uuid.New(),
		AccountID:   accountID,
		Type:        models.TransactionTypeDeposit,
		AmountCents: amountCents,
		Status:      models.TransactionStatusPending,
	}
	if err := s.txs.Append(ctx, tx); err != nil {
		return nil, fmt.Errorf("ledger: append deposit: %w", err)
	}
	if _, err := s.wallets.AdjustPending(ctx, accountID, amountCents); err != nil {
		// The pending row was already appended; close it out so history never
		// carries a dangling pending entry for a deposit that went nowhere.
		if finErr := s.txs.Finalize(ctx, tx.ID, models.TransactionStatusFailed, 0, ""); finErr != nil {
			s.logger.Error("failed to finalize aborted deposit", zap.String("tx_id", tx.ID.String()), zap.Error(finErr))
		}
		return nil, fmt.Errorf("ledger: hold pending: %w", err)
	}

	reference, err := s.capture.Capture(ctx, amountCents, methodRef)
	if err != nil {
		if _, adjErr := s.wallets.AdjustPending(ctx, accountID, -amountCents); adjErr != nil {
			s.logger.Error("failed to release pending amount", zap.Int64("account_id", accountID), zap.Error(adjErr))
		}
		wallet, getErr := s.wallets.Get(ctx, accountID)
		balanceAfter := int64(0)
		if getErr == nil {
			balanceAfter = wallet.AvailableCents
		}
		if finErr := s.txs.Finalize(ctx, tx.ID, models.TransactionStatusFailed, balanceAfter, ""); finErr != nil {
			s.logger.Error("failed to finalize declined deposit", zap.String("tx_id", tx.ID.String()), zap.Error(finErr))
		}

		if errors.Is(err, payments.ErrDeclined) {
			metrics.DepositsTotal.WithLabelValues("declined").Inc()
			return nil, ErrPaymentDeclined
		}
		metrics.DepositsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	if _, err := s.wallets.AdjustPending(ctx, accountID, -amountCents); err != nil {
		return nil, fmt.Errorf("ledger: release pending: %w", err)
	}
	wallet, err := s.wallets.Credit(ctx, accountID, amountCents)
	if err != nil {
		return nil, fmt.Errorf("ledger: credit: %w", err)
	}
	if err := s.txs.Finalize(ctx, tx.ID, models.TransactionStatusCompleted, wallet.AvailableCents, reference); err != nil {
		return nil, fmt.Errorf("ledger: finalize deposit: %w", err)
	}

	metrics.DepositsTotal.WithLabelValues("ok").Inc()
	s.logger.Info("deposit completed",
		zap.Int64("account_id", accountID),
		zap.Int64("amount_cents", amountCents),
		zap.String("reference", reference),
	)
	return wallet, nil
}

// Refund credits the account and appends a completed refund transaction.
func (s *Service) Refund(ctx context.Context, accountID, amountCents int64, readingID *uuid.UUID, reason string) (*models.Wallet, error) {
	if amountCents <= 0 {
		return nil, fmt.Errorf("ledger: invalid refund amount %d", amountCents)
	}

	mu := s.lock(accountID)
	mu.Lock()
	defer mu.Unlock()

	wallet, err := s.wallets.Credit(ctx, accountID, amountCents)
	if err != nil {
		return nil, fmt.Errorf("ledger: credit refund: %w", err)
	}

	tx := &models.Transaction{
		ID:                uuid.New(),
		AccountID:         accountID,
		ReadingID:         readingID,
		Type:              models.TransactionTypeRefund,
		AmountCents:       amountCents,
		BalanceAfterCents: wallet.AvailableCents,
		Status:            models.TransactionStatusCompleted,
		Reference:         reason,
	}
	if err := s.txs.Append(ctx, tx); err != nil {
		return nil, fmt.Errorf("ledger: append refund: %w", err)
	}

	return wallet, nil
}
