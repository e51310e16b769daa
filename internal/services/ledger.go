package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/milestonepay/backend/internal/gateway"
	"github.com/milestonepay/backend/internal/models"
)

// LedgerEscrowRepo is the minimal escrow-account repository for the ledger.
// GetByProjectIDForUpdate locks the account row, serializing all mutating
// operations on one project.
type LedgerEscrowRepo interface {
	GetByProjectIDForUpdate(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) (*models.EscrowAccount, error)
	CreateTx(ctx context.Context, tx pgx.Tx, a *models.EscrowAccount) error
	UpdateTx(ctx context.Context, tx pgx.Tx, a *models.EscrowAccount) error
}

// LedgerTransactionRepo appends immutable ledger entries.
type LedgerTransactionRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
}

// LedgerBalanceRepo applies balance deltas in the caller's transaction so a
// Transaction never exists without its Balance effect.
type LedgerBalanceRepo interface {
	AddAvailableTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency string, delta int64) error
}

// Ledger owns per-project escrow accounts and the append-only transaction
// log. Every method runs inside the caller's database transaction; the escrow
// row lock gives per-project mutual exclusion.
type Ledger struct {
	Escrow       LedgerEscrowRepo
	Transactions LedgerTransactionRepo
	Balances     LedgerBalanceRepo
	Gateway      gateway.PaymentGateway
	Rates        gateway.RateProvider
	Fees         FeePolicy
	Logger       *slog.Logger

	now func() time.Time
}

func NewLedger(escrow LedgerEscrowRepo, txs LedgerTransactionRepo, balances LedgerBalanceRepo,
	gw gateway.PaymentGateway, rates gateway.RateProvider, fees FeePolicy, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		Escrow:       escrow,
		Transactions: txs,
		Balances:     balances,
		Gateway:      gw,
		Rates:        rates,
		Fees:         fees,
		Logger:       logger,
		now:          time.Now,
	}
}

// checkInvariant verifies held + released == total. A violation means ledger
// corruption: it is logged at maximum severity and returned so the enclosing
// transaction rolls back instead of persisting the inconsistent state.
func (l *Ledger) checkInvariant(a *models.EscrowAccount) error {
	if a.HeldAmount+a.ReleasedAmount != a.TotalAmount {
		err := &LedgerInvariantError{
			ProjectID: a.ProjectID,
			Held:      a.HeldAmount,
			Released:  a.ReleasedAmount,
			Total:     a.TotalAmount,
		}
		l.Logger.Error("escrow ledger corruption, halting mutation",
			"project_id", a.ProjectID, "held", a.HeldAmount,
			"released", a.ReleasedAmount, "total", a.TotalAmount)
		return err
	}
	return nil
}

// Deposit funds the project escrow: charges the payment gateway, snapshots
// the USD conversion, and records a completed deposit transaction. The escrow
// account is created lazily on first deposit. A second deposit on a funded
// account is a conflict.
func (l *Ledger) Deposit(ctx context.Context, tx pgx.Tx, project *models.Project, actor models.Actor,
	amount int64, currency, method string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, validationErr("amount", "must be positive")
	}
	if currency != project.Budget.Currency {
		return nil, validationErr("currency", "must match the project budget currency")
	}

	acct, err := l.Escrow.GetByProjectIDForUpdate(ctx, tx, project.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		acct = &models.EscrowAccount{
			ID:        uuid.New(),
			ProjectID: project.ID,
			Currency:  currency,
			Status:    models.EscrowStatusNotDeposited,
		}
		if err := l.Escrow.CreateTx(ctx, tx, acct); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}
	if acct.Status != models.EscrowStatusNotDeposited {
		return nil, conflictErr("escrow account", acct.Status, "deposit")
	}
	if err := l.checkInvariant(acct); err != nil {
		return nil, err
	}

	now := l.now()
	entry := &models.Transaction{
		ID:        uuid.New(),
		ProjectID: &project.ID,
		UserID:    &actor.ID,
		Type:      models.TxTypeDeposit,
		Amount:    amount,
		Currency:  currency,
		CreatedAt: now,
	}

	res, chargeErr := l.Gateway.Charge(ctx, amount, currency, method)
	if chargeErr != nil || !res.Success {
		if chargeErr == nil {
			chargeErr = errors.New("gateway declined charge")
		}
		reason := chargeErr.Error()
		entry.Status = models.TxStatusFailed
		entry.FailureReason = &reason
		if err := l.Transactions.CreateTx(ctx, tx, entry); err != nil {
			return nil, err
		}
		return entry, &PaymentError{Op: "deposit", Err: chargeErr}
	}

	rate, err := l.Rates.Rate(ctx, currency, "USD", now)
	if err != nil {
		return nil, err
	}
	snapshot, err := NormalizeUSD(amount, currency, rate, now)
	if err != nil {
		return nil, err
	}

	acct.TotalAmount = amount
	acct.HeldAmount = amount
	acct.ReleasedAmount = 0
	acct.USD = snapshot
	acct.Status = models.EscrowStatusHeld
	if err := l.checkInvariant(acct); err != nil {
		return nil, err
	}
	if err := l.Escrow.UpdateTx(ctx, tx, acct); err != nil {
		return nil, err
	}

	entry.Status = models.TxStatusCompleted
	entry.GatewayRef = &res.Reference
	entry.CompletedAt = &now
	if err := l.Transactions.CreateTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Release moves amount from held to released, deducts platform and processing
// fees, and credits the freelancer's balance with the net amount.
func (l *Ledger) Release(ctx context.Context, tx pgx.Tx, projectID uuid.UUID, milestoneID *uuid.UUID,
	freelancerID uuid.UUID, amount int64) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, validationErr("amount", "must be positive")
	}
	acct, err := l.Escrow.GetByProjectIDForUpdate(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	if err := l.checkInvariant(acct); err != nil {
		return nil, err
	}
	if acct.Frozen {
		return nil, conflictErr("escrow account", "frozen", "release")
	}
	if acct.HeldAmount < amount {
		return nil, ErrInsufficientFunds
	}

	fees := l.Fees.Compute(amount)
	entry, err := l.moveOut(ctx, tx, acct, models.TxTypeRelease, amount, milestoneID, freelancerID, fees, "")
	if err != nil {
		return nil, err
	}
	if err := l.Balances.AddAvailableTx(ctx, tx, freelancerID, acct.Currency, fees.Net); err != nil {
		return nil, err
	}
	return entry, nil
}

// Refund returns held funds to the client, gross of fees.
func (l *Ledger) Refund(ctx context.Context, tx pgx.Tx, projectID, clientID uuid.UUID,
	amount int64, reason string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, validationErr("amount", "must be positive")
	}
	acct, err := l.Escrow.GetByProjectIDForUpdate(ctx, tx, projectID)
	if err != nil {
		return nil, err
	}
	if err := l.checkInvariant(acct); err != nil {
		return nil, err
	}
	if acct.HeldAmount < amount {
		return nil, ErrInsufficientFunds
	}

	entry, err := l.moveOut(ctx, tx, acct, models.TxTypeRefund, amount, nil, clientID, Fees{Net: amount}, reason)
	if err != nil {
		return nil, err
	}
	if err := l.Balances.AddAvailableTx(ctx, tx, clientID, acct.Currency, amount); err != nil {
		return nil, err
	}
	return entry, nil
}

// Freeze blocks further releases while a dispute is open.
func (l *Ledger) Freeze(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) error {
	acct, err := l.Escrow.GetByProjectIDForUpdate(ctx, tx, projectID)
	if err != nil {
		return err
	}
	if err := l.checkInvariant(acct); err != nil {
		return err
	}
	acct.Frozen = true
	return l.Escrow.UpdateTx(ctx, tx, acct)
}

// SettleDispute applies a dispute resolution: both legs commit together or
// neither does. The client leg is refunded gross; fees come out of the
// freelancer leg, using the same formula as an ordinary release.
func (l *Ledger) SettleDispute(ctx context.Context, tx pgx.Tx, d *models.Dispute,
	milestoneAmount, clientAmount, freelancerAmount int64) error {
	if clientAmount < 0 || freelancerAmount < 0 {
		return validationErr("amounts", "must not be negative")
	}
	if clientAmount+freelancerAmount != milestoneAmount {
		return validationErr("amounts", "client and freelancer amounts must sum to the disputed milestone amount")
	}

	acct, err := l.Escrow.GetByProjectIDForUpdate(ctx, tx, d.ProjectID)
	if err != nil {
		return err
	}
	if err := l.checkInvariant(acct); err != nil {
		return err
	}
	total := clientAmount + freelancerAmount
	if acct.HeldAmount < total {
		return ErrInsufficientFunds
	}

	acct.Frozen = false
	if freelancerAmount > 0 {
		fees := l.Fees.Compute(freelancerAmount)
		if _, err := l.moveOut(ctx, tx, acct, models.TxTypeDisputeSettlement, freelancerAmount,
			&d.MilestoneID, d.FreelancerID, fees, "dispute settlement, freelancer leg"); err != nil {
			return err
		}
		if err := l.Balances.AddAvailableTx(ctx, tx, d.FreelancerID, acct.Currency, fees.Net); err != nil {
			return err
		}
	}
	if clientAmount > 0 {
		if _, err := l.moveOut(ctx, tx, acct, models.TxTypeDisputeSettlement, clientAmount,
			&d.MilestoneID, d.ClientID, Fees{Net: clientAmount}, "dispute settlement, client leg"); err != nil {
			return err
		}
		if err := l.Balances.AddAvailableTx(ctx, tx, d.ClientID, acct.Currency, clientAmount); err != nil {
			return err
		}
	}
	if clientAmount == 0 && freelancerAmount == 0 {
		// Zero-amount milestone: just unfreeze.
		if err := l.Escrow.UpdateTx(ctx, tx, acct); err != nil {
			return err
		}
	}
	return nil
}

// Unfreeze lifts the dispute freeze without moving money (revision-required
// resolutions).
func (l *Ledger) Unfreeze(ctx context.Context, tx pgx.Tx, projectID uuid.UUID) error {
	acct, err := l.Escrow.GetByProjectIDForUpdate(ctx, tx, projectID)
	if err != nil {
		return err
	}
	acct.Frozen = false
	return l.Escrow.UpdateTx(ctx, tx, acct)
}

// moveOut shifts amount from held to released, updates the account status,
// appends the transaction and, when fees apply, a fee entry for the platform.
func (l *Ledger) moveOut(ctx context.Context, tx pgx.Tx, acct *models.EscrowAccount,
	txType string, amount int64, milestoneID *uuid.UUID, beneficiary uuid.UUID,
	fees Fees, description string) (*models.Transaction, error) {
	acct.HeldAmount -= amount
	acct.ReleasedAmount += amount
	switch {
	case acct.HeldAmount > 0:
		acct.Status = models.EscrowStatusPartiallyReleased
	case txType == models.TxTypeRefund && acct.ReleasedAmount == amount:
		acct.Status = models.EscrowStatusRefunded
	default:
		acct.Status = models.EscrowStatusReleased
	}
	if err := l.checkInvariant(acct); err != nil {
		return nil, err
	}
	if err := l.Escrow.UpdateTx(ctx, tx, acct); err != nil {
		return nil, err
	}

	now := l.now()
	entry := &models.Transaction{
		ID:            uuid.New(),
		ProjectID:     &acct.ProjectID,
		MilestoneID:   milestoneID,
		UserID:        &beneficiary,
		Type:          txType,
		Status:        models.TxStatusCompleted,
		Amount:        amount,
		Currency:      acct.Currency,
		PlatformFee:   fees.Platform,
		ProcessingFee: fees.Processing,
		Description:   description,
		CreatedAt:     now,
		CompletedAt:   &now,
	}
	if err := l.Transactions.CreateTx(ctx, tx, entry); err != nil {
		return nil, err
	}

	if fees.Platform+fees.Processing > 0 {
		feeEntry := &models.Transaction{
			ID:          uuid.New(),
			ProjectID:   &acct.ProjectID,
			MilestoneID: milestoneID,
			Type:        models.TxTypeFee,
			Status:      models.TxStatusCompleted,
			Amount:      fees.Platform + fees.Processing,
			Currency:    acct.Currency,
			CreatedAt:   now,
			CompletedAt: &now,
		}
		if err := l.Transactions.CreateTx(ctx, tx, feeEntry); err != nil {
			return nil, err
		}
	}
	return entry, nil
}
