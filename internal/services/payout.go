package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/milestonepay/backend/internal/events"
	"github.com/milestonepay/backend/internal/gateway"
	"github.com/milestonepay/backend/internal/models"
)

type PayoutRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.Payout) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, p *models.Payout) error
}

type PayoutMethodRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.PayoutMethod, error)
}

// PayoutBalanceRepo moves funds between available and pending atomically with
// the payout's transaction record. DeductAvailableTx moves amount from
// available to pending, failing with ErrInsufficientFunds when available <
// amount. SettlePendingTx drains pending (restore=false) or returns it to
// available (restore=true).
type PayoutBalanceRepo interface {
	DeductAvailableTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency string, amount int64) error
	SettlePendingTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, currency string, amount int64, restore bool) error
}

// PayoutTransactionRepo appends the withdrawal entry opened at request time
// and settles that same entry when the transfer resolves. CompleteTx and
// FailTx only touch pending rows; terminal entries stay immutable.
type PayoutTransactionRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	CompleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, gatewayRef string) error
	FailTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) error
}

// EnqueueTransferTxFunc enqueues the payout transfer job within the given
// transaction. Provided by main as a closure over river.Client.InsertTx.
type EnqueueTransferTxFunc func(ctx context.Context, tx pgx.Tx, payoutID uuid.UUID) error

// PayoutProcessor drains available balances to external destinations through
// the payment gateway. Its state machine is independent of the escrow ledger:
// pending -> processing -> completed, or failed, or cancelled while pending.
type PayoutProcessor struct {
	DB              TxBeginner
	Payouts         PayoutRepo
	Methods         PayoutMethodRepo
	Balances        PayoutBalanceRepo
	Transactions    PayoutTransactionRepo
	Gateway         gateway.PaymentGateway
	Fees            FeePolicy
	EnqueueTransfer EnqueueTransferTxFunc
	Events          Notifier
	Logger          *slog.Logger

	now func() time.Time
}

func NewPayoutProcessor(db TxBeginner, payouts PayoutRepo, methods PayoutMethodRepo,
	balances PayoutBalanceRepo, txs PayoutTransactionRepo, gw gateway.PaymentGateway,
	fees FeePolicy, enqueue EnqueueTransferTxFunc, notifier Notifier, logger *slog.Logger) *PayoutProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PayoutProcessor{
		DB:              db,
		Payouts:         payouts,
		Methods:         methods,
		Balances:        balances,
		Transactions:    txs,
		Gateway:         gw,
		Fees:            fees,
		EnqueueTransfer: enqueue,
		Events:          notifier,
		Logger:          logger,
		now:             time.Now,
	}
}

// Estimate quotes the fees for a payout. It is the same pure formula release
// and request use, so an estimate and the eventual payout never diverge for
// identical inputs.
func (s *PayoutProcessor) Estimate(amount int64, kind string) (Fees, error) {
	if amount <= 0 {
		return Fees{}, validationErr("amount", "must be positive")
	}
	switch kind {
	case models.PayoutMethodBank, models.PayoutMethodPaypal, models.PayoutMethodCrypto:
	default:
		return Fees{}, validationErr("method", "unsupported payout method")
	}
	return s.Fees.Compute(amount), nil
}

// Request creates a pending payout: the amount moves from available to
// pending, a pending withdrawal transaction is appended, and the transfer job
// is enqueued — all in one database transaction.
func (s *PayoutProcessor) Request(ctx context.Context, actor models.Actor, methodID uuid.UUID,
	amount int64, currency string) (*models.Payout, error) {
	method, err := s.Methods.GetByID(ctx, methodID)
	if err != nil {
		return nil, err
	}
	if method.UserID != actor.ID {
		return nil, validationErr("method", "payout method belongs to another user")
	}
	fees, err := s.Estimate(amount, method.Kind)
	if err != nil {
		return nil, err
	}

	now := s.now()
	entry := &models.Transaction{
		ID:            uuid.New(),
		UserID:        &actor.ID,
		Type:          models.TxTypeWithdrawal,
		Status:        models.TxStatusPending,
		Amount:        amount,
		Currency:      currency,
		PlatformFee:   fees.Platform,
		ProcessingFee: fees.Processing,
		CreatedAt:     now,
	}
	p := &models.Payout{
		ID:            uuid.New(),
		UserID:        actor.ID,
		MethodID:      methodID,
		TransactionID: entry.ID,
		Amount:        amount,
		PlatformFee:   fees.Platform,
		ProcessingFee: fees.Processing,
		NetAmount:     fees.Net,
		Currency:      currency,
		Status:        models.PayoutStatusPending,
		RequestedAt:   now,
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.Balances.DeductAvailableTx(ctx, tx, actor.ID, currency, amount); err != nil {
		return nil, err
	}
	if err := s.Payouts.CreateTx(ctx, tx, p); err != nil {
		return nil, err
	}
	if err := s.Transactions.CreateTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := s.EnqueueTransfer(ctx, tx, p.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.Events.Emit(events.PayoutRequested, uuid.Nil, map[string]any{
		"payout_id": p.ID.String(), "amount": amount,
	})
	return p, nil
}

// Cancel withdraws a payout request. Only pending payouts can be cancelled;
// the held amount returns to available and the withdrawal entry opened at
// request time settles as failed so no pending row survives the payout.
func (s *PayoutProcessor) Cancel(ctx context.Context, actor models.Actor, payoutID uuid.UUID) error {
	p, err := s.Payouts.GetByID(ctx, payoutID)
	if err != nil {
		return err
	}
	if p.UserID != actor.ID {
		return validationErr("actor", "payout belongs to another user")
	}
	if p.Status != models.PayoutStatusPending {
		return conflictErr("payout", p.Status, "cancel")
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	p.Status = models.PayoutStatusCancelled
	if err := s.Payouts.UpdateTx(ctx, tx, p); err != nil {
		return err
	}
	if err := s.Transactions.FailTx(ctx, tx, p.TransactionID, "payout cancelled by user"); err != nil {
		return err
	}
	if err := s.Balances.SettlePendingTx(ctx, tx, p.UserID, p.Currency, p.Amount, true); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Process executes the external transfer for a pending payout. Run by the
// background worker; the pending -> completed/failed transition is the
// durable record of the gateway outcome.
func (s *PayoutProcessor) Process(ctx context.Context, payoutID uuid.UUID) error {
	p, err := s.Payouts.GetByID(ctx, payoutID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if p.Status != models.PayoutStatusPending {
		// Already handled or cancelled; the worker may fire more than once.
		return nil
	}
	method, err := s.Methods.GetByID(ctx, p.MethodID)
	if err != nil {
		return err
	}

	if err := s.markProcessing(ctx, p); err != nil {
		return err
	}

	res, transferErr := s.Gateway.Transfer(ctx, p.NetAmount, p.Currency, method.Destination)
	if transferErr != nil || !res.Success {
		if transferErr == nil {
			transferErr = errors.New("gateway declined transfer")
		}
		if err := s.finish(ctx, p, "", transferErr.Error()); err != nil {
			return err
		}
		s.Events.Emit(events.PayoutFailed, uuid.Nil, map[string]any{"payout_id": p.ID.String()})
		return nil
	}
	if err := s.finish(ctx, p, res.Reference, ""); err != nil {
		return err
	}
	s.Events.Emit(events.PayoutCompleted, uuid.Nil, map[string]any{"payout_id": p.ID.String()})
	return nil
}

func (s *PayoutProcessor) markProcessing(ctx context.Context, p *models.Payout) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	p.Status = models.PayoutStatusProcessing
	if err := s.Payouts.UpdateTx(ctx, tx, p); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// finish records the terminal payout state. On success the pending balance
// drains; on failure it restores to available. The withdrawal entry opened at
// request time settles to the same terminal status in the same transaction,
// so the ledger never carries a second row for one payout.
func (s *PayoutProcessor) finish(ctx context.Context, p *models.Payout, gatewayRef, failureReason string) error {
	now := s.now()
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if failureReason != "" {
		p.Status = models.PayoutStatusFailed
		p.FailureReason = &failureReason
		if err := s.Transactions.FailTx(ctx, tx, p.TransactionID, failureReason); err != nil {
			return err
		}
		if err := s.Balances.SettlePendingTx(ctx, tx, p.UserID, p.Currency, p.Amount, true); err != nil {
			return err
		}
	} else {
		p.Status = models.PayoutStatusCompleted
		p.GatewayRef = &gatewayRef
		p.CompletedAt = &now
		if err := s.Transactions.CompleteTx(ctx, tx, p.TransactionID, gatewayRef); err != nil {
			return err
		}
		if err := s.Balances.SettlePendingTx(ctx, tx, p.UserID, p.Currency, p.Amount, false); err != nil {
			return err
		}
	}
	if err := s.Payouts.UpdateTx(ctx, tx, p); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
