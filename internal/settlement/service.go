package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"savings-platform/internal/autosave"
	"savings-platform/internal/gateway"
	"savings-platform/internal/kyc"
	"savings-platform/internal/ledger"
	"savings-platform/internal/store"
	"savings-platform/internal/wallet"
	"savings-platform/pkg/logger"

	"github.com/google/uuid"
)

// Service settles external payments into the wallet ledger.
//
// Money invariants:
//   - A PENDING PAYMENT row transitions to SUCCESS or FAILED exactly once.
//   - The auto-save credit, its DEPOSIT row and the PAYMENT transition are
//     one atomic unit; AutoSaveApplied agrees with the DEPOSIT row always.
//   - A failed signature check never mutates the wallet.
type Service struct {
	store   store.Store
	gateway gateway.Client
	kyc     kyc.Provider

	keySecret string

	// level1ThresholdMinor gates higher-value payments on basic KYC.
	level1ThresholdMinor int64

	clock func() time.Time
}

type Config struct {
	// KeySecret signs and verifies gateway payment callbacks.
	KeySecret string

	// KycLevel1ThresholdMinor is the payment amount from which basic KYC
	// is required.
	KycLevel1ThresholdMinor int64
}

// defaultKycThresholdMinor applies when no threshold is configured
// (10,000 major units).
const defaultKycThresholdMinor = 1_000_000

func NewService(st store.Store, gw gateway.Client, kycProvider kyc.Provider, cfg Config) *Service {
	threshold := cfg.KycLevel1ThresholdMinor
	if threshold <= 0 {
		threshold = defaultKycThresholdMinor
	}
	return &Service{
		store:                st,
		gateway:              gw,
		kyc:                  kycProvider,
		keySecret:            cfg.KeySecret,
		level1ThresholdMinor: threshold,
		clock:                time.Now,
	}
}

var (
	ErrInvalidArgument    = errors.New("settlement: invalid argument")
	ErrForbidden          = errors.New("settlement: transaction belongs to another user")
	ErrAlreadyProcessed   = errors.New("settlement: transaction already processed")
	ErrVerificationFailed = errors.New("settlement: signature verification failed")
)

type OrderResult struct {
	TransactionID       string `json:"transaction_id"`
	GatewayOrderID      string `json:"gateway_order_id"`
	AmountMinor         int64  `json:"amount_minor"`
	AutoSaveAmountMinor int64  `json:"auto_save_amount_minor"`
	Currency            string `json:"currency"`
}

// CreateOrder opens a payment order with the gateway and records a PENDING
// PAYMENT ledger row carrying the pre-computed auto-save amount.
//
// Ordering matters: the gateway call happens first, so a gateway timeout
// leaves no local state behind; either both sides exist or neither does.
func (s *Service) CreateOrder(ctx context.Context, userID string, amountMinor int64, notes map[string]string) (OrderResult, error) {
	if userID == "" || amountMinor <= 0 {
		return OrderResult{}, ErrInvalidArgument
	}

	if amountMinor >= s.level1ThresholdMinor {
		if err := kyc.Require(ctx, s.kyc, userID, kyc.LevelBasic); err != nil {
			return OrderResult{}, err
		}
	}

	policy, err := s.store.GetAutoSavePolicy(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return OrderResult{}, fmt.Errorf("settlement: load autosave policy: %w", err)
		}
		policy = autosave.Policy{} // no policy means no skim
	}
	autoSave := autosave.Evaluate(amountMinor, policy)

	now := s.clock().UTC()
	txnID := uuid.NewString()

	order, err := s.gateway.CreateOrder(ctx, gateway.CreateOrderRequest{
		AmountMinor: amountMinor,
		Currency:    gateway.Currency,
		Receipt:     txnID,
		Notes:       notes,
	})
	if err != nil {
		return OrderResult{}, fmt.Errorf("settlement: gateway order: %w", err)
	}

	metadata := ""
	if len(notes) > 0 {
		if raw, err := json.Marshal(notes); err == nil {
			metadata = string(raw)
		}
	}

	txn := ledger.Transaction{
		ID:                  txnID,
		UserID:              userID,
		Type:                ledger.TypePayment,
		AmountMinor:         amountMinor,
		Status:              ledger.StatusPending,
		GatewayOrderID:      order.OrderID,
		AutoSaveAmountMinor: autoSave,
		Metadata:            metadata,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err = s.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertTransaction(ctx, txn)
	})
	if err != nil {
		return OrderResult{}, fmt.Errorf("settlement: record order: %w", err)
	}

	logger.From(ctx).Info("payment order created",
		"user_id", userID,
		"gateway_order_id", order.OrderID,
		"amount_minor", amountMinor,
		"auto_save_minor", autoSave,
	)

	return OrderResult{
		TransactionID:       txnID,
		GatewayOrderID:      order.OrderID,
		AmountMinor:         amountMinor,
		AutoSaveAmountMinor: autoSave,
		Currency:            order.Currency,
	}, nil
}

type SettleResult struct {
	TransactionID        string `json:"transaction_id"`
	BalanceMinor         int64  `json:"balance_minor"`
	AutoSaveAppliedMinor int64  `json:"auto_save_applied_minor"`
}

// VerifyAndSettle confirms a gateway payment against its signature and,
// in one atomic unit, marks the PAYMENT row SUCCESS and applies the
// auto-save credit.
//
// Retries with the same payment are rejected with ErrAlreadyProcessed; an
// invalid signature marks the row FAILED (that write commits) and returns
// ErrVerificationFailed without touching the wallet.
func (s *Service) VerifyAndSettle(ctx context.Context, userID, orderID, paymentID, signature string) (SettleResult, error) {
	if userID == "" || orderID == "" || paymentID == "" || signature == "" {
		return SettleResult{}, ErrInvalidArgument
	}

	now := s.clock().UTC()

	// Best-effort payment detail lookup for the audit trail; settlement
	// does not depend on it.
	var detail string
	if payment, err := s.gateway.FetchPayment(ctx, paymentID); err == nil {
		if raw, err := json.Marshal(payment); err == nil {
			detail = string(raw)
		}
	}

	var (
		result    SettleResult
		sigFailed bool
	)

	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		txn, err := tx.TransactionByOrderIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if txn.UserID != userID {
			return ErrForbidden
		}
		if txn.Status.Terminal() {
			return ErrAlreadyProcessed
		}

		if !gateway.VerifyPaymentSignature(s.keySecret, orderID, paymentID, signature) {
			txn.Status = ledger.StatusFailed
			txn.GatewayPaymentID = paymentID
			txn.FailureReason = "signature verification failed"
			txn.UpdatedAt = now
			sigFailed = true
			return tx.UpdateTransaction(ctx, txn)
		}

		settled, w, err := Apply(ctx, tx, txn, ApplyParams{
			PaymentID: paymentID,
			Signature: signature,
			EventID:   paymentID,
			Metadata:  detail,
			Now:       now,
		})
		if err != nil {
			return err
		}
		result = SettleResult{
			TransactionID:        settled.ID,
			BalanceMinor:         w.BalanceMinor,
			AutoSaveAppliedMinor: settled.AutoSaveAmountMinor,
		}
		return nil
	})
	if err != nil {
		return SettleResult{}, err
	}

	if sigFailed {
		logger.From(ctx).Warn("payment signature rejected",
			"user_id", userID,
			"gateway_order_id", orderID,
			"gateway_payment_id", paymentID,
		)
		return SettleResult{}, ErrVerificationFailed
	}

	logger.From(ctx).Info("payment settled",
		"user_id", userID,
		"gateway_order_id", orderID,
		"auto_save_minor", result.AutoSaveAppliedMinor,
	)
	return result, nil
}

// ApplyParams carries the settlement facts into Apply.
type ApplyParams struct {
	PaymentID string
	Signature string

	// EventID identifies the external event for idempotency (payment id
	// on the synchronous path, webhook event id on the async path).
	EventID string

	// Metadata carries payment details to merge into the row metadata.
	Metadata string

	Now time.Time
}

// Apply performs the success transition for a PENDING PAYMENT row inside
// an existing atomic unit: claim the event id, mark SUCCESS, credit the
// auto-save amount and insert its linked DEPOSIT row.
//
// Shared by the synchronous verify path and the webhook reconciler so both
// apply the exact same state machine.
func Apply(ctx context.Context, tx store.Tx, txn ledger.Transaction, p ApplyParams) (ledger.Transaction, wallet.Wallet, error) {
	if !ledger.CanTransition(txn.Status, ledger.StatusSuccess) {
		return ledger.Transaction{}, wallet.Wallet{}, ErrAlreadyProcessed
	}

	if err := tx.ClaimEvent(ctx, p.EventID); err != nil {
		if errors.Is(err, store.ErrDuplicateEvent) {
			return ledger.Transaction{}, wallet.Wallet{}, ErrAlreadyProcessed
		}
		return ledger.Transaction{}, wallet.Wallet{}, err
	}

	// Lock the wallet even when there is nothing to credit: the lock is
	// what serializes settlement against concurrent wallet operations.
	w, err := tx.WalletForUpdate(ctx, txn.UserID)
	if err != nil {
		return ledger.Transaction{}, wallet.Wallet{}, err
	}

	txn.Status = ledger.StatusSuccess
	txn.GatewayPaymentID = p.PaymentID
	txn.GatewaySignature = p.Signature
	if p.Metadata != "" {
		txn.Metadata = mergeMetadata(txn.Metadata, p.Metadata)
	}
	txn.UpdatedAt = p.Now

	if txn.AutoSaveAmountMinor > 0 {
		if err := w.ApplyCredit(txn.AutoSaveAmountMinor, wallet.CounterSaved, p.Now); err != nil {
			return ledger.Transaction{}, wallet.Wallet{}, err
		}
		if err := tx.SaveWallet(ctx, w); err != nil {
			return ledger.Transaction{}, wallet.Wallet{}, err
		}

		deposit := ledger.Transaction{
			ID:                  uuid.NewString(),
			UserID:              txn.UserID,
			Type:                ledger.TypeDeposit,
			AmountMinor:         txn.AutoSaveAmountMinor,
			Status:              ledger.StatusSuccess,
			LinkedTransactionID: txn.ID,
			CreatedAt:           p.Now,
			UpdatedAt:           p.Now,
		}
		if err := tx.InsertTransaction(ctx, deposit); err != nil {
			return ledger.Transaction{}, wallet.Wallet{}, err
		}
		txn.AutoSaveApplied = true
	}

	if err := tx.UpdateTransaction(ctx, txn); err != nil {
		return ledger.Transaction{}, wallet.Wallet{}, err
	}
	return txn, w, nil
}

// mergeMetadata overlays the incoming JSON object's keys onto the existing
// one, keeping the order-creation notes when payment details arrive.
func mergeMetadata(existing, incoming string) string {
	if existing == "" {
		return incoming
	}
	var base, overlay map[string]any
	if err := json.Unmarshal([]byte(existing), &base); err != nil {
		return incoming
	}
	if err := json.Unmarshal([]byte(incoming), &overlay); err != nil {
		return existing
	}
	for k, v := range overlay {
		base[k] = v
	}
	b, err := json.Marshal(base)
	if err != nil {
		return existing
	}
	return string(b)
}

// Fail marks a PENDING PAYMENT row FAILED inside an existing atomic unit.
// Used by the webhook reconciler for payment.failed events.
func Fail(ctx context.Context, tx store.Tx, txn ledger.Transaction, reason, eventID string, now time.Time) (ledger.Transaction, error) {
	if !ledger.CanTransition(txn.Status, ledger.StatusFailed) {
		return ledger.Transaction{}, ErrAlreadyProcessed
	}
	if err := tx.ClaimEvent(ctx, eventID); err != nil {
		if errors.Is(err, store.ErrDuplicateEvent) {
			return ledger.Transaction{}, ErrAlreadyProcessed
		}
		return ledger.Transaction{}, err
	}
	txn.Status = ledger.StatusFailed
	txn.FailureReason = reason
	txn.UpdatedAt = now
	if err := tx.UpdateTransaction(ctx, txn); err != nil {
		return ledger.Transaction{}, err
	}
	return txn, nil
}
