package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"savings-platform/internal/audit"
	"savings-platform/internal/gateway"
	"savings-platform/internal/ledger"
	"savings-platform/internal/settlement"
	"savings-platform/internal/store"
	"savings-platform/pkg/logger"
	"savings-platform/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrSignatureMismatch = errors.New("webhook: signature mismatch")
	ErrBadEnvelope       = errors.New("webhook: malformed event envelope")

	// errRefundBeforeCapture fails the delivery so the gateway retries it
	// after the capture event has settled the payment.
	errRefundBeforeCapture = errors.New("webhook: refund delivered before capture")
)

// Envelope is the gateway's delivery format: the event type plus a
// type-specific payload.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type capturedPayload struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Method    string `json:"method,omitempty"`
	VPA       string `json:"vpa,omitempty"`
	UTR       string `json:"utr,omitempty"`
}

type failedPayload struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"error_reason"`
}

type refundPayload struct {
	OrderID  string `json:"order_id"`
	RefundID string `json:"refund_id"`
}

// eventDeduper is the fast-path replay filter in front of the database.
// Seen must only report true for events that finished processing; the
// processed_events row remains the authority.
type eventDeduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type redisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func (d redisDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	return utils.EventSeen(ctx, d.rdb, eventID)
}

func (d redisDeduper) Mark(ctx context.Context, eventID string) error {
	_, err := utils.MarkEventSeen(ctx, d.rdb, eventID, d.ttl)
	return err
}

// Service reconciles asynchronous gateway events against the ledger. It
// re-applies the same settlement state machine as the synchronous verify
// path, so an event arriving before, after, or instead of the client's
// verify call converges on the same state.
type Service struct {
	store  store.Store
	secret string
	audit  *audit.Service

	// dedup, when set, filters replayed event ids before opening a
	// database transaction.
	dedup eventDeduper

	clock func() time.Time
}

func NewService(st store.Store, webhookSecret string, auditSvc *audit.Service, rdb *redis.Client) *Service {
	s := &Service{
		store:  st,
		secret: webhookSecret,
		audit:  auditSvc,
		clock:  time.Now,
	}
	if rdb != nil {
		s.dedup = redisDeduper{rdb: rdb, ttl: 24 * time.Hour}
	}
	return s
}

// Process verifies and applies one webhook delivery. The signature covers
// the raw body; eventID comes from the gateway's delivery header. A nil
// return means the delivery was handled, including idempotent no-ops.
func (s *Service) Process(ctx context.Context, rawBody []byte, signature, eventID string) error {
	if !gateway.VerifyWebhookSignature(s.secret, rawBody, signature) {
		return ErrSignatureMismatch
	}

	var env Envelope
	if err := json.Unmarshal(rawBody, &env); err != nil || env.Event == "" {
		return ErrBadEnvelope
	}
	if eventID == "" {
		return ErrBadEnvelope
	}

	log := logger.From(ctx).With("event", env.Event, "event_id", eventID)

	if s.dedup != nil {
		seen, err := s.dedup.Seen(ctx, eventID)
		if err != nil {
			log.Warn("redis dedup unavailable, falling through to database", "error", err)
		} else if seen {
			log.Info("replayed webhook dropped by fast-path dedup")
			return nil
		}
	}

	if err := s.dispatch(ctx, env, eventID); err != nil {
		return err
	}

	// Mark only after the delivery succeeded. A transient failure leaves
	// the key unset so the gateway's redelivery is processed, not dropped.
	if s.dedup != nil {
		if err := s.dedup.Mark(ctx, eventID); err != nil {
			log.Warn("redis dedup mark failed", "error", err)
		}
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, env Envelope, eventID string) error {
	switch env.Event {
	case "payment.captured":
		return s.paymentCaptured(ctx, env.Payload, eventID)
	case "payment.failed":
		return s.paymentFailed(ctx, env.Payload, eventID)
	case "refund.processed":
		return s.refundProcessed(ctx, env.Payload, eventID)
	default:
		// Gateways add event types over time; acknowledge what we do
		// not handle so delivery is not retried forever.
		logger.From(ctx).Info("ignoring unhandled webhook event", "event", env.Event)
		return nil
	}
}

func (s *Service) paymentCaptured(ctx context.Context, payload json.RawMessage, eventID string) error {
	var p capturedPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.OrderID == "" || p.PaymentID == "" {
		return ErrBadEnvelope
	}

	var detail string
	if p.Method != "" || p.UTR != "" {
		b, err := json.Marshal(map[string]string{"method": p.Method, "vpa": p.VPA, "utr": p.UTR})
		if err == nil {
			detail = string(b)
		}
	}

	now := s.clock().UTC()
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		txn, err := tx.TransactionByOrderIDForUpdate(ctx, p.OrderID)
		if err != nil {
			return err
		}
		if txn.Status.Terminal() {
			return settlement.ErrAlreadyProcessed
		}
		_, _, err = settlement.Apply(ctx, tx, txn, settlement.ApplyParams{
			PaymentID: p.PaymentID,
			EventID:   eventID,
			Metadata:  detail,
			Now:       now,
		})
		return err
	})
	if errors.Is(err, settlement.ErrAlreadyProcessed) {
		logger.From(ctx).Info("payment.captured replay ignored", "gateway_order_id", p.OrderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply payment.captured: %w", err)
	}
	logger.From(ctx).Info("payment settled from webhook", "gateway_order_id", p.OrderID)
	return nil
}

func (s *Service) paymentFailed(ctx context.Context, payload json.RawMessage, eventID string) error {
	var p failedPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.OrderID == "" {
		return ErrBadEnvelope
	}
	if p.Reason == "" {
		p.Reason = "payment failed at gateway"
	}

	now := s.clock().UTC()
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		txn, err := tx.TransactionByOrderIDForUpdate(ctx, p.OrderID)
		if err != nil {
			return err
		}
		if txn.Status.Terminal() {
			return settlement.ErrAlreadyProcessed
		}
		_, err = settlement.Fail(ctx, tx, txn, p.Reason, eventID, now)
		return err
	})
	if errors.Is(err, settlement.ErrAlreadyProcessed) {
		logger.From(ctx).Info("payment.failed replay ignored", "gateway_order_id", p.OrderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply payment.failed: %w", err)
	}
	logger.From(ctx).Info("payment marked failed from webhook", "gateway_order_id", p.OrderID)
	return nil
}

// refundProcessed compensates a refunded payment. A refund hands the
// payment amount back to the user outside the wallet, so any auto-save
// credit skimmed from it must be pulled back out or the wallet keeps
// savings from money that was returned.
func (s *Service) refundProcessed(ctx context.Context, payload json.RawMessage, eventID string) error {
	var p refundPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.OrderID == "" {
		return ErrBadEnvelope
	}

	now := s.clock().UTC()
	var reversed ledger.Transaction
	err := s.store.Atomic(ctx, func(ctx context.Context, tx store.Tx) error {
		txn, err := tx.TransactionByOrderIDForUpdate(ctx, p.OrderID)
		if err != nil {
			return err
		}
		if txn.Status == ledger.StatusPending {
			// The refund overtook the capture. Do not claim the event
			// id; failing the delivery makes the gateway redeliver it
			// once the capture has settled and the skim exists to
			// reverse.
			return fmt.Errorf("refund for order %s delivered before capture settled: %w", p.OrderID, errRefundBeforeCapture)
		}
		if err := tx.ClaimEvent(ctx, eventID); err != nil {
			return err
		}
		if !txn.AutoSaveApplied || txn.AutoSaveAmountMinor <= 0 {
			// Idempotency row is still recorded so a replay that races
			// a concurrent settlement cannot reverse twice.
			return nil
		}

		w, err := tx.WalletForUpdate(ctx, txn.UserID)
		if err != nil {
			return err
		}
		drifted, err := w.ReverseSaved(txn.AutoSaveAmountMinor, now)
		if err != nil {
			return err
		}
		if drifted {
			logger.From(ctx).Warn("total_saved drifted below the reversal amount",
				"user_id", txn.UserID,
				"gateway_order_id", p.OrderID,
				"amount_minor", txn.AutoSaveAmountMinor,
			)
		}
		if err := tx.SaveWallet(ctx, w); err != nil {
			return err
		}

		reversal := ledger.Transaction{
			ID:                  uuid.NewString(),
			UserID:              txn.UserID,
			Type:                ledger.TypeWithdrawal,
			AmountMinor:         txn.AutoSaveAmountMinor,
			Status:              ledger.StatusSuccess,
			LinkedTransactionID: txn.ID,
			Metadata:            refundMetadata(p.RefundID, eventID),
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := tx.InsertTransaction(ctx, reversal); err != nil {
			return err
		}

		txn.AutoSaveApplied = false
		txn.UpdatedAt = now
		if err := tx.UpdateTransaction(ctx, txn); err != nil {
			return err
		}
		reversed = reversal
		return nil
	})
	if errors.Is(err, store.ErrDuplicateEvent) {
		logger.From(ctx).Info("refund.processed replay ignored", "gateway_order_id", p.OrderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply refund.processed: %w", err)
	}

	if reversed.ID != "" {
		logger.From(ctx).Info("auto-save reversed after refund",
			"user_id", reversed.UserID,
			"gateway_order_id", p.OrderID,
			"amount_minor", reversed.AmountMinor,
		)
		if s.audit != nil {
			if err := s.audit.LogRefundReversal(ctx, reversed.UserID, reversed.ID, reversed.Metadata); err != nil {
				logger.From(ctx).Warn("audit append failed", "error", err)
			}
		}
	}
	return nil
}

func refundMetadata(refundID, eventID string) string {
	b, err := json.Marshal(map[string]string{
		"reason":    "auto_save_reversal",
		"refund_id": refundID,
		"event_id":  eventID,
	})
	if err != nil {
		return ""
	}
	return string(b)
}
