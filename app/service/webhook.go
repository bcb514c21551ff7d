package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/entity"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/factory"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/app/metrics"
	"github.com/GeraldWambui/OrderServiceTechnicalAssesment/config"
)

const (
	AckProcessed          = "processed"
	AckProcessedWithError = "processed_with_error"
)

const providerStatusSuccess = "SUCCESS"

type webhookPayload struct {
	PaymentID string `json:"payment_id"`
	OrderID   uint64 `json:"order_id"`
	Status    string `json:"status"`
}

type webhookResult struct {
	OrderID uint64 `json:"order_id"`
	Status  string `json:"status"`
}

type deadLetterReader interface {
	List(ctx context.Context, limit, offset int32) ([]*entity.WebhookDeadLetter, error)
}

// WebhookService reconciles payment-provider webhook deliveries against
// orders: it authenticates the payload, resolves redeliveries through the
// idempotency ledger and drives retry handling for transient failures.
type WebhookService struct {
	orders          *OrderService
	ledger          *Ledger
	scheduler       *RetryScheduler
	deadLetters     deadLetterReader
	secret          []byte
	conflictRetries int
	counters        *metrics.Counters
	logger          logrus.FieldLogger
}

func NewWebhookService(
	orders *OrderService,
	ledger *Ledger,
	scheduler *RetryScheduler,
	deadLetters deadLetterReader,
	webhookCfg config.WebhookConfig,
	counters *metrics.Counters,
) *WebhookService {
	conflictRetries := webhookCfg.ConflictRetries
	if conflictRetries < 1 {
		conflictRetries = 3
	}

	s := &WebhookService{
		orders:          orders,
		ledger:          ledger,
		scheduler:       scheduler,
		deadLetters:     deadLetters,
		secret:          []byte(webhookCfg.Secret),
		conflictRetries: conflictRetries,
		counters:        counters,
		logger:          factory.NewModuleLogger("webhook-service"),
	}
	scheduler.Bind(s.applyScheduled, s.releaseDelivery)
	return s
}

// HandleWebhook processes one provider delivery. Replays of an already
// processed payment id receive the same ack as the first delivery, so the
// endpoint is safe under at-least-once redelivery.
func (s *WebhookService) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (string, error) {
	if !VerifySignature(payload, signatureHeader, s.secret) {
		return "", fmt.Errorf("%w: webhook signature mismatch", ErrUnauthenticated)
	}

	var delivery webhookPayload
	if err := json.Unmarshal(payload, &delivery); err != nil {
		return "", fmt.Errorf("%w: malformed webhook payload: %v", ErrValidation, err)
	}
	delivery.PaymentID = strings.TrimSpace(delivery.PaymentID)
	delivery.Status = strings.TrimSpace(delivery.Status)
	if delivery.PaymentID == "" || delivery.OrderID == 0 || delivery.Status == "" {
		return "", fmt.Errorf("%w: payment_id, order_id and status are required", ErrValidation)
	}

	_, wasNew, err := s.ledger.GetOrCreate(ctx, entity.ScopeWebhook, delivery.PaymentID, func(ctx context.Context) ([]byte, error) {
		return s.apply(ctx, &WebhookDelivery{
			PaymentID: delivery.PaymentID,
			OrderID:   delivery.OrderID,
			Status:    delivery.Status,
			Payload:   payload,
			Attempt:   1,
		})
	})
	if err != nil {
		if errors.Is(err, ErrPermanent) {
			s.logger.WithError(err).
				WithField("payment_id", delivery.PaymentID).
				WithField("order_id", delivery.OrderID).
				Error("Webhook apply failed permanently")
			return AckProcessedWithError, nil
		}
		if errors.Is(err, ErrTransient) {
			s.scheduler.Schedule(&WebhookDelivery{
				PaymentID: delivery.PaymentID,
				OrderID:   delivery.OrderID,
				Status:    delivery.Status,
				Payload:   payload,
				Attempt:   1,
				LastError: err.Error(),
			})
			return "", fmt.Errorf("%w: webhook deferred for retry", ErrTransient)
		}
		return "", err
	}

	if wasNew {
		s.counters.WebhooksProcessed.Add(1)
	} else {
		s.counters.WebhookReplays.Add(1)
	}
	return AckProcessed, nil
}

func (s *WebhookService) ListDeadLetters(ctx context.Context, limit, offset int32) ([]*entity.WebhookDeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	records, err := s.deadLetters.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list dead letters: %v", ErrTransient, err)
	}
	return records, nil
}

func (s *WebhookService) apply(ctx context.Context, d *WebhookDelivery) ([]byte, error) {
	target := entity.OrderStatusFailed
	if strings.EqualFold(d.Status, providerStatusSuccess) {
		target = entity.OrderStatusPaid
	}

	order, err := s.orders.ApplyPaymentOutcome(ctx, d.OrderID, d.PaymentID, target, s.conflictRetries)
	if err != nil {
		return nil, err
	}

	return json.Marshal(webhookResult{OrderID: order.ID, Status: order.Status})
}

// applyScheduled is the retry scheduler's entry point. The idempotency
// reservation for the payment id is still held from the first delivery, so
// success stores the result under it just as the inline path would.
func (s *WebhookService) applyScheduled(ctx context.Context, d *WebhookDelivery) error {
	result, err := s.apply(ctx, d)
	if err != nil {
		return err
	}
	if err := s.ledger.Complete(ctx, entity.ScopeWebhook, d.PaymentID, result); err != nil {
		return err
	}
	s.counters.WebhooksProcessed.Add(1)
	return nil
}

// releaseDelivery frees the idempotency reservation once a delivery has been
// dead-lettered, so manual reprocessing can submit the payment id again.
func (s *WebhookService) releaseDelivery(ctx context.Context, d *WebhookDelivery) {
	if err := s.ledger.Release(ctx, entity.ScopeWebhook, d.PaymentID); err != nil {
		s.logger.WithError(err).WithField("payment_id", d.PaymentID).Warn("Failed to release idempotency reservation")
	}
}

// VerifySignature checks an X-Signature header of the form "sha256=<hex>"
// against the HMAC-SHA256 of the raw payload, in constant time.
func VerifySignature(payload []byte, signatureHeader string, secret []byte) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" || len(secret) == 0 {
		return false
	}

	encoded, ok := strings.CutPrefix(signatureHeader, "sha256=")
	if !ok {
		return false
	}
	candidate, err := hex.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(payload)
	return hmac.Equal(candidate, mac.Sum(nil))
}

// ComputeSignature produces the header value a provider would send for a
// payload. Used by the webhook simulator and tests.
func ComputeSignature(payload []byte, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
