package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/dhandebaz/sangathan-sub001/internal/breaker"
	"github.com/dhandebaz/sangathan-sub001/internal/models"
)

const (
	HeaderEvent     = "X-Webhook-Event"
	HeaderSignature = "X-Webhook-Signature"
	HeaderID        = "X-Webhook-ID"
	HeaderDelivery  = "X-Webhook-Delivery"
)

// DeliveryJob is the payload of a deliver_webhook job. URL and secret are
// looked up at delivery time so a rotated or removed endpoint takes effect.
type DeliveryJob struct {
	WebhookID uuid.UUID       `json:"webhook_id"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
}

// BreakerName is the breaker every delivery goes through. Endpoint hosts are
// tenant input, so they are not used as breaker or metric label names.
const BreakerName = "webhooks"

// Dispatcher POSTs one signed delivery per call.
type Dispatcher struct {
	store    Store
	client   *resty.Client
	breakers *breaker.Registry
	logger   *slog.Logger
	now      func() time.Time
}

func NewDispatcher(store Store, breakers *breaker.Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	client := resty.New().
		SetTimeout(15*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "sangathan-webhooks/1")

	return &Dispatcher{
		store:    store,
		client:   client,
		breakers: breakers,
		logger:   logger,
		now:      time.Now,
	}
}

// Deliver sends job and records the attempt. A non-2xx answer is an error so
// the job is retried.
func (d *Dispatcher) Deliver(ctx context.Context, job DeliveryJob) error {
	wh, err := d.store.Get(ctx, job.WebhookID)
	if errors.Is(err, ErrNotFound) {
		d.logger.Warn("webhook gone, dropping delivery", "webhook_id", job.WebhookID, "event", job.Event)
		return nil
	}
	if err != nil {
		return err
	}
	if !wh.IsActive {
		d.logger.Info("webhook inactive, dropping delivery", "webhook_id", wh.ID, "event", job.Event)
		return nil
	}

	deliveryID := uuid.New()
	status := 0
	err = d.breakers.Execute(ctx, BreakerName, func(ctx context.Context) error {
		resp, err := d.client.R().
			SetContext(ctx).
			SetHeader(HeaderEvent, job.Event).
			SetHeader(HeaderSignature, sign(job.Payload, wh.Secret)).
			SetHeader(HeaderID, wh.ID.String()).
			SetHeader(HeaderDelivery, deliveryID.String()).
			SetBody([]byte(job.Payload)).
			Post(wh.URL)
		if err != nil {
			return fmt.Errorf("post webhook: %w", err)
		}
		status = resp.StatusCode()
		if !resp.IsSuccess() {
			return fmt.Errorf("webhook endpoint returned %d", status)
		}
		return nil
	})

	now := d.now().UTC()
	rec := models.WebhookDelivery{
		ID:             deliveryID,
		WebhookID:      wh.ID,
		Event:          job.Event,
		Payload:        job.Payload,
		ResponseStatus: status,
		Attempts:       1,
		CreatedAt:      now,
	}
	if err == nil {
		rec.DeliveredAt = &now
	}
	if recErr := d.store.RecordDelivery(ctx, rec); recErr != nil {
		d.logger.Error("failed to record webhook delivery", "error", recErr, "webhook_id", wh.ID)
	}

	if err != nil {
		d.logger.Warn("webhook delivery failed", "webhook_id", wh.ID, "event", job.Event, "status", status, "error", err)
		return err
	}
	return nil
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}

// Verify checks a signature produced by sign. Receivers written in Go can use
// it directly.
func Verify(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(sign(payload, secret)), []byte(signature))
}
