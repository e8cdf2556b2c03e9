package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dhandebaz/sangathan-sub001/internal/breaker"
	"github.com/dhandebaz/sangathan-sub001/internal/email"
	"github.com/dhandebaz/sangathan-sub001/internal/webhook"
)

// Recipients accepts either one address or a list.
type Recipients []string

func (r *Recipients) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var one string
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*r = Recipients{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*r = many
	return nil
}

type SendEmailPayload struct {
	To      Recipients  `json:"to"`
	Subject string      `json:"subject"`
	HTML    string      `json:"html"`
	Tags    []email.Tag `json:"tags,omitempty"`
}

// SendEmail calls the transport through b. A transport error fails the
// attempt.
func SendEmail(sender email.Sender, b *breaker.Breaker, logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, raw json.RawMessage) error {
		var p SendEmailPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode send_email payload: %w", err)
		}
		if len(p.To) == 0 {
			return fmt.Errorf("send_email payload has no recipients")
		}

		id, err := breaker.Call(ctx, b, func(ctx context.Context) (string, error) {
			return sender.Send(ctx, email.Message{
				To:      p.To,
				Subject: p.Subject,
				HTML:    p.HTML,
				Tags:    p.Tags,
			})
		})
		if err != nil {
			return err
		}
		logger.Info("email sent", "message_id", id, "recipients", len(p.To))
		return nil
	}
}

func DeliverWebhook(d *webhook.Dispatcher) Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		var job webhook.DeliveryJob
		if err := json.Unmarshal(raw, &job); err != nil {
			return fmt.Errorf("decode deliver_webhook payload: %w", err)
		}
		return d.Deliver(ctx, job)
	}
}
