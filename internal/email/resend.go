// Package email sends transactional mail through an HTTP transport.
package email

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dhandebaz/sangathan-sub001/internal/apperr"
)

type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Message struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Tags    []Tag    `json:"tags,omitempty"`
}

// Sender returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

type ResendClient struct {
	client *resty.Client
	from   string
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Tags    []Tag    `json:"tags,omitempty"`
}

type resendResponse struct {
	ID string `json:"id"`
}

type resendError struct {
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

func NewResendClient(baseURL, apiKey, from string) *ResendClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15*time.Second).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &ResendClient{client: client, from: from}
}

func (c *ResendClient) Send(ctx context.Context, msg Message) (string, error) {
	var (
		out    resendResponse
		apiErr resendError
	)
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(resendRequest{
			From:    c.from,
			To:      msg.To,
			Subject: msg.Subject,
			HTML:    msg.HTML,
			Tags:    msg.Tags,
		}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/emails")
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	if resp.IsError() {
		// 4xx other than rate limiting will never succeed on retry.
		kind := apperr.KindTransient
		if resp.StatusCode() < 500 && resp.StatusCode() != 429 {
			kind = apperr.KindTerminal
		}
		return "", apperr.Newf(kind, "email provider returned %d %s: %s", resp.StatusCode(), apiErr.Name, apiErr.Message)
	}
	return out.ID, nil
}
