package email

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const brevoBaseURL = "https://api.brevo.com"

type BrevoSender struct {
	client    *resty.Client
	fromEmail string
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoEmailRequest struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	ReplyTo     *brevoContact  `json:"replyTo,omitempty"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
	TextContent string         `json:"textContent,omitempty"`
}

type brevoEmailResponse struct {
	MessageID string `json:"messageId"`
}

type brevoErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBrevoSender builds a sender for the transactional API. An empty baseURL
// uses the public endpoint.
func NewBrevoSender(apiKey, fromEmail, baseURL string) *BrevoSender {
	if baseURL == "" {
		baseURL = brevoBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetHeader("api-key", apiKey).
		SetHeader("accept", "application/json")
	return &BrevoSender{client: client, fromEmail: fromEmail}
}

func (b *BrevoSender) Provider() string { return "brevo" }

// SendReply posts the rendered reply with the dealership as sender name.
func (b *BrevoSender) SendReply(ctx context.Context, reply Reply) (string, error) {
	html, text, err := RenderReply(reply)
	if err != nil {
		return "", err
	}

	payload := brevoEmailRequest{
		Sender:      brevoContact{Email: b.fromEmail, Name: reply.DealershipName},
		To:          []brevoContact{{Email: reply.ToEmail, Name: reply.CustomerName}},
		Subject:     reply.Subject,
		HTMLContent: html,
		TextContent: text,
	}
	if reply.ReplyTo != "" {
		payload.ReplyTo = &brevoContact{Email: reply.ReplyTo, Name: reply.DealershipName}
	}

	var result brevoEmailResponse
	var apiErr brevoErrorResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(payload).
		SetResult(&result).
		SetError(&apiErr).
		Post("/v3/smtp/email")
	if err != nil {
		return "", fmt.Errorf("brevo send: %w", err)
	}
	if !resp.IsSuccess() {
		msg := apiErr.Message
		if msg == "" {
			msg = string(resp.Body())
		}
		return "", fmt.Errorf("brevo send failed: status %d: %s", resp.StatusCode(), msg)
	}
	return result.MessageID, nil
}
