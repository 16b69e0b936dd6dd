// Package email delivers the automated first reply to a customer, either
// through the Brevo HTTP API or a plain SMTP relay.
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dealerdesk_backend/platform/config"
)

// ErrDeliveryDisabled is returned by NoopSender.
var ErrDeliveryDisabled = errors.New("email delivery disabled")

// Reply is the first response to a customer on behalf of a dealership.
type Reply struct {
	ToEmail      string
	CustomerName string
	Subject      string
	ResponseText string
	ReplyTo      string

	DealershipName    string
	DealershipEmail   string
	DealershipPhone   string
	DealershipAddress string
}

// Sender delivers replies and returns the provider's message id.
type Sender interface {
	SendReply(ctx context.Context, reply Reply) (string, error)
	Provider() string
}

type NoopSender struct{}

func (NoopSender) SendReply(context.Context, Reply) (string, error) {
	return "", ErrDeliveryDisabled
}

func (NoopSender) Provider() string { return "noop" }

// NewSender picks the configured provider. Disabled delivery yields NoopSender.
func NewSender(cfg config.DeliveryConfig) (Sender, error) {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}, nil
	}

	switch cfg.GetEmailProvider() {
	case "brevo":
		return NewBrevoSender(cfg.GetBrevoAPIKey(), cfg.GetEmailFromAddress(), ""), nil
	case "smtp":
		return NewSMTPSender(cfg.GetSMTPHost(), cfg.GetSMTPPort(), cfg.GetSMTPUsername(), cfg.GetSMTPPassword(), cfg.GetEmailFromAddress()), nil
	default:
		return nil, fmt.Errorf("unsupported email provider %q", cfg.GetEmailProvider())
	}
}

// ReplySubject builds the reply subject, naming the vehicle when known.
func ReplySubject(vehicle string) string {
	vehicle = strings.TrimSpace(vehicle)
	if vehicle == "" {
		return subjectReply
	}
	return subjectReply + " - " + vehicle
}

const subjectReply = "Svar på din henvendelse"
