package identity

import (
	"context"
	"errors"
	"net/http"

	"dealerdesk_backend/platform/httpkit"
	"dealerdesk_backend/platform/logger"
	"dealerdesk_backend/platform/webhooksig"

	"github.com/gin-gonic/gin"
)

// EventHandler applies a parsed provisioning event.
type EventHandler interface {
	Handle(ctx context.Context, event Event) (Result, error)
}

// Handler serves the identity-provider webhook.
type Handler struct {
	svc      EventHandler
	verifier *webhooksig.SvixVerifier
	log      *logger.Logger
}

type webhookResponse struct {
	Status    string `json:"status"`
	EventType string `json:"event_type"`
	Result
}

func NewHandler(svc EventHandler, verifier *webhooksig.SvixVerifier, log *logger.Logger) *Handler {
	return &Handler{svc: svc, verifier: verifier, log: log}
}

// HandleWebhook verifies the raw body before decoding anything. Bad
// signatures are 400, conflicts 409, other failures a generic 500.
func (h *Handler) HandleWebhook(c *gin.Context) {
	body := httpkit.GetRawBody(c)

	env, err := webhooksig.DecodeVerified[Envelope](body, func() error {
		return h.verifier.Verify(body, c.Request.Header)
	})
	if webhooksig.IsVerificationFailure(err) {
		h.log.WithContext(c.Request.Context()).WebhookRejected("identity", err.Error(), c.ClientIP())
		httpkit.Error(c, http.StatusBadRequest, "invalid signature", nil)
		return
	}
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", nil)
		return
	}

	event, err := ParseEvent(env)
	if errors.Is(err, ErrUnhandledEvent) {
		h.log.Debug("identity event ignored", "event_type", env.Type)
		httpkit.OK(c, gin.H{"status": "ignored", "event_type": env.Type})
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}

	result, err := h.svc.Handle(c.Request.Context(), event)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, webhookResponse{Status: "processed", EventType: env.Type, Result: result})
}
