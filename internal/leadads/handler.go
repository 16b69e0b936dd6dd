package leadads

import (
	"net/http"

	"dealerdesk_backend/internal/events"
	"dealerdesk_backend/platform/httpkit"
	"dealerdesk_backend/platform/logger"
	"dealerdesk_backend/platform/webhooksig"

	"github.com/gin-gonic/gin"
)

// SignatureHeader carries the HMAC of the raw body.
const SignatureHeader = "X-Hub-Signature-256"

// WebhookPayload is the lead-ads change notification envelope.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Time    int64    `json:"time"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string       `json:"field"`
	Value Notification `json:"value"`
}

// Notifications returns the leadgen changes of a page payload.
func (p WebhookPayload) Notifications() []Notification {
	if p.Object != "page" {
		return nil
	}
	var out []Notification
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if change.Field != "leadgen" || change.Value.LeadgenID == "" {
				continue
			}
			out = append(out, change.Value)
		}
	}
	return out
}

type Handler struct {
	verifier    webhooksig.HMACVerifier
	verifyToken string
	bus         events.Bus
	log         *logger.Logger
}

func NewHandler(appSecret, verifyToken string, bus events.Bus, log *logger.Logger) *Handler {
	return &Handler{
		verifier:    webhooksig.HMACVerifier{Secret: appSecret},
		verifyToken: verifyToken,
		bus:         bus,
		log:         log,
	}
}

// HandleVerify answers the subscription handshake by echoing hub.challenge.
func (h *Handler) HandleVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")

	if mode != "subscribe" || h.verifyToken == "" || token != h.verifyToken {
		h.log.WebhookRejected("leadads", "verification handshake failed", c.ClientIP())
		httpkit.Error(c, http.StatusForbidden, "verification failed", nil)
		return
	}
	h.log.Info("lead-ads webhook verified")
	c.String(http.StatusOK, c.Query("hub.challenge"))
}

// HandleNotification verifies the signature, then publishes one
// LeadAdReceived per leadgen change. The sender only needs an acknowledgement.
func (h *Handler) HandleNotification(c *gin.Context) {
	body := httpkit.GetRawBody(c)

	payload, err := webhooksig.DecodeVerified[WebhookPayload](body, func() error {
		return h.verifier.Verify(body, c.GetHeader(SignatureHeader))
	})
	if webhooksig.IsVerificationFailure(err) {
		h.log.WithContext(c.Request.Context()).WebhookRejected("leadads", err.Error(), c.ClientIP())
		httpkit.Error(c, http.StatusUnauthorized, "invalid signature", nil)
		return
	}
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid JSON", nil)
		return
	}

	for _, n := range payload.Notifications() {
		h.log.Info("leadgen event received", "leadgen_id", n.LeadgenID, "page_id", n.PageID, "form_id", n.FormID)
		h.bus.Publish(c.Request.Context(), events.LeadAdReceived{
			BaseEvent: events.NewBaseEvent(),
			LeadgenID: n.LeadgenID,
			PageID:    n.PageID,
			FormID:    n.FormID,
		})
	}

	httpkit.OK(c, gin.H{"status": "received"})
}
