// Package identity provisions dealerships and their users from the identity
// provider's signed lifecycle events.
package identity

import (
	apphttp "dealerdesk_backend/internal/http"
	"dealerdesk_backend/platform/logger"
	"dealerdesk_backend/platform/webhooksig"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	handler *Handler
	service *Service
}

func NewModule(pool *pgxpool.Pool, verifier *webhooksig.SvixVerifier, log *logger.Logger) *Module {
	svc := NewService(pool, NewRepository(), log)
	return &Module{
		handler: NewHandler(svc, verifier, log),
		service: svc,
	}
}

func (m *Module) Name() string {
	return "identity"
}

// Service exposes the resolver, which also backs bearer authentication.
func (m *Module) Service() *Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Webhooks.POST("/identity", m.handler.HandleWebhook)
}

var _ apphttp.Module = (*Module)(nil)
