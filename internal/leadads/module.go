package leadads

import (
	"dealerdesk_backend/internal/dealerships"
	"dealerdesk_backend/internal/events"
	apphttp "dealerdesk_backend/internal/http"
	"dealerdesk_backend/internal/leads"
	"dealerdesk_backend/platform/config"
	"dealerdesk_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the lead-ads channel implementing http.Module.
type Module struct {
	handler *Handler
}

func NewModule(bus events.Bus, cfg config.LeadAdsConfig, log *logger.Logger) *Module {
	if cfg.GetFacebookAppSecret() == "" {
		log.Warn("FACEBOOK_APP_SECRET is empty; lead-ads notifications will be rejected")
	}
	return &Module{handler: NewHandler(cfg.GetFacebookAppSecret(), cfg.GetFacebookVerifyToken(), bus, log)}
}

func (m *Module) Name() string {
	return "leadads"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Webhooks.GET("/facebook", m.handler.HandleVerify)
	ctx.Webhooks.POST("/facebook", m.handler.HandleNotification)
}

// NewFetchServiceFromDeps builds the fetch service used by the worker.
func NewFetchServiceFromDeps(pool *pgxpool.Pool, bus events.Bus, cfg config.LeadAdsConfig, phoneRegion string, log *logger.Logger) *FetchService {
	graph := NewGraphClient(cfg.GetFacebookGraphBaseURL(), cfg.GetFacebookGraphVersion())
	return NewFetchService(pool, dealerships.NewRepository(pool), leads.NewRepository(), graph, bus, phoneRegion, log)
}

var _ apphttp.Module = (*Module)(nil)
