package leads

import (
	"dealerdesk_backend/internal/dealerships"
	"dealerdesk_backend/internal/events"
	apphttp "dealerdesk_backend/internal/http"
	"dealerdesk_backend/platform/config"
	"dealerdesk_backend/platform/logger"
	"dealerdesk_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Module is the website-form channel implementing http.Module.
type Module struct {
	handler *Handler
	service *FormService
}

// NewModule wires the form channel. redisClient may be nil, which disables
// the dedup lock.
func NewModule(pool *pgxpool.Pool, redisClient *redis.Client, bus events.Bus, val *validator.Validator, cfg config.IntakeConfig, log *logger.Logger) (*Module, error) {
	policy, err := NewDedupPolicy(cfg.GetFormDedupPolicy())
	if err != nil {
		return nil, err
	}

	var lock *DedupLock
	if cfg.GetFormDedupLock() && redisClient != nil {
		lock = NewDedupLock(redisClient, log)
	}

	svc := NewFormService(pool, dealerships.NewRepository(pool), NewRepository(), policy, lock, bus, cfg.GetDefaultPhoneRegion(), log)
	return &Module{handler: NewHandler(svc, val), service: svc}, nil
}

func (m *Module) Name() string {
	return "leads"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Webhooks.POST("/form/:dealershipID", m.handler.HandleFormSubmission)
}

var _ apphttp.Module = (*Module)(nil)
