package inbound

import (
	"dealerdesk_backend/internal/adapters/storage"
	"dealerdesk_backend/internal/dealerships"
	"dealerdesk_backend/internal/events"
	apphttp "dealerdesk_backend/internal/http"
	"dealerdesk_backend/internal/leads"
	"dealerdesk_backend/internal/textgen"
	"dealerdesk_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the email channel implementing http.Module.
type Module struct {
	handler *Handler
}

// NewModule wires the relay webhook and the reprocess endpoint. store may be
// nil when object storage is not configured.
func NewModule(pool *pgxpool.Pool, store storage.ObjectStore, bucket string, bus events.Bus, log *logger.Logger) *Module {
	repo := NewRepository()
	relay := NewRelayService(pool, dealerships.NewRepository(pool), repo, store, bucket, bus, log)
	return &Module{handler: NewHandler(relay, NewReprocessor(pool, repo, bus, log), log)}
}

func (m *Module) Name() string {
	return "inbound"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Webhooks.POST("/email", m.handler.HandleRelay)
	ctx.Protected.POST("/emails/:emailID/reprocess", m.handler.HandleReprocess)
}

// NewPipelineFromDeps builds the background pipeline used by the worker.
func NewPipelineFromDeps(pool *pgxpool.Pool, gen textgen.Generator, spam SpamPolicy, bus events.Bus, phoneRegion string, log *logger.Logger) *Pipeline {
	return NewPipeline(pool, NewRepository(), leads.NewRepository(), spam,
		NewClassifier(gen), NewExtractor(gen, phoneRegion), bus, log)
}

var _ apphttp.Module = (*Module)(nil)
