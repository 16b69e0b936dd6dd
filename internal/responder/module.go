package responder

import (
	"dealerdesk_backend/internal/dealerships"
	"dealerdesk_backend/internal/email"
	"dealerdesk_backend/internal/leads"
	"dealerdesk_backend/internal/textgen"
	"dealerdesk_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewOrchestratorFromDeps builds the orchestrator used by the worker and the CLI.
func NewOrchestratorFromDeps(pool *pgxpool.Pool, gen textgen.Generator, sender email.Sender, log *logger.Logger) *Orchestrator {
	return NewOrchestrator(pool, dealerships.NewRepository(pool), leads.NewRepository(),
		NewConversationRepository(), NewReplyGenerator(gen), sender, log)
}
