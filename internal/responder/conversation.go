package responder

import (
	"context"
	"time"

	"dealerdesk_backend/platform/db"

	"github.com/google/uuid"
)

// Conversation directions and sender roles.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	SenderCustomer = "customer"
	SenderAI       = "ai"
	SenderHuman    = "human"
)

// AssistantSender labels automated replies.
const AssistantSender = "AI Assistant"

// Entry is one append-only conversation message.
type Entry struct {
	ID         uuid.UUID
	LeadID     uuid.UUID
	TenantID   uuid.UUID
	Channel    string
	Direction  string
	Sender     string
	SenderType string
	Content    string
	Metadata   map[string]any
	CreatedAt  time.Time
}

// ConversationRepository appends entries. Like the lead store it relies on
// the caller's tenant-scoped querier.
type ConversationRepository struct{}

func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{}
}

// Append inserts e and fills in its id and creation time.
func (r *ConversationRepository) Append(ctx context.Context, q db.Querier, e *Entry) error {
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return q.QueryRow(ctx, `
    INSERT INTO conversations (
        lead_id, dealership_id, channel, direction, sender, sender_type, message_content, metadata
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    RETURNING id, created_at`,
		e.LeadID, e.TenantID, e.Channel, e.Direction, e.Sender, e.SenderType, e.Content, metadata,
	).Scan(&e.ID, &e.CreatedAt)
}
