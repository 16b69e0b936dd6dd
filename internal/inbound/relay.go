package inbound

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"dealerdesk_backend/internal/adapters/storage"
	"dealerdesk_backend/internal/dealerships"
	"dealerdesk_backend/internal/events"
	"dealerdesk_backend/platform/apperr"
	"dealerdesk_backend/platform/db"
	"dealerdesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TenantResolver finds the dealership owning a forwarding address.
type TenantResolver interface {
	GetByForwardingAddress(ctx context.Context, address string) (dealerships.Dealership, error)
}

// RelayEmail is one email as posted by the inbound relay.
type RelayEmail struct {
	To          string
	From        string
	Subject     string
	Text        string
	HTML        string
	Headers     string
	Envelope    string
	SPF         string
	Attachments []RelayFile
}

// RelayFile is an attachment posted with a relay email.
type RelayFile struct {
	FileName    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// RelayResult tells the relay whether the email was new.
type RelayResult struct {
	EmailID   uuid.UUID
	Duplicate bool
}

// RelayService stores relay emails as pending work.
type RelayService struct {
	pool    db.TxBeginner
	tenants TenantResolver
	repo    *Repository
	store   storage.ObjectStore
	bucket  string
	bus     events.Bus
	now     func() time.Time
	log     *logger.Logger
}

// NewRelayService wires the relay. store may be nil, in which case only
// attachment metadata is kept.
func NewRelayService(pool db.TxBeginner, tenants TenantResolver, repo *Repository, store storage.ObjectStore, bucket string, bus events.Bus, log *logger.Logger) *RelayService {
	return &RelayService{
		pool:    pool,
		tenants: tenants,
		repo:    repo,
		store:   store,
		bucket:  bucket,
		bus:     bus,
		now:     time.Now,
		log:     log,
	}
}

// Receive resolves the tenant from the recipient, drops duplicates by
// Message-ID and stores new emails as pending before announcing them.
func (s *RelayService) Receive(ctx context.Context, in RelayEmail) (RelayResult, error) {
	tenant, address, err := s.resolveTenant(ctx, in.To)
	if err != nil {
		return RelayResult{}, err
	}

	fromEmail, fromName := ParseSender(in.From)
	if fromEmail == "" {
		return RelayResult{}, apperr.BadRequest("missing sender address")
	}

	receivedAt := s.now().UTC()
	headers := ParseHeaders(in.Headers)
	if in.SPF != "" {
		headers["X-Relay-SPF"] = in.SPF
	}
	if in.Envelope != "" {
		headers["X-Relay-Envelope"] = in.Envelope
	}
	messageID := MessageID(headers, in.From, in.To, in.Subject, receivedAt)
	log := s.log.WithTenant(tenant.ID.String()).WithFields("message_id", messageID)

	existing, err := s.findExisting(ctx, tenant.ID, messageID)
	if err != nil {
		return RelayResult{}, apperr.FromStore("inbound.relay.lookup", err)
	}
	if existing != uuid.Nil {
		log.Info("duplicate relay email ignored", "email_id", existing.String())
		return RelayResult{EmailID: existing, Duplicate: true}, nil
	}

	attachments := s.archive(ctx, log, tenant.ID, receivedAt, in.Attachments)

	var result RelayResult
	err = db.WithTenantScope(ctx, s.pool, tenant.ID, func(tx pgx.Tx) error {
		id, inserted, err := s.repo.InsertPending(ctx, tx, NewEmail{
			TenantID:    tenant.ID,
			MessageID:   messageID,
			FromEmail:   fromEmail,
			FromName:    fromName,
			ToEmail:     address,
			Subject:     optional(in.Subject),
			BodyText:    optional(in.Text),
			BodyHTML:    optional(in.HTML),
			RawHeaders:  headers,
			Attachments: attachments,
			ReceivedAt:  receivedAt,
		})
		if err != nil {
			return err
		}
		if inserted {
			result = RelayResult{EmailID: id}
			return nil
		}

		// Lost a race with a concurrent delivery of the same message, or the
		// message was forwarded to another dealership first and its row is
		// outside this scope.
		id, err = s.repo.FindIDByMessageID(ctx, tx, messageID)
		if errors.Is(err, ErrNotFound) {
			log.Warn("message id already stored for another dealership")
			result = RelayResult{Duplicate: true}
			return nil
		}
		if err != nil {
			return err
		}
		result = RelayResult{EmailID: id, Duplicate: true}
		return nil
	})
	if err != nil {
		log.Error("relay email not stored", "error", err)
		return RelayResult{}, apperr.FromStore("inbound.relay.store", err)
	}
	if result.Duplicate {
		return result, nil
	}

	log.Info("relay email stored", "email_id", result.EmailID.String(), "attachments", len(attachments))
	s.bus.Publish(ctx, events.EmailReceived{
		BaseEvent: events.NewBaseEvent(),
		EmailID:   result.EmailID,
		TenantID:  tenant.ID,
	})
	return result, nil
}

func (s *RelayService) resolveTenant(ctx context.Context, to string) (dealerships.Dealership, string, error) {
	for _, address := range ParseAddressList(to) {
		tenant, err := s.tenants.GetByForwardingAddress(ctx, address)
		if err == nil {
			return tenant, address, nil
		}
		if !errors.Is(err, dealerships.ErrNotFound) {
			return dealerships.Dealership{}, "", apperr.FromStore("inbound.relay.tenant", err)
		}
	}
	return dealerships.Dealership{}, "", apperr.NotFound("no dealership found for forwarding address")
}

func (s *RelayService) findExisting(ctx context.Context, tenantID uuid.UUID, messageID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.WithTenantScope(ctx, s.pool, tenantID, func(tx pgx.Tx) error {
		found, err := s.repo.FindIDByMessageID(ctx, tx, messageID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		id = found
		return err
	})
	return id, err
}

// archive uploads attachments under <tenant>/<yyyy>/<mm>/<dd>. Upload
// failures are logged and the attachment is kept without a key.
func (s *RelayService) archive(ctx context.Context, log *logger.Logger, tenantID uuid.UUID, receivedAt time.Time, files []RelayFile) []Attachment {
	out := make([]Attachment, 0, len(files))
	folder := path.Join(tenantID.String(), receivedAt.Format("2006/01/02"))

	for _, f := range files {
		att := Attachment{
			FileName:    storage.SafeFileName(f.FileName),
			ContentType: strings.TrimSpace(f.ContentType),
			Size:        f.Size,
		}
		if s.store != nil && f.Reader != nil {
			key, err := s.store.UploadFile(ctx, s.bucket, folder, att.FileName, att.ContentType, f.Reader, f.Size)
			if err != nil {
				log.Warn("attachment not archived", "file", att.FileName, "error", err)
			} else {
				att.Key = key
			}
		}
		out = append(out, att)
	}
	return out
}

