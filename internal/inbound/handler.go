package inbound

import (
	"mime/multipart"
	"net/http"

	"dealerdesk_backend/platform/httpkit"
	"dealerdesk_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxRelayMemory = 32 << 20

// Handler serves the relay webhook and the reprocess endpoint.
type Handler struct {
	relay       *RelayService
	reprocessor *Reprocessor
	log         *logger.Logger
}

func NewHandler(relay *RelayService, reprocessor *Reprocessor, log *logger.Logger) *Handler {
	return &Handler{relay: relay, reprocessor: reprocessor, log: log}
}

// HandleRelay accepts one forwarded email from the inbound relay.
// POST /api/v1/webhooks/email
func (h *Handler) HandleRelay(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(maxRelayMemory); err != nil {
		if err := c.Request.ParseForm(); err != nil {
			h.log.WebhookRejected("email", "unparsable form: "+err.Error(), c.ClientIP())
			httpkit.Error(c, http.StatusBadRequest, "unable to parse form data", nil)
			return
		}
	}
	if c.Request.MultipartForm != nil {
		defer func() { _ = c.Request.MultipartForm.RemoveAll() }()
	}

	in := RelayEmail{
		To:       c.PostForm("to"),
		From:     c.PostForm("from"),
		Subject:  c.PostForm("subject"),
		Text:     c.PostForm("text"),
		HTML:     c.PostForm("html"),
		Headers:  c.PostForm("headers"),
		Envelope: c.PostForm("envelope"),
		SPF:      c.PostForm("SPF"),
	}
	if in.To == "" || in.From == "" {
		h.log.WebhookRejected("email", "missing to or from", c.ClientIP())
		httpkit.Error(c, http.StatusBadRequest, "missing to or from", nil)
		return
	}

	files, closeFiles := collectFiles(c.Request.MultipartForm)
	defer closeFiles()
	in.Attachments = files

	result, err := h.relay.Receive(c.Request.Context(), in)
	if httpkit.HandleError(c, err) {
		return
	}

	if result.Duplicate {
		body := gin.H{"status": "ok", "message": "Email already processed"}
		if result.EmailID != uuid.Nil {
			body["email_id"] = result.EmailID
		}
		httpkit.OK(c, body)
		return
	}
	httpkit.OK(c, gin.H{"status": "ok", "email_id": result.EmailID})
}

// HandleReprocess resets an email of the caller's dealership to pending.
// POST /api/v1/emails/:emailID/reprocess
func (h *Handler) HandleReprocess(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	emailID, err := uuid.Parse(c.Param("emailID"))
	if err != nil {
		httpkit.Error(c, http.StatusNotFound, "email not found", nil)
		return
	}

	resp, err := h.reprocessor.Reprocess(c.Request.Context(), id.TenantID(), emailID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func collectFiles(form *multipart.Form) ([]RelayFile, func()) {
	if form == nil {
		return nil, func() {}
	}

	var files []RelayFile
	var opened []multipart.File
	for _, headers := range form.File {
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				continue
			}
			opened = append(opened, f)
			files = append(files, RelayFile{
				FileName:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Size:        fh.Size,
				Reader:      f,
			})
		}
	}
	return files, func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
}
