package leads

import (
	"net/http"
	"strings"

	"dealerdesk_backend/platform/httpkit"
	"dealerdesk_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// FormRequest is the website-form payload, JSON or form-encoded.
type FormRequest struct {
	Name            string `json:"name" form:"name" validate:"required,notblank,max=255"`
	Email           string `json:"email" form:"email" validate:"required,storeemail,max=255"`
	Phone           string `json:"phone" form:"phone" validate:"max=50"`
	VehicleInterest string `json:"vehicle_interest" form:"vehicle_interest" validate:"max=255"`
	Message         string `json:"message" form:"message" validate:"required,notblank"`
	SourceURL       string `json:"source_url" form:"source_url" validate:"omitempty,url,max=2048"`
}

func (r FormRequest) submission() Submission {
	return Submission{
		Name:            r.Name,
		Email:           r.Email,
		Phone:           OptionalString(strings.TrimSpace(r.Phone)),
		VehicleInterest: OptionalString(strings.TrimSpace(r.VehicleInterest)),
		Message:         r.Message,
		SourceURL:       OptionalString(strings.TrimSpace(r.SourceURL)),
	}
}

// Handler serves the public website-form webhook.
type Handler struct {
	svc *FormService
	val *validator.Validator
}

func NewHandler(svc *FormService, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// HandleFormSubmission accepts one submission for the dealership in the path.
// POST /api/v1/webhooks/form/:dealershipID
func (h *Handler) HandleFormSubmission(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("dealershipID"))
	if err != nil {
		httpkit.Error(c, http.StatusNotFound, "dealership not found", nil)
		return
	}

	var req FormRequest
	if err := c.ShouldBind(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation error", validator.FieldErrors(err))
		return
	}

	outcome, err := h.svc.Submit(c.Request.Context(), tenantID, req.submission())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, outcome)
}
