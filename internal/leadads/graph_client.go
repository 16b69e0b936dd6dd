// Package leadads is the social lead-ads channel: the webhook that receives
// `leadgen` notifications, the Graph API client that fetches the submitted
// form, and the service that turns it into a lead.
package leadads

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dealerdesk_backend/platform/apperr"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultGraphBaseURL = "https://graph.facebook.com"
	DefaultGraphVersion = "v18.0"
	graphTimeout        = 10 * time.Second
)

// ErrAuth means the page token is missing, expired or lacks permissions.
var ErrAuth = errors.New("graph api authorization failed")

// ErrRateLimited means the Graph API throttled the request.
var ErrRateLimited = errors.New("graph api rate limit exceeded")

// GraphAPIError is any other non-success answer from the Graph API.
type GraphAPIError struct {
	StatusCode int
	Message    string
}

func (e *GraphAPIError) Error() string {
	if e.StatusCode == 0 {
		return "graph api: " + e.Message
	}
	return fmt.Sprintf("graph api (%d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether a later attempt could succeed. Authorization
// failures need an operator to renew the token first, and data the store
// rejected is rejected again.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, ErrAuth) {
		return false
	}
	switch apperr.GetKind(apperr.FromStore("", err)) {
	case apperr.KindBadRequest, apperr.KindConflict:
		return false
	}
	var apiErr *GraphAPIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 0 || apiErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

// FieldValue is one answered form field.
type FieldValue struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// LeadData is the Graph API representation of a submitted lead form.
type LeadData struct {
	ID          string       `json:"id"`
	CreatedTime string       `json:"created_time"`
	FieldData   []FieldValue `json:"field_data"`
	IsTest      bool         `json:"is_test"`
}

// CreatedAt parses the Graph timestamp, falling back to now.
func (d LeadData) CreatedAt(now time.Time) time.Time {
	for _, layout := range []string{"2006-01-02T15:04:05-0700", time.RFC3339} {
		if t, err := time.Parse(layout, d.CreatedTime); err == nil {
			return t.UTC()
		}
	}
	return now.UTC()
}

type graphErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// LeadFetcher retrieves a lead by its leadgen id using a page access token.
type LeadFetcher interface {
	GetLead(ctx context.Context, leadgenID, accessToken string) (LeadData, error)
}

// GraphClient talks to the Graph API over resty.
type GraphClient struct {
	http    *resty.Client
	version string
}

// NewGraphClient builds a client for baseURL and API version. Empty values
// use the public endpoint and the default version.
func NewGraphClient(baseURL, version string) *GraphClient {
	if baseURL == "" {
		baseURL = DefaultGraphBaseURL
	}
	if version == "" {
		version = DefaultGraphVersion
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(graphTimeout).
		SetHeader("Accept", "application/json")

	return &GraphClient{http: client, version: version}
}

// GetLead fetches one lead. Status codes map to ErrAuth (401, 403),
// ErrRateLimited (429) and GraphAPIError (anything else).
func (c *GraphClient) GetLead(ctx context.Context, leadgenID, accessToken string) (LeadData, error) {
	if accessToken == "" {
		return LeadData{}, fmt.Errorf("%w: page access token not configured", ErrAuth)
	}

	var data LeadData
	var apiErr graphErrorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("version", c.version).
		SetPathParam("leadgenID", leadgenID).
		SetQueryParam("access_token", accessToken).
		SetResult(&data).
		SetError(&apiErr).
		Get("/{version}/{leadgenID}")
	if err != nil {
		return LeadData{}, &GraphAPIError{Message: "request failed: " + err.Error()}
	}

	switch status := resp.StatusCode(); {
	case resp.IsSuccess():
		return data, nil
	case status == http.StatusBadRequest:
		msg := apiErr.Error.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return LeadData{}, &GraphAPIError{StatusCode: status, Message: "bad request: " + msg}
	case status == http.StatusUnauthorized:
		return LeadData{}, fmt.Errorf("%w: invalid or expired page access token", ErrAuth)
	case status == http.StatusForbidden:
		return LeadData{}, fmt.Errorf("%w: insufficient permissions to access lead data", ErrAuth)
	case status == http.StatusTooManyRequests:
		return LeadData{}, ErrRateLimited
	default:
		return LeadData{}, &GraphAPIError{StatusCode: status, Message: fmt.Sprintf("unexpected status code %d", status)}
	}
}
