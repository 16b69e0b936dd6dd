package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apphttp "dealerdesk_backend/internal/http"
	"dealerdesk_backend/platform/config"
	"dealerdesk_backend/platform/httpkit"
	"dealerdesk_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type stubHealth struct{ err error }

func (h stubHealth) Ping(context.Context) error { return h.err }

type echoModule struct{}

func (echoModule) Name() string { return "echo" }

func (echoModule) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Webhooks.POST("/echo", func(c *gin.Context) {
		c.String(http.StatusOK, string(httpkit.GetRawBody(c)))
	})
	ctx.Protected.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, "me")
	})
}

func newTestApp(health apphttp.HealthChecker, auth ...gin.HandlerFunc) *apphttp.App {
	return &apphttp.App{
		Config:  &config.Config{Env: "development", CORSOrigins: []string{"http://localhost:3000"}},
		Logger:  logger.Nop(),
		Health:  health,
		Auth:    auth,
		Modules: []apphttp.Module{echoModule{}},
	}
}

func serve(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestHealthAndReadiness(t *testing.T) {
	engine := New(newTestApp(stubHealth{}))

	w := serve(engine, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(httpkit.HeaderRequestID))

	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/api/ready", "").Code)

	down := New(newTestApp(stubHealth{err: errors.New("pool closed")}))
	assert.Equal(t, http.StatusServiceUnavailable, serve(down, http.MethodGet, "/api/ready", "").Code)
}

func TestWebhookGroupCapturesRawBody(t *testing.T) {
	engine := New(newTestApp(stubHealth{}))

	w := serve(engine, http.MethodPost, "/api/v1/webhooks/echo", `{"a":1}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"a":1}`, w.Body.String())
}

func TestProtectedGroupRequiresAuth(t *testing.T) {
	engine := New(newTestApp(stubHealth{}))
	assert.Equal(t, http.StatusUnauthorized, serve(engine, http.MethodGet, "/api/v1/me", "").Code)

	allow := func(c *gin.Context) { c.Next() }
	authed := New(newTestApp(stubHealth{}, allow))
	assert.Equal(t, http.StatusOK, serve(authed, http.MethodGet, "/api/v1/me", "").Code)
}
