package httpkit

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ContextRawBodyKey holds the exact request bytes captured by RawBody.
const ContextRawBodyKey = "rawBody"

// RawBody reads the request body once, keeps the exact bytes on the context
// for signature verification and restores the body for binding.
// Bodies larger than limit are rejected with 413.
func RawBody(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, limit+1))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable body"})
			return
		}
		if int64(len(body)) > limit {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "body too large"})
			return
		}

		c.Set(ContextRawBodyKey, body)
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}

// GetRawBody returns the bytes captured by RawBody, or nil.
func GetRawBody(c *gin.Context) []byte {
	raw, ok := c.Get(ContextRawBodyKey)
	if !ok {
		return nil
	}
	body, _ := raw.([]byte)
	return body
}
