package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/marketplace/fulfillment/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoLength answers with the number of body bytes it could read, or 413
// when the capped reader trips
func echoLength(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.String(http.StatusRequestEntityTooLarge, "capped at %d", tooLarge.Limit)
		return
	}
	c.String(http.StatusOK, strconv.Itoa(len(body)))
}

func bodyLimitRouter(maxBytes int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), BodyLimit(maxBytes))
	router.POST("/api/v1/orders/:order_id/process", echoLength)
	router.GET("/api/v1/orders/:order_id/status", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestBodyLimit(t *testing.T) {
	const path = "/api/v1/orders/ord-1/process"

	tests := []struct {
		name     string
		maxBytes int64
		body     string
		chunked  bool
		wantCode int
		wantBody string
	}{
		{name: "order within limit", maxBytes: 1024, body: `{"workflow_type":"single_vendor"}`, wantCode: http.StatusOK, wantBody: "33"},
		{name: "body exactly at limit", maxBytes: 10, body: strings.Repeat("x", 10), wantCode: http.StatusOK, wantBody: "10"},
		{name: "chunked body is capped while reading", maxBytes: 50, body: strings.Repeat("x", 100), chunked: true, wantCode: http.StatusRequestEntityTooLarge, wantBody: "capped at 50"},
		{name: "zero disables the limit", maxBytes: 0, body: strings.Repeat("x", 4096), wantCode: http.StatusOK, wantBody: "4096"},
		{name: "negative disables the limit", maxBytes: -1, body: strings.Repeat("x", 4096), chunked: true, wantCode: http.StatusOK, wantBody: "4096"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(tt.body))
			if tt.chunked {
				req.ContentLength = -1
			}
			w := httptest.NewRecorder()
			bodyLimitRouter(tt.maxBytes).ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestBodyLimit_RejectsDeclaredLengthWithEnvelope(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord-1/process", strings.NewReader(strings.Repeat("x", 200)))
	req.Header.Set("X-Request-ID", "req-oversized")
	w := httptest.NewRecorder()
	bodyLimitRouter(100).ServeHTTP(w, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeTooLarge, resp.Error.Code)
	assert.Equal(t, "req-oversized", resp.Error.RequestID)
	assert.Equal(t, http.StatusRequestEntityTooLarge, dto.GetHTTPStatus(resp.Error.Code))
}

func TestBodyLimit_StatusQueriesCarryNoBody(t *testing.T) {
	w := httptest.NewRecorder()
	bodyLimitRouter(1).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord-1/status", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
