package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func httpRequestEntry(t *testing.T, recorded *observer.ObservedLogs) observer.LoggedEntry {
	t.Helper()
	entries := recorded.FilterMessage("HTTP Request").All()
	require.Len(t, entries, 1)
	return entries[0]
}

func fieldMap(entry observer.LoggedEntry) map[string]zapcore.Field {
	out := make(map[string]zapcore.Field, len(entry.Context))
	for _, f := range entry.Context {
		out[f.Key] = f
	}
	return out
}

func TestGinMiddleware_LevelByStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		status int
		level  zapcore.Level
	}{
		{http.StatusOK, zapcore.InfoLevel},
		{http.StatusBadRequest, zapcore.WarnLevel},
		{http.StatusUnprocessableEntity, zapcore.WarnLevel},
		{http.StatusBadGateway, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			core, recorded := observer.New(zapcore.DebugLevel)
			router := gin.New()
			router.Use(GinMiddleware(zap.New(core)))
			router.GET("/x", func(c *gin.Context) { c.Status(tt.status) })

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x?verbose=1", nil))

			entry := httpRequestEntry(t, recorded)
			assert.Equal(t, tt.level, entry.Level)
			fields := fieldMap(entry)
			assert.Contains(t, fields, "latency")
			assert.Contains(t, fields, "client_ip")
			assert.Equal(t, "verbose=1", fields["query"].String)
		})
	}
}

func TestGinMiddleware_PropagatesCorrelationIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, recorded := observer.New(zapcore.DebugLevel)

	var ctxOrderID, ctxRequestID string
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("request_id", "req-55")
		c.Next()
	})
	router.Use(GinMiddleware(zap.New(core)))
	router.POST("/orders/:order_id/process", func(c *gin.Context) {
		ctx := c.Request.Context()
		ctxOrderID = GetOrderID(ctx)
		ctxRequestID = GetRequestID(ctx)
		L(ctx).Info("processing")
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/orders/ord-1/process", nil))

	assert.Equal(t, "ord-1", ctxOrderID)
	assert.Equal(t, "req-55", ctxRequestID)

	fields := fieldMap(httpRequestEntry(t, recorded))
	assert.Equal(t, "req-55", fields["request_id"].String)
	assert.Equal(t, "ord-1", fields["order_id"].String)

	processing := recorded.FilterMessage("processing").All()
	require.Len(t, processing, 1)
	inner := fieldMap(processing[0])
	assert.Equal(t, "ord-1", inner["order_id"].String)
	assert.Equal(t, "req-55", inner["request_id"].String)
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, recorded := observer.New(zapcore.ErrorLevel)

	router := gin.New()
	router.Use(Recovery(zap.New(core)))
	router.GET("/panic", func(c *gin.Context) {
		panic("handler exploded")
	})

	w := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_INTERNAL")
	require.Equal(t, 1, recorded.FilterMessage("Panic recovered").Len())
}

func TestGetGinLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var withMiddleware, without *zap.Logger
	router := gin.New()
	router.GET("/bare", func(c *gin.Context) {
		without = GetGinLogger(c)
		c.Status(http.StatusOK)
	})
	logged := router.Group("/", GinMiddleware(zap.NewExample()))
	logged.GET("/logged", func(c *gin.Context) {
		withMiddleware = GetGinLogger(c)
		c.Status(http.StatusOK)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bare", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/logged", nil))

	require.NotNil(t, without)
	assert.NotPanics(t, func() { without.Info("nop") })
	require.NotNil(t, withMiddleware)
}
