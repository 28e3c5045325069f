package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/marketplace/fulfillment/internal/interfaces/http/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())

	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)
	assert.Empty(t, r.middleware)
}

func TestRouterWithAPIVersion(t *testing.T) {
	r := NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine, WithMiddleware(func(c *gin.Context) {
		c.Header("X-Api", "yes")
		c.Next()
	}))

	g := NewDomainGroup("test", "/test")
	g.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	api := r.Register(g).Setup()
	assert.Equal(t, "/api/v1", api.BasePath())

	w := serve(engine, http.MethodGet, "/api/v1/test/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
	assert.Equal(t, "yes", w.Header().Get("X-Api"))
}

func TestDomainGroup(t *testing.T) {
	t.Run("creates group with name and prefix", func(t *testing.T) {
		g := NewDomainGroup("orders", "/orders")
		assert.Equal(t, "orders", g.Name())
		assert.Equal(t, "/orders", g.Prefix())
	})

	t.Run("registers routes by method", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("test", "/test")
		g.GET("/items", func(c *gin.Context) { c.String(http.StatusOK, "list") }).
			POST("/items", func(c *gin.Context) { c.String(http.StatusCreated, "created") }).
			Handle(http.MethodDelete, "/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		g.RegisterRoutes(engine.Group("/api/v1"))

		assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/api/v1/test/items").Code)
		assert.Equal(t, http.StatusCreated, serve(engine, http.MethodPost, "/api/v1/test/items").Code)
		assert.Equal(t, http.StatusNoContent, serve(engine, http.MethodDelete, "/api/v1/test/items/1").Code)
	})

	t.Run("applies middleware to the group only", func(t *testing.T) {
		engine := gin.New()
		api := engine.Group("/api/v1")

		g := NewDomainGroup("test", "/test")
		g.Use(func(c *gin.Context) {
			c.Header("X-Test-Middleware", "applied")
			c.Next()
		})
		g.GET("/items", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
		g.RegisterRoutes(api)

		other := NewDomainGroup("other", "/other")
		other.GET("/items", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
		other.RegisterRoutes(api)

		assert.Equal(t, "applied", serve(engine, http.MethodGet, "/api/v1/test/items").Header().Get("X-Test-Middleware"))
		assert.Empty(t, serve(engine, http.MethodGet, "/api/v1/other/items").Header().Get("X-Test-Middleware"))
	})

	t.Run("creates subgroups", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("risk", "/risk")
		g.Group("assessments", "/assessments").
			GET("", func(c *gin.Context) { c.String(http.StatusOK, "assessments") })
		g.RegisterRoutes(engine.Group("/api/v1"))

		w := serve(engine, http.MethodGet, "/api/v1/risk/assessments")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "assessments", w.Body.String())
	})
}

func TestDomainGroups_RegistersEveryRoute(t *testing.T) {
	engine := gin.New()
	var limited bool
	groups := DomainGroups(Handlers{
		Orders:    &handler.OrderHandler{},
		Workflows: &handler.WorkflowHandler{},
		Jobs:      &handler.JobHandler{},
		Archives:  &handler.ArchiveHandler{},
		Risk:      &handler.RiskHandler{},
		Transfers: &handler.TransferHandler{},
		Health:    &handler.HealthHandler{},
	}, RouteOptions{ProcessMiddleware: []gin.HandlerFunc{func(c *gin.Context) {
		limited = true
		c.AbortWithStatus(http.StatusTooManyRequests)
	}}})
	NewRouter(engine).Register(groups...).Setup()

	registered := make(map[string]bool)
	for _, route := range engine.Routes() {
		registered[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"POST /api/v1/orders/:order_id/process",
		"GET /api/v1/orders/:order_id/status",
		"POST /api/v1/workflows",
		"GET /api/v1/workflows",
		"GET /api/v1/workflows/:id",
		"POST /api/v1/workflows/:id/activate",
		"POST /api/v1/workflows/:id/deactivate",
		"GET /api/v1/jobs/:id",
		"GET /api/v1/executions/:id/archive",
		"GET /api/v1/risk/assessments",
		"GET /api/v1/risk/assessments/:id",
		"POST /api/v1/risk/assessments/:id/false-positive",
		"POST /api/v1/risk/assessments/:id/confirm-fraud",
		"GET /api/v1/transfers/:id",
		"POST /api/v1/transfers/:id/resume",
		"GET /api/v1/health",
	} {
		assert.True(t, registered[want], "missing route %s", want)
	}

	w := serve(engine, http.MethodPost, "/api/v1/orders/o-1/process")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.True(t, limited)
}

func TestDomainGroups_SkipsNilHandlers(t *testing.T) {
	groups := DomainGroups(Handlers{Jobs: &handler.JobHandler{}}, RouteOptions{})
	require.Len(t, groups, 1)
	assert.Equal(t, "jobs", groups[0].(*DomainGroup).Name())
}
