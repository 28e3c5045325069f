package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/marketplace/fulfillment/internal/application/fulfillment"
	"github.com/marketplace/fulfillment/internal/application/payment"
	riskapp "github.com/marketplace/fulfillment/internal/application/risk"
	"github.com/marketplace/fulfillment/internal/domain/risk"
	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/wallet"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
	"github.com/marketplace/fulfillment/internal/infrastructure/persistence"
	"github.com/marketplace/fulfillment/internal/infrastructure/provider"
	"github.com/marketplace/fulfillment/internal/infrastructure/scheduler"
	"github.com/marketplace/fulfillment/internal/infrastructure/storage"
	"github.com/marketplace/fulfillment/internal/interfaces/http/dto"
	"github.com/marketplace/fulfillment/internal/interfaces/http/middleware"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const fraudsterID = "cust-fraud"

type apiFixture struct {
	engine      *gin.Engine
	queue       *scheduler.Scheduler
	archive     *storage.MemoryArchive
	archiver    *fulfillment.ExecutionArchiver
	executions  *persistence.GormExecutionRepository
	assessments *persistence.GormAssessmentRepository
	transfers   *persistence.GormTransferRepository
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	log := zaptest.NewLogger(t)

	db, err := persistence.OpenSQLite("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, persistence.AutoMigrate(db.DB))

	definitions := persistence.NewGormDefinitionRepository(db.DB)
	executions := persistence.NewGormExecutionRepository(db.DB)
	logs := persistence.NewGormStepLogRepository(db.DB)
	assessments := persistence.NewGormAssessmentRepository(db.DB)
	transfers := persistence.NewGormTransferRepository(db.DB)

	handlers := fulfillment.NewHandlerRegistry()
	handlers.MustRegister(
		fulfillment.NewSplittingHandler(),
		fulfillment.HandlerFunc{StepType: workflow.StepTypeFraudCheck, Fn: func(_ context.Context, in fulfillment.StepInput) fulfillment.StepResult {
			if in.Order.CustomerID == fraudsterID {
				return fulfillment.Failed(nil, shared.NewDomainError(shared.CodeValidation, "order blocked by fraud screening"))
			}
			return fulfillment.Succeeded(map[string]int{"score": 5})
		}},
		fulfillment.HandlerFunc{StepType: workflow.StepTypeCustomerNotification, Fn: func(context.Context, fulfillment.StepInput) fulfillment.StepResult {
			return fulfillment.Succeeded(nil)
		}},
	)

	queue, err := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Workers:       2,
		QueueSize:     8,
		JobTimeout:    5 * time.Second,
		RetryAttempts: 1,
		RetryDelay:    5 * time.Millisecond,
		Retention:     time.Hour,
	}, log)
	require.NoError(t, err)

	executor := fulfillment.NewExecutor(definitions, executions, logs, handlers, log)
	archive := storage.NewMemoryArchive()
	archiver := fulfillment.NewExecutionArchiver(archive, executions, logs, time.Minute, log)
	fulfillment.RegisterJobs(queue, executor, archiver, fulfillment.JobSettings{ArchiveRetries: 1, ArchiveRetryDelay: time.Millisecond})
	require.NoError(t, queue.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = queue.Stop(ctx)
	})

	workflows := fulfillment.NewWorkflowService(definitions, handlers, nil, log)
	saga := payment.NewSagaCoordinator(transfers, provider.NewFakeClient(), payment.SagaConfig{}, log)

	orders := NewOrderHandler(fulfillment.NewOrderService(executor, executions, logs, queue))
	workflowHandler := NewWorkflowHandler(workflows)
	jobs := NewJobHandler(fulfillment.NewJobService(queue))
	archives := NewArchiveHandler(archiver)
	riskHandler := NewRiskHandler(riskapp.NewInvestigationService(assessments, log))
	transferHandler := NewTransferHandler(saga)

	engine := gin.New()
	engine.Use(middleware.RequestID())
	api := engine.Group("/api/v1")
	api.POST("/orders/:order_id/process", orders.Process)
	api.GET("/orders/:order_id/status", orders.Status)
	api.POST("/workflows", workflowHandler.Create)
	api.GET("/workflows", workflowHandler.List)
	api.GET("/workflows/:id", workflowHandler.Get)
	api.POST("/workflows/:id/activate", workflowHandler.Activate)
	api.POST("/workflows/:id/deactivate", workflowHandler.Deactivate)
	api.GET("/jobs/:id", jobs.Get)
	api.GET("/executions/:id/archive", archives.Download)
	api.GET("/risk/assessments", riskHandler.List)
	api.GET("/risk/assessments/:id", riskHandler.Get)
	api.POST("/risk/assessments/:id/false-positive", riskHandler.MarkFalsePositive)
	api.POST("/risk/assessments/:id/confirm-fraud", riskHandler.ConfirmFraud)
	api.GET("/transfers/:id", transferHandler.Get)
	api.POST("/transfers/:id/resume", transferHandler.Resume)

	return &apiFixture{
		engine:      engine,
		queue:       queue,
		archive:     archive,
		archiver:    archiver,
		executions:  executions,
		assessments: assessments,
		transfers:   transfers,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

// data re-decodes the envelope's data into out
func data(t *testing.T, w *httptest.ResponseRecorder, out any) dto.Response {
	t.Helper()
	resp := decode(t, w)
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
	return resp
}

func (f *apiFixture) createWorkflow(t *testing.T) WorkflowResponse {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/v1/workflows", map[string]any{
		"name":          "single vendor",
		"workflow_type": "single_vendor",
		"active":        true,
		"steps": []map[string]any{
			{"name": "screen_fraud", "type": "fraud_check"},
			{"name": "split_order", "type": "order_splitting"},
			{"name": "notify_customer", "type": "customer_notification", "required": false},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var def WorkflowResponse
	data(t, w, &def)
	return def
}

func orderBody(customerID string) map[string]any {
	return map[string]any{
		"customer_id": customerID,
		"currency":    "KES",
		"subtotal":    "30",
		"items": []map[string]any{
			{"product_id": "p1", "vendor_id": "v1", "quantity": 1, "unit_price": "10"},
			{"product_id": "p2", "vendor_id": "v2", "quantity": 2, "unit_price": "10"},
		},
		"payment":  map[string]any{"method": "card", "token": "tok_1"},
		"shipping": map[string]any{"region": "nairobi", "country": "KE"},
	}
}

func TestWorkflowEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	def := f.createWorkflow(t)

	assert.True(t, def.Active)
	assert.Equal(t, workflow.WorkflowTypeSingleVendor, def.WorkflowType)
	require.Len(t, def.Steps, 3)
	assert.True(t, def.Steps[0].Required, "required defaults to true")
	assert.False(t, def.Steps[2].Required)

	t.Run("get", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/workflows/"+def.ID.String(), nil)
		require.Equal(t, http.StatusOK, w.Code)
		var got WorkflowResponse
		data(t, w, &got)
		assert.Equal(t, def.ID, got.ID)
	})

	t.Run("list filters by active flag", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/workflows/"+def.ID.String()+"/deactivate", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var list []WorkflowResponse
		data(t, f.do(t, http.MethodGet, "/api/v1/workflows?workflow_type=single_vendor&active=true", nil), &list)
		assert.Empty(t, list)

		data(t, f.do(t, http.MethodGet, "/api/v1/workflows?workflow_type=single_vendor", nil), &list)
		assert.Len(t, list, 1)

		w = f.do(t, http.MethodPost, "/api/v1/workflows/"+def.ID.String()+"/activate", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var got WorkflowResponse
		data(t, w, &got)
		assert.True(t, got.Active)
	})

	t.Run("unknown workflow type is rejected", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/workflows?workflow_type=express", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decode(t, w).Error.Code)
	})

	t.Run("steps are required", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/workflows", map[string]any{
			"name": "empty", "workflow_type": "dropship", "steps": []any{},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decode(t, w).Error.Code)
	})

	t.Run("step without handler is a configuration error", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/workflows", map[string]any{
			"name": "pay", "workflow_type": "dropship",
			"steps": []map[string]any{{"name": "pay", "type": "payment_processing"}},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, dto.ErrCodeConfiguration, decode(t, w).Error.Code)
	})

	t.Run("missing definition", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/workflows/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestProcessOrder(t *testing.T) {
	f := newAPIFixture(t)
	def := f.createWorkflow(t)

	t.Run("successful run", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/orders/ord-1/process", map[string]any{
			"workflow_type": "single_vendor",
			"order":         orderBody("cust-1"),
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp ProcessOrderResponse
		envelope := data(t, w, &resp)
		assert.True(t, envelope.Success)
		assert.True(t, resp.Success)
		assert.Equal(t, def.ID, resp.WorkflowID)
		assert.NotEqual(t, uuid.Nil, resp.ExecutionID)
		require.NotNil(t, resp.ExecutionResult)
		assert.Equal(t, workflow.ExecutionStatusCompleted, resp.ExecutionResult.Status)
		assert.Equal(t, 3, resp.ExecutionResult.CompletedSteps)
	})

	t.Run("required step failure answers 422 with the result", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/orders/ord-2/process", map[string]any{
			"workflow_type": "single_vendor",
			"order":         orderBody(fraudsterID),
		})
		require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

		var resp ProcessOrderResponse
		envelope := data(t, w, &resp)
		assert.False(t, envelope.Success)
		assert.Equal(t, dto.ErrCodeStepFailed, envelope.Error.Code)
		assert.False(t, resp.Success)
		require.NotNil(t, resp.ExecutionResult)
		assert.Equal(t, "screen_fraud", resp.ExecutionResult.FailedStep)
		assert.Equal(t, workflow.ExecutionStatusFailed, resp.ExecutionResult.Status)
	})

	t.Run("status lists every execution log", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/orders/ord-1/status", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var status fulfillment.OrderStatus
		data(t, w, &status)
		assert.Equal(t, "ord-1", status.OrderID)
		require.NotNil(t, status.LatestExecution)
		assert.Equal(t, workflow.ExecutionStatusCompleted, status.LatestExecution.Status)
		assert.NotEmpty(t, status.Logs)

		w = f.do(t, http.MethodGet, "/api/v1/orders/unknown/status", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("no active workflow is a configuration error", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/orders/ord-3/process", map[string]any{
			"workflow_type": "marketplace",
			"order":         orderBody("cust-1"),
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, dto.ErrCodeConfiguration, decode(t, w).Error.Code)
	})

	t.Run("invalid order data", func(t *testing.T) {
		order := orderBody("")
		w := f.do(t, http.MethodPost, "/api/v1/orders/ord-4/process", map[string]any{
			"workflow_type": "single_vendor",
			"order":         order,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decode(t, w).Error.Code)
	})

	t.Run("subtotal that differs from the items is rejected before any step", func(t *testing.T) {
		order := orderBody("cust-1")
		order["subtotal"] = "500"
		w := f.do(t, http.MethodPost, "/api/v1/orders/ord-6/process", map[string]any{
			"workflow_type": "single_vendor",
			"order":         order,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decode(t, w)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		assert.Contains(t, resp.Error.Message, "does not match item total")

		execs, err := f.executions.ListByOrder(context.Background(), "ord-6")
		require.NoError(t, err)
		assert.Empty(t, execs)
	})

	t.Run("request validation", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/orders/ord-5/process", map[string]any{"workflow_type": "express"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decode(t, w)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		fields := make([]string, 0, len(resp.Error.Details))
		for _, d := range resp.Error.Details {
			fields = append(fields, d.Field)
		}
		assert.ElementsMatch(t, []string{"workflow_type", "order"}, fields)
	})
}

func TestProcessOrder_Async(t *testing.T) {
	f := newAPIFixture(t)
	f.createWorkflow(t)

	w := f.do(t, http.MethodPost, "/api/v1/orders/ord-async/process", map[string]any{
		"workflow_type": "single_vendor",
		"order":         orderBody("cust-1"),
		"async":         true,
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var snap scheduler.JobSnapshot
	data(t, w, &snap)
	assert.Equal(t, fulfillment.JobKindProcessOrder, snap.Kind)

	require.Eventually(t, func() bool {
		var got scheduler.JobSnapshot
		data(t, f.do(t, http.MethodGet, "/api/v1/jobs/"+snap.ID.String(), nil), &got)
		return got.Status == scheduler.JobStatusSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	w = f.do(t, http.MethodGet, "/api/v1/jobs/"+snap.ID.String(), nil)
	var raw struct {
		Result fulfillment.ExecutionResultView `json:"result"`
	}
	data(t, w, &raw)
	assert.True(t, raw.Result.Success)

	w = f.do(t, http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExecutionArchiveEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.createWorkflow(t)

	w := f.do(t, http.MethodPost, "/api/v1/orders/ord-arch/process", map[string]any{
		"workflow_type": "single_vendor",
		"order":         orderBody("cust-1"),
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp ProcessOrderResponse
	data(t, w, &resp)

	path := "/api/v1/executions/" + resp.ExecutionID.String() + "/archive"
	w = f.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "not archived yet")

	_, err := f.archiver.Archive(context.Background(), resp.ExecutionID)
	require.NoError(t, err)

	w = f.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var link fulfillment.ArchiveDownload
	data(t, w, &link)
	assert.Equal(t, fulfillment.ArchiveKey("ord-arch", resp.ExecutionID), link.Key)
	assert.Contains(t, link.URL, link.Key)
	assert.True(t, link.ExpiresAt.After(time.Now()))
}

func TestRiskEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	a := risk.NewRiskAssessment("cust-9", "ord-9", []risk.ScoreResult{
		{Source: risk.SourceRule, Score: 70, Signals: []string{"velocity"}},
		{Source: risk.SourceHeuristic, Score: 40},
		{Source: risk.SourceRegion, Score: 10},
	}, time.Now())
	require.NoError(t, f.assessments.Create(ctx, a))
	base := "/api/v1/risk/assessments/" + a.ID.String()

	w := f.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got AssessmentResponse
	data(t, w, &got)
	assert.Equal(t, 70, got.Score)
	assert.Equal(t, risk.ReviewStatusUnreviewed, got.ReviewStatus)

	w = f.do(t, http.MethodGet, "/api/v1/risk/assessments?subject_id=cust-9&page_size=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var items []AssessmentResponse
	envelope := data(t, w, &items)
	require.Len(t, items, 1)
	require.NotNil(t, envelope.Meta)
	assert.Equal(t, int64(1), envelope.Meta.Total)
	assert.Equal(t, 5, envelope.Meta.PageSize)

	w = f.do(t, http.MethodGet, "/api/v1/risk/assessments", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "subject_id is required")

	w = f.do(t, http.MethodPost, base+"/false-positive", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "reviewer is required")

	w = f.do(t, http.MethodPost, base+"/false-positive", map[string]any{"reviewer": "analyst-1", "notes": "known buyer"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data(t, w, &got)
	assert.Equal(t, risk.ReviewStatusFalsePositive, got.ReviewStatus)
	assert.Equal(t, "analyst-1", got.ReviewedBy)
	require.NotNil(t, got.ReviewedAt)

	w = f.do(t, http.MethodPost, base+"/confirm-fraud", map[string]any{"reviewer": "analyst-2"})
	assert.Equal(t, http.StatusConflict, w.Code, "a review is recorded once")

	w = f.do(t, http.MethodGet, "/api/v1/risk/assessments/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTransferEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	tr, err := wallet.NewWalletTransfer("ord-t",
		wallet.AccountRef{Provider: "mpesa", AccountID: "cust-1"},
		wallet.AccountRef{Provider: "mpesa", AccountID: "vendor-1"},
		decimal.NewFromInt(100), decimal.NewFromInt(1), "KES")
	require.NoError(t, err)
	require.NoError(t, f.transfers.Create(ctx, tr))
	base := "/api/v1/transfers/" + tr.ID.String()

	w := f.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got TransferResponse
	data(t, w, &got)
	assert.Equal(t, wallet.TransferStatusPending, got.Status)
	assert.True(t, decimal.NewFromInt(100).Equal(got.Amount))

	w = f.do(t, http.MethodPost, base+"/resume", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data(t, w, &got)
	assert.Equal(t, wallet.TransferStatusCompleted, got.Status)
	assert.NotEmpty(t, got.DebitReference)
	assert.NotEmpty(t, got.CreditReference)

	w = f.do(t, http.MethodPost, base+"/resume", nil)
	require.Equal(t, http.StatusOK, w.Code, "terminal transfers are returned unchanged")

	w = f.do(t, http.MethodGet, "/api/v1/transfers/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthHandler(t *testing.T) {
	engine := gin.New()
	healthy := NewHealthHandler(map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
	}, time.Second)
	failing := NewHealthHandler(map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}, time.Second)
	engine.GET("/healthy", healthy.Check)
	engine.GET("/failing", failing.Check)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthy", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/failing", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "healthy", resp.Checks["database"])
	assert.Contains(t, resp.Checks["redis"], "connection refused")
}
