package fulfillment

import (
	"context"
	"sync"
	"testing"

	"github.com/marketplace/fulfillment/internal/domain/shared"
	"github.com/marketplace/fulfillment/internal/domain/wallet"
	"github.com/marketplace/fulfillment/internal/domain/workflow"
	"github.com/marketplace/fulfillment/internal/infrastructure/persistence"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type repos struct {
	db          *gorm.DB
	definitions *persistence.GormDefinitionRepository
	executions  *persistence.GormExecutionRepository
	logs        *persistence.GormStepLogRepository
	inventory   *persistence.GormInventoryStore
}

func newRepos(t *testing.T) *repos {
	t.Helper()
	db, err := persistence.OpenSQLite("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, persistence.AutoMigrate(db.DB))
	return &repos{
		db:          db.DB,
		definitions: persistence.NewGormDefinitionRepository(db.DB),
		executions:  persistence.NewGormExecutionRepository(db.DB),
		logs:        persistence.NewGormStepLogRepository(db.DB),
		inventory:   persistence.NewGormInventoryStore(db.DB),
	}
}

func (r *repos) activate(t *testing.T, wt workflow.WorkflowType, steps ...workflow.StepSpec) *workflow.WorkflowDefinition {
	t.Helper()
	def, err := workflow.NewWorkflowDefinition("", wt, steps, true)
	require.NoError(t, err)
	require.NoError(t, r.definitions.Create(context.Background(), def))
	return def
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []shared.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.DomainEvent
	for _, e := range p.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

func item(product, vendor string, qty int, price string) workflow.OrderItem {
	return workflow.OrderItem{
		ProductID: product,
		VendorID:  vendor,
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString(price),
	}
}

func newOrder(items ...workflow.OrderItem) *workflow.OrderData {
	o := &workflow.OrderData{
		CustomerID: "cust-1",
		Items:      items,
		Currency:   "KES",
		Payment: workflow.PaymentInfo{
			Method: workflow.PaymentMethodWallet,
			From:   &wallet.AccountRef{Provider: "mpesa", AccountID: "cust-1"},
			To:     &wallet.AccountRef{Provider: "mpesa", AccountID: "marketplace"},
		},
		Shipping: workflow.ShippingAddress{Region: "nairobi", City: "Nairobi", Country: "KE"},
		Device:   workflow.DeviceContext{Fingerprint: "dev-1", Country: "KE"},
	}
	o.Subtotal = o.ItemsTotal()
	return o
}

func succeed(t workflow.StepType, output any) StepHandler {
	return HandlerFunc{StepType: t, Fn: func(context.Context, StepInput) StepResult {
		return Succeeded(output)
	}}
}

func fail(t workflow.StepType, err error) StepHandler {
	return HandlerFunc{StepType: t, Fn: func(context.Context, StepInput) StepResult {
		return Failed(nil, err)
	}}
}
