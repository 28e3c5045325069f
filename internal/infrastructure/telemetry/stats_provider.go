package telemetry

import (
	"context"

	"gorm.io/gorm"
)

// GormStatsProvider implements StatsProvider with aggregate queries over the
// fulfillment tables.
type GormStatsProvider struct {
	db *gorm.DB
}

// NewGormStatsProvider creates a new GormStatsProvider.
func NewGormStatsProvider(db *gorm.DB) *GormStatsProvider {
	return &GormStatsProvider{db: db}
}

// CountRunningExecutions counts executions still in running status.
func (p *GormStatsProvider) CountRunningExecutions(ctx context.Context) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Table("workflow_executions").
		Where("status = ?", "running").
		Count(&count).Error
	return count, err
}

// CountInFlightTransfers counts transfers that have not reached a terminal status.
func (p *GormStatsProvider) CountInFlightTransfers(ctx context.Context) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Table("wallet_transfers").
		Where("status IN ?", []string{"pending", "debited"}).
		Count(&count).Error
	return count, err
}

// TotalReservedStock sums reserved units over all products.
func (p *GormStatsProvider) TotalReservedStock(ctx context.Context) (int64, error) {
	var total int64
	err := p.db.WithContext(ctx).
		Table("inventory_stock").
		Select("COALESCE(SUM(reserved_stock), 0)").
		Scan(&total).Error
	return total, err
}
