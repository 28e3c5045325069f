// Package models contains GORM persistence models for the fulfillment tables.
// Models are separate from domain types so the domain layer stays free of
// ORM tags; each model converts with ToDomain / FromDomain.
//
// Structure:
//   - base.go: BaseModel, AggregateModel and JSON column helpers
//   - workflow.go: definitions, executions and the step log
//   - risk.go: risk assessments and behavioral profiles
//   - wallet.go: wallet transfers
//   - inventory.go: stock levels and the allocation ledger
package models
