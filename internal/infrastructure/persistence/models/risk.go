package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/marketplace/fulfillment/internal/domain/risk"
	"github.com/shopspring/decimal"
)

// RiskAssessmentModel is the persistence model for risk assessments.
// Signal sets and actions are JSON arrays.
type RiskAssessmentModel struct {
	AggregateModel
	SubjectID          string            `gorm:"type:varchar(100);not null;index"`
	OrderID            string            `gorm:"type:varchar(100);index"`
	RuleScore          int               `gorm:"not null;default:0"`
	HeuristicScore     int               `gorm:"not null;default:0"`
	RegionScore        int               `gorm:"not null;default:0"`
	Score              int               `gorm:"not null;default:0"`
	Tier               risk.Tier         `gorm:"type:varchar(10);not null"`
	RuleSignals        string            `gorm:"type:jsonb;not null"`
	HeuristicSignals   string            `gorm:"type:jsonb;not null"`
	RegionSignals      string            `gorm:"type:jsonb;not null"`
	TriggeredSignals   string            `gorm:"type:jsonb;not null"`
	RecommendedActions string            `gorm:"type:jsonb;not null"`
	ReviewStatus       risk.ReviewStatus `gorm:"type:varchar(20);not null;index"`
	ReviewedBy         string            `gorm:"type:varchar(100)"`
	ReviewedAt         *time.Time
	ReviewNotes        string `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (RiskAssessmentModel) TableName() string {
	return "risk_assessments"
}

// ToDomain converts the model to a domain RiskAssessment
func (m *RiskAssessmentModel) ToDomain() (*risk.RiskAssessment, error) {
	a := &risk.RiskAssessment{
		BaseAggregateRoot: m.ToAggregateRoot(),
		SubjectID:         m.SubjectID,
		OrderID:           m.OrderID,
		RuleScore:         m.RuleScore,
		HeuristicScore:    m.HeuristicScore,
		RegionScore:       m.RegionScore,
		Score:             m.Score,
		Tier:              m.Tier,
		ReviewStatus:      m.ReviewStatus,
		ReviewedBy:        m.ReviewedBy,
		ReviewedAt:        m.ReviewedAt,
		ReviewNotes:       m.ReviewNotes,
	}
	columns := []struct {
		raw  string
		into *[]string
	}{
		{m.RuleSignals, &a.RuleSignals},
		{m.HeuristicSignals, &a.HeuristicSignals},
		{m.RegionSignals, &a.RegionSignals},
		{m.TriggeredSignals, &a.TriggeredSignals},
		{m.RecommendedActions, &a.RecommendedActions},
	}
	for _, c := range columns {
		values, err := decodeStrings(c.raw)
		if err != nil {
			return nil, fmt.Errorf("decode risk assessment %s: %w", m.ID, err)
		}
		*c.into = values
	}
	return a, nil
}

// RiskAssessmentModelFromDomain creates a model from a domain assessment
func RiskAssessmentModelFromDomain(a *risk.RiskAssessment) *RiskAssessmentModel {
	m := &RiskAssessmentModel{
		SubjectID:          a.SubjectID,
		OrderID:            a.OrderID,
		RuleScore:          a.RuleScore,
		HeuristicScore:     a.HeuristicScore,
		RegionScore:        a.RegionScore,
		Score:              a.Score,
		Tier:               a.Tier,
		RuleSignals:        encodeStrings(a.RuleSignals),
		HeuristicSignals:   encodeStrings(a.HeuristicSignals),
		RegionSignals:      encodeStrings(a.RegionSignals),
		TriggeredSignals:   encodeStrings(a.TriggeredSignals),
		RecommendedActions: encodeStrings(a.RecommendedActions),
		ReviewStatus:       a.ReviewStatus,
		ReviewedBy:         a.ReviewedBy,
		ReviewedAt:         a.ReviewedAt,
		ReviewNotes:        a.ReviewNotes,
	}
	m.FromDomainAggregateRoot(a.BaseAggregateRoot)
	return m
}

// BehavioralProfileModel is the persistence model for behavioral profiles
type BehavioralProfileModel struct {
	UserID               string          `gorm:"type:varchar(100);primaryKey"`
	AverageAmount        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	TransactionCount     int             `gorm:"not null;default:0"`
	KnownDevices         string          `gorm:"type:jsonb;not null"`
	LastTransactionAt    *time.Time
	TypicalHour          float64   `gorm:"not null;default:0"`
	HomeCountry          string    `gorm:"type:varchar(2)"`
	IdentityVerified     bool      `gorm:"not null;default:false"`
	AccountCreatedAt     time.Time `gorm:"not null"`
	RecentFailedPayments int       `gorm:"not null;default:0"`
	UpdatedAt            time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BehavioralProfileModel) TableName() string {
	return "behavioral_profiles"
}

// ToDomain converts the model to a domain BehavioralProfile
func (m *BehavioralProfileModel) ToDomain() (*risk.BehavioralProfile, error) {
	var devices []string
	if m.KnownDevices != "" {
		if err := json.Unmarshal([]byte(m.KnownDevices), &devices); err != nil {
			return nil, fmt.Errorf("decode known devices of %s: %w", m.UserID, err)
		}
	}
	return &risk.BehavioralProfile{
		UserID:               m.UserID,
		AverageAmount:        m.AverageAmount,
		TransactionCount:     m.TransactionCount,
		KnownDevices:         devices,
		LastTransactionAt:    m.LastTransactionAt,
		TypicalHour:          m.TypicalHour,
		HomeCountry:          m.HomeCountry,
		IdentityVerified:     m.IdentityVerified,
		AccountCreatedAt:     m.AccountCreatedAt,
		RecentFailedPayments: m.RecentFailedPayments,
		UpdatedAt:            m.UpdatedAt,
	}, nil
}

// BehavioralProfileModelFromDomain creates a model from a domain profile
func BehavioralProfileModelFromDomain(p *risk.BehavioralProfile) *BehavioralProfileModel {
	return &BehavioralProfileModel{
		UserID:               p.UserID,
		AverageAmount:        p.AverageAmount,
		TransactionCount:     p.TransactionCount,
		KnownDevices:         encodeStrings(p.KnownDevices),
		LastTransactionAt:    p.LastTransactionAt,
		TypicalHour:          p.TypicalHour,
		HomeCountry:          p.HomeCountry,
		IdentityVerified:     p.IdentityVerified,
		AccountCreatedAt:     p.AccountCreatedAt,
		RecentFailedPayments: p.RecentFailedPayments,
		UpdatedAt:            p.UpdatedAt,
	}
}
