package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	riskapp "github.com/marketplace/fulfillment/internal/application/risk"
	"github.com/marketplace/fulfillment/internal/domain/risk"
	"github.com/marketplace/fulfillment/internal/interfaces/http/dto"
)

// RiskHandler handles fraud investigation endpoints
type RiskHandler struct {
	BaseHandler
	investigations *riskapp.InvestigationService
}

// NewRiskHandler creates a new RiskHandler
func NewRiskHandler(investigations *riskapp.InvestigationService) *RiskHandler {
	return &RiskHandler{investigations: investigations}
}

// ListAssessmentsQuery selects one page of a subject's assessments
type ListAssessmentsQuery struct {
	SubjectID string `form:"subject_id" binding:"required,max=100"`
	dto.ListRequest
}

// ReviewRequest is an investigator's verdict
type ReviewRequest struct {
	Reviewer string `json:"reviewer" binding:"required,max=100"`
	Notes    string `json:"notes" binding:"max=2000"`
}

// AssessmentResponse is the response form of a risk assessment
type AssessmentResponse struct {
	ID                 uuid.UUID         `json:"id"`
	SubjectID          string            `json:"subject_id"`
	OrderID            string            `json:"order_id"`
	Score              int               `json:"score"`
	Tier               risk.Tier         `json:"tier"`
	RuleScore          int               `json:"rule_score"`
	HeuristicScore     int               `json:"heuristic_score"`
	RegionScore        int               `json:"region_score"`
	RuleSignals        []string          `json:"rule_signals"`
	HeuristicSignals   []string          `json:"heuristic_signals"`
	RegionSignals      []string          `json:"region_signals"`
	TriggeredSignals   []string          `json:"triggered_signals"`
	RecommendedActions []string          `json:"recommended_actions"`
	ReviewStatus       risk.ReviewStatus `json:"review_status"`
	ReviewedBy         string            `json:"reviewed_by,omitempty"`
	ReviewedAt         *time.Time        `json:"reviewed_at,omitempty"`
	ReviewNotes        string            `json:"review_notes,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
}

// ToAssessmentResponse converts an assessment
func ToAssessmentResponse(a *risk.RiskAssessment) AssessmentResponse {
	return AssessmentResponse{
		ID:                 a.ID,
		SubjectID:          a.SubjectID,
		OrderID:            a.OrderID,
		Score:              a.Score,
		Tier:               a.Tier,
		RuleScore:          a.RuleScore,
		HeuristicScore:     a.HeuristicScore,
		RegionScore:        a.RegionScore,
		RuleSignals:        a.RuleSignals,
		HeuristicSignals:   a.HeuristicSignals,
		RegionSignals:      a.RegionSignals,
		TriggeredSignals:   a.TriggeredSignals,
		RecommendedActions: a.RecommendedActions,
		ReviewStatus:       a.ReviewStatus,
		ReviewedBy:         a.ReviewedBy,
		ReviewedAt:         a.ReviewedAt,
		ReviewNotes:        a.ReviewNotes,
		CreatedAt:          a.CreatedAt,
	}
}

// Get returns one assessment
func (h *RiskHandler) Get(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	a, err := h.investigations.GetAssessment(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ToAssessmentResponse(a))
}

// List returns a subject's assessments, newest first
func (h *RiskHandler) List(c *gin.Context) {
	var q ListAssessmentsQuery
	if !h.bindQuery(c, &q) {
		return
	}
	list, err := h.investigations.ListBySubject(c.Request.Context(), q.SubjectID, q.Page, q.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	items := make([]AssessmentResponse, 0, len(list.Items))
	for _, a := range list.Items {
		items = append(items, ToAssessmentResponse(a))
	}
	h.SuccessWithMeta(c, items, list.Total, list.Page, list.PageSize)
}

// MarkFalsePositive records that an assessment flagged a legitimate order
func (h *RiskHandler) MarkFalsePositive(c *gin.Context) {
	h.review(c, h.investigations.MarkFalsePositive)
}

// ConfirmFraud records that an assessment caught real fraud
func (h *RiskHandler) ConfirmFraud(c *gin.Context) {
	h.review(c, h.investigations.ConfirmFraud)
}

func (h *RiskHandler) review(c *gin.Context, op func(ctx context.Context, id uuid.UUID, in riskapp.ReviewInput) (*risk.RiskAssessment, error)) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	var req ReviewRequest
	if !h.bindJSON(c, &req) {
		return
	}
	a, err := op(c.Request.Context(), id, riskapp.ReviewInput{Reviewer: req.Reviewer, Notes: req.Notes})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, ToAssessmentResponse(a))
}
