package persistence

import (
	"fmt"
	"strings"

	"github.com/marketplace/fulfillment/internal/domain/shared"
	"gorm.io/gorm"
)

// ValidateSortOrder normalizes the sort order to ASC or DESC, defaulting to DESC.
func ValidateSortOrder(orderDir string) string {
	if strings.ToUpper(strings.TrimSpace(orderDir)) == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField returns sortField when whitelisted, otherwise defaultField.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed != "" && allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// AssessmentSortFields contains allowed sort fields for risk assessments
var AssessmentSortFields = map[string]bool{
	"created_at":    true,
	"score":         true,
	"tier":          true,
	"review_status": true,
}

// DefinitionSortFields contains allowed sort fields for workflow definitions
var DefinitionSortFields = map[string]bool{
	"created_at":    true,
	"name":          true,
	"workflow_type": true,
}

// paginate applies whitelisted ordering and paging from a shared.Filter
func paginate(query *gorm.DB, filter shared.Filter, allowed map[string]bool, defaultField string) *gorm.DB {
	field := ValidateSortField(filter.OrderBy, allowed, defaultField)
	query = query.Order(fmt.Sprintf("%s %s", field, ValidateSortOrder(filter.OrderDir)))
	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize).Offset(filter.Offset())
	}
	return query
}
