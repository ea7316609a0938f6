package contribution

import (
	"github.com/shopspring/decimal"

	"github.com/fkhayef/villagebank/internal/domain"
)

// ContributeRequest represents a direct contribution
type ContributeRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Notes  string          `json:"notes,omitempty"`
}

// ContributionResponse represents a recorded contribution
type ContributionResponse struct {
	ID                 string                    `json:"id"`
	Amount             decimal.Decimal           `json:"amount"`
	Date               string                    `json:"date"`
	Status             domain.ContributionStatus `json:"status"`
	MemberID           string                    `json:"memberId"`
	GroupID            string                    `json:"groupId"`
	Notes              string                    `json:"notes,omitempty"`
	MemberTotalSavings decimal.Decimal           `json:"memberTotalSavings"`
	GroupTotalSavings  decimal.Decimal           `json:"groupTotalSavings"`
}

func toContributionResponse(r *Result) *ContributionResponse {
	c := r.Contribution
	return &ContributionResponse{
		ID:                 c.ID.String(),
		Amount:             c.Amount,
		Date:               c.Date.Format("2006-01-02T15:04:05Z07:00"),
		Status:             c.Status,
		MemberID:           c.MemberID.String(),
		GroupID:            c.GroupID.String(),
		Notes:              c.Notes,
		MemberTotalSavings: r.MemberTotalSavings,
		GroupTotalSavings:  r.GroupTotalSavings,
	}
}
