package payout

import (
	"github.com/shopspring/decimal"

	"github.com/fkhayef/villagebank/internal/domain"
)

// ScheduleResponse represents a payout schedule
type ScheduleResponse struct {
	ID          string                 `json:"id"`
	Date        string                 `json:"date"`
	TotalAmount decimal.Decimal        `json:"totalAmount"`
	GroupID     string                 `json:"groupId"`
	Status      domain.PayoutStatus    `json:"status"`
	Created     bool                   `json:"created"`
	Payouts     []MemberPayoutResponse `json:"payouts"`
}

// MemberPayoutResponse represents one member's share
type MemberPayoutResponse struct {
	ID         string              `json:"id"`
	MemberID   string              `json:"memberId"`
	Amount     decimal.Decimal     `json:"amount"`
	Percentage decimal.Decimal     `json:"percentage"`
	Status     domain.PayoutStatus `json:"status"`
}

// RunResponse summarizes a monthly run
type RunResponse struct {
	Date     string            `json:"date"`
	Created  int               `json:"created"`
	Existing int               `json:"existing"`
	Failed   map[string]string `json:"failed,omitempty"`
}

func toScheduleResponse(s *domain.PayoutSchedule, created bool) *ScheduleResponse {
	resp := &ScheduleResponse{
		ID:          s.ID.String(),
		Date:        s.Date.Format("2006-01-02T15:04:05Z07:00"),
		TotalAmount: s.TotalAmount,
		GroupID:     s.GroupID.String(),
		Status:      s.Status,
		Created:     created,
		Payouts:     make([]MemberPayoutResponse, 0, len(s.Payouts)),
	}
	for _, p := range s.Payouts {
		resp.Payouts = append(resp.Payouts, MemberPayoutResponse{
			ID:         p.ID.String(),
			MemberID:   p.MemberID.String(),
			Amount:     p.Amount,
			Percentage: p.Percentage,
			Status:     p.Status,
		})
	}
	return resp
}

func toRunResponse(r *RunResult) *RunResponse {
	resp := &RunResponse{
		Date:     r.Date.Format("2006-01-02"),
		Created:  r.Created,
		Existing: r.Existing,
	}
	if len(r.Failed) > 0 {
		resp.Failed = make(map[string]string, len(r.Failed))
		for id, msg := range r.Failed {
			resp.Failed[id.String()] = msg
		}
	}
	return resp
}
