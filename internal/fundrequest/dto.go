package fundrequest

import (
	"github.com/shopspring/decimal"

	"github.com/fkhayef/villagebank/internal/domain"
)

// CreateFundRequestRequest represents a new loan or payout request
type CreateFundRequestRequest struct {
	Type     domain.FundRequestType `json:"type"`
	Amount   decimal.Decimal        `json:"amount"`
	Reason   string                 `json:"reason"`
	Duration string                 `json:"duration,omitempty"`
}

// VoteRequest represents a member's vote
type VoteRequest struct {
	Approved bool `json:"approved"`
}

// VotingResponse summarizes the votes on a request for the caller
type VotingResponse struct {
	TotalMembers       int     `json:"totalMembers"`
	RequiredApprovals  int     `json:"requiredApprovals"`
	CurrentApprovals   int     `json:"currentApprovals"`
	CurrentRejections  int     `json:"currentRejections"`
	ApprovalPercentage float64 `json:"approvalPercentage"`
	HasVoted           bool    `json:"hasVoted"`
	Approved           *bool   `json:"approved,omitempty"`
}

// LoanResponse represents the loan created for an approved request
type LoanResponse struct {
	ID         string            `json:"id"`
	Amount     decimal.Decimal   `json:"amount"`
	Interest   decimal.Decimal   `json:"interest"`
	PaidAmount decimal.Decimal   `json:"paidAmount"`
	DueDate    string            `json:"dueDate"`
	Status     domain.LoanStatus `json:"status"`
}

// FundRequestResponse represents a fund request with its voting state
type FundRequestResponse struct {
	ID        string                   `json:"id"`
	Type      domain.FundRequestType   `json:"type"`
	Amount    decimal.Decimal          `json:"amount"`
	Reason    string                   `json:"reason"`
	Status    domain.FundRequestStatus `json:"status"`
	MemberID  string                   `json:"memberId"`
	GroupID   string                   `json:"groupId"`
	Duration  domain.LoanDuration      `json:"duration,omitempty"`
	CreatedAt string                   `json:"createdAt"`
	Voting    *VotingResponse          `json:"voting,omitempty"`
	Loan      *LoanResponse            `json:"loan,omitempty"`
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func toVotingResponse(vs domain.VotingStatus) *VotingResponse {
	return &VotingResponse{
		TotalMembers:       vs.TotalMembers,
		RequiredApprovals:  vs.RequiredApprovals,
		CurrentApprovals:   vs.CurrentApprovals,
		CurrentRejections:  vs.CurrentRejections,
		ApprovalPercentage: vs.ApprovalPercentage,
		HasVoted:           vs.HasVoted,
		Approved:           vs.Approved,
	}
}

func toLoanResponse(l *domain.Loan) *LoanResponse {
	if l == nil {
		return nil
	}
	return &LoanResponse{
		ID:         l.ID.String(),
		Amount:     l.Amount,
		Interest:   l.Interest,
		PaidAmount: l.PaidAmount,
		DueDate:    l.DueDate.Format(timeLayout),
		Status:     l.Status,
	}
}

func toFundRequestResponse(fr *domain.FundRequest) *FundRequestResponse {
	return &FundRequestResponse{
		ID:        fr.ID.String(),
		Type:      fr.Type,
		Amount:    fr.Amount,
		Reason:    fr.Reason,
		Status:    fr.Status,
		MemberID:  fr.MemberID.String(),
		GroupID:   fr.GroupID.String(),
		Duration:  fr.LoanDuration,
		CreatedAt: fr.CreatedAt.Format(timeLayout),
	}
}

func toDetailResponse(d *Detail) *FundRequestResponse {
	resp := toFundRequestResponse(d.Request)
	resp.Voting = toVotingResponse(d.Voting)
	resp.Loan = toLoanResponse(d.Loan)
	return resp
}
