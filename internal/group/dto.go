package group

import (
	"github.com/shopspring/decimal"

	"github.com/fkhayef/villagebank/internal/domain"
)

// CreateGroupRequest represents the request to create a new group
type CreateGroupRequest struct {
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	MaxMembers         int             `json:"maxMembers"`
	ContributionAmount decimal.Decimal `json:"contributionAmount"`
}

// JoinGroupRequest represents a request to join a group
type JoinGroupRequest struct {
	Message string `json:"message"`
}

// DecideJoinRequest represents the admin's decision on a join request
type DecideJoinRequest struct {
	Approve bool `json:"approve"`
}

// GroupResponse represents the response for a group
type GroupResponse struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	MaxMembers         int               `json:"maxMembers"`
	ContributionAmount decimal.Decimal   `json:"contributionAmount"`
	TotalSavings       decimal.Decimal   `json:"totalSavings"`
	AdminID            string            `json:"adminId"`
	CreatedAt          string            `json:"createdAt"`
	Members            []*MemberResponse `json:"members,omitempty"`
}

// MemberResponse represents a member in a group response
type MemberResponse struct {
	ID           string              `json:"id"`
	UserID       string              `json:"userId"`
	IsAdmin      bool                `json:"isAdmin"`
	TotalSavings decimal.Decimal     `json:"totalSavings"`
	Status       domain.MemberStatus `json:"status"`
	JoinedAt     string              `json:"joinedAt"`
}

// JoinRequestResponse represents a join request
type JoinRequestResponse struct {
	ID        string                   `json:"id"`
	UserID    string                   `json:"userId"`
	GroupID   string                   `json:"groupId"`
	Message   string                   `json:"message"`
	Status    domain.JoinRequestStatus `json:"status"`
	CreatedAt string                   `json:"createdAt"`
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func toGroupResponse(g *domain.Group) *GroupResponse {
	return &GroupResponse{
		ID:                 g.ID.String(),
		Name:               g.Name,
		Description:        g.Description,
		MaxMembers:         g.MaxMembers,
		ContributionAmount: g.ContributionAmount,
		TotalSavings:       g.TotalSavings,
		AdminID:            g.AdminID,
		CreatedAt:          g.CreatedAt.Format(timeLayout),
	}
}

func toMemberResponse(m *domain.Member) *MemberResponse {
	return &MemberResponse{
		ID:           m.ID.String(),
		UserID:       m.UserID,
		IsAdmin:      m.IsAdmin,
		TotalSavings: m.TotalSavings,
		Status:       m.Status,
		JoinedAt:     m.JoinedAt.Format(timeLayout),
	}
}

func toJoinRequestResponse(jr *domain.JoinRequest) *JoinRequestResponse {
	return &JoinRequestResponse{
		ID:        jr.ID.String(),
		UserID:    jr.UserID,
		GroupID:   jr.GroupID.String(),
		Message:   jr.Message,
		Status:    jr.Status,
		CreatedAt: jr.CreatedAt.Format(timeLayout),
	}
}
