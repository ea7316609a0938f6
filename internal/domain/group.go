package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemberStatus represents the status of a group member
type MemberStatus string

const (
	MemberStatusActive   MemberStatus = "ACTIVE"
	MemberStatusInactive MemberStatus = "INACTIVE"
)

// JoinRequestStatus represents the state of a request to join a group
type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "PENDING"
	JoinRequestApproved JoinRequestStatus = "APPROVED"
	JoinRequestRejected JoinRequestStatus = "REJECTED"
)

// Group is a savings group. TotalSavings is the pooled balance and is only
// changed through the ledger.
type Group struct {
	ID                 uuid.UUID       `json:"id"`
	Name               string          `json:"name"`
	Description        string          `json:"description"`
	MaxMembers         int             `json:"max_members"`
	ContributionAmount decimal.Decimal `json:"contribution_amount"`
	TotalSavings       decimal.Decimal `json:"total_savings"`
	AdminID            string          `json:"admin_id"`
	CreatedAt          time.Time       `json:"created_at"`
}

// Member is a user's participation in one group
type Member struct {
	ID           uuid.UUID       `json:"id"`
	UserID       string          `json:"user_id"`
	GroupID      uuid.UUID       `json:"group_id"`
	IsAdmin      bool            `json:"is_admin"`
	TotalSavings decimal.Decimal `json:"total_savings"`
	LastPayment  *time.Time      `json:"last_payment,omitempty"`
	Status       MemberStatus    `json:"status"`
	JoinedAt     time.Time       `json:"joined_at"`
}

// IsActive reports whether the member counts towards quorum and may act.
func (m *Member) IsActive() bool {
	return m.Status == MemberStatusActive
}

// JoinRequest is a user's pending ask to become a member
type JoinRequest struct {
	ID        uuid.UUID         `json:"id"`
	UserID    string            `json:"user_id"`
	GroupID   uuid.UUID         `json:"group_id"`
	Message   string            `json:"message"`
	Status    JoinRequestStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}
