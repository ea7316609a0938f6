package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType represents the type of notification
type NotificationType string

const (
	NotificationFundRequest         NotificationType = "FUND_REQUEST"
	NotificationRequestApproved     NotificationType = "REQUEST_APPROVED"
	NotificationRequestRejected     NotificationType = "REQUEST_REJECTED"
	NotificationAdminActionRequired NotificationType = "ADMIN_ACTION_REQUIRED"
	NotificationRequestCompleted    NotificationType = "REQUEST_COMPLETED"
	NotificationContribution        NotificationType = "CONTRIBUTION"
	NotificationLoanPayment         NotificationType = "LOAN_PAYMENT"
	NotificationLoanPaid            NotificationType = "LOAN_PAID"
	NotificationLoanOverdue         NotificationType = "LOAN_OVERDUE"
	NotificationPayoutScheduled     NotificationType = "PAYOUT_SCHEDULED"
	NotificationPayoutCompleted     NotificationType = "PAYOUT_COMPLETED"
	NotificationJoinRequest         NotificationType = "JOIN_REQUEST"
	NotificationJoinApproved        NotificationType = "JOIN_REQUEST_APPROVED"
	NotificationJoinRejected        NotificationType = "JOIN_REQUEST_REJECTED"
)

// Notification is an outbox row. It is written in the same transaction as
// the change it reports and delivered later by the dispatcher.
type Notification struct {
	ID          uuid.UUID         `json:"id"`
	Type        NotificationType  `json:"type"`
	UserID      string            `json:"user_id"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Read        bool              `json:"read"`
	CreatedAt   time.Time         `json:"created_at"`
	DeliveredAt *time.Time        `json:"delivered_at,omitempty"`
	Attempts    int               `json:"attempts"`
	LastError   string            `json:"last_error,omitempty"`
}
