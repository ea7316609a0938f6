package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fkhayef/villagebank/internal/domain"
	"github.com/fkhayef/villagebank/internal/store"
)

// Batch collects the notifications produced by one operation. Flush writes
// them through the operation's own transaction.
type Batch struct {
	now   time.Time
	items []*domain.Notification
}

// NewBatch starts an empty batch stamped with now
func NewBatch(now time.Time) *Batch {
	return &Batch{now: now}
}

// Add queues one notification for userID
func (b *Batch) Add(userID string, typ domain.NotificationType, title, message string, meta map[string]string) {
	b.items = append(b.items, &domain.Notification{
		ID:        uuid.New(),
		Type:      typ,
		UserID:    userID,
		Title:     title,
		Message:   message,
		Metadata:  meta,
		CreatedAt: b.now,
	})
}

// Len returns the number of queued notifications
func (b *Batch) Len() int {
	return len(b.items)
}

// Flush inserts everything queued so far
func (b *Batch) Flush(ctx context.Context, tx store.Tx) error {
	if len(b.items) == 0 {
		return nil
	}
	if err := tx.InsertNotifications(ctx, b.items); err != nil {
		return err
	}
	b.items = nil
	return nil
}

// Helper methods for creating specific notification types

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

func typeLabel(t domain.FundRequestType) string {
	s := strings.ToLower(string(t))
	return strings.ToUpper(s[:1]) + s[1:]
}

func requestMeta(req *domain.FundRequest) map[string]string {
	return map[string]string{
		"requestId": req.ID.String(),
		"groupId":   req.GroupID.String(),
		"type":      string(req.Type),
		"amount":    req.Amount.StringFixed(2),
	}
}

// FundRequestCreated tells every active member about a new request
func (b *Batch) FundRequestCreated(recipients []*domain.Member, req *domain.FundRequest, groupName string) {
	title := fmt.Sprintf("New %s Request", typeLabel(req.Type))
	msg := fmt.Sprintf("A %s request for %s was submitted in %s: %s",
		strings.ToLower(string(req.Type)), money(req.Amount), groupName, req.Reason)
	for _, m := range recipients {
		b.Add(m.UserID, domain.NotificationFundRequest, title, msg, requestMeta(req))
	}
}

// RequestApproved tells the requester their request reached quorum
func (b *Batch) RequestApproved(requester *domain.Member, req *domain.FundRequest) {
	b.Add(requester.UserID, domain.NotificationRequestApproved,
		fmt.Sprintf("%s Request Approved", typeLabel(req.Type)),
		fmt.Sprintf("Your %s request for %s has been approved by the group", strings.ToLower(string(req.Type)), money(req.Amount)),
		requestMeta(req))
}

// AdminActionRequired asks admins to disburse an approved request
func (b *Batch) AdminActionRequired(admins []*domain.Member, req *domain.FundRequest) {
	title := fmt.Sprintf("Action Required: %s Payout", typeLabel(req.Type))
	msg := fmt.Sprintf("An approved %s request for %s is waiting to be processed", strings.ToLower(string(req.Type)), money(req.Amount))
	for _, m := range admins {
		b.Add(m.UserID, domain.NotificationAdminActionRequired, title, msg, requestMeta(req))
	}
}

// RequestRejected tells the requester their request can no longer pass
func (b *Batch) RequestRejected(requester *domain.Member, req *domain.FundRequest) {
	b.Add(requester.UserID, domain.NotificationRequestRejected,
		fmt.Sprintf("%s Request Rejected", typeLabel(req.Type)),
		fmt.Sprintf("Your %s request for %s did not receive enough approvals", strings.ToLower(string(req.Type)), money(req.Amount)),
		requestMeta(req))
}

// RequestCompleted tells the requester the money was disbursed
func (b *Batch) RequestCompleted(requester *domain.Member, req *domain.FundRequest) {
	b.Add(requester.UserID, domain.NotificationRequestCompleted,
		fmt.Sprintf("%s Processed", typeLabel(req.Type)),
		fmt.Sprintf("Your %s of %s has been processed", strings.ToLower(string(req.Type)), money(req.Amount)),
		requestMeta(req))
}

// ContributionReceived confirms a deposit
func (b *Batch) ContributionReceived(member *domain.Member, c *domain.Contribution, groupName string) {
	b.Add(member.UserID, domain.NotificationContribution, "Contribution Successful",
		fmt.Sprintf("Your contribution of %s to %s was successful", money(c.Amount), groupName),
		map[string]string{
			"contributionId": c.ID.String(),
			"groupId":        c.GroupID.String(),
			"amount":         c.Amount.StringFixed(2),
		})
}

func loanMeta(l *domain.Loan) map[string]string {
	return map[string]string{
		"loanId":          l.ID.String(),
		"groupId":         l.GroupID.String(),
		"remainingAmount": l.Outstanding().StringFixed(2),
	}
}

// LoanPaymentReceived reports the remaining balance, or that the loan is settled
func (b *Batch) LoanPaymentReceived(borrower *domain.Member, l *domain.Loan, amount decimal.Decimal) {
	if l.Status == domain.LoanPaid {
		b.Add(borrower.UserID, domain.NotificationLoanPaid, "Loan Fully Repaid",
			fmt.Sprintf("Your payment of %s settled your loan", money(amount)), loanMeta(l))
		return
	}
	b.Add(borrower.UserID, domain.NotificationLoanPayment, "Loan Payment Received",
		fmt.Sprintf("Your payment of %s has been received. Remaining amount: %s", money(amount), money(l.Outstanding())),
		loanMeta(l))
}

// LoanOverdue warns the borrower and the group admin
func (b *Batch) LoanOverdue(borrowerUserID, adminUserID string, l *domain.Loan) {
	meta := loanMeta(l)
	b.Add(borrowerUserID, domain.NotificationLoanOverdue, "Loan Payment Overdue",
		fmt.Sprintf("Your loan payment of %s is overdue", money(l.Outstanding())), meta)
	b.Add(adminUserID, domain.NotificationLoanOverdue, "Loan Payment Overdue",
		fmt.Sprintf("A member's loan payment of %s is overdue", money(l.Outstanding())), meta)
}

// PayoutScheduled tells a member their share and date
func (b *Batch) PayoutScheduled(member *domain.Member, s *domain.PayoutSchedule, p domain.MemberPayout) {
	b.Add(member.UserID, domain.NotificationPayoutScheduled, "Monthly Payout Scheduled",
		fmt.Sprintf("Your payout of %s (%s%% of group savings) is scheduled for %s",
			money(p.Amount), p.Percentage.StringFixed(2), s.Date.Format("January 2, 2006")),
		map[string]string{
			"scheduleId": s.ID.String(),
			"groupId":    s.GroupID.String(),
			"amount":     p.Amount.StringFixed(2),
		})
}

// PayoutCompleted tells a member their payout was made
func (b *Batch) PayoutCompleted(member *domain.Member, s *domain.PayoutSchedule, p domain.MemberPayout) {
	b.Add(member.UserID, domain.NotificationPayoutCompleted, "Payout Completed",
		fmt.Sprintf("Your payout of %s has been completed", money(p.Amount)),
		map[string]string{
			"scheduleId": s.ID.String(),
			"groupId":    s.GroupID.String(),
			"amount":     p.Amount.StringFixed(2),
		})
}

// JoinRequested asks the admin to review a join request
func (b *Batch) JoinRequested(adminUserID string, jr *domain.JoinRequest, groupName string) {
	b.Add(adminUserID, domain.NotificationJoinRequest, "New Join Request",
		fmt.Sprintf("Someone requested to join %s", groupName),
		map[string]string{"joinRequestId": jr.ID.String(), "groupId": jr.GroupID.String()})
}

// JoinDecided tells the requester the outcome
func (b *Batch) JoinDecided(jr *domain.JoinRequest, groupName string, approved bool) {
	meta := map[string]string{"joinRequestId": jr.ID.String(), "groupId": jr.GroupID.String()}
	if approved {
		b.Add(jr.UserID, domain.NotificationJoinApproved, "Join Request Approved",
			fmt.Sprintf("Your request to join %s has been approved", groupName), meta)
		return
	}
	b.Add(jr.UserID, domain.NotificationJoinRejected, "Join Request Rejected",
		fmt.Sprintf("Your request to join %s has been rejected", groupName), meta)
}
