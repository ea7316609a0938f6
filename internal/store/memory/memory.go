// Package memory is an in-process store. Transactions are serialized and
// applied to a private copy of the state that replaces the live state on
// commit, so a failed unit of work leaves nothing behind.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fkhayef/villagebank/internal/domain"
	"github.com/fkhayef/villagebank/internal/store"
)

type approvalKey struct {
	requestID uuid.UUID
	memberID  uuid.UUID
}

type state struct {
	groups        map[uuid.UUID]domain.Group
	members       map[uuid.UUID]domain.Member
	joinRequests  map[uuid.UUID]domain.JoinRequest
	contributions []domain.Contribution
	fundRequests  map[uuid.UUID]domain.FundRequest
	approvals     map[approvalKey]domain.RequestApproval
	loans         map[uuid.UUID]domain.Loan
	loanPayments  []domain.LoanPayment
	schedules     map[uuid.UUID]domain.PayoutSchedule
	ledger        []domain.LedgerEntry
	notifications []domain.Notification
	paymentEvents map[string]domain.PaymentEvent
}

func newState() *state {
	return &state{
		groups:        map[uuid.UUID]domain.Group{},
		members:       map[uuid.UUID]domain.Member{},
		joinRequests:  map[uuid.UUID]domain.JoinRequest{},
		fundRequests:  map[uuid.UUID]domain.FundRequest{},
		approvals:     map[approvalKey]domain.RequestApproval{},
		loans:         map[uuid.UUID]domain.Loan{},
		schedules:     map[uuid.UUID]domain.PayoutSchedule{},
		paymentEvents: map[string]domain.PaymentEvent{},
	}
}

// clone copies every collection. Entity values are copied by value; nested
// slices are replaced rather than mutated in place by the tx methods.
func (s *state) clone() *state {
	return &state{
		groups:        maps.Clone(s.groups),
		members:       maps.Clone(s.members),
		joinRequests:  maps.Clone(s.joinRequests),
		contributions: slices.Clone(s.contributions),
		fundRequests:  maps.Clone(s.fundRequests),
		approvals:     maps.Clone(s.approvals),
		loans:         maps.Clone(s.loans),
		loanPayments:  slices.Clone(s.loanPayments),
		schedules:     maps.Clone(s.schedules),
		ledger:        slices.Clone(s.ledger),
		notifications: slices.Clone(s.notifications),
		paymentEvents: maps.Clone(s.paymentEvents),
	}
}

// Store implements store.Store in memory.
type Store struct {
	mu    sync.Mutex
	state *state
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{state: newState()}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.state.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

type tx struct {
	st *state
}

func (t *tx) CreateGroup(_ context.Context, g *domain.Group) error {
	if _, ok := t.st.groups[g.ID]; ok {
		return store.ErrDuplicate
	}
	t.st.groups[g.ID] = *g
	return nil
}

func (t *tx) GetGroup(_ context.Context, id uuid.UUID, _ store.Lock) (*domain.Group, error) {
	g, ok := t.st.groups[id]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (t *tx) ListFundedGroupIDs(_ context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id, g := range t.st.groups {
		if g.TotalSavings.IsPositive() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (t *tx) AddGroupSavings(_ context.Context, id uuid.UUID, delta decimal.Decimal) error {
	g, ok := t.st.groups[id]
	if !ok {
		return errNotFound("group")
	}
	g.TotalSavings = g.TotalSavings.Add(delta)
	t.st.groups[id] = g
	return nil
}

func (t *tx) CreateMember(_ context.Context, m *domain.Member) error {
	for _, existing := range t.st.members {
		if existing.GroupID == m.GroupID && existing.UserID == m.UserID {
			return store.ErrDuplicate
		}
	}
	t.st.members[m.ID] = *m
	return nil
}

func (t *tx) GetMember(_ context.Context, groupID uuid.UUID, userID string, _ store.Lock) (*domain.Member, error) {
	for _, m := range t.st.members {
		if m.GroupID == groupID && m.UserID == userID {
			return &m, nil
		}
	}
	return nil, nil
}

func (t *tx) GetMemberByID(_ context.Context, id uuid.UUID, _ store.Lock) (*domain.Member, error) {
	m, ok := t.st.members[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (t *tx) ListMembers(_ context.Context, groupID uuid.UUID, status domain.MemberStatus) ([]*domain.Member, error) {
	var out []*domain.Member
	for _, m := range t.st.members {
		if m.GroupID != groupID || (status != "" && m.Status != status) {
			continue
		}
		out = append(out, &m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (t *tx) CountMembers(_ context.Context, groupID uuid.UUID) (int, error) {
	n := 0
	for _, m := range t.st.members {
		if m.GroupID == groupID {
			n++
		}
	}
	return n, nil
}

func (t *tx) AddMemberSavings(_ context.Context, id uuid.UUID, delta decimal.Decimal, lastPayment *time.Time) error {
	m, ok := t.st.members[id]
	if !ok {
		return errNotFound("member")
	}
	m.TotalSavings = m.TotalSavings.Add(delta)
	if lastPayment != nil {
		at := *lastPayment
		m.LastPayment = &at
	}
	t.st.members[id] = m
	return nil
}

func (t *tx) CreateJoinRequest(_ context.Context, jr *domain.JoinRequest) error {
	t.st.joinRequests[jr.ID] = *jr
	return nil
}

func (t *tx) GetJoinRequest(_ context.Context, id uuid.UUID, _ store.Lock) (*domain.JoinRequest, error) {
	jr, ok := t.st.joinRequests[id]
	if !ok {
		return nil, nil
	}
	return &jr, nil
}

func (t *tx) FindPendingJoinRequest(_ context.Context, groupID uuid.UUID, userID string) (*domain.JoinRequest, error) {
	for _, jr := range t.st.joinRequests {
		if jr.GroupID == groupID && jr.UserID == userID && jr.Status == domain.JoinRequestPending {
			return &jr, nil
		}
	}
	return nil, nil
}

func (t *tx) SetJoinRequestStatus(_ context.Context, id uuid.UUID, from, to domain.JoinRequestStatus) (bool, error) {
	jr, ok := t.st.joinRequests[id]
	if !ok || jr.Status != from {
		return false, nil
	}
	jr.Status = to
	t.st.joinRequests[id] = jr
	return true, nil
}

func (t *tx) CreateContribution(_ context.Context, c *domain.Contribution) error {
	t.st.contributions = append(t.st.contributions, *c)
	return nil
}

func (t *tx) CountCompletedContributions(_ context.Context, memberID uuid.UUID) (int, error) {
	n := 0
	for _, c := range t.st.contributions {
		if c.MemberID == memberID && c.Status == domain.ContributionCompleted {
			n++
		}
	}
	return n, nil
}

func (t *tx) CreateFundRequest(_ context.Context, fr *domain.FundRequest) error {
	t.st.fundRequests[fr.ID] = *fr
	return nil
}

func (t *tx) GetFundRequest(_ context.Context, id uuid.UUID, _ store.Lock) (*domain.FundRequest, error) {
	fr, ok := t.st.fundRequests[id]
	if !ok {
		return nil, nil
	}
	return &fr, nil
}

func (t *tx) SetFundRequestStatus(_ context.Context, id uuid.UUID, from, to domain.FundRequestStatus, at time.Time) (bool, error) {
	fr, ok := t.st.fundRequests[id]
	if !ok || fr.Status != from {
		return false, nil
	}
	fr.Status = to
	fr.UpdatedAt = at
	t.st.fundRequests[id] = fr
	return true, nil
}

func (t *tx) UpsertApproval(_ context.Context, a *domain.RequestApproval) error {
	key := approvalKey{requestID: a.RequestID, memberID: a.MemberID}
	if existing, ok := t.st.approvals[key]; ok {
		existing.Approved = a.Approved
		existing.UpdatedAt = a.UpdatedAt
		t.st.approvals[key] = existing
		*a = existing
		return nil
	}
	t.st.approvals[key] = *a
	return nil
}

func (t *tx) ListApprovals(_ context.Context, requestID uuid.UUID) ([]domain.RequestApproval, error) {
	var out []domain.RequestApproval
	for key, a := range t.st.approvals {
		if key.requestID == requestID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *tx) CreateLoan(_ context.Context, l *domain.Loan) error {
	for _, existing := range t.st.loans {
		if existing.RequestID == l.RequestID {
			return store.ErrDuplicate
		}
	}
	t.st.loans[l.ID] = *l
	return nil
}

func (t *tx) GetLoan(_ context.Context, id uuid.UUID, _ store.Lock) (*domain.Loan, error) {
	l, ok := t.st.loans[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (t *tx) GetLoanByRequest(_ context.Context, requestID uuid.UUID) (*domain.Loan, error) {
	for _, l := range t.st.loans {
		if l.RequestID == requestID {
			return &l, nil
		}
	}
	return nil, nil
}

func (t *tx) ListDueLoans(_ context.Context, now time.Time) ([]*domain.Loan, error) {
	var out []*domain.Loan
	for _, l := range t.st.loans {
		if l.Status == domain.LoanActive && l.DueDate.Before(now) {
			out = append(out, &l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (t *tx) RecordLoanPayment(_ context.Context, p *domain.LoanPayment, paidAmount decimal.Decimal, status domain.LoanStatus) error {
	l, ok := t.st.loans[p.LoanID]
	if !ok {
		return errNotFound("loan")
	}
	l.PaidAmount = paidAmount
	l.Status = status
	t.st.loans[l.ID] = l
	t.st.loanPayments = append(t.st.loanPayments, *p)
	return nil
}

func (t *tx) SetLoanStatus(_ context.Context, id uuid.UUID, from, to domain.LoanStatus) (bool, error) {
	l, ok := t.st.loans[id]
	if !ok || l.Status != from {
		return false, nil
	}
	l.Status = to
	t.st.loans[id] = l
	return true, nil
}

func (t *tx) CreatePayoutSchedule(_ context.Context, s *domain.PayoutSchedule) error {
	for _, existing := range t.st.schedules {
		if existing.GroupID == s.GroupID && existing.Date.Equal(s.Date) {
			return store.ErrDuplicate
		}
	}
	cp := *s
	cp.Payouts = slices.Clone(s.Payouts)
	t.st.schedules[s.ID] = cp
	return nil
}

func (t *tx) GetPayoutSchedule(_ context.Context, id uuid.UUID, _ store.Lock) (*domain.PayoutSchedule, error) {
	s, ok := t.st.schedules[id]
	if !ok {
		return nil, nil
	}
	s.Payouts = slices.Clone(s.Payouts)
	return &s, nil
}

func (t *tx) FindPayoutSchedule(_ context.Context, groupID uuid.UUID, date time.Time) (*domain.PayoutSchedule, error) {
	for _, s := range t.st.schedules {
		if s.GroupID == groupID && s.Date.Equal(date) {
			s.Payouts = slices.Clone(s.Payouts)
			return &s, nil
		}
	}
	return nil, nil
}

func (t *tx) CompletePayoutSchedule(_ context.Context, id uuid.UUID) (bool, error) {
	s, ok := t.st.schedules[id]
	if !ok || s.Status != domain.PayoutScheduled {
		return false, nil
	}
	s.Status = domain.PayoutCompleted
	payouts := make([]domain.MemberPayout, len(s.Payouts))
	for i, p := range s.Payouts {
		p.Status = domain.PayoutCompleted
		payouts[i] = p
	}
	s.Payouts = payouts
	t.st.schedules[id] = s
	return true, nil
}

func (t *tx) InsertLedgerEntry(_ context.Context, e *domain.LedgerEntry) error {
	t.st.ledger = append(t.st.ledger, *e)
	return nil
}

func (t *tx) ListLedgerEntries(_ context.Context, groupID uuid.UUID) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	for _, e := range t.st.ledger {
		if e.GroupID == groupID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *tx) InsertNotifications(_ context.Context, ns []*domain.Notification) error {
	for _, n := range ns {
		cp := *n
		cp.Metadata = maps.Clone(n.Metadata)
		t.st.notifications = append(t.st.notifications, cp)
	}
	return nil
}

func (t *tx) ClaimNotifications(_ context.Context, limit, maxAttempts int) ([]*domain.Notification, error) {
	var out []*domain.Notification
	for _, n := range t.st.notifications {
		if len(out) >= limit {
			break
		}
		if n.DeliveredAt != nil || n.Attempts >= maxAttempts {
			continue
		}
		out = append(out, &n)
	}
	return out, nil
}

func (t *tx) ClaimNotification(_ context.Context, id uuid.UUID, maxAttempts int) (*domain.Notification, error) {
	for _, n := range t.st.notifications {
		if n.ID != id {
			continue
		}
		if n.DeliveredAt != nil || n.Attempts >= maxAttempts {
			return nil, nil
		}
		return &n, nil
	}
	return nil, nil
}

func (t *tx) MarkNotificationDelivered(_ context.Context, id uuid.UUID, at time.Time) error {
	return t.updateNotification(id, func(n *domain.Notification) {
		delivered := at
		n.DeliveredAt = &delivered
		n.Attempts++
		n.LastError = ""
	})
}

func (t *tx) MarkNotificationFailed(_ context.Context, id uuid.UUID, reason string) error {
	return t.updateNotification(id, func(n *domain.Notification) {
		n.Attempts++
		n.LastError = reason
	})
}

func (t *tx) updateNotification(id uuid.UUID, fn func(n *domain.Notification)) error {
	for i := range t.st.notifications {
		if t.st.notifications[i].ID == id {
			fn(&t.st.notifications[i])
			return nil
		}
	}
	return errNotFound("notification")
}

func errNotFound(entity string) error {
	return fmt.Errorf("%s not found", entity)
}

func (t *tx) InsertPaymentEvent(_ context.Context, e *domain.PaymentEvent) error {
	if _, ok := t.st.paymentEvents[e.EventID]; ok {
		return store.ErrDuplicate
	}
	t.st.paymentEvents[e.EventID] = *e
	return nil
}

// Contributions returns a copy of all committed contributions.
func (s *Store) Contributions() []domain.Contribution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.contributions)
}

// Notifications returns a copy of the committed outbox in insertion order.
func (s *Store) Notifications() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.notifications)
}

// LoanPayments returns a copy of all committed loan payments.
func (s *Store) LoanPayments() []domain.LoanPayment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.loanPayments)
}

// FundRequests returns a copy of all committed fund requests.
func (s *Store) FundRequests() []domain.FundRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.FundRequest
	for _, v := range s.state.fundRequests {
		out = append(out, v)
	}
	return out
}

// Loans returns a copy of all committed loans.
func (s *Store) Loans() []domain.Loan {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Loan
	for _, v := range s.state.loans {
		out = append(out, v)
	}
	return out
}
