// Package storetest holds the behaviour every store.Store implementation
// must share. Implementations call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fkhayef/villagebank/internal/domain"
	"github.com/fkhayef/villagebank/internal/store"
)

var now = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

var errAbort = errors.New("abort")

// Run exercises st. Every case creates its own rows, so st may be shared
// with other data.
func Run(t *testing.T, st store.Store) {
	t.Run("RollbackDiscardsWrites", func(t *testing.T) { testRollback(t, st) })
	t.Run("MissingRowsAreNil", func(t *testing.T) { testMissingRows(t, st) })
	t.Run("MemberBalances", func(t *testing.T) { testMemberBalances(t, st) })
	t.Run("UniqueMembers", func(t *testing.T) { testUniqueMembers(t, st) })
	t.Run("ConditionalTransitions", func(t *testing.T) { testConditionalTransitions(t, st) })
	t.Run("ApprovalUpsert", func(t *testing.T) { testApprovalUpsert(t, st) })
	t.Run("LoanPerRequest", func(t *testing.T) { testLoanPerRequest(t, st) })
	t.Run("DueLoans", func(t *testing.T) { testDueLoans(t, st) })
	t.Run("PayoutSchedulePerDate", func(t *testing.T) { testPayoutSchedulePerDate(t, st) })
	t.Run("PaymentEventsOnce", func(t *testing.T) { testPaymentEventsOnce(t, st) })
	t.Run("LedgerEntries", func(t *testing.T) { testLedgerEntries(t, st) })
	t.Run("ClaimNotification", func(t *testing.T) { testClaimNotification(t, st) })
}

func inTx(t *testing.T, st store.Store, fn func(ctx context.Context, tx store.Tx) error) {
	t.Helper()
	if err := st.InTx(context.Background(), fn); err != nil {
		t.Fatalf("InTx: %v", err)
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	group   *domain.Group
	members []*domain.Member
}

func seed(t *testing.T, st store.Store, savings string, users ...string) *fixture {
	t.Helper()
	f := &fixture{group: &domain.Group{
		ID:                 uuid.New(),
		Name:               "Contract Circle",
		Description:        "Rows created by the store contract",
		MaxMembers:         10,
		ContributionAmount: dec("10"),
		TotalSavings:       dec(savings),
		AdminID:            users[0],
		CreatedAt:          now,
	}}
	for i, u := range users {
		f.members = append(f.members, &domain.Member{
			ID:           uuid.New(),
			UserID:       u,
			GroupID:      f.group.ID,
			IsAdmin:      i == 0,
			TotalSavings: decimal.Zero,
			Status:       domain.MemberStatusActive,
			JoinedAt:     now.Add(time.Duration(i) * time.Minute),
		})
	}
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateGroup(ctx, f.group); err != nil {
			return err
		}
		for _, m := range f.members {
			if err := tx.CreateMember(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	return f
}

func (f *fixture) fundRequest(kind domain.FundRequestType) *domain.FundRequest {
	fr := &domain.FundRequest{
		ID:        uuid.New(),
		Type:      kind,
		Amount:    dec("100"),
		Reason:    "Restock the stall",
		Status:    domain.FundRequestPending,
		MemberID:  f.members[0].ID,
		GroupID:   f.group.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if kind == domain.FundRequestLoan {
		fr.LoanDuration = domain.LoanDurationWeek
	}
	return fr
}

func (f *fixture) loan(requestID uuid.UUID, due time.Time) *domain.Loan {
	return &domain.Loan{
		ID:         uuid.New(),
		Amount:     dec("100"),
		Interest:   dec("5"),
		PaidAmount: decimal.Zero,
		DueDate:    due,
		Status:     domain.LoanActive,
		BorrowerID: f.members[0].ID,
		GroupID:    f.group.ID,
		RequestID:  requestID,
		CreatedAt:  now,
	}
}

func testRollback(t *testing.T, st store.Store) {
	id := uuid.New()
	err := st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateGroup(ctx, &domain.Group{
			ID: id, Name: "Ghost", MaxMembers: 2, AdminID: "ghost", CreatedAt: now,
			ContributionAmount: decimal.Zero, TotalSavings: decimal.Zero,
		}); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("err = %v, want %v", err, errAbort)
	}
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		g, err := tx.GetGroup(ctx, id, store.NoLock)
		if err != nil {
			return err
		}
		if g != nil {
			t.Error("group survived a rolled back transaction")
		}
		return nil
	})
}

func testMissingRows(t *testing.T, st store.Store) {
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		id := uuid.New()
		if g, err := tx.GetGroup(ctx, id, store.ForUpdate); g != nil || err != nil {
			t.Errorf("GetGroup = %v, %v", g, err)
		}
		if m, err := tx.GetMember(ctx, id, "nobody", store.NoLock); m != nil || err != nil {
			t.Errorf("GetMember = %v, %v", m, err)
		}
		if fr, err := tx.GetFundRequest(ctx, id, store.NoLock); fr != nil || err != nil {
			t.Errorf("GetFundRequest = %v, %v", fr, err)
		}
		if l, err := tx.GetLoan(ctx, id, store.NoLock); l != nil || err != nil {
			t.Errorf("GetLoan = %v, %v", l, err)
		}
		if s, err := tx.GetPayoutSchedule(ctx, id, store.NoLock); s != nil || err != nil {
			t.Errorf("GetPayoutSchedule = %v, %v", s, err)
		}
		return nil
	})
}

func testMemberBalances(t *testing.T, st store.Store) {
	f := seed(t, st, "0", "ama", "kofi")
	paid := now.Add(time.Hour)
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		if err := tx.AddMemberSavings(ctx, f.members[1].ID, dec("40.25"), &paid); err != nil {
			return err
		}
		return tx.AddGroupSavings(ctx, f.group.ID, dec("40.25"))
	})
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		m, err := tx.GetMember(ctx, f.group.ID, "kofi", store.ForUpdate)
		if err != nil {
			return err
		}
		if !m.TotalSavings.Equal(dec("40.25")) || m.LastPayment == nil || !m.LastPayment.Equal(paid) {
			t.Errorf("member = %+v", m)
		}
		g, err := tx.GetGroup(ctx, f.group.ID, store.NoLock)
		if err != nil {
			return err
		}
		if !g.TotalSavings.Equal(dec("40.25")) {
			t.Errorf("group savings = %s", g.TotalSavings)
		}

		members, err := tx.ListMembers(ctx, f.group.ID, domain.MemberStatusActive)
		if err != nil {
			return err
		}
		if len(members) != 2 || members[0].UserID != "ama" {
			t.Errorf("members = %v", members)
		}
		n, err := tx.CountMembers(ctx, f.group.ID)
		if err != nil {
			return err
		}
		if n != 2 {
			t.Errorf("CountMembers = %d", n)
		}

		ids, err := tx.ListFundedGroupIDs(ctx)
		if err != nil {
			return err
		}
		if !slices.Contains(ids, f.group.ID) {
			t.Error("funded group missing from ListFundedGroupIDs")
		}
		return nil
	})
}

func testUniqueMembers(t *testing.T, st store.Store) {
	f := seed(t, st, "0", "ama")
	err := st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateMember(ctx, &domain.Member{
			ID: uuid.New(), UserID: "ama", GroupID: f.group.ID, TotalSavings: decimal.Zero,
			Status: domain.MemberStatusActive, JoinedAt: now,
		})
	})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("err = %v, want %v", err, store.ErrDuplicate)
	}
}

func testConditionalTransitions(t *testing.T, st store.Store) {
	f := seed(t, st, "500", "ama")
	fr := f.fundRequest(domain.FundRequestPayout)
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateFundRequest(ctx, fr)
	})
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		ok, err := tx.SetFundRequestStatus(ctx, fr.ID, domain.FundRequestPending, domain.FundRequestApproved, now)
		if err != nil {
			return err
		}
		if !ok {
			t.Error("PENDING -> APPROVED not applied")
		}
		ok, err = tx.SetFundRequestStatus(ctx, fr.ID, domain.FundRequestPending, domain.FundRequestRejected, now)
		if err != nil {
			return err
		}
		if ok {
			t.Error("transition from a stale status applied")
		}
		got, err := tx.GetFundRequest(ctx, fr.ID, store.NoLock)
		if err != nil {
			return err
		}
		if got.Status != domain.FundRequestApproved {
			t.Errorf("status = %s", got.Status)
		}
		return nil
	})
}

func testApprovalUpsert(t *testing.T, st store.Store) {
	f := seed(t, st, "0", "ama", "kofi")
	fr := f.fundRequest(domain.FundRequestLoan)
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateFundRequest(ctx, fr); err != nil {
			return err
		}
		for _, approved := range []bool{true, false} {
			if err := tx.UpsertApproval(ctx, &domain.RequestApproval{
				ID: uuid.New(), Approved: approved, RequestID: fr.ID, MemberID: f.members[1].ID,
				CreatedAt: now, UpdatedAt: now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		votes, err := tx.ListApprovals(ctx, fr.ID)
		if err != nil {
			return err
		}
		if len(votes) != 1 || votes[0].Approved {
			t.Errorf("votes = %+v, want one rejection", votes)
		}
		return nil
	})
}

func testLoanPerRequest(t *testing.T, st store.Store) {
	f := seed(t, st, "0", "ama")
	fr := f.fundRequest(domain.FundRequestLoan)
	l := f.loan(fr.ID, now.AddDate(0, 0, 7))
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateFundRequest(ctx, fr); err != nil {
			return err
		}
		return tx.CreateLoan(ctx, l)
	})
	err := st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreateLoan(ctx, f.loan(fr.ID, now))
	})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("second loan err = %v, want %v", err, store.ErrDuplicate)
	}
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetLoanByRequest(ctx, fr.ID)
		if err != nil {
			return err
		}
		if got == nil || got.ID != l.ID {
			t.Errorf("GetLoanByRequest = %+v", got)
		}
		return nil
	})
}

func testDueLoans(t *testing.T, st store.Store) {
	f := seed(t, st, "0", "ama")
	past, future, paid := f.fundRequest(domain.FundRequestLoan), f.fundRequest(domain.FundRequestLoan), f.fundRequest(domain.FundRequestLoan)
	overdue := f.loan(past.ID, now.Add(-time.Hour))
	notDue := f.loan(future.ID, now.Add(time.Hour))
	settled := f.loan(paid.ID, now.Add(-time.Hour))
	settled.Status = domain.LoanPaid
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		for _, fr := range []*domain.FundRequest{past, future, paid} {
			if err := tx.CreateFundRequest(ctx, fr); err != nil {
				return err
			}
		}
		for _, l := range []*domain.Loan{overdue, notDue, settled} {
			if err := tx.CreateLoan(ctx, l); err != nil {
				return err
			}
		}
		return nil
	})

	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		due, err := tx.ListDueLoans(ctx, now)
		if err != nil {
			return err
		}
		var ours []uuid.UUID
		for _, l := range due {
			if l.GroupID == f.group.ID {
				ours = append(ours, l.ID)
			}
		}
		if len(ours) != 1 || ours[0] != overdue.ID {
			t.Errorf("due loans = %v, want [%s]", ours, overdue.ID)
		}

		ok, err := tx.SetLoanStatus(ctx, overdue.ID, domain.LoanActive, domain.LoanOverdue)
		if err != nil {
			return err
		}
		if !ok {
			t.Error("ACTIVE -> OVERDUE not applied")
		}
		payment := &domain.LoanPayment{ID: uuid.New(), Amount: dec("105"), LoanID: overdue.ID, PaymentDate: now}
		return tx.RecordLoanPayment(ctx, payment, dec("105"), domain.LoanPaid)
	})
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		l, err := tx.GetLoan(ctx, overdue.ID, store.NoLock)
		if err != nil {
			return err
		}
		if l.Status != domain.LoanPaid || !l.PaidAmount.Equal(dec("105")) {
			t.Errorf("loan = %+v", l)
		}
		return nil
	})
}

func testPayoutSchedulePerDate(t *testing.T, st store.Store) {
	f := seed(t, st, "300", "ama", "kofi")
	date := domain.NextPayoutDate(now)
	newSchedule := func() *domain.PayoutSchedule {
		s := &domain.PayoutSchedule{
			ID: uuid.New(), Date: date, TotalAmount: dec("300"), GroupID: f.group.ID,
			Status: domain.PayoutScheduled, CreatedAt: now,
		}
		for _, m := range f.members {
			s.Payouts = append(s.Payouts, domain.MemberPayout{
				ID: uuid.New(), ScheduleID: s.ID, Amount: dec("150"), Percentage: dec("50"),
				MemberID: m.ID, Status: domain.PayoutScheduled,
			})
		}
		return s
	}
	first := newSchedule()
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		return tx.CreatePayoutSchedule(ctx, first)
	})
	err := st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.CreatePayoutSchedule(ctx, newSchedule())
	})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("second schedule err = %v, want %v", err, store.ErrDuplicate)
	}

	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		found, err := tx.FindPayoutSchedule(ctx, f.group.ID, date)
		if err != nil {
			return err
		}
		if found == nil || found.ID != first.ID || len(found.Payouts) != 2 {
			t.Fatalf("FindPayoutSchedule = %+v", found)
		}
		for _, want := range []bool{true, false} {
			ok, err := tx.CompletePayoutSchedule(ctx, first.ID)
			if err != nil {
				return err
			}
			if ok != want {
				t.Errorf("CompletePayoutSchedule = %v, want %v", ok, want)
			}
		}
		done, err := tx.GetPayoutSchedule(ctx, first.ID, store.NoLock)
		if err != nil {
			return err
		}
		if done.Status != domain.PayoutCompleted {
			t.Errorf("schedule status = %s", done.Status)
		}
		for _, p := range done.Payouts {
			if p.Status != domain.PayoutCompleted {
				t.Errorf("payout %s status = %s", p.ID, p.Status)
			}
		}
		return nil
	})
}

func testPaymentEventsOnce(t *testing.T, st store.Store) {
	ev := &domain.PaymentEvent{
		EventID: "evt_" + uuid.NewString(), Kind: "CONTRIBUTION", GroupID: uuid.New(),
		UserID: "ama", Amount: dec("12.50"), ProcessedAt: now,
	}
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertPaymentEvent(ctx, ev)
	})
	err := st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.InsertPaymentEvent(ctx, ev)
	})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("redelivered event err = %v, want %v", err, store.ErrDuplicate)
	}
}

func testLedgerEntries(t *testing.T, st store.Store) {
	f := seed(t, st, "0", "ama")
	memberID := f.members[0].ID
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertLedgerEntry(ctx, &domain.LedgerEntry{
			ID: uuid.New(), GroupID: f.group.ID, MemberID: &memberID, Kind: domain.EntryContribution,
			Amount: dec("20"), GroupDelta: dec("20"), MemberDelta: dec("20"), ReferenceID: uuid.New(), CreatedAt: now,
		})
	})
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		entries, err := tx.ListLedgerEntries(ctx, f.group.ID)
		if err != nil {
			return err
		}
		if len(entries) != 1 || entries[0].MemberID == nil || *entries[0].MemberID != memberID {
			t.Errorf("entries = %+v", entries)
		}
		return nil
	})
}

func testClaimNotification(t *testing.T, st store.Store) {
	n := &domain.Notification{
		ID:        uuid.New(),
		Type:      domain.NotificationContribution,
		UserID:    "contract-" + uuid.NewString(),
		Title:     "Contribution Successful",
		Message:   "Your contribution was recorded",
		Metadata:  map[string]string{"amount": "10"},
		CreatedAt: now,
	}
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertNotifications(ctx, []*domain.Notification{n})
	})

	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.ClaimNotification(ctx, n.ID, 2)
		if err != nil {
			return err
		}
		if got == nil || got.ID != n.ID || got.Metadata["amount"] != "10" {
			t.Fatalf("claimed = %+v", got)
		}
		return tx.MarkNotificationFailed(ctx, n.ID, "timeout")
	})
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		if err := tx.MarkNotificationDelivered(ctx, n.ID, now); err != nil {
			return err
		}
		got, err := tx.ClaimNotification(ctx, n.ID, 2)
		if got != nil {
			t.Errorf("delivered row claimed again: %+v", got)
		}
		return err
	})
	inTx(t, st, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.ClaimNotification(ctx, uuid.New(), 2)
		if got != nil {
			t.Errorf("unknown row claimed: %+v", got)
		}
		return err
	})
}
