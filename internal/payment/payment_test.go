package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/fkhayef/villagebank/internal/access"
	"github.com/fkhayef/villagebank/internal/contribution"
	"github.com/fkhayef/villagebank/internal/domain"
	"github.com/fkhayef/villagebank/internal/ledger"
	"github.com/fkhayef/villagebank/internal/loan"
	"github.com/fkhayef/villagebank/internal/store"
	"github.com/fkhayef/villagebank/internal/store/memory"
	"github.com/fkhayef/villagebank/internal/testutil"
)

var secret = []byte("whsec_test")

func newService(st store.Store) *Service {
	l := ledger.New(testutil.Logger(), nil)
	contributions := contribution.NewService(st, l, testutil.Logger())
	contributions.SetClock(testutil.Clock)
	loans := loan.NewService(st, l, testutil.Logger(), nil)
	loans.SetClock(testutil.Clock)
	svc := NewService(st, contributions, loans, testutil.Logger())
	svc.SetClock(testutil.Clock)
	return svc
}

func seedLoan(t *testing.T, st store.Store, g *testutil.Group, borrower string) *domain.Loan {
	t.Helper()
	m := g.Member(t, borrower)
	fr := &domain.FundRequest{
		ID:        uuid.New(),
		Type:      domain.FundRequestLoan,
		Amount:    testutil.Dec(t, "200"),
		Reason:    "Fertilizer for the season",
		Status:    domain.FundRequestCompleted,
		MemberID:  m.ID,
		GroupID:   g.Group.ID,
		CreatedAt: testutil.Now,
		UpdatedAt: testutil.Now,
	}
	l := &domain.Loan{
		ID:         uuid.New(),
		Amount:     fr.Amount,
		Interest:   testutil.Dec(t, "10"),
		PaidAmount: testutil.Dec(t, "0"),
		DueDate:    testutil.Now.AddDate(0, 0, 14),
		Status:     domain.LoanActive,
		BorrowerID: m.ID,
		GroupID:    g.Group.ID,
		RequestID:  fr.ID,
		CreatedAt:  testutil.Now,
	}
	testutil.Read(t, st, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateFundRequest(ctx, fr); err != nil {
			return err
		}
		return tx.CreateLoan(ctx, l)
	})
	return l
}

func completed(id string, g *testutil.Group, userID string, cents int64) *Event {
	return &Event{
		ID:          id,
		Type:        EventCompleted,
		AmountTotal: cents,
		Metadata:    Metadata{GroupID: g.Group.ID.String(), UserID: userID, Notes: "mobile money"},
	}
}

func TestContributionEventAppliedOnce(t *testing.T) {
	st := memory.New()
	svc := newService(st)
	ctx := context.Background()
	g := testutil.SeedGroup(t, st, "0", testutil.MemberSeed{UserID: "ama", Admin: true, Savings: "100"})

	ev := completed("evt_1", g, "ama", 2550)
	out, err := svc.HandleEvent(ctx, ev)
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if out.Duplicate || out.Kind != KindContribution || out.Contribution == nil {
		t.Fatalf("outcome = %+v", out)
	}
	if !out.Contribution.Contribution.Amount.Equal(testutil.Dec(t, "25.50")) {
		t.Errorf("amount = %s, want 25.50", out.Contribution.Contribution.Amount)
	}

	again, err := svc.HandleEvent(ctx, ev)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if !again.Duplicate {
		t.Error("redelivery not reported as duplicate")
	}
	if n := len(st.Contributions()); n != 1 {
		t.Errorf("contributions = %d, want 1", n)
	}
	if got := testutil.ReadGroup(t, st, g.Group.ID).TotalSavings; !got.Equal(testutil.Dec(t, "125.50")) {
		t.Errorf("group savings = %s, want 125.50", got)
	}
}

func TestLoanEventRepays(t *testing.T) {
	st := memory.New()
	svc := newService(st)
	g := testutil.SeedGroup(t, st, "0",
		testutil.MemberSeed{UserID: "ama", Admin: true, Savings: "500"},
		testutil.MemberSeed{UserID: "kwame", Savings: "100"},
	)
	l := seedLoan(t, st, g, "kwame")

	ev := completed("evt_loan", g, "kwame", 21000)
	ev.Metadata.LoanID = l.ID.String()
	out, err := svc.HandleEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if out.Kind != KindLoanRepayment || out.Repayment == nil {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Repayment.Loan.Status != domain.LoanPaid {
		t.Errorf("loan status = %s, want PAID", out.Repayment.Loan.Status)
	}
	if n := len(st.Contributions()); n != 0 {
		t.Errorf("contributions = %d, want 0", n)
	}
	if got := testutil.ReadGroup(t, st, g.Group.ID).TotalSavings; !got.Equal(testutil.Dec(t, "810")) {
		t.Errorf("group savings = %s, want 810", got)
	}
}

func TestFailedEventCanBeRedelivered(t *testing.T) {
	st := memory.New()
	svc := newService(st)
	ctx := context.Background()
	g := testutil.SeedGroup(t, st, "0", testutil.MemberSeed{UserID: "ama", Admin: true, Savings: "100"})

	ev := completed("evt_early", g, "yaw", 1000)
	if _, err := svc.HandleEvent(ctx, ev); !errors.Is(err, access.ErrMemberNotFound) {
		t.Fatalf("err = %v, want %v", err, access.ErrMemberNotFound)
	}

	testutil.Read(t, st, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateMember(ctx, &domain.Member{
			ID:       uuid.New(),
			UserID:   "yaw",
			GroupID:  g.Group.ID,
			Status:   domain.MemberStatusActive,
			JoinedAt: testutil.Now,
		})
	})
	out, err := svc.HandleEvent(ctx, ev)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if out.Duplicate {
		t.Error("rolled back event reported as duplicate")
	}
}

func TestEventValidation(t *testing.T) {
	st := memory.New()
	svc := newService(st)
	g := testutil.SeedGroup(t, st, "0", testutil.MemberSeed{UserID: "ama", Admin: true})

	tests := []struct {
		name   string
		mutate func(*Event)
		want   error
	}{
		{"missing id", func(e *Event) { e.ID = "" }, ErrMissingEventID},
		{"bad group", func(e *Event) { e.Metadata.GroupID = "nope" }, ErrInvalidGroupID},
		{"missing user", func(e *Event) { e.Metadata.UserID = " " }, ErrMissingUserID},
		{"zero amount", func(e *Event) { e.AmountTotal = 0 }, ErrInvalidAmount},
		{"bad loan", func(e *Event) { e.Metadata.LoanID = "loan-1" }, ErrInvalidLoanID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := completed("evt_v", g, "ama", 500)
			tt.mutate(ev)
			if _, err := svc.HandleEvent(context.Background(), ev); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOtherEventTypesIgnored(t *testing.T) {
	st := memory.New()
	svc := newService(st)

	out, err := svc.HandleEvent(context.Background(), &Event{ID: "evt_x", Type: "payment.refunded"})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if !out.Ignored {
		t.Error("event not ignored")
	}
}

func TestSignature(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	sig := Sign(secret, body)

	tests := []struct {
		name   string
		secret []byte
		header string
		want   bool
	}{
		{"valid", secret, sig, true},
		{"wrong secret", []byte("other"), sig, false},
		{"missing prefix", secret, sig[len("sha256="):], false},
		{"empty header", secret, "", false},
		{"empty secret", nil, Sign(nil, body), false},
		{"not hex", secret, "sha256=zz", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.secret, tt.header, body); got != tt.want {
				t.Errorf("VerifySignature = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandler(t *testing.T) {
	st := memory.New()
	svc := newService(st)
	g := testutil.SeedGroup(t, st, "0", testutil.MemberSeed{UserID: "ama", Admin: true, Savings: "100"})
	h := NewHandler(svc, secret).Routes()

	body, err := json.Marshal(completed("evt_h", g, "ama", 10000))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	post := func(sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
		req.Header.Set(SignatureHeader, sig)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := post("sha256=00"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad signature status = %d, want 400", rec.Code)
	}
	if n := len(st.Contributions()); n != 0 {
		t.Fatalf("contributions after rejected callback = %d", n)
	}

	for i, wantDup := range []bool{false, true} {
		rec := post(Sign(secret, body))
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d status = %d: %s", i, rec.Code, rec.Body.String())
		}
		var resp struct {
			Data EventResponse `json:"data"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Data.Duplicate != wantDup {
			t.Errorf("delivery %d duplicate = %v, want %v", i, resp.Data.Duplicate, wantDup)
		}
	}
	if n := len(st.Contributions()); n != 1 {
		t.Errorf("contributions = %d, want 1", n)
	}

	body = []byte(fmt.Sprintf(`{"id":"evt_ignored","type":"checkout.expired","metadata":{"groupId":%q}}`, g.Group.ID))
	if rec := post(Sign(secret, body)); rec.Code != http.StatusOK {
		t.Errorf("ignored event status = %d, want 200", rec.Code)
	}
}
