package fundrequest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fkhayef/villagebank/internal/access"
	"github.com/fkhayef/villagebank/internal/domain"
	"github.com/fkhayef/villagebank/internal/ledger"
	"github.com/fkhayef/villagebank/internal/store"
	"github.com/fkhayef/villagebank/internal/store/memory"
	"github.com/fkhayef/villagebank/internal/testutil"
	"github.com/fkhayef/villagebank/pkg/apperror"
	"github.com/fkhayef/villagebank/pkg/middleware"
)

type countingRecorder struct {
	mu     sync.Mutex
	counts map[domain.FundRequestStatus]int
}

func (r *countingRecorder) FundRequestTransitioned(status domain.FundRequestStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[domain.FundRequestStatus]int{}
	}
	r.counts[status]++
}

func newService(st store.Store, rec TransitionRecorder) *Service {
	svc := NewService(st, ledger.New(testutil.Logger(), nil), decimal.Zero, testutil.Logger(), rec)
	svc.SetClock(testutil.Clock)
	return svc
}

func fourMembers(t *testing.T, st store.Store) *testutil.Group {
	return testutil.SeedGroup(t, st, "0",
		testutil.MemberSeed{UserID: "a", Admin: true, Savings: "500"},
		testutil.MemberSeed{UserID: "b", Savings: "500"},
		testutil.MemberSeed{UserID: "c", Savings: "500"},
		testutil.MemberSeed{UserID: "d", Savings: "500"},
	)
}

func countType(ns []domain.Notification, typ domain.NotificationType) int {
	n := 0
	for _, x := range ns {
		if x.Type == typ {
			n++
		}
	}
	return n
}

func TestQuorumApprovesAndCreatesLoan(t *testing.T) {
	st := memory.New()
	rec := &countingRecorder{}
	svc := newService(st, rec)
	ctx := context.Background()
	g := fourMembers(t, st)

	fr, err := svc.Create(ctx, CreateInput{
		GroupID:  g.Group.ID,
		UserID:   "b",
		Type:     domain.FundRequestLoan,
		Amount:   testutil.Dec(t, "1000"),
		Reason:   "Restock the shop before harvest",
		Duration: "twoWeeks",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if fr.Status != domain.FundRequestPending || fr.LoanDuration != domain.LoanDurationTwoWeeks {
		t.Fatalf("created = %+v", fr)
	}
	if got := countType(st.Notifications(), domain.NotificationFundRequest); got != 4 {
		t.Errorf("FUND_REQUEST notifications = %d, want 4", got)
	}

	first, err := svc.Vote(ctx, VoteInput{GroupID: g.Group.ID, UserID: "c", RequestID: fr.ID, Approved: true})
	if err != nil {
		t.Fatalf("first vote: %v", err)
	}
	if first.Request.Status != domain.FundRequestPending || first.Loan != nil {
		t.Errorf("after one approval status = %s, loan = %v", first.Request.Status, first.Loan)
	}
	if first.Voting.RequiredApprovals != 2 || first.Voting.CurrentApprovals != 1 || first.Voting.ApprovalPercentage != 25 {
		t.Errorf("voting = %+v", first.Voting)
	}

	second, err := svc.Vote(ctx, VoteInput{GroupID: g.Group.ID, UserID: "d", RequestID: fr.ID, Approved: true})
	if err != nil {
		t.Fatalf("second vote: %v", err)
	}
	if second.Request.Status != domain.FundRequestApproved {
		t.Fatalf("status = %s, want APPROVED", second.Request.Status)
	}
	loan := second.Loan
	if loan == nil {
		t.Fatal("no loan created")
	}
	if !loan.Interest.Equal(testutil.Dec(t, "50")) || !loan.Amount.Equal(testutil.Dec(t, "1000")) {
		t.Errorf("loan amount = %s interest = %s", loan.Amount, loan.Interest)
	}
	if want := testutil.Now.AddDate(0, 0, 14); !loan.DueDate.Equal(want) {
		t.Errorf("due = %v, want %v", loan.DueDate, want)
	}
	if loan.BorrowerID != g.Member(t, "b").ID {
		t.Errorf("borrower = %s", loan.BorrowerID)
	}

	if _, err := svc.Vote(ctx, VoteInput{GroupID: g.Group.ID, UserID: "a", RequestID: fr.ID, Approved: false}); !errors.Is(err, ErrVotingClosed) {
		t.Errorf("late vote err = %v, want %v", err, ErrVotingClosed)
	}

	ns := st.Notifications()
	if got := countType(ns, domain.NotificationRequestApproved); got != 1 {
		t.Errorf("REQUEST_APPROVED = %d, want 1", got)
	}
	if got := countType(ns, domain.NotificationAdminActionRequired); got != 1 {
		t.Errorf("ADMIN_ACTION_REQUIRED = %d, want 1", got)
	}

	// Approval alone moves no money.
	if got := testutil.ReadGroup(t, st, g.Group.ID).TotalSavings; !got.Equal(testutil.Dec(t, "2000")) {
		t.Errorf("group savings after approval = %s", got)
	}

	if _, err := svc.Process(ctx, g.Group.ID, "c", fr.ID); !errors.Is(err, access.ErrAdminRequired) {
		t.Errorf("non-admin process err = %v", err)
	}
	done, err := svc.Process(ctx, g.Group.ID, "a", fr.ID)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if done.Status != domain.FundRequestCompleted {
		t.Errorf("status = %s", done.Status)
	}
	if got := testutil.ReadGroup(t, st, g.Group.ID).TotalSavings; !got.Equal(testutil.Dec(t, "1000")) {
		t.Errorf("group savings after disbursement = %s, want 1000", got)
	}
	if got := testutil.ReadMember(t, st, g.Member(t, "b").ID).TotalSavings; !got.Equal(testutil.Dec(t, "500")) {
		t.Errorf("borrower savings = %s, want 500", got)
	}
	if _, err := svc.Process(ctx, g.Group.ID, "a", fr.ID); !errors.Is(err, ErrRequestNotApproved) {
		t.Errorf("second process err = %v", err)
	}

	if rec.counts[domain.FundRequestApproved] != 1 || rec.counts[domain.FundRequestCompleted] != 1 {
		t.Errorf("recorded transitions = %v", rec.counts)
	}
}

func TestCreateRejectsLoanOverTwiceSavings(t *testing.T) {
	st := memory.New()
	svc := newService(st, nil)
	g := testutil.SeedGroup(t, st, "5000", testutil.MemberSeed{UserID: "a", Admin: true, Savings: "100"})

	_, err := svc.Create(context.Background(), CreateInput{
		GroupID: g.Group.ID,
		UserID:  "a",
		Type:    domain.FundRequestLoan,
		Amount:  testutil.Dec(t, "300"),
		Reason:  "Repair the irrigation pump",
	})
	if !errors.Is(err, ErrLoanExceedsTwice) {
		t.Fatalf("err = %v, want %v", err, ErrLoanExceedsTwice)
	}
	if apperror.KindOf(err) != apperror.KindValidation {
		t.Errorf("kind = %s", apperror.KindOf(err))
	}
	if n := len(st.FundRequests()); n != 0 {
		t.Errorf("fund requests = %d, want 0", n)
	}
	if n := len(st.Notifications()); n != 0 {
		t.Errorf("notifications = %d, want 0", n)
	}
}

func TestCreateValidation(t *testing.T) {
	st := memory.New()
	svc := newService(st, nil)
	longAgo := testutil.Now.AddDate(0, 0, -45)
	recent := testutil.Now.AddDate(0, 0, -10)
	g := testutil.SeedGroup(t, st, "-900",
		testutil.MemberSeed{UserID: "a", Admin: true, Savings: "1000", LastPayment: &longAgo},
		testutil.MemberSeed{UserID: "fresh", Savings: "200", LastPayment: &recent},
		testutil.MemberSeed{UserID: "never"},
	)
	// group savings = 1000 + 200 - 900 = 300
	seedContribution(t, st, g, "a")
	seedContribution(t, st, g, "fresh")

	tests := []struct {
		name string
		in   CreateInput
		want error
	}{
		{"unknown type", CreateInput{UserID: "a", Type: "GIFT", Amount: testutil.Dec(t, "10"), Reason: "a long enough reason"}, ErrInvalidType},
		{"short reason", CreateInput{UserID: "a", Type: domain.FundRequestLoan, Amount: testutil.Dec(t, "10"), Reason: "too short"}, ErrReasonTooShort},
		{"bad duration", CreateInput{UserID: "a", Type: domain.FundRequestLoan, Amount: testutil.Dec(t, "10"), Reason: "a long enough reason", Duration: "year"}, nil},
		{"exceeds group", CreateInput{UserID: "a", Type: domain.FundRequestLoan, Amount: testutil.Dec(t, "400"), Reason: "a long enough reason"}, ErrExceedsGroupSavings},
		{"payout without contributions", CreateInput{UserID: "never", Type: domain.FundRequestPayout, Amount: testutil.Dec(t, "10"), Reason: "a long enough reason"}, ErrNoContributions},
		{"payout over half", CreateInput{UserID: "a", Type: domain.FundRequestPayout, Amount: testutil.Dec(t, "500.01"), Reason: "a long enough reason"}, ErrPayoutExceedsHalf},
		{"not a member", CreateInput{UserID: "ghost", Type: domain.FundRequestLoan, Amount: testutil.Dec(t, "10"), Reason: "a long enough reason"}, access.ErrMemberNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.GroupID = g.Group.ID
			_, err := svc.Create(context.Background(), tt.in)
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if tt.want == nil && apperror.KindOf(err) != apperror.KindValidation {
				t.Errorf("err = %v, want a validation error", err)
			}
		})
	}

	_, err := svc.Create(context.Background(), CreateInput{
		GroupID: g.Group.ID, UserID: "fresh", Type: domain.FundRequestPayout,
		Amount: testutil.Dec(t, "50"), Reason: "a long enough reason",
	})
	if got := apperror.MessageOf(err, ""); got != "You need to wait 20 more days before requesting a payout" {
		t.Errorf("wait message = %q", got)
	}

	fr, err := svc.Create(context.Background(), CreateInput{
		GroupID: g.Group.ID, UserID: "a", Type: domain.FundRequestPayout,
		Amount: testutil.Dec(t, "250"), Reason: "School fees for the term",
	})
	if err != nil {
		t.Fatalf("valid payout: %v", err)
	}
	if fr.LoanDuration != "" {
		t.Errorf("payout duration = %q", fr.LoanDuration)
	}
	if n := len(st.FundRequests()); n != 1 {
		t.Errorf("fund requests = %d, want 1", n)
	}
}

func seedContribution(t *testing.T, st store.Store, g *testutil.Group, userID string) {
	t.Helper()
	m := g.Member(t, userID)
	testutil.Read(t, st, func(ctx context.Context, tx store.Tx) error {
		return tx.CreateContribution(ctx, &domain.Contribution{
			ID:       uuid.New(),
			Amount:   m.TotalSavings,
			Date:     testutil.Now.AddDate(0, -2, 0),
			Status:   domain.ContributionCompleted,
			MemberID: m.ID,
			GroupID:  g.Group.ID,
		})
	})
}

func TestRejectionOnceQuorumUnreachable(t *testing.T) {
	st := memory.New()
	svc := newService(st, nil)
	ctx := context.Background()
	g := fourMembers(t, st)

	fr, err := svc.Create(ctx, CreateInput{
		GroupID: g.Group.ID, UserID: "a", Type: domain.FundRequestLoan,
		Amount: testutil.Dec(t, "200"), Reason: "Buy a second sewing machine",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	vote := func(user string, approved bool) *Detail {
		t.Helper()
		d, err := svc.Vote(ctx, VoteInput{GroupID: g.Group.ID, UserID: user, RequestID: fr.ID, Approved: approved})
		if err != nil {
			t.Fatalf("vote %s: %v", user, err)
		}
		return d
	}

	// Changing a vote replaces it.
	if d := vote("b", true); d.Voting.CurrentApprovals != 1 {
		t.Errorf("approvals = %d", d.Voting.CurrentApprovals)
	}
	d := vote("b", false)
	if d.Voting.CurrentApprovals != 0 || d.Voting.CurrentRejections != 1 || !d.Voting.HasVoted || *d.Voting.Approved {
		t.Errorf("after re-vote voting = %+v", d.Voting)
	}

	if d := vote("c", false); d.Request.Status != domain.FundRequestPending {
		t.Errorf("two rejections of four status = %s", d.Request.Status)
	}
	if d := vote("d", false); d.Request.Status != domain.FundRequestRejected {
		t.Errorf("three rejections of four status = %s", d.Request.Status)
	}
	if got := countType(st.Notifications(), domain.NotificationRequestRejected); got != 1 {
		t.Errorf("REQUEST_REJECTED = %d, want 1", got)
	}
	if len(st.Loans()) != 0 {
		t.Error("rejected request created a loan")
	}
}

func TestConcurrentVotesApproveOnce(t *testing.T) {
	st := memory.New()
	svc := newService(st, nil)
	ctx := context.Background()
	g := testutil.SeedGroup(t, st, "0",
		testutil.MemberSeed{UserID: "a", Admin: true, Savings: "300"},
		testutil.MemberSeed{UserID: "b", Savings: "300"},
		testutil.MemberSeed{UserID: "c", Savings: "300"},
		testutil.MemberSeed{UserID: "d", Savings: "300"},
		testutil.MemberSeed{UserID: "e", Savings: "300"},
		testutil.MemberSeed{UserID: "f", Savings: "300"},
	)
	fr, err := svc.Create(ctx, CreateInput{
		GroupID: g.Group.ID, UserID: "a", Type: domain.FundRequestLoan,
		Amount: testutil.Dec(t, "500"), Reason: "Fertilizer for the cooperative",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		closed int
	)
	for _, user := range []string{"b", "c", "d", "e", "f"} {
		user := user
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Vote(ctx, VoteInput{GroupID: g.Group.ID, UserID: user, RequestID: fr.ID, Approved: true})
			switch {
			case errors.Is(err, ErrVotingClosed):
				mu.Lock()
				closed++
				mu.Unlock()
			case err != nil:
				t.Errorf("vote %s: %v", user, err)
			}
		}()
	}
	wg.Wait()

	// Six members need three approvals; the remaining two votes find the
	// request already decided.
	if closed != 2 {
		t.Errorf("closed votes = %d, want 2", closed)
	}
	if n := len(st.Loans()); n != 1 {
		t.Errorf("loans = %d, want 1", n)
	}
	if got := countType(st.Notifications(), domain.NotificationRequestApproved); got != 1 {
		t.Errorf("REQUEST_APPROVED = %d, want 1", got)
	}
}

func TestProcessPayoutDebitsMember(t *testing.T) {
	st := memory.New()
	svc := newService(st, nil)
	ctx := context.Background()
	longAgo := testutil.Now.AddDate(0, 0, -40)
	g := testutil.SeedGroup(t, st, "0",
		testutil.MemberSeed{UserID: "a", Admin: true, Savings: "400", LastPayment: &longAgo},
		testutil.MemberSeed{UserID: "b", Savings: "400"},
	)
	seedContribution(t, st, g, "a")

	fr, err := svc.Create(ctx, CreateInput{
		GroupID: g.Group.ID, UserID: "a", Type: domain.FundRequestPayout,
		Amount: testutil.Dec(t, "150"), Reason: "Medical bills this month",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Two members need one approval.
	if d, err := svc.Vote(ctx, VoteInput{GroupID: g.Group.ID, UserID: "b", RequestID: fr.ID, Approved: true}); err != nil || d.Request.Status != domain.FundRequestApproved {
		t.Fatalf("vote: %v", err)
	}
	if _, err := svc.Process(ctx, g.Group.ID, "a", fr.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if got := testutil.ReadMember(t, st, g.Member(t, "a").ID).TotalSavings; !got.Equal(testutil.Dec(t, "250")) {
		t.Errorf("member savings = %s, want 250", got)
	}
	if got := testutil.ReadGroup(t, st, g.Group.ID).TotalSavings; !got.Equal(testutil.Dec(t, "650")) {
		t.Errorf("group savings = %s, want 650", got)
	}
	if len(st.Loans()) != 0 {
		t.Error("payout created a loan")
	}
}

func TestGetShowsCallerVote(t *testing.T) {
	st := memory.New()
	svc := newService(st, nil)
	ctx := context.Background()
	g := fourMembers(t, st)

	fr, err := svc.Create(ctx, CreateInput{
		GroupID: g.Group.ID, UserID: "a", Type: domain.FundRequestLoan,
		Amount: testutil.Dec(t, "100"), Reason: "Bicycle for deliveries",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Vote(ctx, VoteInput{GroupID: g.Group.ID, UserID: "b", RequestID: fr.ID, Approved: true}); err != nil {
		t.Fatalf("Vote: %v", err)
	}

	asB, err := svc.Get(ctx, g.Group.ID, "b", fr.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !asB.Voting.HasVoted || !*asB.Voting.Approved {
		t.Errorf("b's view = %+v", asB.Voting)
	}
	asC, err := svc.Get(ctx, g.Group.ID, "c", fr.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if asC.Voting.HasVoted || asC.Voting.Approved != nil || asC.Voting.CurrentApprovals != 1 {
		t.Errorf("c's view = %+v", asC.Voting)
	}

	other := testutil.SeedGroup(t, st, "0", testutil.MemberSeed{UserID: "b"})
	if _, err := svc.Get(ctx, other.Group.ID, "b", fr.ID); !errors.Is(err, ErrRequestNotFound) {
		t.Errorf("cross-group get err = %v", err)
	}
}

func TestHandlerVoteFlow(t *testing.T) {
	st := memory.New()
	svc := newService(st, nil)
	g := testutil.SeedGroup(t, st, "0",
		testutil.MemberSeed{UserID: "a", Admin: true, Savings: "100"},
		testutil.MemberSeed{UserID: "b", Savings: "100"},
	)

	r := chi.NewRouter()
	r.Use(middleware.TestUserMiddleware)
	r.Mount("/groups/{groupId}/fund-requests", NewHandler(svc).Routes())

	do := func(method, path, user, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("X-Test-User-ID", user)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}
	base := "/groups/" + g.Group.ID.String() + "/fund-requests"

	rec := do(http.MethodPost, base+"/", "a", `{"type":"LOAN","amount":"150","reason":"Stock for market day","duration":"week"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	fr := st.FundRequests()[0]

	if rec := do(http.MethodPost, base+"/"+fr.ID.String()+"/process", "a", ""); rec.Code != http.StatusConflict {
		t.Errorf("early process status = %d", rec.Code)
	}
	if rec := do(http.MethodPost, base+"/"+fr.ID.String()+"/votes", "b", `{"approved":true}`); rec.Code != http.StatusOK {
		t.Errorf("vote status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(http.MethodPost, base+"/"+fr.ID.String()+"/process", "b", ""); rec.Code != http.StatusForbidden {
		t.Errorf("non-admin process status = %d", rec.Code)
	}
	if rec := do(http.MethodPost, base+"/"+fr.ID.String()+"/process", "a", ""); rec.Code != http.StatusOK {
		t.Errorf("process status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(http.MethodGet, base+"/"+uuid.NewString(), "a", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing request status = %d", rec.Code)
	}
	if rec := do(http.MethodGet, base+"/not-a-uuid", "a", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", rec.Code)
	}

	if got := testutil.ReadGroup(t, st, g.Group.ID).TotalSavings; !got.Equal(testutil.Dec(t, "50")) {
		t.Errorf("group savings = %s, want 50", got)
	}
}
