package contribution

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

	"github.com/fkhayef/villagebank/internal/access"
	"github.com/fkhayef/villagebank/internal/domain"
	"github.com/fkhayef/villagebank/internal/ledger"
	"github.com/fkhayef/villagebank/internal/store"
	"github.com/fkhayef/villagebank/internal/store/memory"
	"github.com/fkhayef/villagebank/internal/testutil"
	"github.com/fkhayef/villagebank/pkg/apperror"
	"github.com/fkhayef/villagebank/pkg/middleware"
)

func newService(st store.Store) *Service {
	svc := NewService(st, ledger.New(testutil.Logger(), nil), testutil.Logger())
	svc.SetClock(testutil.Clock)
	return svc
}

func TestContributeTwice(t *testing.T) {
	st := memory.New()
	svc := newService(st)
	g := testutil.SeedGroup(t, st, "0", testutil.MemberSeed{UserID: "amina", Admin: true})
	in := Input{GroupID: g.Group.ID, UserID: "amina", Amount: testutil.Dec(t, "100"), Notes: "March"}

	for i := 0; i < 2; i++ {
		if _, err := svc.Contribute(context.Background(), in); err != nil {
			t.Fatalf("Contribute #%d: %v", i+1, err)
		}
	}

	member := testutil.ReadMember(t, st, g.Member(t, "amina").ID)
	group := testutil.ReadGroup(t, st, g.Group.ID)
	want := testutil.Dec(t, "200")
	if !member.TotalSavings.Equal(want) || !group.TotalSavings.Equal(want) {
		t.Errorf("member = %s, group = %s, want %s", member.TotalSavings, group.TotalSavings, want)
	}
	if member.LastPayment == nil || !member.LastPayment.Equal(testutil.Now) {
		t.Errorf("lastPayment = %v, want %v", member.LastPayment, testutil.Now)
	}
	contributions := st.Contributions()
	if len(contributions) != 2 {
		t.Fatalf("contributions = %d, want 2", len(contributions))
	}
	for _, c := range contributions {
		if c.Status != domain.ContributionCompleted {
			t.Errorf("status = %s", c.Status)
		}
	}

	notes := st.Notifications()
	if len(notes) != 2 || notes[0].Type != domain.NotificationContribution || notes[0].Title != "Contribution Successful" {
		t.Errorf("notifications = %+v", notes)
	}

	testutil.Read(t, st, func(ctx context.Context, tx store.Tx) error {
		entries, err := tx.ListLedgerEntries(ctx, g.Group.ID)
		if err != nil {
			return err
		}
		if len(entries) != 2 || entries[0].Kind != domain.EntryContribution {
			t.Errorf("ledger entries = %+v", entries)
		}
		return nil
	})
}

func TestContributeRejectsWithoutMutation(t *testing.T) {
	st := memory.New()
	svc := newService(st)
	g := testutil.SeedGroup(t, st, "50",
		testutil.MemberSeed{UserID: "amina", Admin: true, Savings: "10"},
		testutil.MemberSeed{UserID: "idle", Inactive: true},
	)

	tests := []struct {
		name     string
		userID   string
		amount   string
		wantErr  error
		wantKind apperror.Kind
	}{
		{"not a member", "stranger", "100", access.ErrMemberNotFound, apperror.KindNotFound},
		{"inactive member", "idle", "100", access.ErrMemberInactive, apperror.KindForbidden},
		{"zero amount", "amina", "0", domain.ErrAmountNotPositive, apperror.KindValidation},
		{"fractional cents", "amina", "1.005", domain.ErrAmountPrecision, apperror.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Contribute(context.Background(), Input{
				GroupID: g.Group.ID,
				UserID:  tt.userID,
				Amount:  testutil.Dec(t, tt.amount),
			})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
			if got := apperror.KindOf(err); got != tt.wantKind {
				t.Errorf("kind = %s, want %s", got, tt.wantKind)
			}
		})
	}

	if got := testutil.ReadGroup(t, st, g.Group.ID).TotalSavings; !got.Equal(testutil.Dec(t, "60")) {
		t.Errorf("group savings changed to %s", got)
	}
	if n := len(st.Contributions()); n != 0 {
		t.Errorf("contributions = %d, want 0", n)
	}
	if n := len(st.Notifications()); n != 0 {
		t.Errorf("notifications = %d, want 0", n)
	}
}

func TestConcurrentContributions(t *testing.T) {
	st := memory.New()
	svc := newService(st)
	g := testutil.SeedGroup(t, st, "0",
		testutil.MemberSeed{UserID: "a", Admin: true},
		testutil.MemberSeed{UserID: "b"},
	)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		user := "a"
		if i%2 == 1 {
			user = "b"
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Contribute(context.Background(), Input{GroupID: g.Group.ID, UserID: user, Amount: testutil.Dec(t, "10")}); err != nil {
				t.Errorf("Contribute: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := testutil.ReadGroup(t, st, g.Group.ID).TotalSavings; !got.Equal(testutil.Dec(t, "200")) {
		t.Errorf("group savings = %s, want 200", got)
	}
	for _, user := range []string{"a", "b"} {
		if got := testutil.ReadMember(t, st, g.Member(t, user).ID).TotalSavings; !got.Equal(testutil.Dec(t, "100")) {
			t.Errorf("%s savings = %s, want 100", user, got)
		}
	}
}

func TestHandlerContribute(t *testing.T) {
	st := memory.New()
	g := testutil.SeedGroup(t, st, "0", testutil.MemberSeed{UserID: "amina", Admin: true})
	h := NewHandler(newService(st))

	r := chi.NewRouter()
	r.Use(middleware.TestUserMiddleware)
	r.Mount("/groups/{groupId}/contributions", h.Routes())

	tests := []struct {
		name       string
		groupID    string
		body       string
		wantStatus int
	}{
		{"created", g.Group.ID.String(), `{"amount":"25.50","notes":"weekly"}`, http.StatusCreated},
		{"bad group id", "nope", `{"amount":"1"}`, http.StatusBadRequest},
		{"malformed body", g.Group.ID.String(), `{"amount":`, http.StatusBadRequest},
		{"negative amount", g.Group.ID.String(), `{"amount":"-5"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/groups/"+tt.groupID+"/contributions/", strings.NewReader(tt.body))
			req.Header.Set("X-Test-User-ID", "amina")
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}

	if got := testutil.ReadGroup(t, st, g.Group.ID).TotalSavings; !got.Equal(testutil.Dec(t, "25.5")) {
		t.Errorf("group savings = %s, want 25.5", got)
	}
}

// lockOrder records the row locks a transaction takes.
type lockOrder struct {
	store.Tx
	locks []string
}

func (l *lockOrder) GetGroup(ctx context.Context, id uuid.UUID, lock store.Lock) (*domain.Group, error) {
	if lock == store.ForUpdate {
		l.locks = append(l.locks, "group")
	}
	return l.Tx.GetGroup(ctx, id, lock)
}

func (l *lockOrder) GetMember(ctx context.Context, groupID uuid.UUID, userID string, lock store.Lock) (*domain.Member, error) {
	if lock == store.ForUpdate {
		l.locks = append(l.locks, "member")
	}
	return l.Tx.GetMember(ctx, groupID, userID, lock)
}

func (l *lockOrder) GetMemberByID(ctx context.Context, id uuid.UUID, lock store.Lock) (*domain.Member, error) {
	if lock == store.ForUpdate {
		l.locks = append(l.locks, "member")
	}
	return l.Tx.GetMemberByID(ctx, id, lock)
}

func TestContributeLocksGroupBeforeMember(t *testing.T) {
	st := memory.New()
	svc := newService(st)
	g := testutil.SeedGroup(t, st, "0", testutil.MemberSeed{UserID: "amina", Admin: true, Savings: "40"})

	var rec *lockOrder
	var res *Result
	err := st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		rec = &lockOrder{Tx: tx}
		var err error
		res, err = svc.ContributeTx(ctx, rec, Input{GroupID: g.Group.ID, UserID: "amina", Amount: testutil.Dec(t, "10")})
		return err
	})
	if err != nil {
		t.Fatalf("ContributeTx: %v", err)
	}
	if strings.Join(rec.locks, ",") != "group,member" {
		t.Errorf("locks = %v, want group then member", rec.locks)
	}
	if !res.MemberTotalSavings.Equal(testutil.Dec(t, "50")) || !res.GroupTotalSavings.Equal(testutil.Dec(t, "50")) {
		t.Errorf("result = member %s, group %s, want 50", res.MemberTotalSavings, res.GroupTotalSavings)
	}
}
