package group

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fkhayef/villagebank/internal/access"
	"github.com/fkhayef/villagebank/internal/domain"
	"github.com/fkhayef/villagebank/internal/store"
	"github.com/fkhayef/villagebank/internal/store/memory"
	"github.com/fkhayef/villagebank/internal/testutil"
	"github.com/fkhayef/villagebank/pkg/apperror"
	"github.com/fkhayef/villagebank/pkg/middleware"
)

func newService(st store.Store) *Service {
	svc := NewService(st, testutil.Logger())
	svc.SetClock(testutil.Clock)
	return svc
}

func TestCreateValidation(t *testing.T) {
	svc := newService(memory.New())
	valid := CreateGroupRequest{
		Name:               "Harvest Circle",
		Description:        "Savings for the harvest season",
		MaxMembers:         10,
		ContributionAmount: testutil.Dec(t, "50"),
	}

	tests := []struct {
		name   string
		mutate func(r *CreateGroupRequest)
		want   error
	}{
		{"short name", func(r *CreateGroupRequest) { r.Name = "ab" }, ErrNameTooShort},
		{"short description", func(r *CreateGroupRequest) { r.Description = "tiny" }, ErrDescriptionTooShort},
		{"one member", func(r *CreateGroupRequest) { r.MaxMembers = 1 }, ErrMaxMembersTooSmall},
		{"negative contribution", func(r *CreateGroupRequest) { r.ContributionAmount = testutil.Dec(t, "-1") }, ErrNegativeContribution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, _, err := svc.Create(context.Background(), "user-1", &req)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if apperror.KindOf(err) != apperror.KindValidation {
				t.Errorf("kind = %s, want VALIDATION_FAILED", apperror.KindOf(err))
			}
		})
	}
}

func TestCreateAddsAdmin(t *testing.T) {
	st := memory.New()
	svc := newService(st)

	g, admin, err := svc.Create(context.Background(), "user-1", &CreateGroupRequest{
		Name:        "Harvest Circle",
		Description: "Savings for the harvest season",
		MaxMembers:  5,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if g.AdminID != "user-1" || !admin.IsAdmin || !admin.IsActive() {
		t.Errorf("admin = %+v, group admin = %s", admin, g.AdminID)
	}
	if !g.TotalSavings.IsZero() {
		t.Errorf("new group savings = %s", g.TotalSavings)
	}

	stored := testutil.ReadMember(t, st, admin.ID)
	if stored.UserID != "user-1" || stored.GroupID != g.ID {
		t.Errorf("stored member = %+v", stored)
	}
}

func TestJoinFlow(t *testing.T) {
	st := memory.New()
	svc := newService(st)
	ctx := context.Background()
	seeded := testutil.SeedGroup(t, st, "0", testutil.MemberSeed{UserID: "admin", Admin: true})
	groupID := seeded.Group.ID

	jr, err := svc.RequestToJoin(ctx, groupID, "newcomer", "  I sell vegetables  ")
	if err != nil {
		t.Fatalf("RequestToJoin: %v", err)
	}
	if jr.Status != domain.JoinRequestPending || jr.Message != "I sell vegetables" {
		t.Errorf("join request = %+v", jr)
	}

	if _, err := svc.RequestToJoin(ctx, groupID, "newcomer", ""); !errors.Is(err, ErrJoinRequestPending) {
		t.Errorf("second request err = %v, want %v", err, ErrJoinRequestPending)
	}

	if _, err := svc.DecideJoinRequest(ctx, groupID, "newcomer", jr.ID, true); !errors.Is(err, access.ErrMemberNotFound) {
		t.Errorf("non-member decide err = %v", err)
	}

	decided, err := svc.DecideJoinRequest(ctx, groupID, "admin", jr.ID, true)
	if err != nil {
		t.Fatalf("DecideJoinRequest: %v", err)
	}
	if decided.Status != domain.JoinRequestApproved {
		t.Errorf("status = %s", decided.Status)
	}

	if _, err := svc.DecideJoinRequest(ctx, groupID, "admin", jr.ID, false); !errors.Is(err, ErrJoinRequestDecided) {
		t.Errorf("re-decide err = %v, want %v", err, ErrJoinRequestDecided)
	}

	testutil.Read(t, st, func(ctx context.Context, tx store.Tx) error {
		m, err := tx.GetMember(ctx, groupID, "newcomer", store.NoLock)
		if err != nil {
			return err
		}
		if m == nil || !m.IsActive() || m.IsAdmin {
			t.Errorf("new member = %+v", m)
		}
		return nil
	})

	if _, err := svc.RequestToJoin(ctx, groupID, "newcomer", ""); !errors.Is(err, ErrMemberAlreadyExists) {
		t.Errorf("member join err = %v", err)
	}

	var types []domain.NotificationType
	for _, n := range st.Notifications() {
		types = append(types, n.Type)
	}
	want := []domain.NotificationType{domain.NotificationJoinRequest, domain.NotificationJoinApproved}
	if len(types) != len(want) || types[0] != want[0] || types[1] != want[1] {
		t.Errorf("notifications = %v, want %v", types, want)
	}
}

func TestJoinRejectedWhenFull(t *testing.T) {
	st := memory.New()
	svc := newService(st)
	full := testutil.SeedCappedGroup(t, st, 2, "0",
		testutil.MemberSeed{UserID: "a", Admin: true},
		testutil.MemberSeed{UserID: "b"},
	)

	_, err := svc.RequestToJoin(context.Background(), full.Group.ID, "c", "")
	if !errors.Is(err, ErrGroupFull) {
		t.Errorf("err = %v, want %v", err, ErrGroupFull)
	}
	if apperror.KindOf(err) != apperror.KindValidation {
		t.Errorf("kind = %s", apperror.KindOf(err))
	}
}

func TestDecideRejectsAtCapacity(t *testing.T) {
	st := memory.New()
	svc := newService(st)
	ctx := context.Background()
	seeded := testutil.SeedCappedGroup(t, st, 2, "0", testutil.MemberSeed{UserID: "admin", Admin: true})
	groupID := seeded.Group.ID

	first, err := svc.RequestToJoin(ctx, groupID, "first", "")
	if err != nil {
		t.Fatalf("first join: %v", err)
	}
	second, err := svc.RequestToJoin(ctx, groupID, "second", "")
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if _, err := svc.DecideJoinRequest(ctx, groupID, "admin", first.ID, true); err != nil {
		t.Fatalf("approve first: %v", err)
	}
	if _, err := svc.DecideJoinRequest(ctx, groupID, "admin", second.ID, true); !errors.Is(err, ErrGroupFull) {
		t.Errorf("approve second err = %v, want %v", err, ErrGroupFull)
	}
	rejected, err := svc.DecideJoinRequest(ctx, groupID, "admin", second.ID, false)
	if err != nil {
		t.Fatalf("reject second: %v", err)
	}
	if rejected.Status != domain.JoinRequestRejected {
		t.Errorf("status = %s", rejected.Status)
	}
}

func TestDecideUnknownRequest(t *testing.T) {
	st := memory.New()
	svc := newService(st)
	seeded := testutil.SeedGroup(t, st, "0", testutil.MemberSeed{UserID: "admin", Admin: true})

	_, err := svc.DecideJoinRequest(context.Background(), seeded.Group.ID, "admin", uuid.New(), true)
	if !errors.Is(err, ErrJoinRequestNotFound) {
		t.Errorf("err = %v, want %v", err, ErrJoinRequestNotFound)
	}
}

func TestHandlerCreate(t *testing.T) {
	h := NewHandler(newService(memory.New()))
	r := chi.NewRouter()
	r.Use(middleware.TestUserMiddleware)
	r.Mount("/groups", h.Routes())

	tests := []struct {
		name       string
		body       string
		user       string
		wantStatus int
	}{
		{"created", `{"name":"Harvest Circle","description":"Savings for the season","maxMembers":5,"contributionAmount":"25"}`, "user-1", http.StatusCreated},
		{"invalid json", `{"name":`, "user-1", http.StatusBadRequest},
		{"validation", `{"name":"ab","description":"Savings for the season","maxMembers":5}`, "user-1", http.StatusUnprocessableEntity},
		{"unauthenticated", `{}`, "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/groups/", strings.NewReader(tt.body))
			if tt.user != "" {
				req.Header.Set("X-Test-User-ID", tt.user)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusCreated {
				return
			}
			var body struct {
				Data GroupResponse `json:"data"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Data.AdminID != "user-1" || len(body.Data.Members) != 1 {
				t.Errorf("response = %+v", body.Data)
			}
		})
	}
}
