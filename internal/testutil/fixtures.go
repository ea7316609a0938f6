// Package testutil seeds stores with groups and members for service tests.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fkhayef/villagebank/internal/domain"
	"github.com/fkhayef/villagebank/internal/store"
)

// Now is the fixed clock used across service tests.
var Now = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

// Clock returns Now.
func Clock() time.Time { return Now }

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Dec parses a decimal literal or fails the test.
func Dec(t testing.TB, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

// MemberSeed describes one member to create.
type MemberSeed struct {
	UserID      string
	Savings     string
	Admin       bool
	Inactive    bool
	LastPayment *time.Time
}

// Group is a seeded group and its members keyed by user id.
type Group struct {
	Group   *domain.Group
	Members map[string]*domain.Member
}

// Member returns the seeded member for userID.
func (g *Group) Member(t testing.TB, userID string) *domain.Member {
	t.Helper()
	m, ok := g.Members[userID]
	if !ok {
		t.Fatalf("no seeded member %q", userID)
	}
	return m
}

// SeedGroup creates a group whose total savings is the sum of its members'
// savings plus extra. The first seed is recorded as the group admin id.
func SeedGroup(t testing.TB, st store.Store, extra string, seeds ...MemberSeed) *Group {
	t.Helper()
	return SeedCappedGroup(t, st, 20, extra, seeds...)
}

// SeedCappedGroup is SeedGroup with an explicit member limit.
func SeedCappedGroup(t testing.TB, st store.Store, maxMembers int, extra string, seeds ...MemberSeed) *Group {
	t.Helper()
	g := &domain.Group{
		ID:                 uuid.New(),
		Name:               "Harvest Circle",
		Description:        "Weekly savings for the market traders",
		MaxMembers:         maxMembers,
		ContributionAmount: decimal.NewFromInt(100),
		TotalSavings:       Dec(t, extra),
		CreatedAt:          Now.Add(-90 * 24 * time.Hour),
	}
	out := &Group{Group: g, Members: map[string]*domain.Member{}}
	for i, s := range seeds {
		savings := decimal.Zero
		if s.Savings != "" {
			savings = Dec(t, s.Savings)
		}
		status := domain.MemberStatusActive
		if s.Inactive {
			status = domain.MemberStatusInactive
		}
		m := &domain.Member{
			ID:           uuid.New(),
			UserID:       s.UserID,
			GroupID:      g.ID,
			IsAdmin:      s.Admin,
			TotalSavings: savings,
			LastPayment:  s.LastPayment,
			Status:       status,
			JoinedAt:     g.CreatedAt.Add(time.Duration(i) * time.Minute),
		}
		if i == 0 {
			g.AdminID = s.UserID
		}
		g.TotalSavings = g.TotalSavings.Add(savings)
		out.Members[s.UserID] = m
	}

	err := st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateGroup(ctx, g); err != nil {
			return err
		}
		for _, s := range seeds {
			if err := tx.CreateMember(ctx, out.Members[s.UserID]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed group: %v", err)
	}
	return out
}

// ReadGroup loads the current state of a group.
func ReadGroup(t testing.TB, st store.Store, id uuid.UUID) *domain.Group {
	t.Helper()
	var g *domain.Group
	err := st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		g, err = tx.GetGroup(ctx, id, store.NoLock)
		return err
	})
	if err != nil || g == nil {
		t.Fatalf("read group %s: %v", id, err)
	}
	return g
}

// ReadMember loads the current state of a member.
func ReadMember(t testing.TB, st store.Store, id uuid.UUID) *domain.Member {
	t.Helper()
	var m *domain.Member
	err := st.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		m, err = tx.GetMemberByID(ctx, id, store.NoLock)
		return err
	})
	if err != nil || m == nil {
		t.Fatalf("read member %s: %v", id, err)
	}
	return m
}

// Read runs fn in a transaction and fails the test on error.
func Read(t testing.TB, st store.Store, fn func(ctx context.Context, tx store.Tx) error) {
	t.Helper()
	if err := st.InTx(context.Background(), fn); err != nil {
		t.Fatalf("read: %v", err)
	}
}
