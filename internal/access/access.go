// Package access resolves the authenticated user to a group member and
// enforces the role an operation requires.
package access

import (
	"context"

	"github.com/google/uuid"

	"github.com/fkhayef/villagebank/internal/domain"
	"github.com/fkhayef/villagebank/internal/store"
	"github.com/fkhayef/villagebank/pkg/apperror"
)

var (
	ErrUnauthenticated = apperror.Unauthorized("Authentication required")
	ErrGroupNotFound   = apperror.NotFound("Group not found")
	ErrMemberNotFound  = apperror.NotFound("Member not found")
	ErrMemberInactive  = apperror.Forbidden("Your membership in this group is not active")
	ErrAdminRequired   = apperror.Forbidden("Only group admins can perform this action")
)

// Actor is the member performing an operation together with their group
type Actor struct {
	Group  *domain.Group
	Member *domain.Member
}

// Member loads the group and the caller's active membership. lock applies to
// the member row only.
func Member(ctx context.Context, tx store.Tx, groupID uuid.UUID, userID string, lock store.Lock) (*Actor, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	group, err := tx.GetGroup(ctx, groupID, store.NoLock)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrGroupNotFound
	}
	member, err := tx.GetMember(ctx, groupID, userID, lock)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrMemberNotFound
	}
	if !member.IsActive() {
		return nil, ErrMemberInactive
	}
	return &Actor{Group: group, Member: member}, nil
}

// Admin is Member plus the admin role check.
func Admin(ctx context.Context, tx store.Tx, groupID uuid.UUID, userID string) (*Actor, error) {
	actor, err := Member(ctx, tx, groupID, userID, store.NoLock)
	if err != nil {
		return nil, err
	}
	if !actor.Member.IsAdmin {
		return nil, ErrAdminRequired
	}
	return actor, nil
}

// Admins returns the active admins of a group
func Admins(ctx context.Context, tx store.Tx, groupID uuid.UUID) ([]*domain.Member, error) {
	members, err := tx.ListMembers(ctx, groupID, domain.MemberStatusActive)
	if err != nil {
		return nil, err
	}
	var admins []*domain.Member
	for _, m := range members {
		if m.IsAdmin {
			admins = append(admins, m)
		}
	}
	return admins, nil
}
