package group

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fkhayef/villagebank/internal/access"
	"github.com/fkhayef/villagebank/internal/domain"
	"github.com/fkhayef/villagebank/internal/notification"
	"github.com/fkhayef/villagebank/internal/store"
	"github.com/fkhayef/villagebank/pkg/apperror"
)

// Common errors
var (
	ErrNameTooShort         = apperror.Validation("Group name must be at least 3 characters")
	ErrDescriptionTooShort  = apperror.Validation("Description must be at least 10 characters")
	ErrMaxMembersTooSmall   = apperror.Validation("A group needs room for at least 2 members")
	ErrNegativeContribution = apperror.Validation("Contribution amount cannot be negative")
	ErrGroupFull            = apperror.Validation("Group is full")
	ErrMemberAlreadyExists  = apperror.Conflict("You are already a member of this group")
	ErrJoinRequestPending   = apperror.Conflict("You already have a pending request to join this group")
	ErrJoinRequestNotFound  = apperror.NotFound("Join request not found")
	ErrJoinRequestDecided   = apperror.Conflict("Join request has already been decided")
)

// Service handles group membership
type Service struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new group service
func NewService(st store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, logger: logger, now: time.Now}
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func validateCreate(req *CreateGroupRequest) error {
	if len(strings.TrimSpace(req.Name)) < 3 {
		return ErrNameTooShort
	}
	if len(strings.TrimSpace(req.Description)) < 10 {
		return ErrDescriptionTooShort
	}
	if req.MaxMembers < 2 {
		return ErrMaxMembersTooSmall
	}
	if req.ContributionAmount.IsNegative() {
		return ErrNegativeContribution
	}
	return nil
}

// Create creates a new group and adds the creator as its active admin
func (s *Service) Create(ctx context.Context, creatorID string, req *CreateGroupRequest) (*domain.Group, *domain.Member, error) {
	if creatorID == "" {
		return nil, nil, access.ErrUnauthenticated
	}
	if err := validateCreate(req); err != nil {
		return nil, nil, err
	}

	now := s.now()
	group := &domain.Group{
		ID:                 uuid.New(),
		Name:               strings.TrimSpace(req.Name),
		Description:        strings.TrimSpace(req.Description),
		MaxMembers:         req.MaxMembers,
		ContributionAmount: req.ContributionAmount.Round(2),
		TotalSavings:       decimal.Zero,
		AdminID:            creatorID,
		CreatedAt:          now,
	}
	admin := &domain.Member{
		ID:           uuid.New(),
		UserID:       creatorID,
		GroupID:      group.ID,
		IsAdmin:      true,
		TotalSavings: decimal.Zero,
		Status:       domain.MemberStatusActive,
		JoinedAt:     now,
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.CreateGroup(ctx, group); err != nil {
			return err
		}
		return tx.CreateMember(ctx, admin)
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.InfoContext(ctx, "group created", "group_id", group.ID, "admin_id", creatorID)
	return group, admin, nil
}

// RequestToJoin records a pending join request and notifies the admin
func (s *Service) RequestToJoin(ctx context.Context, groupID uuid.UUID, userID, message string) (*domain.JoinRequest, error) {
	if userID == "" {
		return nil, access.ErrUnauthenticated
	}

	jr := &domain.JoinRequest{
		ID:        uuid.New(),
		UserID:    userID,
		GroupID:   groupID,
		Message:   strings.TrimSpace(message),
		Status:    domain.JoinRequestPending,
		CreatedAt: s.now(),
	}

	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		group, err := tx.GetGroup(ctx, groupID, store.ForUpdate)
		if err != nil {
			return err
		}
		if group == nil {
			return access.ErrGroupNotFound
		}

		existing, err := tx.GetMember(ctx, groupID, userID, store.NoLock)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrMemberAlreadyExists
		}

		pending, err := tx.FindPendingJoinRequest(ctx, groupID, userID)
		if err != nil {
			return err
		}
		if pending != nil {
			return ErrJoinRequestPending
		}

		if err := checkCapacity(ctx, tx, group); err != nil {
			return err
		}

		if err := tx.CreateJoinRequest(ctx, jr); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return ErrJoinRequestPending
			}
			return err
		}

		batch := notification.NewBatch(jr.CreatedAt)
		batch.JoinRequested(group.AdminID, jr, group.Name)
		return batch.Flush(ctx, tx)
	})
	if err != nil {
		return nil, err
	}
	return jr, nil
}

// DecideJoinRequest approves or rejects a pending join request. Approval
// creates the member.
func (s *Service) DecideJoinRequest(ctx context.Context, groupID uuid.UUID, adminUserID string, requestID uuid.UUID, approve bool) (*domain.JoinRequest, error) {
	var decided *domain.JoinRequest
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		actor, err := access.Admin(ctx, tx, groupID, adminUserID)
		if err != nil {
			return err
		}
		group, err := tx.GetGroup(ctx, groupID, store.ForUpdate)
		if err != nil {
			return err
		}

		jr, err := tx.GetJoinRequest(ctx, requestID, store.ForUpdate)
		if err != nil {
			return err
		}
		if jr == nil || jr.GroupID != groupID {
			return ErrJoinRequestNotFound
		}
		if jr.Status != domain.JoinRequestPending {
			return ErrJoinRequestDecided
		}

		next := domain.JoinRequestRejected
		if approve {
			next = domain.JoinRequestApproved
			if err := checkCapacity(ctx, tx, group); err != nil {
				return err
			}
			member := &domain.Member{
				ID:           uuid.New(),
				UserID:       jr.UserID,
				GroupID:      groupID,
				TotalSavings: decimal.Zero,
				Status:       domain.MemberStatusActive,
				JoinedAt:     s.now(),
			}
			if err := tx.CreateMember(ctx, member); err != nil {
				if errors.Is(err, store.ErrDuplicate) {
					return ErrMemberAlreadyExists
				}
				return err
			}
		}

		ok, err := tx.SetJoinRequestStatus(ctx, jr.ID, domain.JoinRequestPending, next)
		if err != nil {
			return err
		}
		if !ok {
			return ErrJoinRequestDecided
		}
		jr.Status = next
		decided = jr

		batch := notification.NewBatch(s.now())
		batch.JoinDecided(jr, actor.Group.Name, approve)
		return batch.Flush(ctx, tx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "join request decided",
		"group_id", groupID,
		"join_request_id", requestID,
		"status", decided.Status,
	)
	return decided, nil
}

func checkCapacity(ctx context.Context, tx store.Tx, group *domain.Group) error {
	count, err := tx.CountMembers(ctx, group.ID)
	if err != nil {
		return err
	}
	if count >= group.MaxMembers {
		return ErrGroupFull
	}
	return nil
}
