package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/fkhayef/villagebank/internal/access"
	"github.com/fkhayef/villagebank/internal/domain"
	"github.com/fkhayef/villagebank/internal/ledger"
	"github.com/fkhayef/villagebank/internal/notification"
	"github.com/fkhayef/villagebank/internal/store"
	"github.com/fkhayef/villagebank/pkg/apperror"
)

// Common errors
var (
	ErrNoSavings          = apperror.Validation("Group has no savings to distribute")
	ErrScheduleNotFound   = apperror.NotFound("Payout schedule not found")
	ErrScheduleProcessed  = apperror.Conflict("Payout schedule has already been processed")
	ErrNoActiveMembers    = apperror.Validation("Group has no active members to pay out")
	ErrScheduleExists     = apperror.Conflict("A payout is already scheduled for this date")
	ErrPayoutMemberAbsent = errors.New("payout references a missing member")
)

// ScheduleRecorder counts created schedules.
type ScheduleRecorder interface {
	PayoutScheduleCreated()
}

// RunResult summarizes one monthly run
type RunResult struct {
	Date     time.Time
	Created  int
	Existing int
	Failed   map[uuid.UUID]string
}

// Service schedules and processes monthly payouts
type Service struct {
	store       store.Store
	ledger      *ledger.Ledger
	concurrency int
	logger      *slog.Logger
	recorder    ScheduleRecorder
	now         func() time.Time
}

// NewService creates a new payout service. concurrency bounds how many groups
// a monthly run schedules at once; recorder may be nil.
func NewService(st store.Store, l *ledger.Ledger, concurrency int, logger *slog.Logger, recorder ScheduleRecorder) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Service{
		store:       st,
		ledger:      l,
		concurrency: concurrency,
		logger:      logger,
		recorder:    recorder,
		now:         time.Now,
	}
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ScheduleGroup creates the schedule for the next payout date. If one already
// exists for that date it is returned with created=false.
func (s *Service) ScheduleGroup(ctx context.Context, groupID uuid.UUID) (*domain.PayoutSchedule, bool, error) {
	var (
		schedule *domain.PayoutSchedule
		created  bool
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		schedule, created, err = s.scheduleTx(ctx, tx, groupID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	s.scheduled(ctx, schedule, created)
	return schedule, created, nil
}

// ScheduleGroupAsAdmin is ScheduleGroup restricted to group admins
func (s *Service) ScheduleGroupAsAdmin(ctx context.Context, groupID uuid.UUID, adminUserID string) (*domain.PayoutSchedule, bool, error) {
	var (
		schedule *domain.PayoutSchedule
		created  bool
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := access.Admin(ctx, tx, groupID, adminUserID); err != nil {
			return err
		}
		var err error
		schedule, created, err = s.scheduleTx(ctx, tx, groupID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	s.scheduled(ctx, schedule, created)
	return schedule, created, nil
}

func (s *Service) scheduled(ctx context.Context, schedule *domain.PayoutSchedule, created bool) {
	if !created {
		return
	}
	if s.recorder != nil {
		s.recorder.PayoutScheduleCreated()
	}
	s.logger.InfoContext(ctx, "payout scheduled",
		"schedule_id", schedule.ID,
		"group_id", schedule.GroupID,
		"date", schedule.Date.Format(time.DateOnly),
		"members", len(schedule.Payouts),
	)
}

func (s *Service) scheduleTx(ctx context.Context, tx store.Tx, groupID uuid.UUID) (*domain.PayoutSchedule, bool, error) {
	group, err := tx.GetGroup(ctx, groupID, store.ForUpdate)
	if err != nil {
		return nil, false, err
	}
	if group == nil {
		return nil, false, access.ErrGroupNotFound
	}

	now := s.now()
	date := domain.NextPayoutDate(now)
	existing, err := tx.FindPayoutSchedule(ctx, groupID, date)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	if !group.TotalSavings.IsPositive() {
		return nil, false, ErrNoSavings
	}

	members, err := tx.ListMembers(ctx, groupID, domain.MemberStatusActive)
	if err != nil {
		return nil, false, err
	}
	if len(members) == 0 {
		return nil, false, ErrNoActiveMembers
	}

	schedule := &domain.PayoutSchedule{
		ID:          uuid.New(),
		Date:        date,
		TotalAmount: group.TotalSavings,
		GroupID:     groupID,
		Status:      domain.PayoutScheduled,
		CreatedAt:   now,
	}
	savings := make([]decimal.Decimal, len(members))
	for i, m := range members {
		savings[i] = m.TotalSavings
	}
	amounts := domain.PayoutAmounts(savings, group.TotalSavings)
	base := domain.PayoutBase(savings, group.TotalSavings)
	for i, m := range members {
		schedule.Payouts = append(schedule.Payouts, domain.MemberPayout{
			ID:         uuid.New(),
			ScheduleID: schedule.ID,
			Amount:     amounts[i],
			Percentage: domain.PayoutShare(m.TotalSavings, base),
			MemberID:   m.ID,
			Status:     domain.PayoutScheduled,
		})
	}
	if err := tx.CreatePayoutSchedule(ctx, schedule); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, false, ErrScheduleExists
		}
		return nil, false, err
	}

	batch := notification.NewBatch(now)
	for i, m := range members {
		batch.PayoutScheduled(m, schedule, schedule.Payouts[i])
	}
	if err := batch.Flush(ctx, tx); err != nil {
		return nil, false, err
	}
	return schedule, true, nil
}

// RunMonthlyPayout schedules every group that holds savings. A failing group
// is reported in the result and does not stop the others.
func (s *Service) RunMonthlyPayout(ctx context.Context) (*RunResult, error) {
	var groupIDs []uuid.UUID
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		groupIDs, err = tx.ListFundedGroupIDs(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list funded groups: %w", err)
	}

	res := &RunResult{Date: domain.NextPayoutDate(s.now()), Failed: map[uuid.UUID]string{}}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range groupIDs {
		id := id
		g.Go(func() error {
			_, created, err := s.ScheduleGroup(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				res.Failed[id] = err.Error()
				s.logger.WarnContext(gctx, "payout scheduling failed", "group_id", id, "error", err)
			case created:
				res.Created++
			default:
				res.Existing++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "monthly payout run finished",
		"date", res.Date.Format(time.DateOnly),
		"created", res.Created,
		"existing", res.Existing,
		"failed", len(res.Failed),
	)
	return res, nil
}

// ProcessSchedule pays out a schedule. Each member payout is debited from the
// member and the group.
func (s *Service) ProcessSchedule(ctx context.Context, groupID uuid.UUID, adminUserID string, scheduleID uuid.UUID) (*domain.PayoutSchedule, error) {
	var processed *domain.PayoutSchedule
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := access.Admin(ctx, tx, groupID, adminUserID); err != nil {
			return err
		}
		schedule, err := tx.GetPayoutSchedule(ctx, scheduleID, store.ForUpdate)
		if err != nil {
			return err
		}
		if schedule == nil || schedule.GroupID != groupID {
			return ErrScheduleNotFound
		}
		if schedule.Status.TransitionTo(domain.PayoutCompleted) != nil {
			return ErrScheduleProcessed
		}

		ok, err := tx.CompletePayoutSchedule(ctx, schedule.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrScheduleProcessed
		}

		now := s.now()
		batch := notification.NewBatch(now)
		for i := range schedule.Payouts {
			p := &schedule.Payouts[i]
			member, err := tx.GetMemberByID(ctx, p.MemberID, store.NoLock)
			if err != nil {
				return err
			}
			if member == nil {
				return fmt.Errorf("%w: %s", ErrPayoutMemberAbsent, p.MemberID)
			}
			if p.Amount.IsPositive() {
				if _, err := s.ledger.Post(ctx, tx, ledger.Posting{
					Kind:        domain.EntryScheduledPayout,
					GroupID:     groupID,
					MemberID:    p.MemberID,
					Amount:      p.Amount,
					ReferenceID: p.ID,
					At:          now,
				}); err != nil {
					return err
				}
			}
			p.Status = domain.PayoutCompleted
			batch.PayoutCompleted(member, schedule, *p)
		}
		if err := batch.Flush(ctx, tx); err != nil {
			return err
		}

		schedule.Status = domain.PayoutCompleted
		processed = schedule
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "payout schedule processed",
		"schedule_id", processed.ID,
		"group_id", processed.GroupID,
		"total", processed.TotalAmount.String(),
	)
	return processed, nil
}
