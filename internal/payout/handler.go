package payout

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fkhayef/villagebank/pkg/middleware"
	"github.com/fkhayef/villagebank/pkg/response"
)

// Handler handles HTTP requests for payouts
type Handler struct {
	service *Service
}

// NewHandler creates a new payout handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router mounted under /groups/{groupId}/payouts
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Schedule)
	r.Post("/{scheduleId}/process", h.Process)
	return r
}

// CronRoutes returns the scheduler-triggered routes
func (h *Handler) CronRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.RunMonthly)
	return r
}

// Schedule handles POST /groups/{groupId}/payouts
// @Summary      Schedule the next payout
// @Description  Creates the schedule for the next payout date, or returns the existing one
// @Tags         payouts
// @Produce      json
// @Param        groupId path string true "Group ID"
// @Success      201 {object} response.APIResponse{data=ScheduleResponse}
// @Success      200 {object} response.APIResponse{data=ScheduleResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      422 {object} response.APIResponse
// @Security     BearerAuth
// @Router       /groups/{groupId}/payouts [post]
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	groupID, err := uuid.Parse(chi.URLParam(r, "groupId"))
	if err != nil {
		response.BadRequest(w, "Invalid group ID")
		return
	}

	schedule, created, err := h.service.ScheduleGroupAsAdmin(r.Context(), groupID, userID)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.JSON(w, status, toScheduleResponse(schedule, created))
}

// Process handles POST /groups/{groupId}/payouts/{scheduleId}/process
// @Summary      Process a payout schedule
// @Tags         payouts
// @Produce      json
// @Param        groupId path string true "Group ID"
// @Param        scheduleId path string true "Schedule ID"
// @Success      200 {object} response.APIResponse{data=ScheduleResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Security     BearerAuth
// @Router       /groups/{groupId}/payouts/{scheduleId}/process [post]
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	groupID, err := uuid.Parse(chi.URLParam(r, "groupId"))
	if err != nil {
		response.BadRequest(w, "Invalid group ID")
		return
	}
	scheduleID, err := uuid.Parse(chi.URLParam(r, "scheduleId"))
	if err != nil {
		response.BadRequest(w, "Invalid schedule ID")
		return
	}

	schedule, err := h.service.ProcessSchedule(r.Context(), groupID, userID, scheduleID)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, toScheduleResponse(schedule, false))
}

// RunMonthly handles POST /cron/schedule-payouts
// @Summary      Schedule payouts for every funded group
// @Tags         cron
// @Produce      json
// @Success      200 {object} response.APIResponse{data=RunResponse}
// @Failure      401 {object} response.APIResponse
// @Security     CronSecret
// @Router       /cron/schedule-payouts [post]
func (h *Handler) RunMonthly(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.RunMonthlyPayout(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, toRunResponse(res))
}
