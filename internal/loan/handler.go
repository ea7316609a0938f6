package loan

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fkhayef/villagebank/pkg/middleware"
	"github.com/fkhayef/villagebank/pkg/response"
)

// Handler handles HTTP requests for loans
type Handler struct {
	service *Service
}

// NewHandler creates a new loan handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router mounted under /groups/{groupId}/loans
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{loanId}/payments", h.ApplyPayment)
	return r
}

// CronRoutes returns the scheduler-triggered routes
func (h *Handler) CronRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.CheckOverdue)
	return r
}

// ApplyPayment handles POST /groups/{groupId}/loans/{loanId}/payments
// @Summary      Repay a loan
// @Description  Apply a repayment from the borrower and return it to the group pool
// @Tags         loans
// @Accept       json
// @Produce      json
// @Param        groupId path string true "Group ID"
// @Param        loanId path string true "Loan ID"
// @Param        request body PaymentRequest true "Payment"
// @Success      200 {object} response.APIResponse{data=LoanResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Failure      422 {object} response.APIResponse
// @Security     BearerAuth
// @Router       /groups/{groupId}/loans/{loanId}/payments [post]
func (h *Handler) ApplyPayment(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	groupID, err := uuid.Parse(chi.URLParam(r, "groupId"))
	if err != nil {
		response.BadRequest(w, "Invalid group ID")
		return
	}
	loanID, err := uuid.Parse(chi.URLParam(r, "loanId"))
	if err != nil {
		response.BadRequest(w, "Invalid loan ID")
		return
	}

	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	res, err := h.service.ApplyPayment(r.Context(), PaymentInput{
		GroupID: groupID,
		UserID:  userID,
		LoanID:  loanID,
		Amount:  req.Amount,
	})
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, toLoanResponse(res))
}

// CheckOverdue handles POST /cron/check-loans
// @Summary      Mark overdue loans
// @Tags         cron
// @Produce      json
// @Success      200 {object} response.APIResponse{data=SweepResponse}
// @Failure      401 {object} response.APIResponse
// @Security     CronSecret
// @Router       /cron/check-loans [post]
func (h *Handler) CheckOverdue(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.RunOverdueSweep(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, SweepResponse{MarkedOverdue: n})
}
