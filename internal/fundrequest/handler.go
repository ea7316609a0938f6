package fundrequest

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fkhayef/villagebank/pkg/middleware"
	"github.com/fkhayef/villagebank/pkg/response"
)

// Handler handles HTTP requests for fund requests
type Handler struct {
	service *Service
}

// NewHandler creates a new fund request handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router mounted under /groups/{groupId}/fund-requests
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Get("/{requestId}", h.Get)
	r.Post("/{requestId}/votes", h.Vote)
	r.Post("/{requestId}/process", h.Process)
	return r
}

func pathIDs(w http.ResponseWriter, r *http.Request, withRequest bool) (groupID, requestID uuid.UUID, ok bool) {
	groupID, err := uuid.Parse(chi.URLParam(r, "groupId"))
	if err != nil {
		response.BadRequest(w, "Invalid group ID")
		return uuid.Nil, uuid.Nil, false
	}
	if !withRequest {
		return groupID, uuid.Nil, true
	}
	requestID, err = uuid.Parse(chi.URLParam(r, "requestId"))
	if err != nil {
		response.BadRequest(w, "Invalid request ID")
		return uuid.Nil, uuid.Nil, false
	}
	return groupID, requestID, true
}

// Create handles POST /groups/{groupId}/fund-requests
// @Summary      Request a loan or payout
// @Description  Validate the amount against the member's and the group's savings and open a vote
// @Tags         fund-requests
// @Accept       json
// @Produce      json
// @Param        groupId path string true "Group ID"
// @Param        request body CreateFundRequestRequest true "Fund request"
// @Success      201 {object} response.APIResponse{data=FundRequestResponse}
// @Failure      404 {object} response.APIResponse
// @Failure      422 {object} response.APIResponse
// @Security     BearerAuth
// @Router       /groups/{groupId}/fund-requests [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())
	groupID, _, ok := pathIDs(w, r, false)
	if !ok {
		return
	}

	var req CreateFundRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	fr, err := h.service.Create(r.Context(), CreateInput{
		GroupID:  groupID,
		UserID:   userID,
		Type:     req.Type,
		Amount:   req.Amount,
		Reason:   req.Reason,
		Duration: req.Duration,
	})
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.JSON(w, http.StatusCreated, toFundRequestResponse(fr))
}

// Get handles GET /groups/{groupId}/fund-requests/{requestId}
// @Summary      Get a fund request
// @Description  Returns the request with the caller's view of the vote and the loan if one exists
// @Tags         fund-requests
// @Produce      json
// @Param        groupId path string true "Group ID"
// @Param        requestId path string true "Request ID"
// @Success      200 {object} response.APIResponse{data=FundRequestResponse}
// @Failure      404 {object} response.APIResponse
// @Security     BearerAuth
// @Router       /groups/{groupId}/fund-requests/{requestId} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())
	groupID, requestID, ok := pathIDs(w, r, true)
	if !ok {
		return
	}

	detail, err := h.service.Get(r.Context(), groupID, userID, requestID)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, toDetailResponse(detail))
}

// Vote handles POST /groups/{groupId}/fund-requests/{requestId}/votes
// @Summary      Vote on a fund request
// @Tags         fund-requests
// @Accept       json
// @Produce      json
// @Param        groupId path string true "Group ID"
// @Param        requestId path string true "Request ID"
// @Param        request body VoteRequest true "Vote"
// @Success      200 {object} response.APIResponse{data=FundRequestResponse}
// @Failure      404 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Security     BearerAuth
// @Router       /groups/{groupId}/fund-requests/{requestId}/votes [post]
func (h *Handler) Vote(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())
	groupID, requestID, ok := pathIDs(w, r, true)
	if !ok {
		return
	}

	var req VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	detail, err := h.service.Vote(r.Context(), VoteInput{
		GroupID:   groupID,
		UserID:    userID,
		RequestID: requestID,
		Approved:  req.Approved,
	})
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, toDetailResponse(detail))
}

// Process handles POST /groups/{groupId}/fund-requests/{requestId}/process
// @Summary      Disburse an approved request
// @Tags         fund-requests
// @Produce      json
// @Param        groupId path string true "Group ID"
// @Param        requestId path string true "Request ID"
// @Success      200 {object} response.APIResponse{data=FundRequestResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Security     BearerAuth
// @Router       /groups/{groupId}/fund-requests/{requestId}/process [post]
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())
	groupID, requestID, ok := pathIDs(w, r, true)
	if !ok {
		return
	}

	fr, err := h.service.Process(r.Context(), groupID, userID, requestID)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, toFundRequestResponse(fr))
}
