package group

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fkhayef/villagebank/pkg/middleware"
	"github.com/fkhayef/villagebank/pkg/response"
)

// Handler handles HTTP requests for group operations
type Handler struct {
	service *Service
}

// NewHandler creates a new group handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router for group creation
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	return r
}

// JoinRoutes returns the router mounted under /groups/{groupId}/join
func (h *Handler) JoinRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.RequestToJoin)
	r.Put("/{requestId}", h.DecideJoinRequest)
	return r
}

// Create handles POST /groups
// @Summary      Create a new group
// @Description  Create a savings group and add the creator as its admin
// @Tags         groups
// @Accept       json
// @Produce      json
// @Param        request body CreateGroupRequest true "Group creation request"
// @Success      201 {object} response.APIResponse{data=GroupResponse}
// @Failure      422 {object} response.APIResponse
// @Security     BearerAuth
// @Router       /groups [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	group, admin, err := h.service.Create(r.Context(), userID, &req)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	resp := toGroupResponse(group)
	resp.Members = []*MemberResponse{toMemberResponse(admin)}
	response.JSON(w, http.StatusCreated, resp)
}

// RequestToJoin handles POST /groups/{groupId}/join
// @Summary      Request to join a group
// @Tags         groups
// @Accept       json
// @Produce      json
// @Param        groupId path string true "Group ID"
// @Param        request body JoinGroupRequest false "Optional message to the admin"
// @Success      201 {object} response.APIResponse{data=JoinRequestResponse}
// @Failure      409 {object} response.APIResponse
// @Failure      422 {object} response.APIResponse
// @Security     BearerAuth
// @Router       /groups/{groupId}/join [post]
func (h *Handler) RequestToJoin(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	groupID, err := uuid.Parse(chi.URLParam(r, "groupId"))
	if err != nil {
		response.BadRequest(w, "Invalid group ID")
		return
	}

	var req JoinGroupRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "Invalid request body")
			return
		}
	}

	jr, err := h.service.RequestToJoin(r.Context(), groupID, userID, req.Message)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.JSON(w, http.StatusCreated, toJoinRequestResponse(jr))
}

// DecideJoinRequest handles PUT /groups/{groupId}/join/{requestId}
// @Summary      Approve or reject a join request
// @Tags         groups
// @Accept       json
// @Produce      json
// @Param        groupId path string true "Group ID"
// @Param        requestId path string true "Join request ID"
// @Param        request body DecideJoinRequest true "Decision"
// @Success      200 {object} response.APIResponse{data=JoinRequestResponse}
// @Failure      403 {object} response.APIResponse
// @Failure      409 {object} response.APIResponse
// @Security     BearerAuth
// @Router       /groups/{groupId}/join/{requestId} [put]
func (h *Handler) DecideJoinRequest(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	groupID, err := uuid.Parse(chi.URLParam(r, "groupId"))
	if err != nil {
		response.BadRequest(w, "Invalid group ID")
		return
	}
	requestID, err := uuid.Parse(chi.URLParam(r, "requestId"))
	if err != nil {
		response.BadRequest(w, "Invalid join request ID")
		return
	}

	var req DecideJoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	jr, err := h.service.DecideJoinRequest(r.Context(), groupID, userID, requestID, req.Approve)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, toJoinRequestResponse(jr))
}
