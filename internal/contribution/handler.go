package contribution

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fkhayef/villagebank/pkg/middleware"
	"github.com/fkhayef/villagebank/pkg/response"
)

// Handler handles HTTP requests for contributions
type Handler struct {
	service *Service
}

// NewHandler creates a new contribution handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Routes returns the router mounted under /groups/{groupId}/contributions
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Contribute)
	return r
}

// Contribute handles POST /groups/{groupId}/contributions
// @Summary      Contribute to a group
// @Description  Record a completed contribution and credit the member and group balances
// @Tags         contributions
// @Accept       json
// @Produce      json
// @Param        groupId path string true "Group ID"
// @Param        request body ContributeRequest true "Contribution"
// @Success      201 {object} response.APIResponse{data=ContributionResponse}
// @Failure      404 {object} response.APIResponse
// @Failure      422 {object} response.APIResponse
// @Security     BearerAuth
// @Router       /groups/{groupId}/contributions [post]
func (h *Handler) Contribute(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r.Context())

	groupID, err := uuid.Parse(chi.URLParam(r, "groupId"))
	if err != nil {
		response.BadRequest(w, "Invalid group ID")
		return
	}

	var req ContributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	res, err := h.service.Contribute(r.Context(), Input{
		GroupID: groupID,
		UserID:  userID,
		Amount:  req.Amount,
		Notes:   req.Notes,
	})
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	response.JSON(w, http.StatusCreated, toContributionResponse(res))
}
