package payment

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fkhayef/villagebank/pkg/response"
)

const maxBodyBytes = 64 << 10

// Handler receives payment provider callbacks
type Handler struct {
	service *Service
	secret  []byte
}

// NewHandler creates a new payment handler. Callbacks are verified against
// secret; an empty secret rejects every callback.
func NewHandler(service *Service, secret []byte) *Handler {
	return &Handler{service: service, secret: secret}
}

// Routes returns the router mounted under /webhooks/payments
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Receive)
	return r
}

// EventResponse acknowledges a callback
type EventResponse struct {
	EventID        string `json:"eventId"`
	Kind           string `json:"kind,omitempty"`
	Duplicate      bool   `json:"duplicate"`
	Ignored        bool   `json:"ignored,omitempty"`
	ContributionID string `json:"contributionId,omitempty"`
	LoanID         string `json:"loanId,omitempty"`
	LoanStatus     string `json:"loanStatus,omitempty"`
}

// Receive handles POST /webhooks/payments
// @Summary      Payment settled callback
// @Description  Record a contribution or a loan repayment settled by the payment provider
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        X-Payment-Signature header string true "sha256=<hex HMAC of the body>"
// @Param        event body Event true "Provider event"
// @Success      200 {object} response.APIResponse{data=EventResponse}
// @Failure      400 {object} response.APIResponse
// @Failure      404 {object} response.APIResponse
// @Failure      422 {object} response.APIResponse
// @Router       /webhooks/payments [post]
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if !VerifySignature(h.secret, r.Header.Get(SignatureHeader), body) {
		response.BadRequest(w, "Invalid signature")
		return
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	out, err := h.service.HandleEvent(r.Context(), &ev)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	resp := EventResponse{
		EventID:   ev.ID,
		Kind:      out.Kind,
		Duplicate: out.Duplicate,
		Ignored:   out.Ignored,
	}
	if out.Contribution != nil {
		resp.ContributionID = out.Contribution.Contribution.ID.String()
	}
	if out.Repayment != nil {
		resp.LoanID = out.Repayment.Loan.ID.String()
		resp.LoanStatus = string(out.Repayment.Loan.Status)
	}
	response.JSON(w, http.StatusOK, resp)
}
