package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/fkhayef/villagebank/internal/contribution"
	"github.com/fkhayef/villagebank/internal/fundrequest"
	"github.com/fkhayef/villagebank/internal/group"
	"github.com/fkhayef/villagebank/internal/ledger"
	"github.com/fkhayef/villagebank/internal/loan"
	"github.com/fkhayef/villagebank/internal/metrics"
	"github.com/fkhayef/villagebank/internal/payment"
	"github.com/fkhayef/villagebank/internal/payout"
	"github.com/fkhayef/villagebank/internal/store/memory"
	"github.com/fkhayef/villagebank/internal/testutil"
	"github.com/fkhayef/villagebank/pkg/middleware"
)

const (
	cronSecret    = "cron-secret"
	webhookSecret = "whsec"
)

func testServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	st := memory.New()
	logger := testutil.Logger()
	m := metrics.New()
	books := ledger.New(logger, m)

	contributions := contribution.NewService(st, books, logger)
	loans := loan.NewService(st, books, logger, m)
	router := newRouter(routerDeps{
		logger: logger,
		store:  st,
		handlers: handlers{
			group:        group.NewHandler(group.NewService(st, logger)),
			contribution: contribution.NewHandler(contributions),
			fundRequest:  fundrequest.NewHandler(fundrequest.NewService(st, books, decimal.Zero, logger, m)),
			loan:         loan.NewHandler(loans),
			payout:       payout.NewHandler(payout.NewService(st, books, 2, logger, m)),
			payment:      payment.NewHandler(payment.NewService(st, contributions, loans, logger), []byte(webhookSecret)),
		},
		userAuth:   middleware.TestUserMiddleware,
		cronSecret: cronSecret,
		metrics:    m,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, st
}

func do(t *testing.T, method, url, user, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if user != "" {
		req.Header.Set("X-Test-User-ID", user)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestGroupLifecycle(t *testing.T) {
	srv, st := testServer(t)
	api := srv.URL + "/api/v1"

	resp := do(t, http.MethodPost, api+"/groups", "ama", `{"name":"Harvest Circle","description":"Savings for the planting season","maxMembers":5,"contributionAmount":"50"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create group status = %d", resp.StatusCode)
	}
	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	groupURL := api + "/groups/" + created.Data.ID

	if resp := do(t, http.MethodPost, groupURL+"/contributions", "ama", `{"amount":"120.50"}`); resp.StatusCode != http.StatusCreated {
		t.Fatalf("contribute status = %d", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, groupURL+"/contributions", "stranger", `{"amount":"10"}`); resp.StatusCode != http.StatusNotFound {
		t.Errorf("non-member contribute status = %d, want 404", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, groupURL+"/join", "kofi", `{"message":"Market neighbour"}`); resp.StatusCode != http.StatusCreated {
		t.Errorf("join status = %d, want 201", resp.StatusCode)
	}
	if n := len(st.Contributions()); n != 1 {
		t.Errorf("contributions = %d, want 1", n)
	}
}

func TestAuthBoundaries(t *testing.T) {
	srv, _ := testServer(t)
	api := srv.URL + "/api/v1"

	if resp := do(t, http.MethodPost, api+"/groups", "", `{}`); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous create status = %d, want 401", resp.StatusCode)
	}
	if resp := do(t, http.MethodPost, api+"/cron/check-loans", "", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("cron without secret status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, api+"/cron/check-loans", nil)
	req.Header.Set("Authorization", "Bearer "+cronSecret)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("cron: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("cron with secret status = %d, want 200", resp.StatusCode)
	}

	body := []byte(`{"id":"evt_1","type":"payment.completed"}`)
	req, _ = http.NewRequest(http.MethodPost, api+"/webhooks/payments", bytes.NewReader(body))
	req.Header.Set(payment.SignatureHeader, payment.Sign([]byte("wrong"), body))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("badly signed webhook status = %d, want 400", resp.StatusCode)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	srv, _ := testServer(t)

	for _, path := range []string{"/health", "/metrics"} {
		resp := do(t, http.MethodGet, srv.URL+path, "", "")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d", path, resp.StatusCode)
		}
	}
}
