package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/fkhayef/villagebank/internal/domain"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/groups/{groupId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/groups/123", nil))

	out := scrape(t, m)
	want := `villagebank_http_requests_total{method="GET",route="/groups/{groupId}",status="200"} 1`
	if !strings.Contains(out, want) {
		t.Errorf("missing %q in:\n%s", want, out)
	}
}

func TestDomainCounters(t *testing.T) {
	m := New()
	m.LedgerPosted(domain.EntryContribution, decimal.RequireFromString("100"))
	m.LedgerPosted(domain.EntryContribution, decimal.RequireFromString("50.5"))
	m.FundRequestTransitioned(domain.FundRequestApproved)
	m.LoansMarkedOverdue(2)
	m.NotificationDelivered(false)

	out := scrape(t, m)
	for _, want := range []string{
		`villagebank_ledger_postings_total{kind="CONTRIBUTION"} 2`,
		`villagebank_ledger_amount_total{kind="CONTRIBUTION"} 150.5`,
		`villagebank_fund_request_transitions_total{status="APPROVED"} 1`,
		`villagebank_loans_marked_overdue_total 2`,
		`villagebank_notifications_dispatched_total{result="failed"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q", want)
		}
	}
}
