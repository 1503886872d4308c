package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentHandler_CountsByStatus(t *testing.T) {
	h := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(httpRequests.WithLabelValues("POST", "/api/webhooks/joey", "418"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/webhooks/joey", nil))
	after := testutil.ToFloat64(httpRequests.WithLabelValues("POST", "/api/webhooks/joey", "418"))

	assert.Equal(t, before+1, after)
}

func TestCanonicalPath(t *testing.T) {
	assert.Equal(t, "/api/wallet/sync-balance", canonicalPath("/api/wallet/sync-balance"))
	assert.Equal(t, "/swagger", canonicalPath("/swagger/index.html"))
	assert.Equal(t, "other", canonicalPath("/users/123"))
}

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(webhookEvents.WithLabelValues("unknown", "rejected"))
	RecordWebhookEvent("", "rejected")
	assert.Equal(t, before+1, testutil.ToFloat64(webhookEvents.WithLabelValues("unknown", "rejected")))

	before = testutil.ToFloat64(balanceSyncs.WithLabelValues("ok"))
	RecordBalanceSync("ok")
	assert.Equal(t, before+1, testutil.ToFloat64(balanceSyncs.WithLabelValues("ok")))

	RecordLedgerCall("account_info", 0, true)
	RecordLedgerCall("account_info", 20*time.Millisecond, false)
}

func TestHandler_ExposesRegistry(t *testing.T) {
	RecordBalanceSync("not_found")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "wallet_link_balance_syncs_total"))
}
