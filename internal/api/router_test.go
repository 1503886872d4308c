package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HefaCom/health-florence-sub002/internal/apperr"
	"github.com/HefaCom/health-florence-sub002/internal/crypto"
	"github.com/HefaCom/health-florence-sub002/internal/handler"
	"github.com/HefaCom/health-florence-sub002/wallet"
)

type mapStore struct {
	mu    sync.Mutex
	prefs map[string]string
}

func (s *mapStore) GetUserPreferences(_ context.Context, userID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.prefs[userID]
	if !ok {
		return nil, apperr.NotFound("User not found")
	}
	return []byte(v), nil
}

func (s *mapStore) UpdateUserPreferences(_ context.Context, userID string, serialized string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[userID] = serialized
	return nil
}

type staticLedger string

func (l staticLedger) AccountBalance(context.Context, string) (string, error) {
	return string(l), nil
}

func newTestRouter(store *mapStore, limiter *handler.RateLimiter) http.Handler {
	webhook := wallet.NewWebhookProcessor(store, "secret", time.Second, zap.NewNop())
	balanceSync := wallet.NewBalanceSyncService(store, staticLedger("5000000"), "", time.Second, zap.NewNop())
	return SetupRouter(Deps{
		Wallet:      handler.NewWalletHandler(webhook, balanceSync, 1<<20, zap.NewNop()),
		RateLimiter: limiter,
		Logger:      zap.NewNop(),
	})
}

func TestRouter_LinkThenSync(t *testing.T) {
	store := &mapStore{prefs: map[string]string{"u1": "{}"}}
	router := newTestRouter(store, nil)

	body := `{"type":"wallet_linked","userId":"u1","walletAddress":"rABC"}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/joey", strings.NewReader(body))
	req.Header.Set("X-Joey-Signature", crypto.SignPayload([]byte(body), "secret"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(handler.RequestIDHeader))
	assert.Contains(t, store.prefs["u1"], `"address":"rABC"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/wallet/sync-balance", strings.NewReader(`{"userId":"u1"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","balances":{"xrpDrops":"5000000","xrp":5}}`, rec.Body.String())
}

func TestRouter_SyncWithoutWallet(t *testing.T) {
	store := &mapStore{prefs: map[string]string{"u1": `{"theme":"dark"}`}}
	router := newTestRouter(store, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/wallet/sync-balance", strings.NewReader(`{"userId":"u1"}`)))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"No wallet linked for this user"}`, rec.Body.String())
}

func TestRouter_SystemEndpoints(t *testing.T) {
	router := newTestRouter(&mapStore{prefs: map[string]string{}}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wallet_link_http_requests_total")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/webhooks/joey")
}

func TestRouter_RateLimitOnPostEndpoints(t *testing.T) {
	router := newTestRouter(&mapStore{prefs: map[string]string{}}, handler.NewRateLimiter(0.001, 1, nil))

	send := func(path string) int {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
		req.RemoteAddr = "192.0.2.1:5000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusBadRequest, send("/api/wallet/sync-balance"))
	assert.Equal(t, http.StatusTooManyRequests, send("/api/webhooks/joey"))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health is not limited")
}
