package wallet

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HefaCom/health-florence-sub002/internal/client"
	"github.com/HefaCom/health-florence-sub002/internal/model"
)

func newSyncService(store PreferencesStore, ledger Ledger, token string) *BalanceSyncService {
	s := NewBalanceSyncService(store, ledger, token, time.Second, zap.NewNop())
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestAuthorize(t *testing.T) {
	s := newSyncService(nil, nil, "tok-123")

	for header, want := range map[string]bool{
		"":               false,
		"Bearer":         false,
		"Bearer tok-12":  false,
		"Bearer tok-123": true,
		"bearer tok-123": true,
		"Basic tok-123":  false,
	} {
		h := http.Header{}
		if header != "" {
			h.Set("Authorization", header)
		}
		assert.Equal(t, want, s.Authorize(h), header)
	}

	assert.True(t, newSyncService(nil, nil, "").Authorize(http.Header{}))
}

func TestSync_JoeyWallet(t *testing.T) {
	store := newMemoryStore(map[string]string{
		"u1": `{"lang":"en","wallets":{"joey":{"address":"rJOEY","chain":"xrpl:mainnet","verified":true}}}`,
	})
	ledger := &fakeLedger{drops: "5000000"}

	res := newSyncService(store, ledger, "").Handle(context.Background(), strings.NewReader(`{"userId":"u1"}`), http.Header{})

	require.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, model.BalanceSyncResponse{
		Status:   "ok",
		Balances: model.BalanceSnapshot{XRPDrops: "5000000", XRP: 5.0},
	}, res.Body)
	assert.Equal(t, []string{"rJOEY"}, ledger.addresses)

	doc := store.stored(t, "u1")
	assert.Equal(t, "en", doc["lang"])
	joey := doc["wallets"].(map[string]any)["joey"].(map[string]any)
	assert.Equal(t, true, joey["verified"])
	assert.Equal(t, "xrpl:mainnet", joey["chain"])
	assert.Equal(t, map[string]any{"xrpDrops": "5000000", "xrp": 5.0}, joey["lastKnownBalances"])
	assert.Equal(t, "2026-03-01T12:00:00Z", joey["lastBalanceSyncedAt"])
}

func TestSync_FallsBackToCustodial(t *testing.T) {
	store := newMemoryStore(map[string]string{
		"u1": `{"wallets":{"joey":{"address":""},"custodial":{"address":"rCUST"}}}`,
	})
	ledger := &fakeLedger{drops: "1"}

	res := newSyncService(store, ledger, "").Handle(context.Background(), strings.NewReader(`{"userId":"u1"}`), http.Header{})

	require.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, []string{"rCUST"}, ledger.addresses)
	custodial := store.stored(t, "u1")["wallets"].(map[string]any)["custodial"].(map[string]any)
	assert.Equal(t, map[string]any{"xrpDrops": "1", "xrp": 0.000001}, custodial["lastKnownBalances"])
}

func TestSync_Overrides(t *testing.T) {
	store := newMemoryStore(map[string]string{"u1": `{"wallets":{"joey":{"address":"rJOEY"}}}`})
	ledger := &fakeLedger{drops: "250"}

	body := `{"userId":"u1","walletAddress":"rOVERRIDE","walletType":"custodial"}`
	res := newSyncService(store, ledger, "").Handle(context.Background(), strings.NewReader(body), http.Header{})

	require.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, []string{"rOVERRIDE"}, ledger.addresses)

	wallets := store.stored(t, "u1")["wallets"].(map[string]any)
	assert.Equal(t, "rOVERRIDE", wallets["custodial"].(map[string]any)["address"])
	assert.Equal(t, "rJOEY", wallets["joey"].(map[string]any)["address"])
}

func TestSync_NoWalletLinked(t *testing.T) {
	store := newMemoryStore(map[string]string{"u1": `{"theme":"dark"}`})
	ledger := &fakeLedger{drops: "1"}

	res := newSyncService(store, ledger, "").Handle(context.Background(), strings.NewReader(`{"userId":"u1"}`), http.Header{})

	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, "No wallet linked for this user", errorBody(t, res))
	assert.Empty(t, ledger.addresses)
	assert.Zero(t, store.updates)
}

func TestSync_AddressUnavailable(t *testing.T) {
	store := newMemoryStore(map[string]string{"u1": `{"wallets":{"joey":{"address":"rJOEY"}}}`})

	body := `{"userId":"u1","walletType":"custodial"}`
	res := newSyncService(store, &fakeLedger{}, "").Handle(context.Background(), strings.NewReader(body), http.Header{})

	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, "Wallet address unavailable", errorBody(t, res))
}

func TestSync_UnknownUser(t *testing.T) {
	res := newSyncService(newMemoryStore(nil), &fakeLedger{}, "").
		Handle(context.Background(), strings.NewReader(`{"userId":"ghost"}`), http.Header{})

	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, "User not found", errorBody(t, res))
}

func TestSync_RequestValidation(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`not json`, "Invalid JSON payload"},
		{`"u1"`, "Invalid JSON payload"},
		{`{}`, "userId is required"},
		{`{"userId":""}`, "userId is required"},
		{`{"userId":42}`, "userId is required"},
	}
	for _, tt := range tests {
		res := newSyncService(newMemoryStore(nil), &fakeLedger{}, "").
			Handle(context.Background(), strings.NewReader(tt.body), http.Header{})
		assert.Equal(t, http.StatusBadRequest, res.Status, tt.body)
		assert.Equal(t, tt.want, errorBody(t, res), tt.body)
	}
}

func TestSync_Unauthorized(t *testing.T) {
	store := newMemoryStore(map[string]string{"u1": `{"wallets":{"joey":{"address":"rJOEY"}}}`})
	ledger := &fakeLedger{drops: "1"}
	h := http.Header{}
	h.Set("Authorization", "Bearer wrong")

	res := newSyncService(store, ledger, "right").Handle(context.Background(), strings.NewReader(`{"userId":"u1"}`), h)

	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, "Unauthorized", errorBody(t, res))
	assert.Empty(t, ledger.addresses)
}

func TestSync_LedgerFailures(t *testing.T) {
	store := newMemoryStore(map[string]string{"u1": `{"wallets":{"joey":{"address":"rJOEY"}}}`})

	res := newSyncService(store, &fakeLedger{err: assert.AnError}, "").
		Handle(context.Background(), strings.NewReader(`{"userId":"u1"}`), http.Header{})
	assert.Equal(t, http.StatusInternalServerError, res.Status)
	assert.Equal(t, "Failed to sync wallet balance", errorBody(t, res))

	res = newSyncService(store, &fakeLedger{err: client.ErrInvalidAddress}, "").
		Handle(context.Background(), strings.NewReader(`{"userId":"u1","walletAddress":"rBAD"}`), http.Header{})
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "Invalid wallet address", errorBody(t, res))

	res = newSyncService(store, &fakeLedger{drops: "lots"}, "").
		Handle(context.Background(), strings.NewReader(`{"userId":"u1"}`), http.Header{})
	assert.Equal(t, http.StatusInternalServerError, res.Status)

	assert.Zero(t, store.updates)
}

func TestSync_PersistFailure(t *testing.T) {
	store := newMemoryStore(map[string]string{"u1": `{"wallets":{"joey":{"address":"rJOEY"}}}`})
	store.updateErr = errStoreDown

	_, err := newSyncService(store, &fakeLedger{drops: "10"}, "").Sync(context.Background(), model.BalanceSyncRequest{UserID: "u1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errStoreDown)
}

func TestSync_InvalidStoredAddress(t *testing.T) {
	store := newMemoryStore(map[string]string{"u1": `{"wallets":{"joey":{"address":"rJOEY"}}}`})
	ledger := &fakeLedger{err: client.ErrInvalidAddress}

	res := newSyncService(store, ledger, "").Handle(context.Background(), strings.NewReader(`{"userId":"u1"}`), http.Header{})

	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, "Wallet address unavailable", errorBody(t, res))
	assert.Zero(t, store.updates)
}
