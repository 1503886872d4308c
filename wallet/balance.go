package wallet

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/HefaCom/health-florence-sub002/internal/apperr"
	"github.com/HefaCom/health-florence-sub002/internal/common"
	"github.com/HefaCom/health-florence-sub002/internal/logging"
	"github.com/HefaCom/health-florence-sub002/internal/metrics"
	"github.com/HefaCom/health-florence-sub002/internal/model"
	"github.com/HefaCom/health-florence-sub002/internal/preferences"
)

const syncFailure = "Failed to sync wallet balance"

// BalanceSyncService refreshes the cached ledger balance of a user's linked wallet
type BalanceSyncService struct {
	store   PreferencesStore
	ledger  Ledger
	token   string
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewBalanceSyncService creates the service. An empty token disables the bearer check.
func NewBalanceSyncService(store PreferencesStore, ledger Ledger, token string, timeout time.Duration, logger *zap.Logger) *BalanceSyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceSyncService{
		store:   store,
		ledger:  ledger,
		token:   token,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Authorize checks the bearer token when one is configured
func (s *BalanceSyncService) Authorize(headers http.Header) bool {
	if s.token == "" {
		return true
	}
	auth := headers.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return false
	}
	provided := strings.TrimSpace(auth[len(prefix):])
	if len(provided) != len(s.token) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(s.token)) == 1
}

// Handle runs one sync request end to end
func (s *BalanceSyncService) Handle(ctx context.Context, body io.Reader, headers http.Header) Result {
	log := logging.FromContext(ctx, s.logger)

	if !s.Authorize(headers) {
		log.Warn("balance sync rejected: bad bearer token")
		metrics.RecordBalanceSync("unauthorized")
		return fail(apperr.Authentication("Unauthorized"), syncFailure)
	}

	raw, err := readBody(body)
	if err != nil {
		metrics.RecordBalanceSync("rejected")
		return fail(err, syncFailure)
	}
	req, err := parseSyncRequest(raw)
	if err != nil {
		metrics.RecordBalanceSync("rejected")
		return fail(err, syncFailure)
	}

	log = log.With(zap.String("user_id", req.UserID))

	balances, err := s.Sync(ctx, req)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindNotFound:
			log.Info("balance sync target not found", zap.Error(err))
			metrics.RecordBalanceSync("not_found")
		case apperr.KindValidation:
			log.Info("balance sync rejected", zap.Error(err))
			metrics.RecordBalanceSync("rejected")
		default:
			log.Error("balance sync failed", zap.Error(err))
			metrics.RecordBalanceSync("failed")
		}
		return fail(err, syncFailure)
	}

	log.Info("wallet balance synced", zap.String("xrp_drops", balances.XRPDrops))
	metrics.RecordBalanceSync("ok")
	return success(model.BalanceSyncResponse{Status: "ok", Balances: balances})
}

// Sync resolves the wallet, queries the ledger and persists the snapshot.
// All returned errors are *apperr.Error.
func (s *BalanceSyncService) Sync(ctx context.Context, req model.BalanceSyncRequest) (model.BalanceSnapshot, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	raw, err := s.store.GetUserPreferences(ctx, req.UserID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return model.BalanceSnapshot{}, apperr.NotFound("User not found")
		}
		return model.BalanceSnapshot{}, apperr.Upstream(syncFailure, err)
	}
	prefs := preferences.Parse(raw)

	key, ok := resolveWalletKey(prefs, req.WalletType)
	if !ok {
		return model.BalanceSnapshot{}, apperr.NotFound("No wallet linked for this user")
	}

	address := req.WalletAddress
	if address == "" {
		rec, _ := prefs.Wallet(key)
		address = rec.Address
	}
	if address == "" {
		return model.BalanceSnapshot{}, apperr.NotFound("Wallet address unavailable")
	}

	drops, err := s.ledger.AccountBalance(ctx, address)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindValidation {
			// only a caller-supplied address is the caller's to fix
			if req.WalletAddress != "" {
				return model.BalanceSnapshot{}, err
			}
			return model.BalanceSnapshot{}, &apperr.Error{Kind: apperr.KindNotFound, Message: "Wallet address unavailable", Err: err}
		}
		return model.BalanceSnapshot{}, apperr.Upstream(syncFailure, err)
	}
	amount, err := common.ParseDrops(drops)
	if err != nil {
		return model.BalanceSnapshot{}, apperr.Upstream(syncFailure, err)
	}
	snapshot := model.BalanceSnapshot{
		XRPDrops: drops,
		XRP:      common.DropsToXRPFloat(amount),
	}

	next := preferences.ApplyBalanceSnapshot(prefs, key, address, snapshot.AsMap(), s.now())
	serialized, err := next.Serialize()
	if err != nil {
		return model.BalanceSnapshot{}, apperr.Upstream(syncFailure, err)
	}
	if err := s.store.UpdateUserPreferences(ctx, req.UserID, serialized); err != nil {
		return model.BalanceSnapshot{}, apperr.Upstream(syncFailure, err)
	}

	return snapshot, nil
}

// resolveWalletKey picks the explicit override, then joey, then custodial
func resolveWalletKey(prefs preferences.Preferences, override string) (string, bool) {
	if override != "" {
		return override, true
	}
	for _, key := range []string{preferences.ProviderJoey, preferences.ProviderCustodial} {
		if rec, ok := prefs.Wallet(key); ok && rec.Address != "" {
			return key, true
		}
	}
	return "", false
}

func parseSyncRequest(raw []byte) (model.BalanceSyncRequest, error) {
	if !gjson.ValidBytes(raw) {
		return model.BalanceSyncRequest{}, apperr.Validation("Invalid JSON payload")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return model.BalanceSyncRequest{}, apperr.Validation("Invalid JSON payload")
	}

	var req model.BalanceSyncRequest
	if v := doc.Get("userId"); v.Type == gjson.String {
		req.UserID = v.Str
	}
	if req.UserID == "" {
		return req, apperr.Validation("userId is required")
	}
	if v := doc.Get("walletAddress"); v.Type == gjson.String {
		req.WalletAddress = strings.TrimSpace(v.Str)
	}
	if v := doc.Get("walletType"); v.Type == gjson.String {
		req.WalletType = strings.TrimSpace(v.Str)
	}
	return req, nil
}
