package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/HefaCom/health-florence-sub002/internal/logging"
	"github.com/HefaCom/health-florence-sub002/internal/model"
	"github.com/HefaCom/health-florence-sub002/wallet"
)

// Operation is one wallet use case driven by a raw request body
type Operation interface {
	Handle(ctx context.Context, body io.Reader, headers http.Header) wallet.Result
}

// WalletHandler serves the wallet webhook and balance sync endpoints
type WalletHandler struct {
	webhook      Operation
	balanceSync  Operation
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewWalletHandler creates a WalletHandler. maxBodyBytes <= 0 leaves bodies uncapped.
func NewWalletHandler(webhook, balanceSync Operation, maxBodyBytes int64, logger *zap.Logger) *WalletHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WalletHandler{
		webhook:      webhook,
		balanceSync:  balanceSync,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// JoeyWebhook handles POST /api/webhooks/joey
// @Summary      Ingest a Joey wallet event
// @Description  Verifies the HMAC signature over the raw body, then applies wallet_linked, wallet_unlinked or balance_update to the user's preferences
// @Tags         wallet
// @Accept       json
// @Produce      json
// @Param        X-Joey-Signature  header    string              true  "hex HMAC-SHA256 of the raw body"
// @Param        request           body      model.WebhookEvent  true  "Wallet event"
// @Success      200               {object}  model.StatusResponse
// @Failure      400               {object}  model.ErrorResponse
// @Failure      401               {object}  model.ErrorResponse
// @Failure      404               {object}  model.ErrorResponse
// @Failure      500               {object}  model.ErrorResponse
// @Router       /api/webhooks/joey [post]
func (h *WalletHandler) JoeyWebhook(w http.ResponseWriter, r *http.Request) {
	if !allowPost(w, r) {
		return
	}
	h.serve(w, r, h.webhook)
}

// SyncBalance handles POST /api/wallet/sync-balance
// @Summary      Refresh a wallet balance
// @Description  Resolves the user's linked wallet, reads its balance from the ledger and stores the snapshot
// @Tags         wallet
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      model.BalanceSyncRequest  true  "Sync target"
// @Success      200      {object}  model.BalanceSyncResponse
// @Failure      400      {object}  model.ErrorResponse
// @Failure      401      {object}  model.ErrorResponse
// @Failure      404      {object}  model.ErrorResponse
// @Failure      500      {object}  model.ErrorResponse
// @Router       /api/wallet/sync-balance [post]
func (h *WalletHandler) SyncBalance(w http.ResponseWriter, r *http.Request) {
	if !allowPost(w, r) {
		return
	}
	h.serve(w, r, h.balanceSync)
}

func (h *WalletHandler) serve(w http.ResponseWriter, r *http.Request, op Operation) {
	body := r.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	res := op.Handle(r.Context(), body, r.Header)
	writeJSON(w, logging.FromContext(r.Context(), h.logger), res.Status, res.Body)
}

// allowPost rejects every method but POST with 405 and an Allow header
func allowPost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodPost {
		return true
	}
	w.Header().Set("Allow", http.MethodPost)
	writeJSON(w, nil, http.StatusMethodNotAllowed, model.ErrorResponse{Error: "Method not allowed. Should be POST"})
	return false
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && logger != nil {
		logger.Warn("failed to write response", zap.Error(err))
	}
}
