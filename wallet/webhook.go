package wallet

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/HefaCom/health-florence-sub002/internal/apperr"
	"github.com/HefaCom/health-florence-sub002/internal/crypto"
	"github.com/HefaCom/health-florence-sub002/internal/logging"
	"github.com/HefaCom/health-florence-sub002/internal/metrics"
	"github.com/HefaCom/health-florence-sub002/internal/model"
	"github.com/HefaCom/health-florence-sub002/internal/preferences"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body
const SignatureHeader = "X-Joey-Signature"

const webhookFailure = "Failed to process webhook"

// WebhookProcessor applies signed custodian events to user preferences
type WebhookProcessor struct {
	store   PreferencesStore
	secret  string
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewWebhookProcessor creates a processor. An empty secret is accepted here and
// rejected per request as a configuration error.
func NewWebhookProcessor(store PreferencesStore, secret string, timeout time.Duration, logger *zap.Logger) *WebhookProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookProcessor{
		store:   store,
		secret:  secret,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Handle runs one webhook delivery: read, authenticate, parse, validate, then
// fetch-merge-persist the user's preferences.
func (p *WebhookProcessor) Handle(ctx context.Context, body io.Reader, headers http.Header) Result {
	log := logging.FromContext(ctx, p.logger)

	raw, err := readBody(body)
	if err != nil {
		metrics.RecordWebhookEvent("", "rejected")
		return fail(err, webhookFailure)
	}

	if p.secret == "" {
		log.Error("webhook secret is not configured")
		metrics.RecordWebhookEvent("", "misconfigured")
		return fail(apperr.Configuration("Missing Joey webhook secret"), webhookFailure)
	}

	// signature is checked over the bytes as received, before any parsing
	signature := crypto.FirstSignature(headers.Values(SignatureHeader))
	if !crypto.VerifySignature(raw, signature, p.secret) {
		log.Warn("webhook signature rejected", zap.Bool("signature_present", signature != ""))
		metrics.RecordWebhookEvent("", "unauthorized")
		return fail(apperr.Authentication("Invalid signature"), webhookFailure)
	}

	event, err := parseEvent(raw)
	if err != nil {
		metrics.RecordWebhookEvent(string(event.Type), "rejected")
		return fail(err, webhookFailure)
	}

	log = log.With(zap.String("event_type", string(event.Type)), zap.String("user_id", event.UserID))

	if err := p.apply(ctx, event); err != nil {
		if apperr.IsNotFound(err) {
			log.Info("webhook for unknown user")
			metrics.RecordWebhookEvent(string(event.Type), "not_found")
		} else {
			log.Error("failed to apply webhook event", zap.Error(err))
			metrics.RecordWebhookEvent(string(event.Type), "failed")
		}
		return fail(err, webhookFailure)
	}

	log.Info("webhook event applied")
	metrics.RecordWebhookEvent(string(event.Type), "ok")
	return success(model.StatusResponse{Status: "ok"})
}

// apply fetches, merges and persists under one upstream deadline
func (p *WebhookProcessor) apply(ctx context.Context, event model.WebhookEvent) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	raw, err := p.store.GetUserPreferences(ctx, event.UserID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return apperr.NotFound("User not found")
		}
		return apperr.Upstream(webhookFailure, err)
	}

	next := preferences.Merge(preferences.Parse(raw), event, p.now())

	serialized, err := next.Serialize()
	if err != nil {
		return apperr.Upstream(webhookFailure, err)
	}
	if err := p.store.UpdateUserPreferences(ctx, event.UserID, serialized); err != nil {
		return apperr.Upstream(webhookFailure, err)
	}
	return nil
}

// parseEvent decodes and validates a verified body. The returned event carries
// whatever type was readable even when validation fails.
func parseEvent(raw []byte) (model.WebhookEvent, error) {
	if !gjson.ValidBytes(raw) {
		return model.WebhookEvent{}, apperr.Validation("Invalid JSON payload")
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return model.WebhookEvent{}, apperr.Validation("Invalid JSON payload")
	}

	var event model.WebhookEvent
	typ, userID := doc.Get("type"), doc.Get("userId")
	if typ.Type == gjson.String {
		event.Type = model.EventType(typ.Str)
	}
	if userID.Type == gjson.String {
		event.UserID = userID.Str
	}
	if event.Type == "" || event.UserID == "" {
		return event, apperr.Validation("Missing required fields")
	}

	if addr := doc.Get("walletAddress"); addr.Type == gjson.String {
		event.WalletAddress = addr.Str
	}
	if event.Type.RequiresAddress() && event.WalletAddress == "" {
		return event, apperr.Validation("walletAddress is required for this event")
	}

	if chain := doc.Get("chain"); chain.Type == gjson.String {
		event.Chain = chain.Str
	}
	event.Metadata = objectField(doc, "metadata")
	event.Balances = objectField(doc, "balances")

	return event, nil
}

// objectField decodes a top-level object member; anything else reads as absent
func objectField(doc gjson.Result, key string) map[string]any {
	v := doc.Get(key)
	if !v.IsObject() {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(v.Raw), &out); err != nil {
		return nil
	}
	return out
}
