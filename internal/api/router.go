package api

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	_ "github.com/HefaCom/health-florence-sub002/docs"
	"github.com/HefaCom/health-florence-sub002/internal/handler"
	"github.com/HefaCom/health-florence-sub002/internal/metrics"
)

// Deps are the handlers and middleware the router wires together
type Deps struct {
	Wallet *handler.WalletHandler
	// RateLimiter guards the POST endpoints; nil disables limiting
	RateLimiter *handler.RateLimiter
	Logger      *zap.Logger
}

// SetupRouter sets up router with handlers
func SetupRouter(deps Deps) http.Handler {
	mux := http.NewServeMux()

	// Swagger UI
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", handler.Health)

	// Wallet endpoints
	mux.Handle("/api/webhooks/joey", limit(deps.RateLimiter, http.HandlerFunc(deps.Wallet.JoeyWebhook)))
	mux.Handle("/api/wallet/sync-balance", limit(deps.RateLimiter, http.HandlerFunc(deps.Wallet.SyncBalance)))

	return handler.RequestID(deps.Logger)(metrics.InstrumentHandler(mux))
}

func limit(rl *handler.RateLimiter, h http.Handler) http.Handler {
	if rl == nil {
		return h
	}
	return rl.Handler(h)
}
