package httpx

import (
	"net/http"
	"time"

	"log/slog"

	"github.com/nishantshetty7/quizania-backend/internal/app"
	"github.com/nishantshetty7/quizania-backend/internal/store"
	"github.com/nishantshetty7/quizania-backend/internal/ws"
	"github.com/nishantshetty7/quizania-backend/pkg/auth"
	"github.com/nishantshetty7/quizania-backend/pkg/metrics"
)

// NewRouter wires up all HTTP routes, middleware, and handlers
func NewRouter(cfg app.Config, logger *slog.Logger, hub *ws.Hub, db *store.Postgres) http.Handler {
	mw := NewMiddleware(cfg)

	authAPI := &AuthAPI{
		DB:         db,
		JWT:        auth.New(cfg.JWTSecret),
		AccessTTL:  time.Duration(cfg.AccessTTL) * time.Minute,
		RefreshTTL: time.Duration(cfg.RefreshTTL) * time.Minute,
	}

	mux := http.NewServeMux()

	// Health / readiness / metrics
	mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/metrics", metrics.Handler())

	// WebSocket endpoint (quiz intents ride this)
	mux.Handle("/ws", http.HandlerFunc(hub.ServeWS))

	// Auth endpoints
	mux.Handle("POST /api/auth/register", http.HandlerFunc(authAPI.Register))
	mux.Handle("POST /api/auth/login", http.HandlerFunc(authAPI.Login))
	mux.Handle("POST /api/auth/google", http.HandlerFunc(authAPI.GoogleLogin))
	mux.Handle("GET /api/auth/logout", http.HandlerFunc(authAPI.Logout))
	mux.Handle("GET /api/auth/me", mw.Auth(http.HandlerFunc(authAPI.Me)))

	// CORS + rate limit applied globally
	return mw.Wrap(mux)
}
