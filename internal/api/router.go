package api

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/erazemk/prenos/internal/auth"
	"github.com/erazemk/prenos/internal/authz"
	"github.com/erazemk/prenos/internal/metrics"
	"github.com/erazemk/prenos/internal/transfer"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	DB        *sql.DB
	Issuer    *auth.Issuer
	Transfers *transfer.Service
	Policy    authz.ResolutionPolicy
	Metrics   *metrics.Metrics
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: d.DB, Issuer: d.Issuer}
	transfersHandler := &TransfersHandler{Service: d.Transfers, Policy: d.Policy, Metrics: d.Metrics}
	healthHandler := &HealthHandler{DB: d.DB}

	authMW := AuthMiddleware(d.Issuer, d.DB)

	handle := func(pattern string, h http.Handler) {
		method, route, _ := strings.Cut(pattern, " ")
		mux.Handle(pattern, instrument(d.Metrics, method, route, h))
	}
	authed := func(pattern string, fn http.HandlerFunc) {
		handle(pattern, authMW(fn))
	}

	// Public.
	handle("POST /api/auth/login", http.HandlerFunc(authHandler.Login))
	handle("GET /health", http.HandlerFunc(healthHandler.Health))
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}

	// Session.
	authed("POST /api/auth/logout", authHandler.Logout)
	authed("PUT /api/auth/password", authHandler.ChangePassword)

	// Transfers.
	authed("POST /api/transfers", transfersHandler.Create)
	authed("GET /api/transfers/{id}", transfersHandler.Get)
	authed("POST /api/transfers/{id}/approve", transfersHandler.Approve)
	authed("POST /api/transfers/{id}/reject", transfersHandler.Reject)
	authed("POST /api/transfers/{id}/cancel", transfersHandler.Cancel)
	authed("DELETE /api/transfers/{id}", transfersHandler.Cancel)

	// Listings.
	authed("GET /api/inventories/{id}/transfers", transfersHandler.ListByInventory)
	authed("GET /api/items/{id}/transfers", transfersHandler.ListByItem)

	return mux
}
