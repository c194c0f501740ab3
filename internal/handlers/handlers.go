package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"predictionledger/internal/auth"
	"predictionledger/internal/ledger"
	"predictionledger/internal/logger"
	"predictionledger/internal/storage"
)

// Handlers serves the ledger HTTP API
type Handlers struct {
	engine       *ledger.Engine
	store        *storage.Store
	clock        ledger.Clock
	welcomeBonus int64
}

// New creates the API handlers. Accounts opened through /api/me are credited
// with welcomeBonus.
func New(engine *ledger.Engine, store *storage.Store, clock ledger.Clock, welcomeBonus int64) *Handlers {
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	return &Handlers{engine: engine, store: store, clock: clock, welcomeBonus: welcomeBonus}
}

// Routes mounts the API on r
func (h *Handlers) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", HandlePing())
		r.Get("/me", h.HandleMe())
		r.Get("/me/stakes", h.HandleMyStakes())
		r.Get("/me/transfers", h.HandleMyTransfers())
		r.Get("/leaderboard", h.HandleLeaderboard())
		r.Get("/events", h.HandleListEvents())

		r.Get("/protocol", h.HandleProtocol())
		r.Post("/protocol/pause", h.HandleSetPaused())

		r.Route("/markets", func(r chi.Router) {
			r.Get("/", h.HandleListMarkets())
			r.Post("/", h.HandleCreateMarket())
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.HandleGetMarket())
				r.Get("/stakes", h.HandleListStakes())
				r.Post("/predictions", h.HandlePlacePrediction())
				r.Post("/resolve", h.HandleResolveMarket())
				r.Post("/claim", h.HandleClaimWinnings())
			})
		})
	})
}

// requireIdentity returns the authenticated identity or writes a 401
func requireIdentity(w http.ResponseWriter, r *http.Request, action string) (string, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		logger.Debug("", action+"_unauthorized", "path="+r.URL.Path)
		respondWithError(w, http.StatusUnauthorized, codeUnauthenticated, "Unauthorized: identity not in context")
		return "", false
	}
	return identity, true
}

// listOpts reads limit and offset query parameters
func listOpts(r *http.Request) storage.ListOpts {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return storage.ListOpts{Limit: limit, Offset: offset}
}
