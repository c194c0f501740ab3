package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"predictionledger/internal/auth"
	"predictionledger/internal/ledger"
	"predictionledger/internal/logger"
)

// CreateMarketRequest is the request body for creating a market. The end of
// the stake window is given either as unix seconds or as an RFC3339 time.
type CreateMarketRequest struct {
	ID           string `json:"id" validate:"required"`
	Description  string `json:"description"`
	EndTimestamp int64  `json:"end_timestamp" validate:"required_without=EndTime"`
	EndTime      string `json:"end_time" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	MinBetAmount int64  `json:"min_bet_amount"`
}

func (req CreateMarketRequest) endTimestamp() int64 {
	if req.EndTimestamp != 0 {
		return req.EndTimestamp
	}
	t, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		return 0
	}
	return t.Unix()
}

// MarketResponse is a market together with its derived pool figures
type MarketResponse struct {
	ledger.Market
	TotalPool int64 `json:"total_pool"`
	Open      bool  `json:"open"`
}

func newMarketResponse(m *ledger.Market, now int64) (MarketResponse, error) {
	pool, err := m.TotalPool()
	if err != nil {
		return MarketResponse{}, fmt.Errorf("market %s total pool: %w", m.ID, err)
	}
	return MarketResponse{
		Market:    *m,
		TotalPool: pool,
		Open:      !m.IsResolved && now < m.EndTimestamp,
	}, nil
}

// respondMarket writes a single market or the pool error
func respondMarket(w http.ResponseWriter, status int, m *ledger.Market, now int64) {
	resp, err := newMarketResponse(m, now)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	respondJSON(w, status, resp)
}

// HandleCreateMarket handles POST /api/markets. The caller becomes the market authority.
func (h *Handlers) HandleCreateMarket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := requireIdentity(w, r, "markets_create")
		if !ok {
			return
		}

		var req CreateMarketRequest
		if err := decodeAndValidate(w, r, &req, identity, "markets_create"); err != nil {
			return
		}

		m, err := h.engine.CreateMarket(r.Context(), ledger.CreateMarketParams{
			ID:           req.ID,
			Description:  req.Description,
			EndTimestamp: req.endTimestamp(),
			MinBetAmount: req.MinBetAmount,
			Creator:      identity,
		})
		if err != nil {
			logger.Debug(identity, "markets_create_failed", "market_id="+req.ID+" error="+err.Error())
			respondLedgerError(w, err)
			return
		}

		logger.Debug(identity, "market_created", fmt.Sprintf("market_id=%s end_timestamp=%d", m.ID, m.EndTimestamp))
		respondMarket(w, http.StatusCreated, m, h.clock.Now())
	}
}

// HandleListMarkets handles GET /api/markets. Only open markets are listed
// unless all=1 is given.
func (h *Handlers) HandleListMarkets() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, _ := auth.IdentityFromContext(r.Context())
		openOnly := r.URL.Query().Get("all") != "1"
		now := h.clock.Now()

		markets, err := h.store.ListMarkets(r.Context(), openOnly, now, listOpts(r))
		if err != nil {
			logger.Debug(identity, "markets_list_error", "error="+err.Error())
			respondLedgerError(w, err)
			return
		}

		resp := make([]MarketResponse, 0, len(markets))
		for i := range markets {
			mr, err := newMarketResponse(&markets[i], now)
			if err != nil {
				respondLedgerError(w, err)
				return
			}
			resp = append(resp, mr)
		}

		logger.Debug(identity, "markets_list_success", fmt.Sprintf("count=%d open_only=%t", len(resp), openOnly))
		respondJSON(w, http.StatusOK, resp)
	}
}

// HandleGetMarket handles GET /api/markets/{id}
func (h *Handlers) HandleGetMarket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		m, err := h.store.Market(r.Context(), id)
		if err != nil {
			respondLedgerError(w, err)
			return
		}
		respondMarket(w, http.StatusOK, m, h.clock.Now())
	}
}

// HandleListStakes handles GET /api/markets/{id}/stakes
func (h *Handlers) HandleListStakes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := h.store.Market(r.Context(), id); err != nil {
			respondLedgerError(w, err)
			return
		}

		stakes, err := h.store.ListStakes(r.Context(), id)
		if err != nil {
			respondLedgerError(w, err)
			return
		}
		if stakes == nil {
			stakes = []ledger.StakeRecord{}
		}
		respondJSON(w, http.StatusOK, stakes)
	}
}
