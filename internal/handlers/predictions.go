package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"predictionledger/internal/ledger"
	"predictionledger/internal/logger"
)

// PlacePredictionRequest is the request body for staking on a market
type PlacePredictionRequest struct {
	Prediction string `json:"prediction" validate:"required,outcome"`
	Amount     int64  `json:"amount"`
}

// PlacePredictionResponse is the response after staking
type PlacePredictionResponse struct {
	Stake      ledger.StakeRecord `json:"stake"`
	PoolYes    int64              `json:"pool_yes"`
	PoolNo     int64              `json:"pool_no"`
	NewBalance int64              `json:"new_balance"`
}

// ResolveMarketRequest is the request body for resolving a market
type ResolveMarketRequest struct {
	Outcome string `json:"outcome" validate:"required,outcome"`
}

// HandlePlacePrediction handles POST /api/markets/{id}/predictions
func (h *Handlers) HandlePlacePrediction() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := requireIdentity(w, r, "predict")
		if !ok {
			return
		}
		marketID := chi.URLParam(r, "id")

		var req PlacePredictionRequest
		if err := decodeAndValidate(w, r, &req, identity, "predict"); err != nil {
			return
		}
		prediction, _ := ledger.ParseOutcome(req.Prediction)

		stake, m, err := h.engine.PlacePrediction(r.Context(), marketID, identity, req.Amount, prediction)
		if err != nil {
			logger.Debug(identity, "predict_failed", fmt.Sprintf("market_id=%s amount=%d error=%s", marketID, req.Amount, err))
			respondLedgerError(w, err)
			return
		}

		balance, err := h.store.Balance(r.Context(), identity)
		if err != nil {
			respondLedgerError(w, err)
			return
		}

		logger.Debug(identity, "predict_success", fmt.Sprintf("market_id=%s prediction=%s amount=%d", marketID, prediction, req.Amount))
		respondJSON(w, http.StatusCreated, PlacePredictionResponse{
			Stake:      *stake,
			PoolYes:    m.TotalYesAmount,
			PoolNo:     m.TotalNoAmount,
			NewBalance: balance,
		})
	}
}

// HandleResolveMarket handles POST /api/markets/{id}/resolve
func (h *Handlers) HandleResolveMarket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := requireIdentity(w, r, "resolve")
		if !ok {
			return
		}
		marketID := chi.URLParam(r, "id")

		var req ResolveMarketRequest
		if err := decodeAndValidate(w, r, &req, identity, "resolve"); err != nil {
			return
		}
		outcome, _ := ledger.ParseOutcome(req.Outcome)

		m, err := h.engine.ResolveMarket(r.Context(), marketID, identity, outcome)
		if err != nil {
			logger.Debug(identity, "resolve_failed", "market_id="+marketID+" error="+err.Error())
			respondLedgerError(w, err)
			return
		}

		logger.Debug(identity, "resolve_success", fmt.Sprintf("market_id=%s outcome=%s", marketID, outcome))
		respondMarket(w, http.StatusOK, m, h.clock.Now())
	}
}

// HandleClaimWinnings handles POST /api/markets/{id}/claim
func (h *Handlers) HandleClaimWinnings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := requireIdentity(w, r, "claim")
		if !ok {
			return
		}
		marketID := chi.URLParam(r, "id")

		stake, err := h.engine.ClaimWinnings(r.Context(), marketID, identity)
		if err != nil {
			logger.Debug(identity, "claim_failed", "market_id="+marketID+" error="+err.Error())
			respondLedgerError(w, err)
			return
		}

		logger.Debug(identity, "claim_success", fmt.Sprintf("market_id=%s winnings=%d", marketID, stake.Winnings))
		respondJSON(w, http.StatusOK, stake)
	}
}
