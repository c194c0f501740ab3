package handlers

import (
	"fmt"
	"net/http"

	"github.com/dustin/go-humanize"

	"predictionledger/internal/ledger"
	"predictionledger/internal/logger"
	"predictionledger/internal/storage"
)

// AccountResponse is the response for the /api/me endpoint
type AccountResponse struct {
	Identity       string `json:"identity"`
	Balance        int64  `json:"balance"`
	BalanceDisplay string `json:"balance_display"`
	CreatedAt      int64  `json:"created_at"`
	Created        bool   `json:"created"`
}

// HandleMe handles GET /api/me. The caller's account is opened with the
// welcome bonus on first use.
func (h *Handlers) HandleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := requireIdentity(w, r, "me")
		if !ok {
			return
		}

		acct, created, err := h.store.OpenAccount(r.Context(), identity, h.welcomeBonus)
		if err != nil {
			logger.Debug(identity, "me_error", "error="+err.Error())
			respondLedgerError(w, err)
			return
		}

		logger.Debug(identity, "me_success", fmt.Sprintf("balance=%d created=%t", acct.Balance, created))
		respondJSON(w, http.StatusOK, AccountResponse{
			Identity:       acct.Identity,
			Balance:        acct.Balance,
			BalanceDisplay: humanize.Comma(acct.Balance),
			CreatedAt:      acct.CreatedAt,
			Created:        created,
		})
	}
}

// HandleMyStakes handles GET /api/me/stakes
func (h *Handlers) HandleMyStakes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := requireIdentity(w, r, "my_stakes")
		if !ok {
			return
		}

		stakes, err := h.store.ListUserStakes(r.Context(), identity, listOpts(r))
		if err != nil {
			logger.Debug(identity, "my_stakes_error", "error="+err.Error())
			respondLedgerError(w, err)
			return
		}
		if stakes == nil {
			stakes = []ledger.StakeRecord{}
		}

		logger.Debug(identity, "my_stakes_success", fmt.Sprintf("count=%d", len(stakes)))
		respondJSON(w, http.StatusOK, stakes)
	}
}

// HandleMyTransfers handles GET /api/me/transfers
func (h *Handlers) HandleMyTransfers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := requireIdentity(w, r, "my_transfers")
		if !ok {
			return
		}

		entries, err := h.store.Transfers(r.Context(), identity, listOpts(r))
		if err != nil {
			logger.Debug(identity, "my_transfers_error", "error="+err.Error())
			respondLedgerError(w, err)
			return
		}
		if entries == nil {
			entries = []storage.TransferEntry{}
		}

		respondJSON(w, http.StatusOK, entries)
	}
}

// HandleLeaderboard handles GET /api/leaderboard
func (h *Handlers) HandleLeaderboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accounts, err := h.store.TopAccounts(r.Context(), 20)
		if err != nil {
			logger.Debug("", "leaderboard_error", "error="+err.Error())
			respondLedgerError(w, err)
			return
		}
		if accounts == nil {
			accounts = []storage.Account{}
		}

		logger.Debug("", "leaderboard_success", fmt.Sprintf("count=%d", len(accounts)))
		respondJSON(w, http.StatusOK, accounts)
	}
}
