package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"predictionledger/internal/ledger"
)

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ValidationErrorResponse is returned when a request body fails validation
type ValidationErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields,omitempty"`
}

const (
	codeInvalidRequest  = "InvalidRequest"
	codeUnauthenticated = "Unauthenticated"
	codeInternal        = "Internal"
)

// respondJSON sends a JSON response with the given status code and payload
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// respondWithError sends an error response with an explicit status and code
func respondWithError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// respondLedgerError maps a ledger failure to its HTTP status
func respondLedgerError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError && ledger.KindOf(err) == ledger.KindCollaborator {
		slog.Error("Ledger collaborator failure", "error", err)
		respondWithError(w, status, codeInternal, "internal error")
		return
	}
	respondWithError(w, status, ledger.CodeOf(err), err.Error())
}

// StatusFor returns the HTTP status for a ledger error
func StatusFor(err error) int {
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		return http.StatusPaymentRequired
	}
	switch ledger.KindOf(err) {
	case ledger.KindValidation:
		return http.StatusBadRequest
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindUnauthorized:
		return http.StatusForbidden
	case ledger.KindStateConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
