package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ContextKey is the key type for context values
type ContextKey string

const (
	// IdentityKey is the context key for the authenticated ledger identity
	IdentityKey ContextKey = "identity"
)

// Request headers carrying credentials
const (
	HeaderInitData        = "X-Telegram-Init-Data"
	HeaderWalletAddress   = "X-Identity-Address"
	HeaderWalletTimestamp = "X-Identity-Timestamp"
	HeaderWalletSignature = "X-Identity-Signature"
)

// DefaultMaxAge is how long signed credentials stay valid
const DefaultMaxAge = 24 * time.Hour

const telegramPrefix = "tg:"

// TelegramIdentity returns the ledger identity of a Telegram user
func TelegramIdentity(userID int64) string {
	return telegramPrefix + strconv.FormatInt(userID, 10)
}

// TelegramUserID extracts the Telegram user id from a ledger identity
func TelegramUserID(identity string) (int64, bool) {
	rest, ok := strings.CutPrefix(identity, telegramPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Middleware returns an HTTP middleware that authenticates /api/ requests
// with Telegram initData or, when wallet is non-nil, a signed wallet login.
func Middleware(tg *TelegramVerifier, wallet *WalletVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip auth for non-API routes (static files)
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}

			// Skip auth for health check endpoints
			if r.URL.Path == "/api/ping" {
				next.ServeHTTP(w, r)
				return
			}

			identity, err := authenticate(r, tg, wallet)
			if err != nil {
				slog.Warn("Auth failed", "path", r.URL.Path, "error", err)
				http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
				return
			}

			ctx := ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, tg *TelegramVerifier, wallet *WalletVerifier) (string, error) {
	if initData := r.Header.Get(HeaderInitData); initData != "" {
		if tg == nil {
			return "", fmt.Errorf("telegram login not enabled")
		}
		user, err := tg.Verify(initData)
		if err != nil {
			return "", err
		}
		return TelegramIdentity(user.ID), nil
	}

	if address := r.Header.Get(HeaderWalletAddress); address != "" {
		if wallet == nil {
			return "", fmt.Errorf("wallet login not enabled")
		}
		ts, err := strconv.ParseInt(r.Header.Get(HeaderWalletTimestamp), 10, 64)
		if err != nil {
			return "", fmt.Errorf("invalid %s header", HeaderWalletTimestamp)
		}
		return wallet.Verify(address, ts, r.Header.Get(HeaderWalletSignature))
	}

	return "", fmt.Errorf("missing credentials")
}

// ContextWithIdentity adds the identity to the context
func ContextWithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// IdentityFromContext retrieves the identity from the context
func IdentityFromContext(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(IdentityKey).(string)
	return identity, ok && identity != ""
}
