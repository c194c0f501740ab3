package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TelegramUser is the user object embedded in Mini App initData
type TelegramUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// TelegramVerifier validates Telegram Mini App initData
type TelegramVerifier struct {
	botToken string
	maxAge   time.Duration
	now      func() time.Time
}

// NewTelegramVerifier creates a verifier for initData signed for botToken
func NewTelegramVerifier(botToken string, maxAge time.Duration) *TelegramVerifier {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &TelegramVerifier{botToken: botToken, maxAge: maxAge, now: time.Now}
}

// Verify checks the HMAC-SHA256 signature and the auth_date of initData and
// returns the signed user.
func (v *TelegramVerifier) Verify(initData string) (*TelegramUser, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("malformed initData: %w", err)
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, fmt.Errorf("hash not found in initData")
	}
	values.Del("hash")

	if !hmac.Equal([]byte(hash), []byte(SignInitData(v.botToken, values))) {
		return nil, fmt.Errorf("invalid hash")
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid auth_date")
	}
	if v.now().Sub(time.Unix(authDate, 0)) > v.maxAge {
		return nil, fmt.Errorf("auth_date is too old")
	}

	userJSON := values.Get("user")
	if userJSON == "" {
		return nil, fmt.Errorf("user not found in initData")
	}
	var user TelegramUser
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return nil, fmt.Errorf("failed to parse user: %w", err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("user id not found")
	}
	return &user, nil
}

// SignInitData computes the initData hash of values (excluding hash) for botToken
func SignInitData(botToken string, values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	h := hmac.New(sha256.New, secret.Sum(nil))
	h.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(h.Sum(nil))
}
