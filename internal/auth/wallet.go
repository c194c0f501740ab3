package auth

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// WalletVerifier authenticates wallet holders by a personal_sign signature
// over a timestamped login message.
type WalletVerifier struct {
	maxAge time.Duration
	now    func() time.Time
}

// NewWalletVerifier creates a verifier accepting logins up to maxAge old
func NewWalletVerifier(maxAge time.Duration) *WalletVerifier {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &WalletVerifier{maxAge: maxAge, now: time.Now}
}

// LoginMessage is the text a wallet signs to authenticate
func LoginMessage(address string, timestamp int64) string {
	return fmt.Sprintf("predictionledger login\naddress: %s\ntimestamp: %d", strings.ToLower(address), timestamp)
}

// Verify recovers the signer of the login message and returns its
// checksummed address as the ledger identity.
func (v *WalletVerifier) Verify(address string, timestamp int64, signature string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("invalid wallet address")
	}

	age := v.now().Sub(time.Unix(timestamp, 0))
	if age > v.maxAge || age < -time.Minute {
		return "", fmt.Errorf("login timestamp out of range")
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil || len(sig) != ethcrypto.SignatureLength {
		return "", fmt.Errorf("invalid signature encoding")
	}
	// Wallets return v in {27,28}; recovery expects {0,1}.
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	digest := accounts.TextHash([]byte(LoginMessage(address, timestamp)))
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("invalid signature: %w", err)
	}

	want := common.HexToAddress(address)
	if got := ethcrypto.PubkeyToAddress(*pub); got != want {
		return "", fmt.Errorf("signature does not match address")
	}
	return want.Hex(), nil
}
