package ledger

import (
	"fmt"
	"strings"
)

const (
	// MaxMarketIDLength is the maximum market identifier size in bytes
	MaxMarketIDLength = 50
	// MaxDescriptionLength is the maximum market description size in bytes
	MaxDescriptionLength = 500

	// PoolAccountPrefix prefixes the value account that holds a market's pooled stakes
	PoolAccountPrefix = "market:"
)

// Outcome represents a side of a binary market
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
	// OutcomeUnset is the outcome of a market that has not been resolved
	OutcomeUnset Outcome = ""
)

// ParseOutcome accepts yes/no/true/false in any case
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "y":
		return OutcomeYes, nil
	case "no", "false", "n":
		return OutcomeNo, nil
	}
	return OutcomeUnset, fmt.Errorf("%w: %q", ErrInvalidOutcome, s)
}

// OutcomeFromBool maps true to YES and false to NO
func OutcomeFromBool(b bool) Outcome {
	if b {
		return OutcomeYes
	}
	return OutcomeNo
}

// Valid reports whether o is YES or NO
func (o Outcome) Valid() bool {
	return o == OutcomeYes || o == OutcomeNo
}

// Bool returns true for YES
func (o Outcome) Bool() bool {
	return o == OutcomeYes
}

// ProtocolState is the deployment-wide singleton
type ProtocolState struct {
	Authority    string `json:"authority"`
	TotalMarkets int64  `json:"total_markets"`
	IsPaused     bool   `json:"is_paused"`
}

// Market is a binary-outcome proposition with two pooled stake sides
type Market struct {
	ID                string  `json:"id"`
	Description       string  `json:"description"`
	EndTimestamp      int64   `json:"end_timestamp"`
	CreatedTimestamp  int64   `json:"created_timestamp"`
	ResolvedTimestamp int64   `json:"resolved_timestamp,omitempty"`
	MinBetAmount      int64   `json:"min_bet_amount"`
	IsResolved        bool    `json:"is_resolved"`
	Outcome           Outcome `json:"outcome,omitempty"`
	TotalYesAmount    int64   `json:"total_yes_amount"`
	TotalNoAmount     int64   `json:"total_no_amount"`
	TotalParticipants int64   `json:"total_participants"`
	Authority         string  `json:"authority"`
}

// PoolAccount returns the identity of the value account holding the market's stakes
func (m *Market) PoolAccount() string {
	return PoolAccount(m.ID)
}

// TotalPool returns the sum of both sides, or ErrMathOverflow if it does not fit
func (m *Market) TotalPool() (int64, error) {
	return CheckedAdd(m.TotalYesAmount, m.TotalNoAmount)
}

// WinningPool returns the pooled amount on the resolved side, or 0 before resolution
func (m *Market) WinningPool() int64 {
	switch m.Outcome {
	case OutcomeYes:
		return m.TotalYesAmount
	case OutcomeNo:
		return m.TotalNoAmount
	}
	return 0
}

// PoolAccount returns the pool account identity for a market id
func PoolAccount(marketID string) string {
	return PoolAccountPrefix + marketID
}

// StakeRecord is a participant's single commitment to one side of a market.
// MarketID is a plain identifier, never a handle to the Market itself.
type StakeRecord struct {
	MarketID   string  `json:"market_id"`
	User       string  `json:"user"`
	Amount     int64   `json:"amount"`
	Prediction Outcome `json:"prediction"`
	Timestamp  int64   `json:"timestamp"`
	Claimed    bool    `json:"claimed"`
	Winnings   int64   `json:"winnings"`
}

// TransferKind labels a movement of value in the journal
type TransferKind string

const (
	TransferStake        TransferKind = "STAKE"
	TransferPayout       TransferKind = "PAYOUT"
	TransferWelcomeBonus TransferKind = "WELCOME_BONUS"
)

// Transfer moves Amount of value from one identity's account to another
type Transfer struct {
	From     string
	To       string
	Amount   int64
	Kind     TransferKind
	MarketID string
}
