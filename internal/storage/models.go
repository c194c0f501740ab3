package storage

import "encoding/json"

// Account is a value account: a participant's wallet or a market pool
type Account struct {
	Identity  string `json:"identity"`
	Balance   int64  `json:"balance"` // in base units
	CreatedAt int64  `json:"created_at"`
}

// TransferEntry is one row of the transfer journal
type TransferEntry struct {
	ID        int64  `json:"id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    int64  `json:"amount"`
	Kind      string `json:"kind"`
	MarketID  string `json:"market_id,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// StoredEvent is an event read back from the outbox
type StoredEvent struct {
	Seq       int64           `json:"seq"`
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	MarketID  string          `json:"market_id,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// ListOpts provides pagination for list queries
type ListOpts struct {
	Limit  int
	Offset int
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (o ListOpts) limit() int {
	switch {
	case o.Limit <= 0:
		return defaultListLimit
	case o.Limit > maxListLimit:
		return maxListLimit
	}
	return o.Limit
}

func (o ListOpts) offset() int {
	if o.Offset < 0 {
		return 0
	}
	return o.Offset
}
