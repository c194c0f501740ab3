package event

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// SchemaVersion is stamped on every event
const SchemaVersion = "1.0"

// Type represents the type of an event
type Type string

const (
	ProtocolInitialized Type = "protocol.initialized"
	ProtocolPaused      Type = "protocol.paused"
	ProtocolUnpaused    Type = "protocol.unpaused"
	MarketCreated       Type = "market.created"
	PredictionPlaced    Type = "prediction.placed"
	MarketResolved      Type = "market.resolved"
	WinningsClaimed     Type = "winnings.claimed"
)

// Event is a single structured notification of a committed ledger transition
type Event struct {
	ID        string      `json:"id"`
	Version   string      `json:"version"`
	Type      Type        `json:"type"`
	MarketID  string      `json:"market_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ProtocolPayloadV1 is the payload for protocol administration events
type ProtocolPayloadV1 struct {
	Authority string `json:"authority"`
	IsPaused  bool   `json:"is_paused"`
}

// MarketCreatedPayloadV1 is the payload for market creation
type MarketCreatedPayloadV1 struct {
	ID           string `json:"id"`
	Description  string `json:"description"`
	EndTimestamp int64  `json:"end_timestamp"`
	MinBetAmount int64  `json:"min_bet_amount"`
	Authority    string `json:"authority"`
	Timestamp    int64  `json:"timestamp"`
}

// PredictionPlacedPayloadV1 is the payload for a stake placement
type PredictionPlacedPayloadV1 struct {
	MarketID       string `json:"market_id"`
	User           string `json:"user"`
	Amount         int64  `json:"amount"`
	Prediction     string `json:"prediction"`
	Timestamp      int64  `json:"timestamp"`
	TotalYesAmount int64  `json:"total_yes_amount"`
	TotalNoAmount  int64  `json:"total_no_amount"`
}

// MarketResolvedPayloadV1 carries the final pool totals
type MarketResolvedPayloadV1 struct {
	MarketID          string `json:"market_id"`
	Outcome           string `json:"outcome"`
	Authority         string `json:"authority"`
	ResolvedTimestamp int64  `json:"resolved_timestamp"`
	TotalYesAmount    int64  `json:"total_yes_amount"`
	TotalNoAmount     int64  `json:"total_no_amount"`
}

// WinningsClaimedPayloadV1 is the payload for a successful claim
type WinningsClaimedPayloadV1 struct {
	MarketID   string `json:"market_id"`
	User       string `json:"user"`
	Amount     int64  `json:"amount"`
	Prediction string `json:"prediction"`
	Winnings   int64  `json:"winnings"`
	Timestamp  int64  `json:"timestamp"`
}

func newEvent(t Type, marketID string, ts int64, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Version:   SchemaVersion,
		Type:      t,
		MarketID:  marketID,
		Timestamp: ts,
		Payload:   payload,
	}
}

// NewProtocolEvent creates an initialization or pause-state event
func NewProtocolEvent(t Type, authority string, paused bool, ts int64) Event {
	return newEvent(t, "", ts, ProtocolPayloadV1{Authority: authority, IsPaused: paused})
}

// NewMarketCreatedEvent creates a market.created event
func NewMarketCreatedEvent(p MarketCreatedPayloadV1) Event {
	return newEvent(MarketCreated, p.ID, p.Timestamp, p)
}

// NewPredictionPlacedEvent creates a prediction.placed event
func NewPredictionPlacedEvent(p PredictionPlacedPayloadV1) Event {
	return newEvent(PredictionPlaced, p.MarketID, p.Timestamp, p)
}

// NewMarketResolvedEvent creates a market.resolved event
func NewMarketResolvedEvent(p MarketResolvedPayloadV1) Event {
	return newEvent(MarketResolved, p.MarketID, p.ResolvedTimestamp, p)
}

// NewWinningsClaimedEvent creates a winnings.claimed event
func NewWinningsClaimedEvent(p WinningsClaimedPayloadV1) Event {
	return newEvent(WinningsClaimed, p.MarketID, p.Timestamp, p)
}

// Publisher is a fire-and-forget event sink
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Handler is a function that handles an event
type Handler func(ctx context.Context, evt Event) error

// Bus is a Publisher with in-process subscriptions
type Bus interface {
	Publisher
	Subscribe(t Type, handler Handler)
}

// MemoryBus is an in-memory implementation of Bus. Handlers run synchronously.
type MemoryBus struct {
	handlers map[Type][]Handler
	mu       sync.RWMutex
}

// NewMemoryBus creates a new MemoryBus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		handlers: make(map[Type][]Handler),
	}
}

// Publish delivers evt to every subscriber of its type
func (b *MemoryBus) Publish(ctx context.Context, evt Event) error {
	b.mu.RLock()
	handlers := b.handlers[evt.Type]
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d handler(s) failed for %s: %w", len(errs), evt.Type, errors.Join(errs...))
	}
	return nil
}

// Subscribe registers handler for events of type t
func (b *MemoryBus) Subscribe(t Type, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], handler)
}

// Multi fans an event out to several publishers and joins their errors
type Multi []Publisher

// Publish sends evt to every publisher, even when an earlier one fails
func (m Multi) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event
type Discard struct{}

// Publish implements Publisher
func (Discard) Publish(context.Context, Event) error { return nil }
