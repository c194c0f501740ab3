package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/telebot.v3"

	"predictionledger/internal/auth"
	"predictionledger/internal/ledger"
	"predictionledger/internal/storage"
)

// Config holds bot settings
type Config struct {
	Token        string
	WebAppURL    string
	WelcomeBonus int64
}

// Bot exposes the ledger over Telegram commands
type Bot struct {
	tb           *telebot.Bot
	engine       *ledger.Engine
	store        *storage.Store
	clock        ledger.Clock
	webAppURL    string
	welcomeBonus int64
}

// New creates the Telegram bot and registers its commands
func New(cfg Config, engine *ledger.Engine, store *storage.Store, clock ledger.Clock) (*Bot, error) {
	tb, err := telebot.NewBot(telebot.Settings{
		Token: cfg.Token,
		Poller: &telebot.LongPoller{
			Timeout: 10 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := newBot(cfg, engine, store, clock)
	b.tb = tb
	b.register(tb)
	return b, nil
}

func newBot(cfg Config, engine *ledger.Engine, store *storage.Store, clock ledger.Clock) *Bot {
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	return &Bot{
		engine:       engine,
		store:        store,
		clock:        clock,
		webAppURL:    cfg.WebAppURL,
		welcomeBonus: cfg.WelcomeBonus,
	}
}

func (b *Bot) register(tb *telebot.Bot) {
	tb.Handle("/start", b.handleStart)
	tb.Handle("/help", b.handleHelp)
	tb.Handle("/balance", b.handleBalance)
	tb.Handle("/markets", b.handleMarkets)
	tb.Handle("/mystakes", b.handleMyStakes)
	tb.Handle("/create", b.handleCreate)
	tb.Handle("/predict", b.handlePredict)
	tb.Handle("/resolve", b.handleResolve)
	tb.Handle("/claim", b.handleClaim)
	tb.Handle("/pause", b.handleSetPaused(true))
	tb.Handle("/unpause", b.handleSetPaused(false))
}

// API returns the underlying telebot client, used to send notifications
func (b *Bot) API() *telebot.Bot {
	return b.tb
}

// Start polls for updates until Stop is called
func (b *Bot) Start() {
	slog.Info("Bot started", "username", b.tb.Me.Username)
	b.tb.Start()
}

// Stop stops polling
func (b *Bot) Stop() {
	b.tb.Stop()
}

// identity returns the ledger identity of the message sender
func identity(c telebot.Context) string {
	return auth.TelegramIdentity(c.Sender().ID)
}

// ensureAccount opens the sender's account on first contact
func (b *Bot) ensureAccount(ctx context.Context, c telebot.Context) (*storage.Account, bool, error) {
	return b.store.OpenAccount(ctx, identity(c), b.welcomeBonus)
}
