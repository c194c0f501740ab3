package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"gopkg.in/telebot.v3"

	"predictionledger/internal/auth"
	"predictionledger/internal/event"
	"predictionledger/internal/ledger"
	"predictionledger/internal/logger"
)

// Sender is the subset of *telebot.Bot used to deliver messages
type Sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// StakeLister lists the stakes of a market
type StakeLister interface {
	ListStakes(ctx context.Context, marketID string) ([]ledger.StakeRecord, error)
}

// NotificationService turns ledger events into Telegram messages
type NotificationService struct {
	sender    Sender
	stakes    StakeLister
	mu        sync.Mutex
	channelID string
}

// NewNotificationService creates a new notification service. An empty
// channelID disables channel broadcasts.
func NewNotificationService(sender Sender, stakes StakeLister, channelID string) *NotificationService {
	return &NotificationService{
		sender:    sender,
		stakes:    stakes,
		channelID: channelID,
	}
}

// Subscribe registers the service's handlers on bus
func (s *NotificationService) Subscribe(bus event.Bus) {
	bus.Subscribe(event.MarketCreated, s.onMarketCreated)
	bus.Subscribe(event.MarketResolved, s.onMarketResolved)
	bus.Subscribe(event.WinningsClaimed, s.onWinningsClaimed)
}

// formatBalance formats an amount with thousands separators
func formatBalance(balance int64) string {
	return humanize.Comma(balance) + " pts"
}

func (s *NotificationService) onMarketCreated(_ context.Context, evt event.Event) error {
	p, ok := evt.Payload.(event.MarketCreatedPayloadV1)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", evt.Payload, evt.Type)
	}
	return s.PublishNewMarket(p)
}

func (s *NotificationService) onMarketResolved(ctx context.Context, evt event.Event) error {
	p, ok := evt.Payload.(event.MarketResolvedPayloadV1)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", evt.Payload, evt.Type)
	}
	if err := s.PublishResolution(p); err != nil {
		logger.Debug("", "broadcast_error", err.Error())
	}
	return s.NotifyParticipants(ctx, p)
}

func (s *NotificationService) onWinningsClaimed(_ context.Context, evt event.Event) error {
	p, ok := evt.Payload.(event.WinningsClaimedPayloadV1)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", evt.Payload, evt.Type)
	}
	message := fmt.Sprintf("🏆 You claimed %s from market '%s'\n\nYour stake: %s on %s\nProfit: %s",
		formatBalance(p.Winnings),
		p.MarketID,
		formatBalance(p.Amount),
		p.Prediction,
		formatBalance(p.Winnings-p.Amount))
	return s.sendToIdentity(p.User, message)
}

// NotifyParticipants sends every Telegram participant of a resolved market
// a win or loss message. Winners are told their expected payout.
func (s *NotificationService) NotifyParticipants(ctx context.Context, p event.MarketResolvedPayloadV1) error {
	stakes, err := s.stakes.ListStakes(ctx, p.MarketID)
	if err != nil {
		return fmt.Errorf("list stakes for %s: %w", p.MarketID, err)
	}

	outcome := ledger.Outcome(p.Outcome)
	var failed int
	for _, st := range stakes {
		var message string
		if st.Prediction == outcome {
			payout, err := ledger.CalculateWinnings(st.Amount, p.TotalYesAmount, p.TotalNoAmount, outcome)
			if err != nil {
				logger.Debug(st.User, "notification_error", fmt.Sprintf("market_id=%s error=%v", p.MarketID, err))
				failed++
				continue
			}
			message = fmt.Sprintf("🎉 Market '%s' resolved %s. Your stake of %s won!\n\nPayout: %s\nUse /claim %s to collect it.",
				p.MarketID, p.Outcome, formatBalance(st.Amount), formatBalance(payout), p.MarketID)
		} else {
			message = fmt.Sprintf("📉 Market '%s' resolved %s. Your stake of %s on %s did not win.",
				p.MarketID, p.Outcome, formatBalance(st.Amount), st.Prediction)
		}
		if err := s.sendToIdentity(st.User, message); err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d participant notifications failed for %s", failed, len(stakes), p.MarketID)
	}
	return nil
}

// NotifyMarketCreatorDeadline tells the market authority that the market
// has reached its end timestamp and can be resolved.
func (s *NotificationService) NotifyMarketCreatorDeadline(m ledger.Market) error {
	message := fmt.Sprintf("⏰ *Market Deadline Reached*\n\nYour market `%s` (%s) has closed for predictions.\n\n"+
		"Please resolve it so winners can claim:\n"+
		"• /resolve %s yes\n"+
		"• /resolve %s no",
		m.ID,
		escapeMarkdown(truncateString(m.Description, 50)),
		m.ID,
		m.ID)
	return s.sendToIdentity(m.Authority, message, &telebot.SendOptions{ParseMode: telebot.ModeMarkdown})
}

// PublishNewMarket broadcasts a new market to the public channel
func (s *NotificationService) PublishNewMarket(p event.MarketCreatedPayloadV1) error {
	if s.channelID == "" {
		return nil
	}
	message := fmt.Sprintf("🆕 *New Market Created*\n\n`%s` %s\n\n💵 Min stake: %s\n\n🎯 Place your predictions!",
		p.ID,
		escapeMarkdown(truncateString(p.Description, 80)),
		formatBalance(p.MinBetAmount))
	return s.broadcast(message, "market_id="+p.ID)
}

// PublishResolution broadcasts a market resolution to the public channel
func (s *NotificationService) PublishResolution(p event.MarketResolvedPayloadV1) error {
	if s.channelID == "" {
		return nil
	}
	pool, err := ledger.CheckedAdd(p.TotalYesAmount, p.TotalNoAmount)
	if err != nil {
		return fmt.Errorf("total pool of %s: %w", p.MarketID, err)
	}
	outcomeEmoji := "✅"
	if p.Outcome == string(ledger.OutcomeNo) {
		outcomeEmoji = "❌"
	}
	message := fmt.Sprintf("🏁 *Market Resolved*\n\n`%s`\n\n%s Outcome: *%s*\n💰 Total Pool: %s\n\nWinners can now claim their share.",
		p.MarketID,
		outcomeEmoji,
		p.Outcome,
		formatBalance(pool))
	return s.broadcast(message, "market_id="+p.MarketID)
}

func (s *NotificationService) broadcast(message, details string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.sender.Send(s.getChannelRecipient(), message, &telebot.SendOptions{
		ParseMode: telebot.ModeMarkdown,
	})
	if err != nil {
		logger.Debug("", "broadcast_error", fmt.Sprintf("channel=%s error=%v", s.channelID, err))
		return fmt.Errorf("broadcast to %s: %w", s.channelID, err)
	}
	logger.Debug("", "broadcast_sent", details)
	return nil
}

// sendToIdentity delivers a DM to a Telegram identity. Other identities have
// no chat and are skipped.
func (s *NotificationService) sendToIdentity(identity, message string, opts ...interface{}) error {
	chatID, ok := auth.TelegramUserID(identity)
	if !ok {
		logger.Debug(identity, "notification_skipped", "not a telegram identity")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.sender.Send(&telebot.User{ID: chatID}, message, opts...); err != nil {
		logger.Debug(identity, "notification_error", fmt.Sprintf("failed to send notification: %v", err))
		return fmt.Errorf("notify %s: %w", identity, err)
	}
	logger.Debug(identity, "notification_sent", "")
	return nil
}

// channelUsername addresses a public channel by its @username
type channelUsername string

// Recipient implements telebot.Recipient
func (c channelUsername) Recipient() string { return string(c) }

// getChannelRecipient returns the appropriate recipient for the configured channel
func (s *NotificationService) getChannelRecipient() telebot.Recipient {
	if strings.HasPrefix(s.channelID, "@") {
		return channelUsername(s.channelID)
	}
	return &telebot.Chat{ID: parseChannelID(s.channelID)}
}

// parseChannelID parses a channel ID string (supports numeric IDs)
func parseChannelID(channelID string) int64 {
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// truncateString truncates a string to maxLen and adds ellipsis if needed
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return strings.TrimSpace(string(r[:maxLen-3])) + "..."
}

var markdownEscaper = strings.NewReplacer(`_`, `\_`, `*`, `\*`, "`", "\\`", `[`, `\[`)

// escapeMarkdown escapes special characters for Telegram Markdown mode
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
