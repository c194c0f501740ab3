package bot

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/telebot.v3"

	"predictionledger/internal/ledger"
	"predictionledger/internal/logger"
	"predictionledger/internal/storage"
)

var markdown = &telebot.SendOptions{ParseMode: telebot.ModeMarkdown}

const helpText = "📚 *Available Commands*\n\n" +
	"/start - Open your account and receive the welcome bonus\n" +
	"/balance - Check your current balance\n" +
	"/markets - List open markets\n" +
	"/mystakes - List your predictions\n" +
	"/create <id> <end> <min\\_bet> <description> - Create a market. End is RFC3339 or a duration like 48h\n" +
	"/predict <id> <yes|no> <amount> - Stake on a market\n" +
	"/resolve <id> <yes|no> - Resolve a market you created\n" +
	"/claim <id> - Claim winnings from a resolved market\n" +
	"/help - Show this help message"

func (b *Bot) handleStart(c telebot.Context) error {
	user := identity(c)
	logger.Debug(user, "command_start", fmt.Sprintf("username=%s first_name=%s", c.Sender().Username, c.Sender().FirstName))

	acct, created, err := b.ensureAccount(context.Background(), c)
	if err != nil {
		logger.Debug(user, "error", fmt.Sprintf("failed to open account: %v", err))
		return c.Send("Error creating your account. Please try again.")
	}
	if created {
		logger.Debug(user, "account_created", fmt.Sprintf("welcome_bonus=%d", b.welcomeBonus))
	}

	welcomeMsg := fmt.Sprintf("Welcome to the Prediction Market! 🎉\n\nHi, %s! You have %s.\n\nStake on YES/NO markets and win a share of the pool. Use /help to see the commands.",
		c.Sender().FirstName, formatAmount(acct.Balance))

	if b.webAppURL == "" {
		return c.Send(welcomeMsg)
	}
	btn := telebot.InlineButton{
		Text:   "🎯 Open Prediction Market",
		WebApp: &telebot.WebApp{URL: b.webAppURL},
	}
	return c.Send(welcomeMsg, &telebot.ReplyMarkup{
		InlineKeyboard: [][]telebot.InlineButton{{btn}},
	})
}

func (b *Bot) handleHelp(c telebot.Context) error {
	logger.Debug(identity(c), "command_help", "")
	return c.Send(helpText, markdown)
}

func (b *Bot) handleBalance(c telebot.Context) error {
	user := identity(c)
	logger.Debug(user, "command_balance", "")

	acct, err := b.store.Account(context.Background(), user)
	if err != nil {
		logger.Debug(user, "error", fmt.Sprintf("failed to get account: %v", err))
		return c.Send("You haven't started the bot yet. Use /start to create your account!")
	}
	return c.Send(fmt.Sprintf("💰 *Your Balance*\n\nCurrent Balance: %s", formatAmount(acct.Balance)), markdown)
}

func (b *Bot) handleMarkets(c telebot.Context) error {
	user := identity(c)
	logger.Debug(user, "command_markets", "")

	now := b.clock.Now()
	markets, err := b.store.ListMarkets(context.Background(), true, now, storage.ListOpts{Limit: 20})
	if err != nil {
		logger.Debug(user, "error", fmt.Sprintf("failed to list markets: %v", err))
		return c.Send("Error retrieving markets. Please try again.")
	}
	if len(markets) == 0 {
		return c.Send("📊 *Open Markets*\n\nNo open markets at the moment. Use /create to start one!", markdown)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 *Open Markets* (%d)\n\n", len(markets))
	for i, m := range markets {
		fmt.Fprintf(&sb, "*%d.* `%s`\n   %s\n   💰 YES: %s | NO: %s\n   ⏰ closes %s\n\n",
			i+1,
			m.ID,
			escapeMarkdown(truncate(m.Description, maxQuestionLen)),
			formatAmount(m.TotalYesAmount),
			formatAmount(m.TotalNoAmount),
			formatDeadline(m.EndTimestamp, now))
	}
	sb.WriteString("Use /predict <id> <yes|no> <amount> to stake.")
	return c.Send(sb.String(), markdown)
}

func (b *Bot) handleMyStakes(c telebot.Context) error {
	user := identity(c)
	logger.Debug(user, "command_mystakes", "")

	stakes, err := b.store.ListUserStakes(context.Background(), user, storage.ListOpts{Limit: 10})
	if err != nil {
		logger.Debug(user, "error", fmt.Sprintf("failed to list stakes: %v", err))
		return c.Send("Error retrieving your predictions. Please try again.")
	}
	if len(stakes) == 0 {
		return c.Send("🎯 You haven't placed any predictions yet.")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🎯 *Your Predictions* (%d)\n\n", len(stakes))
	for i, s := range stakes {
		status := "⏳ open"
		if s.Claimed {
			status = "💰 claimed " + formatAmount(s.Winnings)
		}
		fmt.Fprintf(&sb, "*%d.* `%s` %s | %s | %s\n", i+1, s.MarketID, outcomeLabel(s.Prediction), formatAmount(s.Amount), status)
	}
	return c.Send(sb.String(), markdown)
}

func (b *Bot) handleCreate(c telebot.Context) error {
	user := identity(c)
	args := c.Args()
	logger.Debug(user, "command_create", fmt.Sprintf("args=%d", len(args)))

	if len(args) < 3 {
		return c.Send("❌ Usage: /create <id> <end> <min_bet> <description>")
	}
	end, err := parseEnd(args[1], b.clock.Now())
	if err != nil {
		return c.Send("❌ " + err.Error())
	}
	minBet, err := parseAmount(args[2])
	if err != nil {
		return c.Send("❌ " + err.Error())
	}

	m, err := b.engine.CreateMarket(context.Background(), ledger.CreateMarketParams{
		ID:           args[0],
		Description:  strings.Join(args[3:], " "),
		EndTimestamp: end,
		MinBetAmount: minBet,
		Creator:      user,
	})
	if err != nil {
		logger.Debug(user, "create_error", fmt.Sprintf("market_id=%s error=%s", args[0], err.Error()))
		return c.Send("❌ Market creation failed: " + userMessage(err))
	}

	logger.Debug(user, "market_created", "market_id="+m.ID)
	return c.Send(fmt.Sprintf("✅ Market `%s` created. It closes %s with a minimum stake of %s.",
		m.ID, formatDeadline(m.EndTimestamp, b.clock.Now()), formatAmount(m.MinBetAmount)), markdown)
}

func (b *Bot) handlePredict(c telebot.Context) error {
	user := identity(c)
	args := c.Args()
	logger.Debug(user, "command_predict", fmt.Sprintf("args=%d", len(args)))

	if len(args) != 3 {
		return c.Send("❌ Usage: /predict <id> <yes|no> <amount>")
	}
	outcome, err := ledger.ParseOutcome(args[1])
	if err != nil {
		return c.Send("❌ " + userMessage(err))
	}
	amount, err := parseAmount(args[2])
	if err != nil {
		return c.Send("❌ " + err.Error())
	}

	ctx := context.Background()
	if _, _, err := b.ensureAccount(ctx, c); err != nil {
		logger.Debug(user, "error", fmt.Sprintf("failed to open account: %v", err))
		return c.Send("Error retrieving your account. Please try again.")
	}

	stake, m, err := b.engine.PlacePrediction(ctx, args[0], user, amount, outcome)
	if err != nil {
		logger.Debug(user, "predict_error", fmt.Sprintf("market_id=%s error=%s", args[0], err.Error()))
		return c.Send("❌ Prediction failed: " + userMessage(err))
	}

	logger.Debug(user, "prediction_placed", fmt.Sprintf("market_id=%s amount=%d outcome=%s", m.ID, stake.Amount, stake.Prediction))
	return c.Send(fmt.Sprintf("✅ Staked %s on %s for `%s`.\n\n💰 Pool: YES %s | NO %s",
		formatAmount(stake.Amount), outcomeLabel(stake.Prediction), m.ID,
		formatAmount(m.TotalYesAmount), formatAmount(m.TotalNoAmount)), markdown)
}

func (b *Bot) handleResolve(c telebot.Context) error {
	user := identity(c)
	args := c.Args()
	logger.Debug(user, "command_resolve", fmt.Sprintf("args=%d", len(args)))

	if len(args) != 2 {
		return c.Send("❌ Usage: /resolve <id> <yes|no>")
	}
	outcome, err := ledger.ParseOutcome(args[1])
	if err != nil {
		return c.Send("❌ " + userMessage(err))
	}

	m, err := b.engine.ResolveMarket(context.Background(), args[0], user, outcome)
	if err != nil {
		logger.Debug(user, "resolve_error", fmt.Sprintf("market_id=%s error=%s", args[0], err.Error()))
		return c.Send("❌ Resolution failed: " + userMessage(err))
	}

	logger.Debug(user, "market_resolved", fmt.Sprintf("market_id=%s outcome=%s", m.ID, m.Outcome))
	return c.Send(fmt.Sprintf("✅ Market `%s` resolved as %s. Winners can now /claim %s.", m.ID, outcomeLabel(m.Outcome), m.ID), markdown)
}

func (b *Bot) handleClaim(c telebot.Context) error {
	user := identity(c)
	args := c.Args()
	logger.Debug(user, "command_claim", fmt.Sprintf("args=%d", len(args)))

	if len(args) != 1 {
		return c.Send("❌ Usage: /claim <id>")
	}

	stake, err := b.engine.ClaimWinnings(context.Background(), args[0], user)
	if err != nil {
		logger.Debug(user, "claim_error", fmt.Sprintf("market_id=%s error=%s", args[0], err.Error()))
		return c.Send("❌ Claim failed: " + userMessage(err))
	}

	logger.Debug(user, "winnings_claimed", fmt.Sprintf("market_id=%s winnings=%d", stake.MarketID, stake.Winnings))
	return c.Send(fmt.Sprintf("🎉 You received %s from `%s`.", formatAmount(stake.Winnings), stake.MarketID), markdown)
}

func (b *Bot) handleSetPaused(paused bool) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		user := identity(c)
		logger.Debug(user, "command_set_paused", fmt.Sprintf("paused=%t", paused))

		if _, err := b.engine.SetPaused(context.Background(), user, paused); err != nil {
			logger.Debug(user, "set_paused_error", err.Error())
			return c.Send("❌ " + userMessage(err))
		}
		if paused {
			return c.Send("⏸ Market creation is paused.")
		}
		return c.Send("▶️ Market creation is resumed.")
	}
}
