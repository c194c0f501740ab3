package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"predictionledger/internal/ledger"
)

const maxQuestionLen = 50

var markdownEscaper = strings.NewReplacer(
	`_`, `\_`,
	`*`, `\*`,
	"`", "\\`",
	`[`, `\[`,
)

// escapeMarkdown escapes special characters for Telegram Markdown mode
func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// formatAmount formats a ledger amount with thousands separators
func formatAmount(amount int64) string {
	return humanize.Comma(amount) + " pts"
}

// formatDeadline renders an end timestamp relative to now
func formatDeadline(end, now int64) string {
	return humanize.RelTime(time.Unix(end, 0), time.Unix(now, 0), "ago", "from now")
}

// truncate shortens long descriptions for list output
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// parseEnd accepts an RFC3339 time or a duration relative to now ("36h")
func parseEnd(s string, now int64) (int64, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Unix(), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("end must be an RFC3339 time or a duration like 24h")
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return now + int64(d/time.Second), nil
}

// parseAmount parses a positive integer amount, allowing thousands separators
func parseAmount(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("amount must be a positive whole number")
	}
	return n, nil
}

// userMessage turns a ledger error into text safe to show a user. Storage
// failures are not exposed.
func userMessage(err error) string {
	var lerr *ledger.Error
	if errors.As(err, &lerr) {
		return lerr.Message
	}
	return "Something went wrong. Please try again."
}

func outcomeLabel(o ledger.Outcome) string {
	if o == ledger.OutcomeYes {
		return "✅ YES"
	}
	return "🔴 NO"
}
