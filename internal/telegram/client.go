// Package telegram sends qualification-swing notifications via the Telegram
// Bot API. It formats the headline numbers of a run into a MarkdownV2
// message and handles delivery with retry for transient API failures.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/korhall/sigcast/internal/models"
)

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// SendReport sends the headline summary of a run.
func (c *Client) SendReport(report *models.Report) error {
	msg := tgbotapi.NewMessage(c.chatID, formatReport(report))
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed to send message after %d retries: %w", c.maxRetries, lastErr)
}

// formatReport renders the headline numbers and run-over-run movement.
func formatReport(report *models.Report) string {
	var b strings.Builder
	b.WriteString("📊 *Petition Qualification Update*\n\n")

	dateStr := escapeMarkdownV2(report.Meta.LastSnapshot.Format("2006-01-02"))
	b.WriteString(fmt.Sprintf("📅 Data through: %s\n\n", dateStr))

	qualifyStr := escapeMarkdownV2(fmt.Sprintf("%.1f%%", report.Overall.QualifyProbability*100))
	deltaEmoji := "📈"
	if report.Movers.OverallDelta < 0 {
		deltaEmoji = "📉"
	}
	deltaStr := escapeMarkdownV2(fmt.Sprintf("%+.1f pp", report.Movers.OverallDelta*100))
	expectedStr := escapeMarkdownV2(fmt.Sprintf("%.1f", report.Overall.ExpectedQualifying))
	confidenceStr := escapeMarkdownV2(fmt.Sprintf("%.0f%%", report.Overall.Confidence*100))

	b.WriteString(fmt.Sprintf("P\\(qualify\\): *%s* %s %s\n", qualifyStr, deltaEmoji, deltaStr))
	b.WriteString(fmt.Sprintf("Expected districts: %s of %d needed\n", expectedStr, report.Meta.DistrictsRequired))
	b.WriteString(fmt.Sprintf("Confidence: %s\n", confidenceStr))

	if len(report.Movers.NewlyMet) > 0 {
		b.WriteString(fmt.Sprintf("\n✅ Newly met threshold: %s\n", escapeMarkdownV2(formatDistrictList(report.Movers.NewlyMet))))
	}
	if len(report.Movers.NewlyFailed) > 0 {
		b.WriteString(fmt.Sprintf("\n⚠️ Fell below threshold: %s\n", escapeMarkdownV2(formatDistrictList(report.Movers.NewlyFailed))))
	}

	return b.String()
}

func formatDistrictList(districts []int) string {
	parts := make([]string, len(districts))
	for i, d := range districts {
		parts[i] = fmt.Sprintf("D%d", d)
	}
	return strings.Join(parts, ", ")
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
