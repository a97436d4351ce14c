package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	botmodels "github.com/go-telegram/bot/models"

	"github.com/grigta/adpulse/services/monitoring-service/internal/models"
)

// Notifier pushes new critical alerts to a human channel.
type Notifier interface {
	NotifyAlert(ctx context.Context, chatID int64, alert *models.Alert) error
}

// messageSender is the part of *bot.Bot the notifier uses.
type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*botmodels.Message, error)
}

type TelegramNotifier struct {
	sender        messageSender
	defaultChatID int64
}

func NewTelegramNotifier(token string, defaultChatID int64) (*TelegramNotifier, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return &TelegramNotifier{sender: b, defaultChatID: defaultChatID}, nil
}

// NotifyAlert sends to chatID, or the default chat when chatID is zero.
// Without any chat configured the alert is silently not sent.
func (n *TelegramNotifier) NotifyAlert(ctx context.Context, chatID int64, alert *models.Alert) error {
	if chatID == 0 {
		chatID = n.defaultChatID
	}
	if chatID == 0 {
		return nil
	}

	_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      FormatAlertMessage(alert),
		ParseMode: botmodels.ParseModeMarkdown,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func FormatAlertMessage(alert *models.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 *%s* · %s\n", markdownEscaper.Replace(alert.Title), strings.ToUpper(string(alert.Severity)))
	fmt.Fprintf(&b, "Client: `%s` · Channel: `%s`\n\n", alert.ClientID, alert.Channel)
	if alert.ShortDescription != "" {
		b.WriteString(markdownEscaper.Replace(alert.ShortDescription))
		b.WriteString("\n")
	}
	if alert.Impact != "" {
		fmt.Fprintf(&b, "\n_Impact:_ %s\n", markdownEscaper.Replace(alert.Impact))
	}
	if len(alert.SuggestedActions) > 0 {
		b.WriteString("\n*What to do:*\n")
		for _, action := range alert.SuggestedActions {
			fmt.Fprintf(&b, "• %s\n", markdownEscaper.Replace(action))
		}
	}
	return b.String()
}
