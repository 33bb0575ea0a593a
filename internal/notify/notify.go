// Package notify sends repayment receipts to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"moneyflow/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Notifier interface {
	RepaymentAllocated(ctx context.Context, person domain.Person, repayment domain.Transaction, alloc domain.RepaymentAllocation)
}

type Nop struct{}

func (Nop) RepaymentAllocated(context.Context, domain.Person, domain.Transaction, domain.RepaymentAllocation) {
}

// Sender is the part of tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramNotifier struct {
	bot    Sender
	chatID int64
}

func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	slog.Info("Telegram бот подключён", "username", bot.Self.UserName)
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

func NewTelegramNotifierWithSender(s Sender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{bot: s, chatID: chatID}
}

func (n *TelegramNotifier) RepaymentAllocated(ctx context.Context, person domain.Person, repayment domain.Transaction, alloc domain.RepaymentAllocation) {
	msg := tgbotapi.NewMessage(n.chatID, FormatReceipt(person, repayment, alloc))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.bot.Send(msg); err != nil {
		slog.Error("Не удалось отправить уведомление", "error", err, "person_id", person.ID, "repayment_id", repayment.ID)
	}
}

// FormatReceipt renders an allocation as a Markdown message. User-supplied
// names and tags are escaped so they cannot break entity parsing.
func FormatReceipt(person domain.Person, repayment domain.Transaction, alloc domain.RepaymentAllocation) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("💸 *%s* вернул(а) %s", escape(person.Name), alloc.Amount.StringFixed(2)))
	lines = append(lines, repayment.OccurredAt.Format("2006-01-02"))
	for _, d := range alloc.Debts {
		if d.ID == nil {
			lines = append(lines, fmt.Sprintf("- без долга: %s", d.Amount.StringFixed(2)))
			continue
		}
		label := d.Tag
		if label == "" {
			label = d.ID.String()[:8]
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", escape(label), d.Amount.StringFixed(2)))
	}
	return strings.Join(lines, "\n")
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}
