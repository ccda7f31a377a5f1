package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"consultbook/internal/config"
	"consultbook/internal/domain"
	"consultbook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramNotifier рассылает менеджерам сообщение о новой заявке.
type TelegramNotifier struct {
	bot     domain.TelegramSender
	chatIDs []int64
	logger  *zerolog.Logger
}

func NewTelegramNotifier(bot domain.TelegramSender, chatIDs []int64, logger *zerolog.Logger) *TelegramNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &TelegramNotifier{
		bot:     bot,
		chatIDs: append([]int64(nil), chatIDs...),
		logger:  logger,
	}
}

// NewBotAPI connects to Telegram with the configured token.
func NewBotAPI(cfg config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	if !cfg.Enabled() {
		return nil, errors.New("telegram notifications are not configured")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	return bot, nil
}

// NotifyConsultation sends the summary to every manager chat. Failed chats do
// not stop the rest; their errors are joined.
func (n *TelegramNotifier) NotifyConsultation(ctx context.Context, c *models.Consultation) error {
	if c == nil {
		return errors.New("consultation is nil")
	}
	text := FormatConsultation(c)

	var errs []error
	for _, chatID := range n.chatIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = models.ParseModeMarkdown
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Warn().Err(err).Int64("chat_id", chatID).Str("reference", c.Reference).Msg("manager notification failed")
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
		}
	}
	return errors.Join(errs...)
}

// FormatConsultation renders the Markdown message body.
func FormatConsultation(c *models.Consultation) string {
	esc := func(s string) string {
		return tgbotapi.EscapeText(models.ParseModeMarkdown, s)
	}

	var b strings.Builder
	b.WriteString("📅 *Новая заявка на консультацию*\n\n")
	fmt.Fprintf(&b, "*Дата:* %s\n", c.Date.Format("02.01.2006"))
	fmt.Fprintf(&b, "*Время:* %s–%s (%d мин)\n", c.StartTime, c.EndTime, c.Duration)
	fmt.Fprintf(&b, "*Имя:* %s\n", esc(c.Name))
	fmt.Fprintf(&b, "*Email:* %s\n", esc(c.Email))
	if c.Company != "" {
		fmt.Fprintf(&b, "*Компания:* %s\n", esc(c.Company))
	}
	if c.Message != "" {
		fmt.Fprintf(&b, "\n💬 %s\n", esc(c.Message))
	}
	fmt.Fprintf(&b, "\n`%s`", c.Reference)
	return b.String()
}
