package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kirillm/rijin-bot/internal/domain"
	"github.com/kirillm/rijin-bot/pkg/utils"
)

const maxMessageLength = 4096

// Sender часть tgbotapi.BotAPI, нужная для отправки
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink отправляет события в чат оператора
type TelegramSink struct {
	api       Sender
	chatID    int64
	formatter *Formatter
	logger    *utils.Logger
	skip      map[domain.EventKind]bool
}

// NewTelegramAPI авторизует бота; клиент общий для уведомлений и команд
func NewTelegramAPI(token string, logger *utils.Logger) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	logger.Info("Telegram bot authorized: @%s", bot.Self.UserName)
	return bot, nil
}

// NewTelegramSinkWithSender создает получатель поверх готового клиента
func NewTelegramSinkWithSender(api Sender, chatID int64, logger *utils.Logger) *TelegramSink {
	return &TelegramSink{
		api:       api,
		chatID:    chatID,
		formatter: NewFormatter(),
		logger:    logger,
		skip:      map[domain.EventKind]bool{},
	}
}

// Mute отключает отправку событий указанных типов
func (t *TelegramSink) Mute(kinds ...domain.EventKind) *TelegramSink {
	for _, k := range kinds {
		t.skip[k] = true
	}
	return t
}

func (t *TelegramSink) Notify(ctx context.Context, e domain.Event) error {
	if t.skip[e.Kind] {
		return nil
	}
	text := t.formatter.Format(e)
	if text == "" {
		return nil
	}
	return t.SendMessage(ctx, text)
}

// SendMessage отправляет HTML сообщение, разбивая длинные на части
func (t *TelegramSink) SendMessage(ctx context.Context, text string) error {
	for _, part := range splitMessage(text, maxMessageLength) {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg := tgbotapi.NewMessage(t.chatID, part)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := t.api.Send(msg); err != nil {
			t.logger.Error("Failed to send telegram message: %v", err)
			return fmt.Errorf("%w: telegram: %w", domain.ErrNotifier, err)
		}
	}
	return nil
}

// splitMessage разбивает длинное сообщение по строкам
func splitMessage(text string, maxLength int) []string {
	if len(text) <= maxLength {
		return []string{text}
	}

	var messages []string
	current := ""
	for _, line := range strings.Split(text, "\n") {
		if current != "" && len(current)+len(line)+1 > maxLength {
			messages = append(messages, current)
			current = ""
		}
		if current != "" {
			current += "\n"
		}
		current += line
	}
	if current != "" {
		messages = append(messages, current)
	}
	return messages
}
