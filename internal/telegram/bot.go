package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kirillm/rijin-bot/pkg/utils"
)

// BotAPI часть tgbotapi.BotAPI, нужная боту команд
type BotAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot принимает команды оператора; торговых команд нет
type Bot struct {
	api    BotAPI
	router *Router
	logger *utils.Logger
}

// NewBot создает бота команд
func NewBot(api BotAPI, router *Router, logger *utils.Logger) *Bot {
	return &Bot{api: api, router: router, logger: logger}
}

// Start обрабатывает обновления до отмены контекста
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("🤖 Telegram command bot started")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("Telegram command bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

// handleMessage обрабатывает входящую команду
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	userID := message.Chat.ID
	if message.From != nil {
		userID = message.From.ID
	}

	reply, err := b.router.HandleCommand(ctx, userID, message.Text)
	if err != nil {
		b.logger.Warn("⚠️ Command %q failed: %v", message.Text, err)
	}
	if reply == "" {
		b.logger.Warn("Unauthorized command from user %d", userID)
		return
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, reply)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyToMessageID = message.MessageID
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send telegram reply: %v", err)
	}
}
