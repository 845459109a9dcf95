package service

import (
	"frontdesk/internal/domain"
	"frontdesk/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type TelegramService struct {
	bot domain.TelegramSender
}

func NewTelegramService(bot domain.TelegramSender) *TelegramService {
	return &TelegramService{
		bot: bot,
	}
}

// SendMarkdown sends text as legacy Markdown; callers escape user data with EscapeMarkdown.
func (s *TelegramService) SendMarkdown(chatID int64, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = models.ParseModeMarkdown
	return s.bot.Send(msg)
}

func EscapeMarkdown(text string) string {
	return tgbotapi.EscapeText(models.ParseModeMarkdown, text)
}
