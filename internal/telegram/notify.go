package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notify delivers a one-off message to each chat without requiring a running
// bot instance. Used for operator pings around process lifecycle; failures
// are silent.
func Notify(token string, chatIDs []int64, text string) {
	if strings.TrimSpace(token) == "" || len(chatIDs) == 0 || strings.TrimSpace(text) == "" {
		return
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return
	}
	for _, chatID := range chatIDs {
		if chatID == 0 {
			continue
		}
		_, _ = bot.Send(tgbotapi.NewMessage(chatID, text))
	}
}
