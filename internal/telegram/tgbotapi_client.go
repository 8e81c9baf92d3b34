package telegram

import (
	"strings"

	"github.com/bandwatch/bandwatch/internal/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TGBotAPIClient adapts tgbotapi.BotAPI to the BotAPI interface.
type TGBotAPIClient struct {
	bot *tgbotapi.BotAPI
}

var _ BotAPI = (*TGBotAPIClient)(nil)

// NewTGBotAPIClient creates a new Telegram client using tgbotapi.
func NewTGBotAPIClient(token string) (*TGBotAPIClient, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &TGBotAPIClient{bot: bot}, nil
}

// Send sends a message and returns its Telegram message id.
func (c *TGBotAPIClient) Send(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	sent, err := c.bot.Send(msg)
	if err != nil {
		return 0, &errors.ErrDeliveryFailed{ChatID: chatID, Err: err}
	}
	return sent.MessageID, nil
}

// Edit replaces the text of a previously sent message. Telegram rejects
// edits against deleted messages and edits that change nothing; both mean
// the local reference is no longer useful, so they map to ErrStaleTarget.
func (c *TGBotAPIClient) Edit(chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := c.bot.Send(edit); err != nil {
		if isStaleEditError(err) {
			return &errors.ErrStaleTarget{ChatID: chatID, MessageID: messageID}
		}
		return &errors.ErrDeliveryFailed{ChatID: chatID, Err: err}
	}
	return nil
}

func isStaleEditError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "message to edit not found") ||
		strings.Contains(msg, "message is not modified")
}
