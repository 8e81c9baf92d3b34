package telegram

import (
	stderrors "errors"

	"github.com/bandwatch/bandwatch/internal/errors"
	"github.com/bandwatch/bandwatch/internal/logging"
	"github.com/bandwatch/bandwatch/internal/store"
)

// Updater maintains one live, editable status message per (job type, chat).
// The first delivery sends a fresh message and records its id; later
// deliveries edit that message in place. A stale reference (message deleted
// by the recipient, or content unchanged) is dropped and the delivery
// skipped; the next cycle sends fresh. Resending within the same cycle
// would duplicate the status message on every unchanged tick.
type Updater struct {
	bot    BotAPI
	store  *store.SQLiteStore
	logger *logging.Logger
}

// NewUpdater creates an Updater on the given transport and store.
func NewUpdater(bot BotAPI, st *store.SQLiteStore, logger *logging.Logger) *Updater {
	return &Updater{bot: bot, store: st, logger: logger}
}

// Upsert delivers text to chatID under jobType, editing the existing live
// message when one is recorded. A stale edit target drops the record and
// ends the delivery; the next Upsert starts over with a fresh send.
func (u *Updater) Upsert(jobType string, chatID int64, text string) error {
	messages, err := u.store.ScheduledMessages(jobType)
	if err != nil {
		return err
	}

	var messageID int
	for _, m := range messages {
		if m.ChatID == chatID {
			messageID = m.MessageID
			break
		}
	}

	if messageID != 0 {
		err := u.bot.Edit(chatID, messageID, text)
		if err == nil {
			return nil
		}

		var stale *errors.ErrStaleTarget
		if !stderrors.As(err, &stale) {
			return err
		}

		u.logger.Debug("stale status message dropped", "job_type", jobType, "chat_id", chatID, "message_id", messageID)
		return u.store.DeleteScheduledMessage(jobType, chatID)
	}

	newID, err := u.bot.Send(chatID, text)
	if err != nil {
		return err
	}
	return u.store.UpsertScheduledMessage(jobType, chatID, newID)
}
