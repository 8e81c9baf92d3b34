package telegram

// BotAPI is the notification transport. Send returns the transport's message
// id so editable messages can be updated in place later. Edit returns
// ErrStaleTarget when the referenced message no longer accepts edits.
type BotAPI interface {
	Send(chatID int64, text string) (int, error)
	Edit(chatID int64, messageID int, text string) error
}
