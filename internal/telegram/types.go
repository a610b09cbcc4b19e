// Package telegram holds the Bot API types the service consumes and a
// minimal client for sending messages.
package telegram

import "strconv"

// ChatPrivate is the chat type of one-to-one conversations with the bot.
const ChatPrivate = "private"

// ParseMode selects rich formatting of outbound text.
type ParseMode string

// ParseModeHTML enables the HTML subset supported by the Bot API.
const ParseModeHTML ParseMode = "HTML"

// Update is an incoming webhook payload.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message is the part of an inbound message the service reads.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text,omitempty"`
}

// User is a message sender.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// Chat identifies where a message was posted.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"` // private, group, supergroup, channel
}

// SenderID returns the sender's id as the directory external id, or "" for
// messages without a sender (channel posts).
func (m Message) SenderID() string {
	if m.From == nil {
		return ""
	}
	return strconv.FormatInt(m.From.ID, 10)
}

// IsPrivate reports whether the message came from a private chat.
func (m Message) IsPrivate() bool { return m.Chat.Type == ChatPrivate }

// OutboundMessage is a sendMessage request.
type OutboundMessage struct {
	ChatID           int64     `json:"chat_id"`
	Text             string    `json:"text"`
	ProtectContent   bool      `json:"protect_content,omitempty"`
	ParseMode        ParseMode `json:"parse_mode,omitempty"`
	ReplyToMessageID int64     `json:"reply_to_message_id,omitempty"`
}
