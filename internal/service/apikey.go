package service

import (
	"context"
	"fmt"
	"html"

	"go.uber.org/zap"

	"github.com/and161185/userdir/internal/crypto"
	"github.com/and161185/userdir/internal/model"
	"github.com/and161185/userdir/internal/telegram"
)

// Status is the outcome of an issuance request.
type Status int

const (
	StatusOK Status = iota
	StatusForbidden
	StatusNotFound
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusForbidden:
		return "forbidden"
	case StatusNotFound:
		return "not_found"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Notices sent back to the requesting chat.
const (
	NoticePrivateOnly    = "Please request your new API KEY in a private message!"
	NoticeAlreadyIssued  = "You already have an API KEY!"
	noticeIssuedTemplate = "Your new API KEY:\n\n<code>%s</code>\n\nKeep it safe, it will not be shown again."
)

// Result is returned by APIKeyIssuer.Execute.
type Result struct {
	Status Status
	UserID string // directory key of the sender, empty when unresolved
}

// Notifier delivers outbound chat messages.
type Notifier interface {
	SendMessage(ctx context.Context, msg telegram.OutboundMessage) error
}

// APIKeyIssuer attaches a freshly generated API key to the sender's
// directory record, at most once per record.
type APIKeyIssuer struct {
	dir    DirectoryService
	notify Notifier
	log    *zap.Logger

	newKey func() (string, error)
}

// NewAPIKeyIssuer constructs the workflow.
func NewAPIKeyIssuer(dir DirectoryService, notify Notifier, log *zap.Logger) *APIKeyIssuer {
	if log == nil {
		log = zap.NewNop()
	}
	return &APIKeyIssuer{dir: dir, notify: notify, log: log, newKey: crypto.NewAPIKey}
}

// Execute handles one inbound request. The private-chat check runs before the
// already-issued check so a key is never discussed in a shared chat.
// Lookup, update and delivery failures are returned unchanged.
func (w *APIKeyIssuer) Execute(ctx context.Context, msg telegram.Message) (Result, error) {
	sender := msg.SenderID()
	log := w.log.With(zap.String("sender", sender), zap.Int64("chat_id", msg.Chat.ID))

	u, err := w.dir.LookupByExternalID(ctx, sender)
	if err != nil {
		return Result{}, err
	}

	if !msg.IsPrivate() {
		log.Info("api key requested outside private chat", zap.String("chat_type", msg.Chat.Type))
		return Result{Status: StatusForbidden, UserID: userKey(u)}, w.reply(ctx, msg, NoticePrivateOnly)
	}

	if u == nil {
		log.Warn("api key requested by unknown sender")
		return Result{Status: StatusNotFound}, nil
	}

	if u.HasAPIKey() {
		log.Info("api key already issued", zap.String("user", u.UUID))
		return Result{Status: StatusForbidden, UserID: u.UUID}, w.reply(ctx, msg, NoticeAlreadyIssued)
	}

	key, err := w.newKey()
	if err != nil {
		return Result{}, fmt.Errorf("generate api key: %w", err)
	}
	// privileged update overwrites id, role and name, so carry the current ones
	upd := model.User{
		UUID:       u.UUID,
		ExternalID: u.ExternalID,
		Username:   u.Username,
		Role:       u.Role,
		APIKey:     key,
	}
	if _, err := w.dir.UpdatePrivileged(ctx, upd); err != nil {
		return Result{}, err
	}

	err = w.notify.SendMessage(ctx, telegram.OutboundMessage{
		ChatID:           msg.Chat.ID,
		Text:             fmt.Sprintf(noticeIssuedTemplate, html.EscapeString(key)),
		ProtectContent:   true,
		ParseMode:        telegram.ParseModeHTML,
		ReplyToMessageID: msg.MessageID,
	})
	if err != nil {
		return Result{}, fmt.Errorf("deliver api key: %w", err)
	}
	log.Info("api key issued", zap.String("user", u.UUID))
	return Result{Status: StatusOK, UserID: u.UUID}, nil
}

func (w *APIKeyIssuer) reply(ctx context.Context, msg telegram.Message, text string) error {
	return w.notify.SendMessage(ctx, telegram.OutboundMessage{
		ChatID:           msg.Chat.ID,
		Text:             text,
		ReplyToMessageID: msg.MessageID,
	})
}

func userKey(u *model.User) string {
	if u == nil {
		return ""
	}
	return u.UUID
}
