package app

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/domain"
)

const (
	DefaultHistory = 50
	MaxHistory     = 200
)

// Chat posts messages into a room's text channel and keeps its history.
type Chat struct {
	store    core.MessageStore
	tracker  *Tracker
	notifier core.Notifier
	now      func() time.Time
}

func NewChat(store core.MessageStore, tracker *Tracker, notifier core.Notifier, now func() time.Time) *Chat {
	if now == nil {
		now = time.Now
	}
	return &Chat{store: store, tracker: tracker, notifier: notifier, now: now}
}

// Send posts as conn, which must hold a text session in room.
func (c *Chat) Send(ctx context.Context, room domain.RoomID, conn domain.ConnectionID, content string, typ domain.MessageType) (domain.Message, error) {
	sess, ok := c.tracker.Current(conn, domain.KindText)
	if !ok || sess.RoomID != room {
		return domain.Message{}, ErrNotInRoom
	}
	return c.Post(ctx, room, conn, sess.DisplayName, content, typ)
}

// Post stores and delivers a message without a session check. Used for
// messages authored by synthetic participants.
func (c *Chat) Post(ctx context.Context, room domain.RoomID, author domain.ConnectionID, authorName, content string, typ domain.MessageType) (domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > domain.MaxMessageLen {
		return domain.Message{}, ErrMessageTooLong
	}
	if typ == "" {
		typ = domain.MessageText
	}
	switch typ {
	case domain.MessageText, domain.MessageImage, domain.MessageFile:
	default:
		return domain.Message{}, ErrInvalidMessageType
	}

	at := c.now()
	msg := domain.Message{
		ID:         newULID(at),
		RoomID:     room,
		AuthorID:   author,
		AuthorName: authorName,
		Content:    content,
		Type:       typ,
		CreatedAt:  at,
	}
	if err := c.store.Append(ctx, msg); err != nil {
		log.Error().Err(err).Str("module", "app.chat").Str("room", string(room)).Msg("append message")
		return domain.Message{}, err
	}

	out := core.Outbound{Type: core.OutMessageReceived, Data: msg}
	for _, m := range c.tracker.Members(room, domain.KindText) {
		if err := c.notifier.SendTo(m.ConnectionID, out); err != nil && !errors.Is(err, core.ErrNotConnected) {
			log.Warn().Err(err).Str("module", "app.chat").Str("conn", string(m.ConnectionID)).Msg("deliver message")
		}
	}
	return msg, nil
}

// History returns up to limit recent messages, oldest first.
func (c *Chat) History(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistory
	case limit > MaxHistory:
		limit = MaxHistory
	}
	return c.store.Recent(ctx, room, limit)
}
