package domain

import "time"

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

const MaxMessageLen = 4000

// Message is a chat line posted into a server's text room.
type Message struct {
	ID         string       `json:"id"`
	RoomID     RoomID       `json:"room_id"`
	AuthorID   ConnectionID `json:"author_id"`
	AuthorName string       `json:"username"`
	Content    string       `json:"content"`
	Type       MessageType  `json:"type"`
	CreatedAt  time.Time    `json:"created_at"`
}
