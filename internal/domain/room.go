package domain

import (
	"crypto/subtle"
	"time"
)

type RoomID string

// Room is a server: one implicit text channel plus any number of voice sub-channels.
type Room struct {
	ID           RoomID    `json:"id"`
	Name         string    `json:"name"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	AccessSecret *string   `json:"-"`
}

// RoomView is what gets broadcast to connections; it never carries the secret.
type RoomView struct {
	ID        RoomID    `json:"id"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Protected bool      `json:"protected"`
}

func (r Room) View() RoomView {
	return RoomView{
		ID:        r.ID,
		Name:      r.Name,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
		Protected: r.AccessSecret != nil,
	}
}

// Allows reports whether secret grants access. A room without a stored
// secret is public.
func (r Room) Allows(secret string) bool {
	if r.AccessSecret == nil {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(*r.AccessSecret), []byte(secret)) == 1
}

// VoiceChannelID namespaces a voice sub-channel under its server.
func VoiceChannelID(server RoomID, channel string) RoomID {
	return RoomID(string(server) + "-" + channel)
}

// Contains reports whether a session held in channel counts towards room's
// occupancy: the text room itself or any "<room>-" prefixed sub-channel.
func (id RoomID) Contains(channel RoomID) bool {
	if channel == id {
		return true
	}
	prefix := string(id) + "-"
	return len(channel) > len(prefix) && string(channel[:len(prefix)]) == prefix
}
