package gormstore

import (
	"time"

	"github.com/dkeye/Lounge/internal/domain"
)

type roomRow struct {
	ID           string  `gorm:"primaryKey;size:96"`
	Name         string  `gorm:"not null"`
	CreatedBy    string  `gorm:"not null;default:''"`
	AccessSecret *string `gorm:"column:access_secret"`
	CreatedAt    time.Time
}

func (roomRow) TableName() string { return "rooms" }

func (r roomRow) toDomain() domain.Room {
	return domain.Room{
		ID:           domain.RoomID(r.ID),
		Name:         r.Name,
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt,
		AccessSecret: r.AccessSecret,
	}
}

type sessionRow struct {
	RoomID        string `gorm:"primaryKey;size:160;index:idx_presence_room"`
	ConnectionID  string `gorm:"primaryKey;size:64;index:idx_presence_conn"`
	Kind          string `gorm:"primaryKey;size:8"`
	DisplayName   string `gorm:"not null"`
	JoinedAt      time.Time
	LastHeartbeat time.Time `gorm:"index:idx_presence_heartbeat"`
}

func (sessionRow) TableName() string { return "presence_sessions" }

func (s sessionRow) toDomain() domain.PresenceSession {
	return domain.PresenceSession{
		RoomID:        domain.RoomID(s.RoomID),
		ConnectionID:  domain.ConnectionID(s.ConnectionID),
		DisplayName:   s.DisplayName,
		Kind:          domain.Kind(s.Kind),
		JoinedAt:      s.JoinedAt,
		LastHeartbeat: s.LastHeartbeat,
	}
}

type messageRow struct {
	ID         string `gorm:"primaryKey;size:26"`
	RoomID     string `gorm:"size:96;not null;index:idx_messages_room_created,priority:1"`
	AuthorID   string `gorm:"size:64;not null"`
	AuthorName string `gorm:"not null"`
	Content    string `gorm:"not null"`
	Type       string `gorm:"size:16;not null;default:'text'"`
	CreatedAt  time.Time `gorm:"index:idx_messages_room_created,priority:2"`
}

func (messageRow) TableName() string { return "messages" }

func (m messageRow) toDomain() domain.Message {
	return domain.Message{
		ID:         m.ID,
		RoomID:     domain.RoomID(m.RoomID),
		AuthorID:   domain.ConnectionID(m.AuthorID),
		AuthorName: m.AuthorName,
		Content:    m.Content,
		Type:       domain.MessageType(m.Type),
		CreatedAt:  m.CreatedAt,
	}
}
