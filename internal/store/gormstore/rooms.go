package gormstore

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"gorm.io/gorm"

	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/domain"
)

// RoomRepo is the PostgreSQL RoomStore and MessageStore.
type RoomRepo struct {
	db *gorm.DB
}

var (
	_ core.RoomStore    = (*RoomRepo)(nil)
	_ core.MessageStore = (*RoomRepo)(nil)
)

func NewRoomRepo(db *gorm.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

func (r *RoomRepo) Create(ctx context.Context, room domain.Room) error {
	row := roomRow{
		ID:           string(room.ID),
		Name:         room.Name,
		CreatedBy:    room.CreatedBy,
		AccessSecret: room.AccessSecret,
		CreatedAt:    room.CreatedAt,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&roomRow{}).Where("id = ?", row.ID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return core.ErrRoomExists
		}
		return tx.Create(&row).Error
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrRoomExists), errors.Is(err, gorm.ErrDuplicatedKey):
		return core.ErrRoomExists
	default:
		return fmt.Errorf("gorm: create room: %w", err)
	}
}

func (r *RoomRepo) Get(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	var row roomRow
	err := r.db.WithContext(ctx).Where("id = ?", string(id)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Room{}, core.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("gorm: get room: %w", err)
	}
	return row.toDomain(), nil
}

func (r *RoomRepo) List(ctx context.Context) ([]domain.Room, error) {
	var rows []roomRow
	if err := r.db.WithContext(ctx).Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gorm: list rooms: %w", err)
	}
	out := make([]domain.Room, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *RoomRepo) Delete(ctx context.Context, id domain.RoomID) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", string(id)).Delete(&messageRow{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", string(id)).Delete(&roomRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return core.ErrRoomNotFound
		}
		return nil
	})
	if errors.Is(err, core.ErrRoomNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("gorm: delete room: %w", err)
	}
	return nil
}

func (r *RoomRepo) Append(ctx context.Context, msg domain.Message) error {
	row := messageRow{
		ID:         msg.ID,
		RoomID:     string(msg.RoomID),
		AuthorID:   string(msg.AuthorID),
		AuthorName: msg.AuthorName,
		Content:    msg.Content,
		Type:       string(msg.Type),
		CreatedAt:  msg.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("gorm: append message: %w", err)
	}
	return nil
}

// Recent pages newest-first and flips, so callers always get oldest first.
func (r *RoomRepo) Recent(ctx context.Context, room domain.RoomID, limit int) ([]domain.Message, error) {
	var rows []messageRow
	q := r.db.WithContext(ctx).Where("room_id = ?", string(room)).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gorm: recent messages: %w", err)
	}
	slices.Reverse(rows)
	out := make([]domain.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
