package gormstore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dkeye/Lounge/internal/core"
	"github.com/dkeye/Lounge/internal/domain"
)

// SessionRepo is the PostgreSQL SessionStore.
type SessionRepo struct {
	db *gorm.DB
}

var _ core.SessionStore = (*SessionRepo)(nil)

func NewSessionRepo(db *gorm.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) Upsert(ctx context.Context, room domain.RoomID, conn domain.ConnectionID, name string, kind domain.Kind, at time.Time) error {
	row := sessionRow{
		RoomID:        string(room),
		ConnectionID:  string(conn),
		Kind:          string(kind),
		DisplayName:   name,
		JoinedAt:      at,
		LastHeartbeat: at,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "connection_id"}, {Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "last_heartbeat"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("gorm: upsert session: %w", err)
	}
	return nil
}

func (r *SessionRepo) Remove(ctx context.Context, conn domain.ConnectionID, kinds ...domain.Kind) ([]domain.PresenceSession, error) {
	var rows []sessionRow
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("connection_id = ?", string(conn))
		if len(kinds) > 0 {
			q = q.Where("kind IN ?", kindStrings(kinds))
		}
		if err := q.Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		del := tx.Where("connection_id = ?", string(conn))
		if len(kinds) > 0 {
			del = del.Where("kind IN ?", kindStrings(kinds))
		}
		return del.Delete(&sessionRow{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("gorm: remove sessions: %w", err)
	}
	out := make([]domain.PresenceSession, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *SessionRepo) Heartbeat(ctx context.Context, conn domain.ConnectionID, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&sessionRow{}).
		Where("connection_id = ?", string(conn)).
		Update("last_heartbeat", at).Error
	if err != nil {
		return fmt.Errorf("gorm: heartbeat: %w", err)
	}
	return nil
}

func (r *SessionRepo) Occupancy(ctx context.Context, room domain.RoomID) (domain.Occupancy, error) {
	var rows []sessionRow
	err := r.db.WithContext(ctx).
		Where(`room_id = ? OR room_id LIKE ? ESCAPE '\'`, string(room), escapeLike(string(room))+"-%").
		Find(&rows).Error
	if err != nil {
		return domain.Occupancy{}, fmt.Errorf("gorm: occupancy: %w", err)
	}
	sessions := make([]domain.PresenceSession, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.toDomain())
	}
	return domain.FoldOccupancy(room, sessions), nil
}

// SweepStale deletes stale rows one by one so a row refreshed between the
// scan and the delete survives and is not reported.
func (r *SessionRepo) SweepStale(ctx context.Context, maxAge time.Duration, now time.Time) ([]domain.PresenceSession, error) {
	cutoff := now.Add(-maxAge)
	var removed []domain.PresenceSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []sessionRow
		if err := tx.Where("last_heartbeat < ?", cutoff).Find(&rows).Error; err != nil {
			return err
		}
		for _, row := range rows {
			res := tx.Where("room_id = ? AND connection_id = ? AND kind = ? AND last_heartbeat < ?",
				row.RoomID, row.ConnectionID, row.Kind, cutoff).
				Delete(&sessionRow{})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				removed = append(removed, row.toDomain())
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gorm: sweep stale: %w", err)
	}
	return removed, nil
}

func (r *SessionRepo) List(ctx context.Context) ([]domain.PresenceSession, error) {
	var rows []sessionRow
	if err := r.db.WithContext(ctx).Order("joined_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gorm: list sessions: %w", err)
	}
	out := make([]domain.PresenceSession, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func kindStrings(kinds []domain.Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
