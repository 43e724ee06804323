// Package gormstore persists rooms, presence sessions and chat history in
// PostgreSQL through GORM. Schema is owned by internal/store/migrations.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to PostgreSQL with the zerolog-backed GORM logger.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), Config())
	if err != nil {
		return nil, fmt.Errorf("gorm: open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Config is shared by Open and by callers bringing their own dialector.
func Config() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		Logger:         zerologGorm{slow: 200 * time.Millisecond, level: logger.Warn},
	}
}

// AutoMigrate creates the tables from the row models. Used for dialects the
// SQL migrations do not target.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&roomRow{}, &sessionRow{}, &messageRow{})
}

// escapeLike quotes LIKE metacharacters; callers add ESCAPE '\'.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

type zerologGorm struct {
	slow  time.Duration
	level logger.LogLevel
}

func (l zerologGorm) LogMode(level logger.LogLevel) logger.Interface {
	l.level = level
	return l
}

func (l zerologGorm) Info(_ context.Context, msg string, args ...any) {
	if l.level >= logger.Info {
		log.Info().Str("module", "store.gorm").Msgf(msg, args...)
	}
}

func (l zerologGorm) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= logger.Warn {
		log.Warn().Str("module", "store.gorm").Msgf(msg, args...)
	}
}

func (l zerologGorm) Error(_ context.Context, msg string, args ...any) {
	if l.level >= logger.Error {
		log.Error().Str("module", "store.gorm").Msgf(msg, args...)
	}
}

func (l zerologGorm) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	var ev *zerolog.Event
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		ev = log.Error().Err(err)
	case elapsed > l.slow && l.level >= logger.Warn:
		ev = log.Warn().Bool("slow", true)
	case l.level >= logger.Info:
		ev = log.Debug()
	default:
		return
	}
	sql, rows := fc()
	ev.Str("module", "store.gorm").Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("query")
}
