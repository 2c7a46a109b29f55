package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "remindbot/pkg/logx"
)

// Reminders is the registry API. Reads and writes scoped by userID only see
// that user's records; ListEnabledReminders spans all users in id order.
type Reminders interface {
	CreateReminder(ctx context.Context, r ReminderRecord) (int64, error)
	GetReminder(ctx context.Context, userID, id int64) (ReminderRecord, error)
	ListReminders(ctx context.Context, userID int64) ([]ReminderRecord, error)
	ListEnabledReminders(ctx context.Context) ([]ReminderRecord, error)
	SetReminderEnabled(ctx context.Context, userID, id int64, enabled bool) (bool, error)
	DeleteReminder(ctx context.Context, userID, id int64) (bool, error)
	MarkReminderFired(ctx context.Context, id int64, at time.Time, disable bool) error
}

// Store is the persistence API used by the services.
type Store interface {
	Reminders
	AppendAudit(ctx context.Context, e AuditEntry) error
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)
	Close() error
}

// Open initializes the configured store.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("driver", driver))

	switch driver {
	case "":
		return nil, errors.New("storage.driver is required")
	case "memory", "mem":
		return openMemory(log), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(ctx, cfg, log)
	case "postgres", "postgresql", "pg":
		return openPostgres(ctx, cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
