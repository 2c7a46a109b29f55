package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	// ErrNotFound is returned when a reminder does not exist or belongs to another user.
	ErrNotFound = errors.New("reminder not found")
)

// Config configures storage.
//
// Driver values:
//   - "memory": process-local, nothing survives a restart
//   - "file": JSON snapshot + jsonl files next to Path
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL reachable through DSN
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ReminderRecord is the persisted form of a reminder. Schedule holds the
// canonical expression; parsing happens above this layer.
type ReminderRecord struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	ChatID      int64     `json:"chat_id"`
	Name        string    `json:"name"`
	Message     string    `json:"message"`
	Schedule    string    `json:"schedule"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	LastFiredAt time.Time `json:"last_fired_at"`
}

// AuditEntry records an operator action or a delivery.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At         time.Time `json:"at"`
	ActorID    int64     `json:"actor_id"`
	ChatID     int64     `json:"chat_id"`
	Action     string    `json:"action"`
	ReminderID int64     `json:"reminder_id,omitempty"`
	Target     string    `json:"target,omitempty"`
	OK         bool      `json:"ok"`
	Error      string    `json:"err,omitempty"`
	MetaJSON   string    `json:"meta,omitempty"`
}
