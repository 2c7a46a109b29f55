package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	logx "remindbot/pkg/logx"
)

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS reminders (
    id            BIGSERIAL PRIMARY KEY,
    user_id       BIGINT      NOT NULL,
    chat_id       BIGINT      NOT NULL,
    name          TEXT        NOT NULL,
    message       TEXT        NOT NULL,
    schedule      TEXT        NOT NULL,
    enabled       BOOLEAN     NOT NULL DEFAULT TRUE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_fired_at TIMESTAMPTZ
);`,
	`CREATE INDEX IF NOT EXISTS idx_reminders_user ON reminders (user_id, id);`,
	`CREATE INDEX IF NOT EXISTS idx_reminders_enabled ON reminders (enabled, id);`,
	`CREATE TABLE IF NOT EXISTS audit (
    id          BIGSERIAL PRIMARY KEY,
    at          TIMESTAMPTZ NOT NULL,
    actor_id    BIGINT      NOT NULL DEFAULT 0,
    chat_id     BIGINT      NOT NULL DEFAULT 0,
    action      TEXT        NOT NULL,
    reminder_id BIGINT      NOT NULL DEFAULT 0,
    target      TEXT        NOT NULL DEFAULT '',
    ok          BOOLEAN     NOT NULL DEFAULT FALSE,
    err         TEXT        NOT NULL DEFAULT '',
    meta        TEXT        NOT NULL DEFAULT ''
);`,
	`CREATE TABLE IF NOT EXISTS dedup (
    key   TEXT PRIMARY KEY,
    until BIGINT NOT NULL
);`,
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	st := &postgresStore{pool: pool, log: log}
	if err := st.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return st, nil
}

func (s *postgresStore) ensureSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *postgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *postgresStore) CreateReminder(ctx context.Context, r ReminderRecord) (int64, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO reminders(user_id, chat_id, name, message, schedule, enabled, created_at, last_fired_at)
		 VALUES($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		r.UserID, r.ChatID, r.Name, r.Message, r.Schedule, r.Enabled, r.CreatedAt, pgTime(r.LastFiredAt),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert reminder: %w", err)
	}
	return id, nil
}

func (s *postgresStore) GetReminder(ctx context.Context, userID, id int64) (ReminderRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = $1 AND user_id = $2`, id, userID)
	r, err := scanPGReminder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ReminderRecord{}, ErrNotFound
	}
	return r, err
}

func (s *postgresStore) ListReminders(ctx context.Context, userID int64) ([]ReminderRecord, error) {
	return s.query(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE user_id = $1 ORDER BY id`, userID)
}

func (s *postgresStore) ListEnabledReminders(ctx context.Context) ([]ReminderRecord, error) {
	return s.query(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE enabled ORDER BY id`)
}

func (s *postgresStore) query(ctx context.Context, q string, args ...any) ([]ReminderRecord, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReminderRecord
	for rows.Next() {
		r, err := scanPGReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *postgresStore) SetReminderEnabled(ctx context.Context, userID, id int64, enabled bool) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reminders SET enabled = $1 WHERE id = $2 AND user_id = $3`, enabled, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *postgresStore) DeleteReminder(ctx context.Context, userID, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM reminders WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *postgresStore) MarkReminderFired(ctx context.Context, id int64, at time.Time, disable bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reminders SET last_fired_at = $1, enabled = CASE WHEN $2 THEN FALSE ELSE enabled END WHERE id = $3`,
		at, disable, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPGReminder(row pgx.Row) (ReminderRecord, error) {
	var (
		r     ReminderRecord
		fired *time.Time
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.ChatID, &r.Name, &r.Message, &r.Schedule, &r.Enabled, &r.CreatedAt, &fired); err != nil {
		return ReminderRecord{}, err
	}
	if fired != nil {
		r.LastFiredAt = *fired
	}
	return r, nil
}

func (s *postgresStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit(at, actor_id, chat_id, action, reminder_id, target, ok, err, meta)
		 VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.At, e.ActorID, e.ChatID, e.Action, e.ReminderID, e.Target, e.OK, e.Error, e.MetaJSON,
	)
	return err
}

func (s *postgresStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dedup(key, until) VALUES($1, $2)
		 ON CONFLICT (key) DO UPDATE SET until = EXCLUDED.until`,
		key, until.UnixMilli(),
	)
	return err
}

func (s *postgresStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.pool.QueryRow(ctx, `SELECT until FROM dedup WHERE key = $1`, key).Scan(&ms)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func pgTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
