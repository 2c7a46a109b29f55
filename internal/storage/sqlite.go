package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: every write is serialised and PRAGMAs stick.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, pruneEvery: 500}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const reminderColumns = `id, user_id, chat_id, name, message, schedule, enabled, created_at, last_fired_at`

func (s *sqliteStore) CreateReminder(ctx context.Context, r ReminderRecord) (int64, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(user_id, chat_id, name, message, schedule, enabled, created_at, last_fired_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		r.UserID, r.ChatID, r.Name, r.Message, r.Schedule, boolInt(r.Enabled),
		formatTime(r.CreatedAt), nullTime(r.LastFiredAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert reminder: %w", err)
	}
	return res.LastInsertId()
}

func (s *sqliteStore) GetReminder(ctx context.Context, userID, id int64) (ReminderRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = ? AND user_id = ?`, id, userID)
	r, err := scanSQLiteReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ReminderRecord{}, ErrNotFound
	}
	return r, err
}

func (s *sqliteStore) ListReminders(ctx context.Context, userID int64) ([]ReminderRecord, error) {
	return s.query(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE user_id = ? ORDER BY id`, userID)
}

func (s *sqliteStore) ListEnabledReminders(ctx context.Context) ([]ReminderRecord, error) {
	return s.query(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE enabled = 1 ORDER BY id`)
}

func (s *sqliteStore) query(ctx context.Context, q string, args ...any) ([]ReminderRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReminderRecord
	for rows.Next() {
		r, err := scanSQLiteReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) SetReminderEnabled(ctx context.Context, userID, id int64, enabled bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET enabled = ? WHERE id = ? AND user_id = ?`, boolInt(enabled), id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) DeleteReminder(ctx context.Context, userID, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) MarkReminderFired(ctx context.Context, id int64, at time.Time, disable bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET last_fired_at = ?, enabled = CASE WHEN ? = 1 THEN 0 ELSE enabled END WHERE id = ?`,
		formatTime(at), boolInt(disable), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteReminder(row rowScanner) (ReminderRecord, error) {
	var (
		r       ReminderRecord
		enabled int
		created string
		fired   sql.NullString
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.ChatID, &r.Name, &r.Message, &r.Schedule, &enabled, &created, &fired); err != nil {
		return ReminderRecord{}, err
	}
	r.Enabled = enabled != 0
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	if fired.Valid {
		r.LastFiredAt, _ = time.Parse(time.RFC3339Nano, fired.String)
	}
	return r, nil
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, actor_id, chat_id, action, reminder_id, target, ok, err, meta)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		formatTime(e.At), e.ActorID, e.ChatID, e.Action, e.ReminderID,
		nullStr(e.Target), boolInt(e.OK), nullStr(e.Error), nullStr(e.MetaJSON),
	)
	return err
}

func (s *sqliteStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if key == "" {
		return nil
	}
	ms := until.UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, until) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET until=excluded.until`,
		key, ms,
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		if perr := s.pruneExpired(pctx); perr != nil {
			s.log.Debug("dedup prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, ErrDisabled
	}
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT until FROM dedup WHERE key = ?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (s *sqliteStore) pruneExpired(ctx context.Context) error {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `DELETE FROM dedup WHERE until < ?`, now)
	return err
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
