package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	logx "remindbot/pkg/logx"
)

// ApplyEnv fills values the file left empty from the environment.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil {
		return
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		cfg.Telegram.Token = strings.TrimSpace(getenv(TokenEnv))
	}
}

// Timezone returns the configured zone name or DefaultTimezone.
func (c *Config) Timezone() string {
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		return tz
	}
	return DefaultTimezone
}

// NotifierOrDefault returns the notifier section, or DefaultNotifier when omitted.
func (c *Config) NotifierOrDefault() NotifierConfig {
	if c.Notifier == nil {
		return DefaultNotifier()
	}
	return *c.Notifier
}

// Validate reports every problem it finds, joined.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		add("telegram.token: empty (set it or %s)", TokenEnv)
	}
	if len(cfg.Telegram.OwnerUserIDs) == 0 {
		add("telegram.owner_user_ids: at least one owner is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}

	if lv := strings.TrimSpace(cfg.Logging.Level); lv != "" && !logx.ValidLevel(lv) {
		add("logging.level: unknown level %q", lv)
	}
	if cfg.Logging.Chat.Enabled && cfg.Logging.Chat.ChatID == 0 {
		add("logging.chat.chat_id: required when chat logging is enabled")
	}

	if _, err := time.LoadLocation(cfg.Timezone()); err != nil {
		add("scheduler.timezone: %v", err)
	}
	if cfg.Scheduler.RuleCacheSize < 0 {
		add("scheduler.rule_cache_size: must be >= 0")
	}
	if _, err := ParseDurationField("scheduler.tick_timeout", cfg.Scheduler.TickTimeout); err != nil {
		errs = append(errs, err)
	}

	n := cfg.NotifierOrDefault()
	for path, raw := range map[string]string{
		"notifier.retry_base":      n.RetryBase,
		"notifier.retry_max_delay": n.RetryMaxDelay,
		"notifier.send_timeout":    n.SendTimeout,
		"notifier.dedup_window":    n.DedupWindow,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 {
		add("notifier: workers, queue_size, rate_per_sec and retry_max must be >= 0")
	}

	switch d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d {
	case "memory", "mem":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add("storage.path: required for driver %q", d)
		}
	case "postgres", "postgresql", "pg":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			add("storage.dsn: required for driver %q", d)
		}
	case "":
		add("storage.driver: empty")
	default:
		add("storage.driver: unknown driver %q", d)
	}
	if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}

	if cfg.Diag.Enabled {
		if err := validateDiag(cfg.Diag); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validateDiag(d DiagConfig) error {
	addr := strings.TrimSpace(d.Addr)
	if addr == "" {
		addr = DefaultDiagAddr
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("diag.addr: %w", err)
	}
	if !isLoopback(host) && strings.TrimSpace(d.Token) == "" && !d.AllowInsecure {
		return fmt.Errorf("diag.addr: %q is not loopback; set diag.token or diag.allow_insecure", addr)
	}
	for path, raw := range map[string]string{
		"diag.read_timeout":  d.ReadTimeout,
		"diag.write_timeout": d.WriteTimeout,
		"diag.idle_timeout":  d.IdleTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			return err
		}
	}
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
