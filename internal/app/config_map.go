package app

import (
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/notifier"
	"remindbot/internal/observability/diag"
	"remindbot/internal/storage"
	"remindbot/internal/tick"
	telegram "remindbot/internal/transport/telegram/adapter"
	logx "remindbot/pkg/logx"
)

// The map* helpers turn file config (duration strings, optional sections)
// into the typed configs the components take. They assume Validate passed
// but still return parse errors so a hot reload cannot half-apply.

func mapLoggingConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		JSON:    l.JSON,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: strings.TrimSpace(l.File.Path)},
		Chat: logx.ChatConfig{
			Enabled:    l.Chat.Enabled && l.Chat.ChatID != 0,
			ChatID:     l.Chat.ChatID,
			MinLevel:   l.Chat.MinLevel,
			RatePerSec: l.Chat.RatePerSec,
		},
	}
}

func mapAdapterConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: cfg.Telegram.Token, PollTimeout: poll}, nil
}

func mapTickConfig(cfg *config.Config) (tick.Config, error) {
	timeout, err := config.ParseDurationField("scheduler.tick_timeout", cfg.Scheduler.TickTimeout)
	if err != nil {
		return tick.Config{}, err
	}
	return tick.Config{
		Enabled:     cfg.Scheduler.Enabled,
		Timezone:    cfg.Timezone(),
		TickTimeout: timeout,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.NotifierOrDefault()
	base, err := config.ParseDurationOrDefault("notifier.retry_base", n.RetryBase, 500*time.Millisecond)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationOrDefault("notifier.retry_max_delay", n.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	sendTimeout, err := config.ParseDurationOrDefault("notifier.send_timeout", n.SendTimeout, 15*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	window, err := config.ParseDurationField("notifier.dedup_window", n.DedupWindow)
	if err != nil {
		return notifier.Config{}, err
	}

	workers := n.Workers
	if workers <= 0 {
		workers = 1
	}
	queue := n.QueueSize
	if queue <= 0 {
		queue = 256
	}
	rps := n.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	return notifier.Config{
		Enabled:         n.Enabled,
		Workers:         workers,
		QueueSize:       queue,
		RatePerSec:      rps,
		RetryMax:        max(0, n.RetryMax),
		RetryBase:       base,
		RetryMaxDelay:   maxDelay,
		SendTimeout:     sendTimeout,
		DedupWindow:     window,
		DedupMaxEntries: max(0, n.DedupMaxEntries),
		PersistDedup:    n.PersistDedup,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: busy,
	}, nil
}

func mapDiagConfig(cfg *config.Config) (diag.Config, error) {
	d := cfg.Diag
	read, err := config.ParseDurationOrDefault("diag.read_timeout", d.ReadTimeout, 10*time.Second)
	if err != nil {
		return diag.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("diag.write_timeout", d.WriteTimeout, 60*time.Second)
	if err != nil {
		return diag.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("diag.idle_timeout", d.IdleTimeout, 60*time.Second)
	if err != nil {
		return diag.Config{}, err
	}
	addr := strings.TrimSpace(d.Addr)
	if addr == "" {
		addr = config.DefaultDiagAddr
	}
	return diag.Config{
		Enabled:              d.Enabled,
		Addr:                 addr,
		Token:                d.Token,
		AllowInsecure:        d.AllowInsecure,
		Pprof:                d.Pprof,
		ReadTimeout:          read,
		WriteTimeout:         write,
		IdleTimeout:          idle,
		MutexProfileFraction: d.MutexProfileFraction,
		BlockProfileRate:     d.BlockProfileRate,
	}, nil
}
