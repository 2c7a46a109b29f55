package notifier

import "time"

// Config controls the async delivery pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	SendTimeout     time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
	PersistDedup    bool
}

// Message is one outbound delivery. Source labels the producer for events
// and logs (for example "tick"). When Key is set it replaces the text in the
// dedup key, so distinct deliveries with equal text are never merged.
type Message struct {
	ChatID   int64
	ThreadID int
	Text     string
	Source   string
	Key      string
}

type HistoryItem struct {
	At     time.Time
	ChatID int64
	Text   string
}

// Stats is a point-in-time view for /status.
type Stats struct {
	Enabled  bool
	Queued   int
	Capacity int
	Sent     uint64
	Failed   uint64
	Dropped  uint64
	Deduped  uint64
}

// Event is the Data of notifier events on the bus.
type Event struct {
	Source string    `json:"source"`
	ChatID int64     `json:"chat_id"`
	Key    string    `json:"key"`
	At     time.Time `json:"at"`
	Error  string    `json:"error,omitempty"`
}
