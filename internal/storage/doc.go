// Package storage persists reminder records plus the small amount of
// operational state the bot keeps between restarts:
//   - reminders (the registry the tick driver reads)
//   - audit log appends (operator actions and deliveries)
//   - optional notifier dedup state
//
// Drivers: "memory", "file", "sqlite" and "postgres".
package storage
