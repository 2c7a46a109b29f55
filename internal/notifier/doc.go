// Package notifier delivers reminder messages asynchronously.
//
// Messages go through a bounded queue drained by a small worker pool. Each
// send waits on a token-bucket rate limit and is retried with jittered
// exponential backoff. An optional dedup window suppresses identical
// messages to the same chat; suppress-until marks can be persisted so they
// survive restarts.
//
// A short in-memory history of delivered messages backs /status.
package notifier
