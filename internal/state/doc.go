// Package state holds the latest glucose snapshot and the fetch status for
// the medaka daemon.
//
// # Overview
//
// The Store is the meeting point between the fetch pipeline and everything
// that presents data: the wearable relay, the reading history, the status
// API and through it the watch TUI.
//
//	Producer (Fetcher):            Consumers:
//	┌──────────────────┐          ┌──────────────────────┐
//	│ BeginFetch()     │          │ Subscribe() → relay   │
//	│ fetch + parse    │          │ Subscribe() → history │
//	│ CompleteFetch()  │─────────→│ View()      → API     │
//	│ or FailFetch()   │ (mutex)  │ Cached()    → startup │
//	└──────────────────┘          └──────────────────────┘
//
// # Fetch Status
//
// FetchStatus is one of idle, fetching, success, error or session-expired.
// BeginFetch is a check-and-set under the store mutex: it fails immediately
// when another fetch is in progress, so callers back off instead of queuing.
// CompleteFetch publishes the snapshot and sets success in one transition.
//
// # Publishing
//
// Publish and CompleteFetch replace the snapshot by value; the store keeps its
// own clone and View and Cached hand out further clones, so no consumer can
// mutate published data.
//
// Subscribers receive an Event per publish on a channel of capacity one. When
// a subscriber falls behind, the undelivered event is replaced with the newest
// one, so the publisher never blocks. Reset publishes an Event with a nil
// Snapshot. A subscription only sees events published after Subscribe
// returns, so subscribe before calling Cached.
//
// # Cold Start
//
// Cached returns the in-memory snapshot. When there is none, the first call
// reads the cache file through CacheReader, parses it and publishes it. A
// missing or corrupt cache is treated as no data and is not retried.
//
// # Offline Indicator
//
// ConsecutiveFailures counts failed cycles since the last success; IsOffline
// reports two or more. A cancelled fetch returns to idle without counting.
package state
