// Package app is the composition root of medaka.
//
// # Daemon
//
// RunDaemon loads the configuration and builds a Daemon:
//
//	┌──────────────┐
//	│ RunDaemon()  │
//	└──────┬───────┘
//	       ├─────> activitylog.Open()   log.txt, also fed by slog
//	       ├─────> token.NewStore()     session token file
//	       ├─────> state.NewStore()     latest snapshot + fetch status
//	       ├─────> session.New()        re-auth ahead of expiry
//	       ├─────> fetcher.New()        one fetch cycle with retries
//	       ├─────> history.Open()       SQLite reading history (optional)
//	       ├─────> relay.New()          MQTT relay to wearables (optional)
//	       ├─────> NewPoller()          the fetch loop
//	       ├─────> Watchdog.Run()       revives a dead loop
//	       └─────> statusapi.Server     local HTTP API (blocks)
//
// The Poller runs at most one fetch loop. Each iteration calls
// FetchAndPublish and sleeps for the returned delay; a Stop or Canceled
// outcome ends the loop. Start(true) cancels the running loop, waits for it
// to exit and starts a new one, which is how a login restarts fetching.
//
// The Watchdog checks every watchdog_interval that a loop is running when
// the account is configured, a token is held and data has gone stale.
//
// # Commands
//
// fetch, login, reset, log, history and watch are one-shot commands. login,
// reset and log talk to a running daemon first and fall back to the files
// in the data directory when no daemon answers.
package app
