// Package logtail reads the end of the activity log.
//
// Read and Tail keep a sliding window of the last N lines, so memory stays
// O(N) however large the file is. Lines come back oldest first.
// A missing file is not an error; it simply has no lines.
//
// Level and FilterLevel understand the level=VALUE attribute written by the
// slog text handler and are used by the status API and the watch TUI to hide
// noise.
package logtail
