package logtail

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const maxLineBytes = 1 << 20

// Read returns at most maxLines from the end of the file at path. A
// non-positive maxLines returns every line. A missing file yields no lines.
func Read(path string, maxLines int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	lines, err := Tail(file, maxLines)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return lines, nil
}

// Tail returns the last maxLines lines of r, oldest first. At most
// maxLines+1 lines are held while scanning.
func Tail(r io.Reader, maxLines int) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var window []string
	for scanner.Scan() {
		window = append(window, scanner.Text())
		if maxLines > 0 && len(window) > maxLines {
			window = window[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return window, nil
}

// Level extracts the level=VALUE attribute of a slog text line, upper-cased,
// or "" when the line has none.
func Level(line string) string {
	for _, field := range strings.Fields(line) {
		value, ok := strings.CutPrefix(field, "level=")
		if ok {
			return strings.ToUpper(strings.Trim(value, `"`))
		}
	}
	return ""
}

// FilterLevel keeps lines at or above min (DEBUG, INFO, WARN, ERROR). Lines
// without a level are kept.
func FilterLevel(lines []string, min string) []string {
	threshold := levelRank(strings.ToUpper(min))
	if threshold <= 0 {
		return lines
	}
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		lvl := Level(line)
		if lvl == "" || levelRank(lvl) >= threshold {
			out = append(out, line)
		}
	}
	return out
}

func levelRank(level string) int {
	switch level {
	case "DEBUG":
		return 1
	case "INFO":
		return 2
	case "WARN", "WARNING":
		return 3
	case "ERROR":
		return 4
	default:
		return 0
	}
}
