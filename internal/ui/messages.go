package ui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/medaka/internal/carelink"
	"github.com/five82/medaka/internal/statusapi"
)

type tickMsg time.Time

type refreshMsg struct {
	status   *statusapi.StatusResponse
	snapshot *carelink.Snapshot
	err      error
}

type logsMsg struct {
	lines []string
	err   error
}

// noticeMsg reports the result of a user action in the footer.
type noticeMsg struct {
	text string
	err  error
}

const requestTimeout = 5 * time.Second

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func refreshCmd(ctx context.Context, client statusapi.DaemonAPI) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		status, err := client.FetchStatus(ctx)
		if err != nil {
			return refreshMsg{err: err}
		}
		snap, err := client.FetchSnapshot(ctx)
		return refreshMsg{status: status, snapshot: snap, err: err}
	}
}

func logsCmd(ctx context.Context, client statusapi.DaemonAPI, limit int, level string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		lines, err := client.FetchLogs(ctx, limit, level)
		return logsMsg{lines: lines, err: err}
	}
}

func fetchCmd(ctx context.Context, client statusapi.DaemonAPI) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		resp, err := client.TriggerFetch(ctx, true)
		if err != nil {
			return noticeMsg{err: fmt.Errorf("fetch: %w", err)}
		}
		if !resp.Started {
			return noticeMsg{text: "fetch already running"}
		}
		return noticeMsg{text: "fetch started"}
	}
}

func reauthCmd(ctx context.Context, client statusapi.DaemonAPI) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()
		resp, err := client.Reauth(ctx)
		if err != nil {
			var apiErr *statusapi.APIError
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
				return noticeMsg{err: errors.New("no usable session, run medaka login")}
			}
			return noticeMsg{err: fmt.Errorf("renew session: %w", err)}
		}
		if resp.ValidTo != nil {
			return noticeMsg{text: fmt.Sprintf("session %s until %s", resp.Outcome, resp.ValidTo.Local().Format("15:04"))}
		}
		return noticeMsg{text: "session " + resp.Outcome}
	}
}
