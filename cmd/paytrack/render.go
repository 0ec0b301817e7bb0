package main

import (
	"fmt"
	"io"

	"github.com/angelmondragon/paytrack/internal/poller"
	"github.com/angelmondragon/paytrack/internal/tracking"
	"github.com/angelmondragon/paytrack/pkg/enums"
)

func renderView(w io.Writer, view poller.View) {
	switch view.State {
	case enums.PollStatePolling:
		fmt.Fprintf(w, "… %s\n", view.Message)
	case enums.PollStateSuccess:
		fmt.Fprintf(w, "✓ %s\n", view.Message)
	case enums.PollStateFailed:
		fmt.Fprintf(w, "✗ %s\n", view.Message)
	default:
		fmt.Fprintf(w, "! %s\n", view.Message)
	}
	if view.Result != nil && view.State != enums.PollStatePolling {
		r := view.Result
		if r.Reference != "" {
			fmt.Fprintf(w, "  reference: %s\n", r.Reference)
		}
		if r.Amount != nil {
			fmt.Fprintf(w, "  amount:    %s\n", r.Amount.String())
		}
	}
}

func renderLegacy(w io.Writer, status *tracking.LegacyStatus) {
	if status == nil {
		return
	}
	fmt.Fprintln(w, status.Message)
	if status.Reference != "" {
		fmt.Fprintf(w, "  reference: %s\n", status.Reference)
	}
	if status.Amount != nil {
		fmt.Fprintf(w, "  amount:    %s\n", status.Amount.String())
	}
	if status.Redirect != "" {
		fmt.Fprintf(w, "  try again: %s\n", status.Redirect)
	}
}

func formatRemaining(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm%02ds", seconds/60, seconds%60)
}
