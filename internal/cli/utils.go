// Package cli provides output helpers for the qexpand command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/qexpand/internal/models"
	"github.com/hyperjump/qexpand/pkg/utils"
)

// OutputFormat is the format for session output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat returns the output format named by s.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text or json)", s)
}

// WriteSession writes a finished session to w in the given format.
func WriteSession(w io.Writer, sess *models.Session, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, sess)
	}
	writeSessionText(w, sess)
	return nil
}

func writeSessionText(w io.Writer, sess *models.Session) {
	fmt.Fprintf(w, "\nSession %s (%s)\n", sess.ID, sess.Mode)
	fmt.Fprintf(w, "Initial query: %s\n", sess.InitialQuery)
	for _, r := range sess.Rounds {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Round %d | Results: %d | Relevant: %d | Precision: %.2f\n",
			r.Number, r.Results, r.Relevant, r.Precision)
		fmt.Fprintf(w, "Query: %s\n", r.Query)
		if len(r.Terms) > 0 {
			fmt.Fprintf(w, "Added: %s\n", strings.Join(r.Terms, ", "))
		} else {
			fmt.Fprintln(w, "Added: (none)")
		}
	}
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Final query: %s\n", sess.FinalQuery)
	fmt.Fprintf(w, "Stopped: %s\n", sess.StopReason)
	if sess.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", sess.Error)
	}
	fmt.Fprintln(w)
}

// WriteSessions writes a session listing, one line per session in text format.
func WriteSessions(w io.Writer, sessions []*models.Session, format OutputFormat) error {
	if format == OutputJSON {
		if sessions == nil {
			sessions = []*models.Session{}
		}
		return writeJSON(w, sessions)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions.")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "%s  %s  %-12s %d rounds  %q -> %q\n",
			s.CreatedAt.Format("2006-01-02 15:04"), s.ID, s.Mode, len(s.Rounds),
			utils.Truncate(s.InitialQuery, 40), utils.Truncate(s.FinalQuery, 60))
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
