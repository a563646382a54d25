package models

import (
	"fmt"
	"time"
)

// Mode selects how a feedback session labels and scores documents.
type Mode string

const (
	// ModeRelevance uses the configured oracle and baseline Rocchio weights.
	ModeRelevance Mode = "relevance"
	// ModePseudo marks the first K results relevant and uses baseline Rocchio weights.
	ModePseudo Mode = "pseudo"
	// ModeNeighborhood uses the configured oracle and neighborhood-extended Rocchio weights.
	ModeNeighborhood Mode = "neighborhood"
)

// ParseMode returns the mode named by s.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeRelevance, ModePseudo, ModeNeighborhood:
		return Mode(s), nil
	case "":
		return ModeRelevance, nil
	}
	return "", fmt.Errorf("unknown mode %q (want relevance, pseudo, or neighborhood)", s)
}

// Extended reports whether the mode scores with the neighborhood bonus.
func (m Mode) Extended() bool {
	return m == ModeNeighborhood
}

// StopReason records why a session ended.
type StopReason string

const (
	StopIterationLimit StopReason = "iteration_limit"
	StopNoResults      StopReason = "no_results"
)

// Round is the record of one completed feedback iteration.
type Round struct {
	Number    int       `json:"round"`
	Query     string    `json:"query"`
	Results   int       `json:"results"`
	Relevant  int       `json:"relevant"`
	Precision float64   `json:"precision"`
	Terms     []string  `json:"terms"`
	Weights   []Weight  `json:"weights,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Weight is a scored candidate term.
type Weight struct {
	Term  string  `json:"term"`
	Score float64 `json:"score"`
}

// Session is the history of one query expansion run.
type Session struct {
	ID           string     `json:"id"`
	Mode         Mode       `json:"mode"`
	InitialQuery string     `json:"initial_query"`
	FinalQuery   string     `json:"final_query"`
	StopReason   StopReason `json:"stop_reason"`
	Error        string     `json:"error,omitempty"`
	Rounds       []*Round   `json:"rounds"`
	CreatedAt    time.Time  `json:"created_at"`
}
