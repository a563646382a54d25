// Package selector picks the expansion terms for the next query.
package selector

import (
	"sort"
	"strings"

	"github.com/hyperjump/qexpand/internal/analysis"
	"github.com/hyperjump/qexpand/internal/models"
)

// Ranked returns all weighted terms sorted by weight descending, ties broken by term
// ascending.
func Ranked(weights map[string]float64) []models.Weight {
	out := make([]models.Weight, 0, len(weights))
	for term, score := range weights {
		out = append(out, models.Weight{Term: term, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// Options controls which terms are eligible.
type Options struct {
	// StopwordElimination skips terms in the stopword list.
	StopwordElimination bool
}

// SelectTop returns up to n of the highest weighted terms that are not substrings of
// query. The result is shorter than n when not enough candidates survive.
func SelectTop(query string, weights map[string]float64, n int, opts Options) []string {
	if n <= 0 {
		return nil
	}
	var out []string
	for _, w := range Ranked(weights) {
		if !Eligible(query, w.Term, opts) {
			continue
		}
		out = append(out, w.Term)
		if len(out) == n {
			break
		}
	}
	return out
}

// Eligible reports whether term may be appended to query.
func Eligible(query, term string, opts Options) bool {
	if term == "" || strings.Contains(query, term) {
		return false
	}
	if opts.StopwordElimination && analysis.IsStopword(term) {
		return false
	}
	return true
}

// Expand appends terms to query separated by single spaces.
func Expand(query string, terms []string) string {
	if len(terms) == 0 {
		return query
	}
	return strings.TrimSpace(query + " " + strings.Join(terms, " "))
}
