package feedback

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/hyperjump/qexpand/internal/models"
)

// DefaultTopK is the number of leading results the pseudo oracle marks relevant.
const DefaultTopK = 2

// Oracle labels every document of a result set relevant or not relevant.
type Oracle interface {
	Label(ctx context.Context, rs *models.ResultSet) error
}

// TopK marks the first K results relevant and the rest not relevant
// (pseudo relevance feedback).
type TopK struct {
	K int
}

// Label implements Oracle.
func (o TopK) Label(_ context.Context, rs *models.ResultSet) error {
	rs.ResetLabels()
	for i, d := range rs.Docs {
		d.Relevant = i < o.K
	}
	return nil
}

// Judgments marks documents whose id is in the set relevant.
type Judgments map[int]bool

// NewJudgments returns a Judgments oracle for the given relevant ids.
func NewJudgments(ids ...int) Judgments {
	j := make(Judgments, len(ids))
	for _, id := range ids {
		j[id] = true
	}
	return j
}

// Label implements Oracle.
func (j Judgments) Label(_ context.Context, rs *models.ResultSet) error {
	for _, d := range rs.Docs {
		id, ok := d.DocID()
		d.Relevant = ok && j[id]
	}
	return nil
}

// Interactive asks a person to judge each result, one line of input per document.
// Anything other than y or n is reported and counts as not relevant.
type Interactive struct {
	in  *bufio.Reader
	out io.Writer

	rule   lipgloss.Style
	label  lipgloss.Style
	prompt lipgloss.Style
	warn   lipgloss.Style
}

// NewInteractive returns an oracle reading answers from in and writing prompts to out.
func NewInteractive(in io.Reader, out io.Writer) *Interactive {
	r := lipgloss.NewRenderer(out)
	return &Interactive{
		in:     bufio.NewReader(in),
		out:    out,
		rule:   r.NewStyle().Foreground(lipgloss.Color("#45475A")),
		label:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#06B6D4")),
		prompt: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")),
		warn:   r.NewStyle().Foreground(lipgloss.Color("#F38BA8")),
	}
}

// Label implements Oracle. Input ending early leaves the remaining documents not relevant.
func (o *Interactive) Label(ctx context.Context, rs *models.ResultSet) error {
	rs.ResetLabels()
	for _, d := range rs.Docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, _ := d.DocID()
		fmt.Fprintln(o.out, o.rule.Render("==================="))
		fmt.Fprintln(o.out, o.label.Render("Play ID:"), id)
		fmt.Fprintln(o.out, o.label.Render("Play:"), d.Play)
		fmt.Fprintln(o.out, o.label.Render("NextPlay:"), d.NextPlay)
		fmt.Fprintln(o.out, o.prompt.Render("Is this relevant? y/n: "))

		line, err := o.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read judgment: %w", err)
		}
		if line == "" && errors.Is(err, io.EOF) {
			return nil
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y":
			d.Relevant = true
		case "n":
		default:
			fmt.Fprintln(o.out, o.warn.Render("Invalid option!"))
		}
	}
	return nil
}

// Precision returns the share of relevant documents in rs, or -1 when rs is empty.
func Precision(rs *models.ResultSet) float64 {
	if rs.Len() == 0 {
		return -1
	}
	return float64(rs.RelevantCount()) / float64(rs.Len())
}
