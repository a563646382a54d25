package selector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectTop(t *testing.T) {
	weights := map[string]float64{
		"offside": 1.2,
		"review":  0.9,
		"go":      5.0, // substring of "goal"
		"the":     3.0, // stopword
		"flag":    0.9,
		"corner":  -0.4,
	}
	tests := []struct {
		name string
		n    int
		opts Options
		want []string
	}{
		{name: "top two", n: 2, opts: Options{StopwordElimination: true}, want: []string{"offside", "flag"}},
		{name: "tie broken lexicographically", n: 3, opts: Options{StopwordElimination: true}, want: []string{"offside", "flag", "review"}},
		{name: "stopwords kept when disabled", n: 2, want: []string{"the", "offside"}},
		{name: "short list", n: 10, opts: Options{StopwordElimination: true}, want: []string{"offside", "flag", "review", "corner"}},
		{name: "zero", n: 0, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectTop("goal disallowed by var", weights, tt.n, tt.opts))
		})
	}
}

func TestSelectTop_SubstringFilter(t *testing.T) {
	weights := map[string]float64{"allow": 2, "var": 1.5, "goals": 1, "save": 0.5}
	got := SelectTop("goal disallowed by var", weights, 2, Options{})
	// "allow" and "var" occur inside the query; "goals" does not.
	assert.Equal(t, []string{"goals", "save"}, got)
}

func TestSelectTop_Deterministic(t *testing.T) {
	weights := map[string]float64{"alpha": 1, "bravo": 1, "charlie": 1, "delta": 1}
	first := SelectTop("", weights, 3, Options{})
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, SelectTop("", weights, 3, Options{}))
	}
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, first)
}

func TestRanked(t *testing.T) {
	r := Ranked(map[string]float64{"b": 1, "a": 1, "c": 2})
	assert.Equal(t, "c", r[0].Term)
	assert.Equal(t, "a", r[1].Term)
	assert.Equal(t, "b", r[2].Term)
}

func TestExpand(t *testing.T) {
	q := "goal disallowed by var"
	got := Expand(q, []string{"offside", "review"})
	assert.Equal(t, "goal disallowed by var offside review", got)
	assert.Len(t, strings.Fields(got), len(strings.Fields(q))+2)
	assert.Equal(t, q, Expand(q, nil))
	assert.Equal(t, "kick", Expand("", []string{"kick"}))
}
