// Package rocchio computes relevance-feedback term weights over an inverted index.
//
// The baseline weight of a term accumulates one contribution per (term, document)
// posting: reward*idf*relevantTF/|R| for a relevant document and
// penalty*idf*nonRelevantTF/|R| for a non-relevant one, where |R| is the number of
// relevant documents. With no relevant documents every contribution is zero.
// The extended weight adds bonus*neighborhood[t] on top.
package rocchio

import (
	"math"

	"github.com/hyperjump/qexpand/internal/invindex"
)

// Default weighting constants.
const (
	DefaultReward            = 0.75
	DefaultPenalty           = -0.15
	DefaultNeighborhoodBonus = 0.40
)

// Params holds the weighting constants. Reward is expected positive and Penalty negative.
type Params struct {
	Reward            float64
	Penalty           float64
	NeighborhoodBonus float64
}

// DefaultParams returns the default weighting constants.
func DefaultParams() Params {
	return Params{
		Reward:            DefaultReward,
		Penalty:           DefaultPenalty,
		NeighborhoodBonus: DefaultNeighborhoodBonus,
	}
}

// TermWeights maps term to weight.
type TermWeights map[string]float64

// Stats are the aggregate sums a score is computed from.
type Stats struct {
	N             int
	Relevant      int
	NonRelevant   int
	RelevantTF    map[string]int
	NonRelevantTF map[string]int
}

// Aggregate partitions the indexed documents by label and sums term frequencies per side.
func Aggregate(idx *invindex.Index) Stats {
	s := Stats{
		N:             idx.N(),
		RelevantTF:    make(map[string]int),
		NonRelevantTF: make(map[string]int),
	}
	for _, d := range idx.Docs {
		sums := s.NonRelevantTF
		if d.Relevant {
			s.Relevant++
			sums = s.RelevantTF
		} else {
			s.NonRelevant++
		}
		for term, tf := range d.TermFreq {
			sums[term] += tf
		}
	}
	return s
}

// IDF returns log10(N/df) for term, or 0 when the term is not indexed.
func IDF(idx *invindex.Index, term string) float64 {
	df := idx.DocFreq(term)
	if df == 0 {
		return 0
	}
	return math.Log10(float64(idx.N()) / float64(df))
}

// Score returns the baseline weight of every indexed term.
func (p Params) Score(idx *invindex.Index) TermWeights {
	stats := Aggregate(idx)
	weights := make(TermWeights, len(idx.Postings))
	for term := range idx.Postings {
		weights[term] = 0
	}
	if stats.Relevant == 0 {
		return weights
	}
	norm := float64(stats.Relevant)
	for term, docs := range idx.Postings {
		idf := IDF(idx, term)
		// result order keeps the floating-point sum reproducible
		for _, d := range idx.Docs {
			id, _ := d.DocID()
			if _, ok := docs[id]; !ok {
				continue
			}
			if d.Relevant {
				weights[term] += p.Reward * idf * float64(stats.RelevantTF[term]) / norm
			} else {
				weights[term] += p.Penalty * idf * float64(stats.NonRelevantTF[term]) / norm
			}
		}
	}
	return weights
}

// ScoreExtended returns the baseline weights plus NeighborhoodBonus times each term's
// neighborhood frequency.
func (p Params) ScoreExtended(idx *invindex.Index, neighborhood map[string]int) TermWeights {
	weights := p.Score(idx)
	for term := range weights {
		weights[term] += p.NeighborhoodBonus * float64(neighborhood[term])
	}
	return weights
}
