package rocchio

import (
	"github.com/hyperjump/qexpand/internal/analysis"
	"github.com/hyperjump/qexpand/internal/invindex"
)

// Neighborhood counts, per indexed term, how often a query token sits immediately
// before or after one of its occurrences. The query is normalized with tok, which
// should be the tokenizer the index was built with. A term flanked by query tokens
// on both sides counts twice.
func Neighborhood(idx *invindex.Index, query string, tok *analysis.Tokenizer) map[string]int {
	queryTerms := make(map[string]struct{})
	for term := range tok.Tokens(query) {
		queryTerms[term] = struct{}{}
	}

	counts := make(map[string]int)
	if len(queryTerms) == 0 {
		return counts
	}
	isQuery := func(tokens []string, i int) bool {
		if i < 0 || i >= len(tokens) {
			return false
		}
		_, ok := queryTerms[tokens[i]]
		return ok
	}
	for term, docs := range idx.Postings {
		for id, positions := range docs {
			tokens := idx.Tokens(id)
			for _, pos := range positions {
				if isQuery(tokens, pos-1) {
					counts[term]++
				}
				if isQuery(tokens, pos+1) {
					counts[term]++
				}
			}
		}
	}
	return counts
}
