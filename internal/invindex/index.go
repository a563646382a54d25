// Package invindex builds the per-round inverted index over a result set.
package invindex

import (
	"sort"

	"github.com/hyperjump/qexpand/internal/analysis"
	"github.com/hyperjump/qexpand/internal/models"
	"go.uber.org/zap"
)

// Postings maps term -> document id -> ordered token positions.
type Postings map[string]map[int][]int

// Index is the inverted index of one result set.
type Index struct {
	Postings Postings
	// Docs are the accepted documents in result order.
	Docs []*models.Document
	// Skipped holds the result positions of rejected documents (missing or duplicate id).
	Skipped []int

	byID   map[int]*models.Document
	tokens map[int][]string
}

// Entry is one (term, document) posting.
type Entry struct {
	Term      string
	DocID     int
	Positions []int
}

// Builder builds an Index from a result set.
type Builder struct {
	tokenizer *analysis.Tokenizer
	logger    *zap.Logger // optional; when set, logs skipped documents
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets a logger for skipped-document warnings.
func WithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// NewBuilder creates a builder that tokenizes document text with tok.
func NewBuilder(tok *analysis.Tokenizer, opts ...BuilderOption) *Builder {
	if tok == nil {
		tok = analysis.NewTokenizer(nil)
	}
	b := &Builder{tokenizer: tok}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Tokenizer returns the tokenizer the builder indexes with.
func (b *Builder) Tokenizer() *analysis.Tokenizer {
	return b.tokenizer
}

// Build indexes every document of rs and fills in each accepted document's TermFreq.
// Documents without an id, or repeating an id already seen, are skipped: they get no
// postings and no term-frequency vector.
func (b *Builder) Build(rs *models.ResultSet) *Index {
	idx := &Index{
		Postings: make(Postings),
		byID:     make(map[int]*models.Document),
		tokens:   make(map[int][]string),
	}
	if rs == nil {
		return idx
	}
	for pos, doc := range rs.Docs {
		id, ok := doc.DocID()
		if !ok {
			b.skip(idx, pos, "missing document id")
			continue
		}
		if _, dup := idx.byID[id]; dup {
			b.skip(idx, pos, "duplicate document id", zap.Int("id", id))
			continue
		}
		idx.byID[id] = doc
		idx.Docs = append(idx.Docs, doc)

		terms := b.tokenizer.Tokenize(doc.Text())
		idx.tokens[id] = terms
		doc.TermFreq = make(map[string]int, len(terms))
		for j, term := range terms {
			docs, ok := idx.Postings[term]
			if !ok {
				docs = make(map[int][]int)
				idx.Postings[term] = docs
			}
			docs[id] = append(docs[id], j)
			doc.TermFreq[term]++
		}
	}
	return idx
}

func (b *Builder) skip(idx *Index, pos int, reason string, fields ...zap.Field) {
	idx.Skipped = append(idx.Skipped, pos)
	if b.logger != nil {
		b.logger.Warn("skipping document: "+reason, append(fields, zap.Int("position", pos))...)
	}
}

// N returns the number of indexed documents.
func (idx *Index) N() int {
	return len(idx.Docs)
}

// DocFreq returns the number of documents containing term.
func (idx *Index) DocFreq(term string) int {
	return len(idx.Postings[term])
}

// Doc returns the indexed document with the given id.
func (idx *Index) Doc(id int) (*models.Document, bool) {
	d, ok := idx.byID[id]
	return d, ok
}

// Tokens returns the normalized token sequence of the document with the given id.
// Posting positions are offsets into this sequence.
func (idx *Index) Tokens(id int) []string {
	return idx.tokens[id]
}

// Terms returns all indexed terms in lexicographic order.
func (idx *Index) Terms() []string {
	terms := make([]string, 0, len(idx.Postings))
	for t := range idx.Postings {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// Entries returns every (term, document) posting ordered by term, then document id.
func (idx *Index) Entries() []Entry {
	var out []Entry
	for _, term := range idx.Terms() {
		docs := idx.Postings[term]
		ids := make([]int, 0, len(docs))
		for id := range docs {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			out = append(out, Entry{Term: term, DocID: id, Positions: docs[id]})
		}
	}
	return out
}
