package keyword

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/qexpand/internal/models"
)

const (
	fieldPlay         = "play"
	fieldNextPlay     = "next_play"
	fieldPreviousPlay = "previous_play"
	fieldPlayers      = "players"
	fieldMatchID      = "match_id"
)

// playDoc is the indexed form of a play.
type playDoc struct {
	Play         string   `json:"play"`
	NextPlay     string   `json:"next_play"`
	PreviousPlay string   `json:"previous_play"`
	Players      []string `json:"players"`
	MatchID      float64  `json:"match_id"`
}

func toPlayDoc(p *models.Play) playDoc {
	return playDoc{
		Play:         p.Play,
		NextPlay:     p.NextPlay,
		PreviousPlay: p.PreviousPlay,
		Players:      p.Players,
		MatchID:      float64(p.MatchID),
	}
}

// BleveIndex implements PlayIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path.
// An existing index is reopened with its stored mapping; remove the directory after
// changing the mapping to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// NewMemIndex creates an in-memory index.
func NewMemIndex() (*BleveIndex, error) {
	index, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	// standard analyzer: lowercase + tokenize, no stemming, so matching stays close to the
	// whitespace/punctuation split the feedback loop indexes with
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(fieldPlay, textFieldMapping)
	docMapping.AddFieldMappingsAt(fieldNextPlay, textFieldMapping)
	docMapping.AddFieldMappingsAt(fieldPreviousPlay, textFieldMapping)
	docMapping.AddFieldMappingsAt(fieldPlayers, textFieldMapping)
	docMapping.AddFieldMappingsAt(fieldMatchID, bleve.NewNumericFieldMapping())
	im.AddDocumentMapping("play", docMapping)
	im.DefaultType = "play"
	im.DefaultMapping = docMapping
	return im
}

// Index indexes a play under its id.
func (b *BleveIndex) Index(ctx context.Context, play *models.Play) error {
	return b.index.Index(strconv.Itoa(play.ID), toPlayDoc(play))
}

// IndexBatch indexes plays in one batch.
func (b *BleveIndex) IndexBatch(ctx context.Context, plays []*models.Play) error {
	batch := b.index.NewBatch()
	for _, p := range plays {
		if err := batch.Index(strconv.Itoa(p.ID), toPlayDoc(p)); err != nil {
			return fmt.Errorf("failed to batch play %d: %w", p.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	return nil
}

// Search runs a disjunction of per-field match queries: play^PlayBoost and
// next_play^NextPlayBoost. Total reports every matching play, Hits at most limit.
// When opts.FuzzyEnabled is true, each query term is matched with a FuzzyQuery instead.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) (*SearchResult, error) {
	playBoost := DefaultPlayBoost
	nextBoost := DefaultNextPlayBoost
	fuzzyEnabled := false
	fuzziness := 2
	if opts != nil {
		if opts.PlayBoost > 0 {
			playBoost = opts.PlayBoost
		}
		if opts.NextPlayBoost > 0 {
			nextBoost = opts.NextPlayBoost
		}
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	var playQuery, nextQuery blevequery.Query
	if fuzzyEnabled {
		playQuery = buildFuzzyQuery(query, fuzziness, fieldPlay, playBoost)
		nextQuery = buildFuzzyQuery(query, fuzziness, fieldNextPlay, nextBoost)
	} else {
		pq := bleve.NewMatchQuery(query)
		pq.SetField(fieldPlay)
		pq.SetBoost(playBoost)
		playQuery = pq
		nq := bleve.NewMatchQuery(query)
		nq.SetField(fieldNextPlay)
		nq.SetBoost(nextBoost)
		nextQuery = nq
	}

	search := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(playQuery, nextQuery))
	search.Size = limit
	results, err := b.index.SearchInContext(ctx, search)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := &SearchResult{Total: results.Total, Hits: make([]*Hit, 0, len(results.Hits))}
	for _, hit := range results.Hits {
		id, err := strconv.Atoi(hit.ID)
		if err != nil {
			continue
		}
		out.Hits = append(out.Hits, &Hit{ID: id, Score: hit.Score})
	}
	return out, nil
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries, one per query term, on field.
func buildFuzzyQuery(queryStr string, fuzziness int, field string, boost float64) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	if len(terms) == 0 {
		mq := bleve.NewMatchQuery(queryStr)
		mq.SetField(field)
		mq.SetBoost(boost)
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		fq.SetBoost(boost)
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Delete removes a play from the index.
func (b *BleveIndex) Delete(ctx context.Context, id int) error {
	return b.index.Delete(strconv.Itoa(id))
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// DocCount returns the total number of plays in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}
