package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/qexpand/internal/models"
)

// Solr defaults.
const (
	DefaultSolrURL  = "http://localhost:8983/solr"
	DefaultSolrCore = "football"
	// DefaultQueryFields boosts next_play over play.
	DefaultQueryFields = "play^1.5 next_play^2.5"
)

// Solr queries a Solr core with the edismax parser.
type Solr struct {
	endpoint    string
	queryFields string
	rows        int
	client      *http.Client
	logger      *zap.Logger
}

// SolrOption configures a Solr backend.
type SolrOption func(*Solr)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) SolrOption {
	return func(s *Solr) { s.client = c }
}

// WithRows sets the number of rows requested per query.
func WithRows(n int) SolrOption {
	return func(s *Solr) {
		if n > 0 {
			s.rows = n
		}
	}
}

// WithQueryFields sets the edismax qf parameter.
func WithQueryFields(qf string) SolrOption {
	return func(s *Solr) {
		if qf != "" {
			s.queryFields = qf
		}
	}
}

// WithSolrLogger sets the logger.
func WithSolrLogger(l *zap.Logger) SolrOption {
	return func(s *Solr) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSolr returns a backend for core at baseURL (for example http://localhost:8983/solr).
func NewSolr(baseURL, core string, opts ...SolrOption) *Solr {
	if baseURL == "" {
		baseURL = DefaultSolrURL
	}
	if core == "" {
		core = DefaultSolrCore
	}
	s := &Solr{
		endpoint:    strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(core) + "/select",
		queryFields: DefaultQueryFields,
		rows:        DefaultRows,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// solrResponse is the subset of the select response that is used.
type solrResponse struct {
	Response struct {
		NumFound int                 `json:"numFound"`
		Docs     []models.PlayRecord `json:"docs"`
	} `json:"response"`
	Error *struct {
		Msg  string `json:"msg"`
		Code int    `json:"code"`
	} `json:"error"`
}

// RequestURL returns the select URL for query.
func (s *Solr) RequestURL(query string) string {
	v := url.Values{}
	v.Set("q", query)
	v.Set("defType", "edismax")
	v.Set("qf", s.queryFields)
	v.Set("rows", strconv.Itoa(s.rows))
	v.Set("wt", "json")
	return s.endpoint + "?" + v.Encode()
}

// Search implements Backend. Documents are returned in Solr's ranking order; documents
// without a play_id keep a nil ID.
func (s *Solr) Search(ctx context.Context, query string) (*models.ResultSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.RequestURL(query), nil)
	if err != nil {
		return nil, fmt.Errorf("build solr request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error during requesting results: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read solr response: %w", err)
	}
	var sr solrResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("solr returned %s", resp.Status)
		}
		return nil, fmt.Errorf("decode solr response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if sr.Error != nil && sr.Error.Msg != "" {
			return nil, fmt.Errorf("solr returned %s: %s", resp.Status, sr.Error.Msg)
		}
		return nil, fmt.Errorf("solr returned %s", resp.Status)
	}

	rs := &models.ResultSet{
		Query:    query,
		NumFound: sr.Response.NumFound,
		Docs:     make([]*models.Document, 0, len(sr.Response.Docs)),
	}
	for i := range sr.Response.Docs {
		rs.Docs = append(rs.Docs, sr.Response.Docs[i].Document())
	}
	s.logger.Debug("solr search",
		zap.String("query", query),
		zap.Int("num_found", rs.NumFound),
		zap.Int("returned", rs.Len()),
		zap.Duration("took", time.Since(start)),
	)
	if rs.Len() == 0 {
		return rs, ErrNoResults
	}
	return rs, nil
}
