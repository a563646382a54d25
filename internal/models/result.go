package models

// ResultSet is the ordered list of documents returned by a backend for one query.
// Apart from the per-document relevance label and term-frequency vector it is never modified.
type ResultSet struct {
	Query    string      `json:"query"`
	NumFound int         `json:"num_found"`
	Docs     []*Document `json:"docs"`
}

// Len returns the number of documents in the set; a nil set has none.
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Docs)
}

// RelevantCount returns the number of documents labeled relevant.
func (rs *ResultSet) RelevantCount() int {
	if rs == nil {
		return 0
	}
	n := 0
	for _, d := range rs.Docs {
		if d.Relevant {
			n++
		}
	}
	return n
}

// ResetLabels marks every document non-relevant.
func (rs *ResultSet) ResetLabels() {
	if rs == nil {
		return
	}
	for _, d := range rs.Docs {
		d.Relevant = false
	}
}
