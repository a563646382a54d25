package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PlayRecord is the wire form of a play as returned by Solr or stored in corpus JSON
// files. Solr's default schema makes most fields multi-valued, so every field accepts
// either a scalar or an array whose first element is used.
type PlayRecord struct {
	PlayID       FlexInt     `json:"play_id"`
	MatchID      FlexInt     `json:"match_id"`
	Minute       FlexString  `json:"minute"`
	Play         FlexString  `json:"play"`
	NextPlay     FlexString  `json:"next_play"`
	PreviousPlay FlexString  `json:"previous_play"`
	HomeScore    FlexInt     `json:"home_score"`
	AwayScore    FlexInt     `json:"away_score"`
	Players      FlexStrings `json:"players"`
}

// Document converts the record to a result document. The document has no id when the
// record carries none.
func (r *PlayRecord) Document() *Document {
	d := &Document{
		Play:         r.Play.Value,
		NextPlay:     r.NextPlay.Value,
		PreviousPlay: r.PreviousPlay.Value,
		Minute:       r.Minute.Value,
		MatchID:      r.MatchID.Value,
		Players:      r.Players,
	}
	if r.PlayID.Valid {
		d.ID = IntPtr(r.PlayID.Value)
	}
	return d
}

// ToPlay converts the record to a corpus play; ok is false when the record has no id.
func (r *PlayRecord) ToPlay() (p *Play, ok bool) {
	if !r.PlayID.Valid {
		return nil, false
	}
	return &Play{
		ID:           r.PlayID.Value,
		MatchID:      r.MatchID.Value,
		Minute:       r.Minute.Value,
		Play:         r.Play.Value,
		NextPlay:     r.NextPlay.Value,
		PreviousPlay: r.PreviousPlay.Value,
		HomeScore:    r.HomeScore.Value,
		AwayScore:    r.AwayScore.Value,
		Players:      r.Players,
	}, true
}

// FlexInt decodes a number, a numeric string, null, or an array whose first element is one of those.
type FlexInt struct {
	Value int
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*f = FlexInt{}
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		return nil
	case b[0] == '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(b, &arr); err != nil {
			return err
		}
		if len(arr) == 0 {
			return nil
		}
		return f.UnmarshalJSON(arr[0])
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid integer %q", s)
		}
		f.Value, f.Valid = n, true
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	v, err := n.Float64()
	if err != nil {
		return err
	}
	f.Value, f.Valid = int(v), true
	return nil
}

// MarshalJSON implements json.Marshaler.
func (f FlexInt) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(f.Value)), nil
}

// FlexString decodes a string, null, or an array whose first element is a string.
type FlexString struct {
	Value string
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*f = FlexString{}
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		return nil
	case b[0] == '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(b, &arr); err != nil {
			return err
		}
		if len(arr) == 0 {
			return nil
		}
		return f.UnmarshalJSON(arr[0])
	case b[0] == '"':
		return json.Unmarshal(b, &f.Value)
	}
	// numbers and booleans keep their literal text
	f.Value = string(b)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (f FlexString) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Value)
}

// FlexStrings decodes an array of strings, a single string, or null.
type FlexStrings []string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexStrings) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*f = nil
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexStrings{s}
		return nil
	}
	var arr []string
	if err := json.Unmarshal(b, &arr); err != nil {
		return err
	}
	*f = arr
	return nil
}
