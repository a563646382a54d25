package models

import (
	"testing"
)

func TestDocument_Text(t *testing.T) {
	tests := []struct {
		name string
		doc  *Document
		want string
	}{
		{"both fields", &Document{Play: "Goal!", NextPlay: "Kick off."}, "Goal! Kick off."},
		{"play only", &Document{Play: "Corner."}, "Corner."},
		{"next play only", &Document{NextPlay: "Foul."}, "Foul."},
		{"empty", &Document{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.doc.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDocument_DocID(t *testing.T) {
	if _, ok := (&Document{}).DocID(); ok {
		t.Error("document without id should report missing id")
	}
	id, ok := (&Document{ID: IntPtr(0)}).DocID()
	if !ok || id != 0 {
		t.Errorf("DocID() = %d, %v; want 0, true", id, ok)
	}
	var nilDoc *Document
	if _, ok := nilDoc.DocID(); ok {
		t.Error("nil document should report missing id")
	}
}

func TestNewDocument(t *testing.T) {
	p := &Play{ID: 42, Play: "Shot", NextPlay: "Save", Minute: "12'"}
	d := NewDocument(p)
	id, ok := d.DocID()
	if !ok || id != 42 {
		t.Fatalf("DocID() = %d, %v", id, ok)
	}
	p.ID = 7
	if id, _ := d.DocID(); id != 42 {
		t.Error("document id must not alias the play id")
	}
	if d.Relevant {
		t.Error("new documents start non-relevant")
	}
}

func TestResultSet_Counts(t *testing.T) {
	rs := &ResultSet{Docs: []*Document{{Relevant: true}, {}, {Relevant: true}}}
	if rs.Len() != 3 {
		t.Errorf("Len() = %d", rs.Len())
	}
	if rs.RelevantCount() != 2 {
		t.Errorf("RelevantCount() = %d", rs.RelevantCount())
	}
	rs.ResetLabels()
	if rs.RelevantCount() != 0 {
		t.Error("ResetLabels should clear all labels")
	}
	var empty *ResultSet
	if empty.Len() != 0 || empty.RelevantCount() != 0 {
		t.Error("nil result set is empty")
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeRelevance, false},
		{"relevance", ModeRelevance, false},
		{"pseudo", ModePseudo, false},
		{"neighborhood", ModeNeighborhood, false},
		{"bogus", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
	if !ModeNeighborhood.Extended() || ModePseudo.Extended() {
		t.Error("only neighborhood mode is extended")
	}
}
