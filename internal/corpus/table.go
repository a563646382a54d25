package corpus

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/qexpand/internal/models"
)

// Columns are the recognized header names of tabular corpus files. Players are separated by ';'.
var Columns = []string{"play_id", "match_id", "minute", "play", "next_play", "previous_play", "home_score", "away_score", "players"}

func readCSV(content []byte) ([]*models.Play, error) {
	cr := csv.NewReader(bytes.NewReader(content))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	var rows [][]string
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, row)
	}
	return fromRows(rows)
}

func readExcel(content []byte) ([]*models.Play, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	return fromRows(rows)
}

// fromRows maps a header row plus data rows to plays. Rows with an empty play_id are skipped.
func fromRows(rows [][]string) ([]*models.Play, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := col["play_id"]; !ok {
		return nil, errors.New("missing play_id column")
	}
	if _, ok := col["play"]; !ok {
		return nil, errors.New("missing play column")
	}

	plays := make([]*models.Play, 0, len(rows)-1)
	for n, row := range rows[1:] {
		get := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		atoi := func(name string) (int, error) {
			s := get(name)
			if s == "" {
				return 0, nil
			}
			v, err := strconv.Atoi(s)
			if err != nil {
				return 0, fmt.Errorf("row %d: %s: invalid integer %q", n+2, name, s)
			}
			return v, nil
		}

		if get("play_id") == "" {
			continue
		}
		p := &models.Play{
			Minute:       get("minute"),
			Play:         get("play"),
			NextPlay:     get("next_play"),
			PreviousPlay: get("previous_play"),
			Players:      splitPlayers(get("players")),
		}
		var err error
		if p.ID, err = atoi("play_id"); err != nil {
			return nil, err
		}
		if p.MatchID, err = atoi("match_id"); err != nil {
			return nil, err
		}
		if p.HomeScore, err = atoi("home_score"); err != nil {
			return nil, err
		}
		if p.AwayScore, err = atoi("away_score"); err != nil {
			return nil, err
		}
		plays = append(plays, p)
	}
	return plays, nil
}

func splitPlayers(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ";") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
