package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/qexpand/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS plays (
		id INTEGER PRIMARY KEY,
		match_id INTEGER,
		minute TEXT,
		play TEXT NOT NULL,
		next_play TEXT,
		previous_play TEXT,
		home_score INTEGER,
		away_score INTEGER,
		players TEXT,
		source TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_plays_source ON plays(source);
	CREATE INDEX IF NOT EXISTS idx_plays_match ON plays(match_id);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		initial_query TEXT NOT NULL,
		final_query TEXT NOT NULL,
		stop_reason TEXT,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);

	CREATE TABLE IF NOT EXISTS rounds (
		session_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		query_text TEXT NOT NULL,
		results INTEGER NOT NULL,
		relevant INTEGER NOT NULL,
		precision REAL NOT NULL,
		terms TEXT,
		weights TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (session_id, number),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

const upsertPlaySQL = `INSERT INTO plays (id, match_id, minute, play, next_play, previous_play, home_score, away_score, players, source, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		match_id = excluded.match_id, minute = excluded.minute, play = excluded.play,
		next_play = excluded.next_play, previous_play = excluded.previous_play,
		home_score = excluded.home_score, away_score = excluded.away_score,
		players = excluded.players, source = excluded.source`

const selectPlaySQL = `SELECT id, match_id, minute, play, next_play, previous_play, home_score, away_score, players, source, created_at FROM plays`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertPlay(ctx context.Context, db execer, p *models.Play, now time.Time) error {
	playersJSON, err := json.Marshal(p.Players)
	if err != nil {
		return fmt.Errorf("failed to marshal players: %w", err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	_, err = db.ExecContext(ctx, upsertPlaySQL,
		p.ID, p.MatchID, p.Minute, p.Play, p.NextPlay, p.PreviousPlay,
		p.HomeScore, p.AwayScore, string(playersJSON), p.Source, p.CreatedAt,
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlay(row scanner) (*models.Play, error) {
	var p models.Play
	var minute, next, prev, players, source sql.NullString
	var matchID, home, away sql.NullInt64
	if err := row.Scan(&p.ID, &matchID, &minute, &p.Play, &next, &prev, &home, &away, &players, &source, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.MatchID = int(matchID.Int64)
	p.Minute = minute.String
	p.NextPlay = next.String
	p.PreviousPlay = prev.String
	p.HomeScore = int(home.Int64)
	p.AwayScore = int(away.Int64)
	p.Source = source.String
	if players.String != "" && players.String != "null" {
		if err := json.Unmarshal([]byte(players.String), &p.Players); err != nil {
			return nil, fmt.Errorf("failed to unmarshal players: %w", err)
		}
	}
	return &p, nil
}

// UpsertPlay inserts a play or replaces the stored play with the same id.
func (s *SQLiteStorage) UpsertPlay(ctx context.Context, play *models.Play) error {
	return upsertPlay(ctx, s.db, play, time.Now())
}

// BatchUpsertPlays upserts multiple plays in a transaction.
func (s *SQLiteStorage) BatchUpsertPlays(ctx context.Context, plays []*models.Play) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for _, p := range plays {
		if err := upsertPlay(ctx, tx, p, now); err != nil {
			return fmt.Errorf("failed to upsert play %d: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// GetPlay returns a play by id.
func (s *SQLiteStorage) GetPlay(ctx context.Context, id int) (*models.Play, error) {
	p, err := scanPlay(s.db.QueryRowContext(ctx, selectPlaySQL+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("play %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetPlays returns the stored plays among ids, keyed by id. Missing ids are absent from the map.
func (s *SQLiteStorage) GetPlays(ctx context.Context, ids []int) (map[int]*models.Play, error) {
	out := make(map[int]*models.Play, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, selectPlaySQL+` WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPlay(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// DeletePlay removes a play by id.
func (s *SQLiteStorage) DeletePlay(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM plays WHERE id = ?`, id)
	return err
}

// DeletePlaysBySource removes every play loaded from source and returns their ids.
func (s *SQLiteStorage) DeletePlaysBySource(ctx context.Context, source string) ([]int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM plays WHERE source = ? ORDER BY id`, source)
	if err != nil {
		return nil, err
	}
	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM plays WHERE source = ?`, source); err != nil {
		return nil, err
	}
	return ids, tx.Commit()
}

// ListPlays returns plays ordered by id with offset and limit.
func (s *SQLiteStorage) ListPlays(ctx context.Context, offset, limit int) ([]*models.Play, error) {
	rows, err := s.db.QueryContext(ctx, selectPlaySQL+` ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plays []*models.Play
	for rows.Next() {
		p, err := scanPlay(rows)
		if err != nil {
			return nil, err
		}
		plays = append(plays, p)
	}
	return plays, rows.Err()
}

// SaveSession stores a session and its rounds, replacing any previous record with the same id.
func (s *SQLiteStorage) SaveSession(ctx context.Context, sess *models.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM rounds WHERE session_id = ?`, sess.ID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, mode, initial_query, final_query, stop_reason, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET mode = excluded.mode, initial_query = excluded.initial_query,
		 final_query = excluded.final_query, stop_reason = excluded.stop_reason, error = excluded.error`,
		sess.ID, string(sess.Mode), sess.InitialQuery, sess.FinalQuery, string(sess.StopReason), sess.Error, sess.CreatedAt,
	)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rounds (session_id, number, query_text, results, relevant, precision, terms, weights, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range sess.Rounds {
		termsJSON, err := json.Marshal(r.Terms)
		if err != nil {
			return fmt.Errorf("failed to marshal terms: %w", err)
		}
		weightsJSON, err := json.Marshal(r.Weights)
		if err != nil {
			return fmt.Errorf("failed to marshal weights: %w", err)
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = sess.CreatedAt
		}
		if _, err := stmt.ExecContext(ctx, sess.ID, r.Number, r.Query, r.Results, r.Relevant, r.Precision,
			string(termsJSON), string(weightsJSON), r.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetSession returns a session with its rounds.
func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (*models.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT id, mode, initial_query, final_query, stop_reason, error, created_at
		 FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT number, query_text, results, relevant, precision, terms, weights, created_at
		 FROM rounds WHERE session_id = ? ORDER BY number`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var r models.Round
		var terms, weights sql.NullString
		if err := rows.Scan(&r.Number, &r.Query, &r.Results, &r.Relevant, &r.Precision, &terms, &weights, &r.CreatedAt); err != nil {
			return nil, err
		}
		if terms.String != "" {
			if err := json.Unmarshal([]byte(terms.String), &r.Terms); err != nil {
				return nil, fmt.Errorf("failed to unmarshal terms: %w", err)
			}
		}
		if weights.String != "" {
			if err := json.Unmarshal([]byte(weights.String), &r.Weights); err != nil {
				return nil, fmt.Errorf("failed to unmarshal weights: %w", err)
			}
		}
		sess.Rounds = append(sess.Rounds, &r)
	}
	return sess, rows.Err()
}

// ListSessions returns sessions, newest first, without their rounds.
func (s *SQLiteStorage) ListSessions(ctx context.Context, offset, limit int) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, mode, initial_query, final_query, stop_reason, error, created_at
		 FROM sessions ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func scanSession(row scanner) (*models.Session, error) {
	var sess models.Session
	var mode string
	var stopReason, errText sql.NullString
	if err := row.Scan(&sess.ID, &mode, &sess.InitialQuery, &sess.FinalQuery, &stopReason, &errText, &sess.CreatedAt); err != nil {
		return nil, err
	}
	sess.Mode = models.Mode(mode)
	sess.StopReason = models.StopReason(stopReason.String)
	sess.Error = errText.String
	return &sess, nil
}

// CountPlays returns the total number of plays.
func (s *SQLiteStorage) CountPlays(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM plays`).Scan(&count)
	return count, err
}

// CountSessions returns the total number of sessions.
func (s *SQLiteStorage) CountSessions(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
