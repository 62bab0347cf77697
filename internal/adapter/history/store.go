// Package history persists answered queries and operator settings in a
// local SQLite database.
package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver

	"docchat/internal/domain"
	"docchat/internal/port"
)

const schema = `
CREATE TABLE IF NOT EXISTS answers (
	id               TEXT PRIMARY KEY,
	created_at       INTEGER NOT NULL,
	query            TEXT NOT NULL,
	response         TEXT NOT NULL,
	sources          TEXT NOT NULL,
	images           TEXT NOT NULL,
	suggestions      TEXT NOT NULL,
	elapsed_ms       INTEGER NOT NULL,
	chunks_retrieved INTEGER NOT NULL,
	rating           TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_answers_created ON answers(created_at DESC);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Store is the SQLite-backed answer history. It also serves operator
// settings: values are read per call, so changes apply to the next request
// without a restart.
type Store struct {
	db   *sql.DB
	path string
}

var (
	_ port.History  = (*Store)(nil)
	_ port.Settings = (*Store)(nil)
)

// Open creates or opens the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveAnswer inserts one completed answer. Saving with an existing id
// replaces the previous row.
func (s *Store) SaveAnswer(a domain.Answer) error {
	sources, err := json.Marshal(a.Sources)
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}
	images, err := json.Marshal(a.Images)
	if err != nil {
		return fmt.Errorf("encode images: %w", err)
	}
	suggestions, err := json.Marshal(a.Suggestions)
	if err != nil {
		return fmt.Errorf("encode suggestions: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO answers
			(id, created_at, query, response, sources, images, suggestions, elapsed_ms, chunks_retrieved, rating)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Timestamp, a.Query, a.Response,
		string(sources), string(images), string(suggestions),
		a.ElapsedMS, a.ChunksRetrieved, a.Rating)
	if err != nil {
		return fmt.Errorf("save answer %s: %w", a.ID, err)
	}
	return nil
}

// Answer fetches one answer by id.
func (s *Store) Answer(id string) (domain.Answer, error) {
	row := s.db.QueryRow(`
		SELECT id, created_at, query, response, sources, images, suggestions, elapsed_ms, chunks_retrieved, rating
		FROM answers WHERE id = ?`, id)
	a, err := scanAnswer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Answer{}, fmt.Errorf("answer %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Answer{}, fmt.Errorf("load answer %s: %w", id, err)
	}
	return a, nil
}

// Recent returns up to limit answers, most recent first.
func (s *Store) Recent(limit int) ([]domain.Answer, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, created_at, query, response, sources, images, suggestions, elapsed_ms, chunks_retrieved, rating
		FROM answers ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	var answers []domain.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// Feedback records a good/bad rating for an answered query.
func (s *Store) Feedback(id, rating string) error {
	if rating != "good" && rating != "bad" {
		return fmt.Errorf("rating %q: %w", rating, domain.ErrInvalidInput)
	}
	res, err := s.db.Exec(`UPDATE answers SET rating = ? WHERE id = ?`, rating, id)
	if err != nil {
		return fmt.Errorf("record feedback for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record feedback for %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("answer %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnswer(row rowScanner) (domain.Answer, error) {
	var a domain.Answer
	var sources, images, suggestions string
	err := row.Scan(&a.ID, &a.Timestamp, &a.Query, &a.Response,
		&sources, &images, &suggestions,
		&a.ElapsedMS, &a.ChunksRetrieved, &a.Rating)
	if err != nil {
		return domain.Answer{}, err
	}
	if err := json.Unmarshal([]byte(sources), &a.Sources); err != nil {
		return domain.Answer{}, fmt.Errorf("decode sources: %w", err)
	}
	if err := json.Unmarshal([]byte(images), &a.Images); err != nil {
		return domain.Answer{}, fmt.Errorf("decode images: %w", err)
	}
	if err := json.Unmarshal([]byte(suggestions), &a.Suggestions); err != nil {
		return domain.Answer{}, fmt.Errorf("decode suggestions: %w", err)
	}
	return a, nil
}
