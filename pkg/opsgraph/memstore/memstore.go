// Package memstore is a SQLite-backed long-term memory store. It
// implements both sides of the engine's memory side channel:
// capability.MemorySearcher for pre-classification enhancement and
// capability.MemoryExtractor for post-completion extraction.
//
// Search is deliberately simple: tokenized LIKE matching scored by term
// overlap, filtered by type and confidence. The store sits on a
// best-effort path with a two-second budget; it must be cheap and
// local, not clever.
package memstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/opsgraph/opsgraph/pkg/opsgraph/capability"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("memory store is closed")

// Store is a SQLite-backed memory store.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// Open creates or opens a memory store at path (":memory:" for testing).
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			type TEXT NOT NULL,
			confidence REAL NOT NULL,
			session_id TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_memories_type
		ON memories(type, confidence)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS memory_relations (
			from_id TEXT NOT NULL,
			to_id TEXT NOT NULL,
			type TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (from_id, to_id, type)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create relations table: %w", err)
	}

	return &Store{db: db}, nil
}

// Put stores one memory entry, generating an ID if absent.
func (s *Store) Put(ctx context.Context, entry capability.MemoryEntry) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrClosed
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Type == "" {
		entry.Type = capability.MemoryFact
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, content, type, confidence, session_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			type = excluded.type,
			confidence = excluded.confidence
	`, entry.ID, entry.Content, string(entry.Type), entry.Confidence,
		entry.Metadata["session_id"], time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("store memory: %w", err)
	}
	return entry.ID, nil
}

// Search implements capability.MemorySearcher. Entries are scored by how
// many query terms their content contains, then ordered by score and
// confidence.
func (s *Store) Search(ctx context.Context, q capability.MemoryQuery) ([]capability.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	query := `SELECT id, content, type, confidence FROM memories WHERE confidence >= ?`
	args := []any{q.MinConfidence}

	if len(q.Types) > 0 {
		placeholders := strings.Repeat("?,", len(q.Types))
		query += ` AND type IN (` + placeholders[:len(placeholders)-1] + `)`
		for _, t := range q.Types {
			args = append(args, string(t))
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search memories: %w", err)
	}
	defer rows.Close()

	terms := tokenize(q.Query)

	type scored struct {
		entry capability.MemoryEntry
		score int
	}
	var matches []scored

	for rows.Next() {
		var e capability.MemoryEntry
		var typ string
		if err := rows.Scan(&e.ID, &e.Content, &typ, &e.Confidence); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		e.Type = capability.MemoryType(typ)

		score := overlap(e.Content, terms)
		if len(terms) > 0 && score == 0 {
			continue
		}
		matches = append(matches, scored{entry: e, score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].entry.Confidence > matches[j].entry.Confidence
	})

	limit := q.Limit
	if limit <= 0 || limit > len(matches) {
		limit = len(matches)
	}

	out := make([]capability.MemoryEntry, 0, limit)
	for _, m := range matches[:limit] {
		out = append(out, m.entry)
	}
	return out, nil
}

// Relation links two memory entries. The relation type is an open string:
// the core set is small ("derived_from", "supersedes") but callers may
// mint their own.
type Relation struct {
	FromID string
	ToID   string
	Type   string
}

// Relate records a relation between two stored entries. Re-recording the
// same relation is a no-op.
func (s *Store) Relate(ctx context.Context, rel Relation) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_relations (from_id, to_id, type, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(from_id, to_id, type) DO NOTHING
	`, rel.FromID, rel.ToID, rel.Type, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store relation: %w", err)
	}
	return nil
}

// Related returns every relation touching the given entry, in either
// direction.
func (s *Store) Related(ctx context.Context, id string) ([]Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT from_id, to_id, type FROM memory_relations
		WHERE from_id = ? OR to_id = ?
		ORDER BY created_at
	`, id, id)
	if err != nil {
		return nil, fmt.Errorf("load relations: %w", err)
	}
	defer rows.Close()

	var rels []Relation
	for rows.Next() {
		var r Relation
		if err := rows.Scan(&r.FromID, &r.ToID, &r.Type); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// Delete removes a memory entry by ID, along with its relations.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM memory_relations WHERE from_id = ? OR to_id = ?`, id, id)
	return err
}

// Close releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// tokenize lowercases and splits text into search terms, dropping short
// stop-words.
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,:;!?\"'()[]{}")
		if len(f) < 3 {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

// overlap counts how many terms appear in content.
func overlap(content string, terms []string) int {
	lower := strings.ToLower(content)
	n := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			n++
		}
	}
	return n
}
