// Package store keeps memory records in SQLite and ranks them by cosine
// distance between float32 embeddings.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"memoryd/internal/logging"
)

var (
	// ErrNotReady is returned while the store is still opening.
	ErrNotReady = errors.New("store: memory server not initialised")
	// ErrNotFound is returned when a record does not exist for the given owner.
	ErrNotFound = errors.New("store: record not found")
)

// TimeFormat is how created_at and updated_at are written. Fixed-width
// fractional seconds in UTC keep string order equal to time order.
const TimeFormat = "2006-01-02T15:04:05.000000000Z"

// Record is one stored memory.
type Record struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Memory       string    `json:"memory"`
	MetadataJSON string    `json:"-"`
	Embedding    []float32 `json:"-"`
	CreatedAt    string    `json:"created_at"`
	UpdatedAt    string    `json:"updated_at"`
}

// RecordSummary is the slice of a record the aggregation layer reads.
type RecordSummary struct {
	OwnerID   string
	Metadata  string
	UpdatedAt string
}

// SearchResult is a record with its similarity to the query (1 = identical).
type SearchResult struct {
	Record
	Score float64 `json:"score"`
}

// Store is a SQLite-backed memory table.
type Store struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	memory TEXT NOT NULL,
	embedding BLOB NOT NULL,
	metadata_json TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
CREATE INDEX IF NOT EXISTS idx_memories_updated ON memories(updated_at);
`

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "open")
	defer timer.Stop()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open(driverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	s := &Store{db: db, dbPath: path, now: time.Now}
	n, err := s.Count(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("opened %s (%s driver, %d memories)", path, driverName, n)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }

func (s *Store) timestamp() string {
	return s.now().UTC().Format(TimeFormat)
}

// Add stores a new memory and returns it with its id and timestamps.
func (s *Store) Add(ctx context.Context, userID, memory, metadataJSON string, embedding []float32) (Record, error) {
	if strings.TrimSpace(metadataJSON) == "" {
		metadataJSON = "{}"
	}
	ts := s.timestamp()
	rec := Record{
		ID:           uuid.NewString(),
		UserID:       userID,
		Memory:       memory,
		MetadataJSON: metadataJSON,
		Embedding:    embedding,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, user_id, memory, embedding, metadata_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Memory, encodeVector(embedding), rec.MetadataJSON, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("failed to insert memory: %w", err)
	}
	logging.StoreDebug("added memory %s for %s (%d dims)", rec.ID, userID, len(embedding))
	return rec, nil
}

// Get returns one record by id.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, memory, embedding, metadata_json, created_at, updated_at
		 FROM memories WHERE id = ?`, id)

	var rec Record
	var blob []byte
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Memory, &blob, &rec.MetadataJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	if rec.Embedding, err = decodeVector(blob); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Delete removes id. When userID is non-empty the record must belong to it.
func (s *Store) Delete(ctx context.Context, id, userID string) error {
	query := `DELETE FROM memories WHERE id = ?`
	args := []interface{}{id}
	if userID != "" {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByOwner returns an owner's records, most recently updated first.
// limit <= 0 returns all of them.
func (s *Store) ListByOwner(ctx context.Context, userID string, limit int) ([]Record, error) {
	query := `SELECT id, user_id, memory, metadata_json, created_at, updated_at
		FROM memories WHERE user_id = ? ORDER BY updated_at DESC, rowid DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Memory, &rec.MetadataJSON, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Search ranks records by cosine distance to query, optionally limited to
// one owner.
func (s *Store) Search(ctx context.Context, query []float32, userID string, limit int) ([]SearchResult, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("store: empty query vector")
	}
	if limit <= 0 {
		limit = 10
	}

	sqlText := `SELECT id, user_id, memory, metadata_json, created_at, updated_at,
		vec_distance_cosine(embedding, ?) AS distance
		FROM memories`
	args := []interface{}{encodeVector(query)}
	if userID != "" {
		sqlText += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	sqlText += ` ORDER BY distance ASC LIMIT ?`
	args = append(args, limit)

	timer := logging.StartTimer(logging.CategoryStore, "search")
	defer timer.StopWithThreshold(200 * time.Millisecond)

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var distance float64
		if err := rows.Scan(&r.ID, &r.UserID, &r.Memory, &r.MetadataJSON, &r.CreatedAt, &r.UpdatedAt, &distance); err != nil {
			return nil, err
		}
		r.Score = 1 - distance
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return n, nil
}

// ListAllRecords scans every record inside one read transaction, so a scan
// never observes a write that lands halfway through it.
func (s *Store) ListAllRecords(ctx context.Context) ([]RecordSummary, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin scan: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT user_id, metadata_json, updated_at FROM memories ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan memories: %w", err)
	}
	defer rows.Close()

	var out []RecordSummary
	for rows.Next() {
		var r RecordSummary
		var meta, updated sql.NullString
		if err := rows.Scan(&r.OwnerID, &meta, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan memories: %w", err)
		}
		r.Metadata = meta.String
		r.UpdatedAt = updated.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan memories: %w", err)
	}
	return out, nil
}
