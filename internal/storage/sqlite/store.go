// Package sqlite provides a SQLite implementation of storage.RecordStore.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/companio/eterna/internal/storage"
	"github.com/companio/eterna/pkg/types"
)

// RecordStore implements storage.RecordStore using SQLite.
type RecordStore struct {
	db *sql.DB
}

var _ storage.RecordStore = (*RecordStore)(nil)

// NewRecordStore opens a SQLite database, configures WAL mode, and creates
// the schema. Use ":memory:" as the dsn for tests.
func NewRecordStore(dsn string) (*RecordStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load.
	// WAL mode lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &RecordStore{db: db}, nil
}

// GetDB returns the underlying database connection.
func (s *RecordStore) GetDB() *sql.DB {
	return s.db
}

// Close releases the database connection.
func (s *RecordStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Insert creates a new record.
func (s *RecordStore) Insert(ctx context.Context, rec *types.MemoryRecord) error {
	if rec == nil {
		return storage.ErrInvalidInput
	}
	if rec.ID == "" || rec.UserID == "" {
		return fmt.Errorf("%w: record ID and user ID are required", storage.ErrInvalidInput)
	}
	if rec.Fact == "" {
		return fmt.Errorf("%w: fact is required", storage.ErrInvalidInput)
	}

	var payloadJSON []byte
	var err error
	if rec.Payload != nil {
		payloadJSON, err = json.Marshal(rec.Payload)
		if err != nil {
			return fmt.Errorf("sqlite: failed to marshal payload: %w", err)
		}
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if rec.LastMentionedAt.IsZero() {
		rec.LastMentionedAt = now
	}
	if rec.Status == "" {
		rec.Status = types.StatusActive
	}
	if rec.Mentions < 1 {
		rec.Mentions = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_memories (
			id, user_id, categoria, fato, fato_normalizado, detalhes,
			importancia, mencoes, ultima_mencao, status, supersedes_id,
			confidence, validado, origem_conversa_id, payload,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.UserID,
		rec.Category,
		rec.Fact,
		rec.FactNormalized,
		nullableString(rec.Details),
		rec.Importance,
		rec.Mentions,
		rec.LastMentionedAt,
		string(rec.Status),
		nullableString(rec.SupersedesID),
		rec.Confidence,
		rec.Validated,
		nullableString(rec.OriginConversationID),
		nullableBytes(payloadJSON),
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert record: %w", err)
	}
	return nil
}

const recordColumns = `
	id, user_id, categoria, fato, fato_normalizado, detalhes,
	importancia, mencoes, ultima_mencao, status, supersedes_id,
	confidence, validado, origem_conversa_id, payload,
	created_at, updated_at`

// Get retrieves one record by ID, scoped to the user.
func (s *RecordStore) Get(ctx context.Context, userID, id string) (*types.MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT`+recordColumns+` FROM user_memories WHERE id = ? AND user_id = ?`,
		id, userID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get record %s: %w", id, err)
	}
	return rec, nil
}

// FindActive looks up the single active record for the dedup identity.
func (s *RecordStore) FindActive(ctx context.Context, userID, category, factNormalized string) (*types.MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT`+recordColumns+` FROM user_memories
		WHERE user_id = ? AND categoria = ? AND fato_normalizado = ? AND status = 'active'`,
		userID, category, factNormalized)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to find active record: %w", err)
	}
	return rec, nil
}

// ListActive returns active records ordered by importance then recency of mention.
func (s *RecordStore) ListActive(ctx context.Context, opts storage.ListOptions) ([]types.MemoryRecord, error) {
	opts.Normalize()
	if opts.UserID == "" {
		return nil, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}

	query := `SELECT` + recordColumns + ` FROM user_memories
		WHERE user_id = ? AND status = 'active'`
	args := []interface{}{opts.UserID}
	if opts.Category != "" {
		query += ` AND categoria = ?`
		args = append(args, opts.Category)
	}
	query += ` ORDER BY importancia DESC, ultima_mencao DESC`
	if opts.Limit != storage.NoLimit {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list active records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// CountByCategory returns the user's active record counts grouped by category.
func (s *RecordStore) CountByCategory(ctx context.Context, userID string) (map[string]int, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID is required", storage.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT categoria, COUNT(*) FROM user_memories
		WHERE user_id = ? AND status = 'active'
		GROUP BY categoria`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to count records by category: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan category count: %w", err)
		}
		counts[category] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating category counts: %w", err)
	}
	return counts, nil
}

// ListActiveByCategories returns all active records in any of the given categories.
func (s *RecordStore) ListActiveByCategories(ctx context.Context, userID string, categories []string) ([]types.MemoryRecord, error) {
	if userID == "" || len(categories) == 0 {
		return nil, fmt.Errorf("%w: user ID and categories are required", storage.ErrInvalidInput)
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(categories)), ",")
	args := make([]interface{}, 0, len(categories)+1)
	args = append(args, userID)
	for _, c := range categories {
		args = append(args, c)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT`+recordColumns+` FROM user_memories
		WHERE user_id = ? AND status = 'active' AND categoria IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list records by categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// Retire transitions a record from active into a terminal status.
func (s *RecordStore) Retire(ctx context.Context, userID, id string, status types.RecordStatus) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %q is not a terminal status", storage.ErrInvalidInput, status)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE user_memories
		SET status = ?, updated_at = ?
		WHERE id = ? AND user_id = ? AND status = 'active'`,
		string(status), time.Now().UTC(), id, userID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to retire record %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if n == 0 {
		// Distinguish a missing record from an illegal transition.
		if _, getErr := s.Get(ctx, userID, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("%w: record %s is not active", storage.ErrInvalidInput, id)
	}
	return nil
}

// Reinforce applies a mention to an active record and returns the updated row.
func (s *RecordStore) Reinforce(ctx context.Context, userID, id string, details string, confidence float64) (*types.MemoryRecord, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE user_memories
		SET mencoes = mencoes + 1,
			ultima_mencao = ?,
			detalhes = COALESCE(NULLIF(?, ''), detalhes),
			confidence = MAX(confidence, ?),
			updated_at = ?
		WHERE id = ? AND user_id = ? AND status = 'active'`,
		now, details, confidence, now, id, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to reinforce record %s: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return nil, storage.ErrNotFound
	}

	return s.Get(ctx, userID, id)
}

// TouchMention bumps mentions and last_mentioned_at only.
func (s *RecordStore) TouchMention(ctx context.Context, userID, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE user_memories
		SET mencoes = mencoes + 1, ultima_mencao = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		time.Now().UTC(), time.Now().UTC(), id, userID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to touch record %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateFact applies a user correction to a record.
func (s *RecordStore) UpdateFact(ctx context.Context, userID, id string, upd storage.FactUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}

	if upd.Fact != nil {
		if upd.FactNormalized == nil {
			return fmt.Errorf("%w: fact update requires the normalized form", storage.ErrInvalidInput)
		}
		sets = append(sets, "fato = ?", "fato_normalizado = ?")
		args = append(args, *upd.Fact, *upd.FactNormalized)
	}
	if upd.Details != nil {
		sets = append(sets, "detalhes = ?")
		args = append(args, nullableString(*upd.Details))
	}
	if upd.Importance != nil {
		sets = append(sets, "importancia = ?")
		args = append(args, *upd.Importance)
	}
	if len(sets) == 1 {
		return fmt.Errorf("%w: no fields to update", storage.ErrInvalidInput)
	}

	args = append(args, id, userID)
	result, err := s.db.ExecContext(ctx,
		`UPDATE user_memories SET `+strings.Join(sets, ", ")+` WHERE id = ? AND user_id = ?`,
		args...)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update record %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetValidated marks a record as user-confirmed.
func (s *RecordStore) SetValidated(ctx context.Context, userID, id string, validated bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE user_memories SET validado = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		validated, time.Now().UTC(), id, userID)
	if err != nil {
		return fmt.Errorf("sqlite: failed to set validated on record %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for the shared scan helper.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*types.MemoryRecord, error) {
	var rec types.MemoryRecord
	var details, supersedes, origin sql.NullString
	var payloadJSON []byte
	var status string

	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Category,
		&rec.Fact,
		&rec.FactNormalized,
		&details,
		&rec.Importance,
		&rec.Mentions,
		&rec.LastMentionedAt,
		&status,
		&supersedes,
		&rec.Confidence,
		&rec.Validated,
		&origin,
		&payloadJSON,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = types.RecordStatus(status)
	rec.Details = details.String
	rec.SupersedesID = supersedes.String
	rec.OriginConversationID = origin.String
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &rec.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]types.MemoryRecord, error) {
	var records []types.MemoryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating records: %w", err)
	}
	return records, nil
}

// nullableString converts an empty string to NULL for storage.
func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nullableBytes converts an empty byte slice to NULL for storage.
func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
