// Package sqlite provides a ports.ExecutionStore backed by an embedded SQLite
// database (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_executions.sql
var schemaV1 string

const selectColumns = `id, workflow_id, user_id, status, input, output, error, created_at, completed_at`

// Store implements ports.ExecutionStore on SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func New(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// ":memory:" databases live and die with their connection.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	for _, stmt := range strings.Split(schemaV1, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, record *domain.ExecutionRecord) (*domain.ExecutionRecord, error) {
	stored := record.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	input, err := encodeJSON(stored.Input)
	if err != nil {
		return nil, fmt.Errorf("encoding input: %w", err)
	}
	output, err := encodeJSON(stored.Output)
	if err != nil {
		return nil, fmt.Errorf("encoding output: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (`+selectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.WorkflowID, stored.UserID, string(stored.Status),
		input, output, stored.Error, stored.CreatedAt.UnixNano(), nanos(stored.CompletedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting execution: %w", err)
	}
	return stored, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*domain.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM executions WHERE id = ?`, id)
	return scanRecord(row)
}

// Update reads, applies and writes back inside one transaction.
func (s *Store) Update(ctx context.Context, id string, update domain.ExecutionUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := scanRecord(tx.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM executions WHERE id = ?`, id))
	if err != nil {
		return err
	}
	update.Apply(rec)

	output, err := encodeJSON(rec.Output)
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE executions SET status = ?, output = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(rec.Status), output, rec.Error, nanos(rec.CompletedAt), id,
	)
	if err != nil {
		return fmt.Errorf("updating execution: %w", err)
	}
	return tx.Commit()
}

func (s *Store) List(ctx context.Context, filter domain.ExecutionFilter) ([]*domain.ExecutionRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + selectColumns + ` FROM executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	defer rows.Close()

	out := []*domain.ExecutionRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*domain.ExecutionRecord, error) {
	var (
		rec         domain.ExecutionRecord
		status      string
		input       sql.NullString
		output      sql.NullString
		createdAt   int64
		completedAt sql.NullInt64
	)
	err := row.Scan(&rec.ID, &rec.WorkflowID, &rec.UserID, &status, &input, &output, &rec.Error, &createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrExecutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning execution: %w", err)
	}

	rec.Status = domain.ExecutionStatus(status)
	rec.CreatedAt = time.Unix(0, createdAt)
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64)
		rec.CompletedAt = &t
	}
	if input.Valid {
		if err := json.Unmarshal([]byte(input.String), &rec.Input); err != nil {
			return nil, fmt.Errorf("decoding input: %w", err)
		}
	}
	if output.Valid {
		if err := json.Unmarshal([]byte(output.String), &rec.Output); err != nil {
			return nil, fmt.Errorf("decoding output: %w", err)
		}
	}
	return &rec, nil
}

func encodeJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	if m, ok := v.(map[string]any); ok && m == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
