package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/italolelis/lazypreview/internal/source"
	"github.com/italolelis/lazypreview/internal/storage"
)

// createdAtLayout is fixed width so that lexical order matches time order.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RecordRepository implements storage.RecordRepository and stores file
// records in SQLite.
type RecordRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRecordRepository(dbConn *sql.DB) *RecordRepository {
	return &RecordRepository{db: dbConn, now: time.Now}
}

// Create stores a new record and returns its generated id.
func (r *RecordRepository) Create(ctx context.Context, name string, location source.Descriptor) (string, error) {
	id := uuid.New().String()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO files (id, name, storage, location, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, name, string(location.Kind), location.Location(), r.now().UTC().Format(createdAtLayout),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert file record: %w", err)
	}

	return id, nil
}

// Get returns the record with the given id or storage.ErrNotFound.
func (r *RecordRepository) Get(ctx context.Context, id string) (*storage.FileRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, storage, location, created_at FROM files WHERE id = ?`, id)

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, fmt.Errorf("failed to get file record: %w", err)
	}

	return record, nil
}

// ListRecent returns up to limit records, newest first.
func (r *RecordRepository) ListRecent(ctx context.Context, limit int) ([]storage.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, storage, location, created_at FROM files ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list file records: %w", err)
	}
	defer rows.Close()

	records := make([]storage.FileRecord, 0, limit)

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file record: %w", err)
		}

		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate file records: %w", err)
	}

	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*storage.FileRecord, error) {
	var (
		record    storage.FileRecord
		kind      string
		location  string
		createdAt string
	)

	if err := s.Scan(&record.ID, &record.DisplayName, &kind, &location, &createdAt); err != nil {
		return nil, err
	}

	switch source.Kind(kind) {
	case source.KindLocal:
		record.Location = source.Local(location)
	case source.KindRemote:
		record.Location = source.Remote(location)
	default:
		return nil, fmt.Errorf("unknown storage kind %q for record %s", kind, record.ID)
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at for record %s: %w", record.ID, err)
	}

	record.CreatedAt = ts

	return &record, nil
}
