package sqlite

import (
	"context"
	"errors"

	"github.com/italolelis/lazypreview/internal/source"
	"github.com/italolelis/lazypreview/internal/storage"
	"github.com/italolelis/lazypreview/internal/telemetry"
)

// InstrumentedRecordRepository wraps a record repository with telemetry.
type InstrumentedRecordRepository struct {
	repo      storage.RecordRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedRecordRepository creates a new instrumented record repository.
func NewInstrumentedRecordRepository(repo storage.RecordRepository, tel *telemetry.Telemetry) *InstrumentedRecordRepository {
	return &InstrumentedRecordRepository{
		repo:      repo,
		telemetry: tel,
	}
}

// Create stores a record with telemetry.
func (r *InstrumentedRecordRepository) Create(ctx context.Context, name string, location source.Descriptor) (string, error) {
	var id string

	err := r.telemetry.InstrumentDBOperation(ctx, "create_record", func(ctx context.Context) error {
		var err error

		id, err = r.repo.Create(ctx, name, location)

		return err
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

// Get retrieves a record with telemetry. A missing record is not counted as a
// database error.
func (r *InstrumentedRecordRepository) Get(ctx context.Context, id string) (*storage.FileRecord, error) {
	var (
		record *storage.FileRecord
		getErr error
	)

	err := r.telemetry.InstrumentDBOperation(ctx, "get_record", func(ctx context.Context) error {
		record, getErr = r.repo.Get(ctx, id)
		if errors.Is(getErr, storage.ErrNotFound) {
			return nil
		}

		return getErr
	})
	if err != nil {
		return nil, err
	}

	if getErr != nil {
		return nil, getErr
	}

	return record, nil
}

// ListRecent lists records with telemetry.
func (r *InstrumentedRecordRepository) ListRecent(ctx context.Context, limit int) ([]storage.FileRecord, error) {
	var result []storage.FileRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "list_recent", func(ctx context.Context) error {
		var err error

		result, err = r.repo.ListRecent(ctx, limit)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
