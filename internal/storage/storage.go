package storage

import (
	"context"
	"errors"
	"time"

	"github.com/italolelis/lazypreview/internal/source"
)

// ErrNotFound is returned when no record matches the requested id.
var ErrNotFound = errors.New("record not found")

// FileRecord represents a registered file. Records are immutable once created.
type FileRecord struct {
	ID          string
	DisplayName string
	Location    source.Descriptor
	CreatedAt   time.Time
}

// RecordReadRepository is the only dependency of the streaming core.
type RecordReadRepository interface {
	Get(ctx context.Context, id string) (*FileRecord, error)
	ListRecent(ctx context.Context, limit int) ([]FileRecord, error)
}

type RecordWriteRepository interface {
	Create(ctx context.Context, name string, location source.Descriptor) (string, error)
}

type RecordRepository interface {
	RecordReadRepository
	RecordWriteRepository
}
