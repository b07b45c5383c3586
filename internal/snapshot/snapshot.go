// Package snapshot stores parquet extracts of the sales table in object
// storage so the DuckDB backend can query them without a live warehouse.
package snapshot

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// Info describes a stored snapshot object.
type Info struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// Store persists and retrieves parquet snapshot objects. Implementations
// must treat keys as opaque paths within a single bucket. The loader writes
// snapshots, the query engine reads them, and readiness checks stat them;
// the configured key is overwritten in place, so there is no delete.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64) (Info, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (Info, error)
}
