// Package storage persists the bot's state blob.
//
// Drivers:
//   - "file": a single JSON document replaced atomically (tmp + rename)
//   - "sqlite": one row in a SQLite database (modernc, no cgo)
//   - "memory": process-local, used by tests and dry runs
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Load when nothing has been saved yet.
	ErrNotFound = errors.New("storage: blob not found")
	ErrClosed   = errors.New("storage: closed")
)

// Blob is a single opaque document that is read once at startup and
// rewritten after every mutation.
type Blob interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Close() error
}

// Config configures storage.
//
// Driver values: "file" (default), "sqlite", "memory".
type Config struct {
	Driver      string
	Path        string
	Key         string        // sqlite row key; defaults to DefaultKey
	BusyTimeout time.Duration // sqlite only; 0 means default
}

const (
	DefaultFilePath   = "./schedule_data.json"
	DefaultSQLitePath = "./data/schedbot.db"
	DefaultKey        = "schedule"
)
