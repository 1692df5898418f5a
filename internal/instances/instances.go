// Package instances is the instance-management collaborator used by the
// console: start, stop, restart, status, and describe operations on a named
// instance.
package instances

import (
	"context"
	"errors"
	"time"
)

// Controller performs lifecycle operations on instances addressed by name.
type Controller interface {
	BackendName() string
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	Status(ctx context.Context, name string) (string, error)
	Describe(ctx context.Context, name string) (Info, error)
}

// Info describes an instance for display.
type Info struct {
	Name        string
	Status      string
	Image       string
	Address     string
	CPUs        float64
	MemoryBytes int64
	CreatedAt   time.Time
}

// ErrNotFound is returned when the named instance does not exist.
var ErrNotFound = errors.New("instance not found")
