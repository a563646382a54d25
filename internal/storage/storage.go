// Package storage defines the persistence interface for the plays corpus and feedback sessions.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/qexpand/internal/models"
)

// ErrNotFound is returned when a play or session does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines play and session persistence operations.
type Storage interface {
	// Play operations
	UpsertPlay(ctx context.Context, play *models.Play) error
	GetPlay(ctx context.Context, id int) (*models.Play, error)
	GetPlays(ctx context.Context, ids []int) (map[int]*models.Play, error)
	DeletePlay(ctx context.Context, id int) error
	ListPlays(ctx context.Context, offset, limit int) ([]*models.Play, error)

	// Batch operations
	BatchUpsertPlays(ctx context.Context, plays []*models.Play) error
	DeletePlaysBySource(ctx context.Context, source string) ([]int, error)

	// Session operations
	SaveSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListSessions(ctx context.Context, offset, limit int) ([]*models.Session, error)

	// Stats
	CountPlays(ctx context.Context) (int64, error)
	CountSessions(ctx context.Context) (int64, error)

	Close() error
}
