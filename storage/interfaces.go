package storage

import (
	"context"

	"regent-tracker/models"
)

// StateStore persists the authoritative fingerprint → listing cache.
type StateStore interface {
	Load() (*models.Cache, error)
	Save(cache *models.Cache) error
}

// SnapshotWriter publishes the presentation export read by the dashboard.
type SnapshotWriter interface {
	WriteSnapshot(snapshot *models.Snapshot) error
}

// ListingWriter is the interface any secondary export backend must satisfy.
type ListingWriter interface {
	Write(ctx context.Context, listings []models.SnapshotListing) error
	Close() error
}
