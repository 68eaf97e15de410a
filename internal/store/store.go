// Package store persists bulk jobs. The executor writes snapshots through
// Upsert on its flush policy; readers use Load/List.
package store

import (
	"context"
	"errors"

	"github.com/Temiboboye/zbai/internal/models"
)

// ErrJobNotFound is returned by Load for ids that were never upserted.
var ErrJobNotFound = errors.New("job not found")

// Filter narrows List output. Zero values mean "no constraint".
type Filter struct {
	Status models.JobStatus
	Limit  int
}

// JobStore is the durability boundary; in-memory for tests, Postgres in
// production.
type JobStore interface {
	Upsert(ctx context.Context, job models.BulkJob) error
	Load(ctx context.Context, id string) (models.BulkJob, error)
	List(ctx context.Context, owner string, f Filter) ([]models.BulkJob, error)
}
