package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Temiboboye/zbai/internal/models"
)

// Memory is the in-process job store used by tests.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]models.BulkJob
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]models.BulkJob)}
}

func (m *Memory) Upsert(_ context.Context, job models.BulkJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job.Snapshot()
	return nil
}

func (m *Memory) Load(_ context.Context, id string) (models.BulkJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return models.BulkJob{}, ErrJobNotFound
	}
	return job.Snapshot(), nil
}

func (m *Memory) List(_ context.Context, owner string, f Filter) ([]models.BulkJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.BulkJob
	for _, job := range m.jobs {
		if job.OwnerID != owner {
			continue
		}
		if f.Status != "" && job.Status != f.Status {
			continue
		}
		out = append(out, job.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
