// Package progress publishes incremental bulk-job progress so API-layer
// consumers can stream updates without polling the job store.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Temiboboye/zbai/internal/models"
)

// Event is one progress tick for a job.
type Event struct {
	JobID     string           `json:"job_id"`
	OwnerID   string           `json:"owner_id"`
	Status    models.JobStatus `json:"status"`
	Processed int              `json:"processed"`
	Total     int              `json:"total"`
	Timestamp time.Time        `json:"timestamp"`
}

// Publisher pushes events; publication is best-effort and never blocks a
// job from completing.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// ChannelFor names the pub/sub channel carrying a job's events.
func ChannelFor(jobID string) string {
	return "verify:progress:" + jobID
}

// Redis publishes events as JSON on a per-job pub/sub channel.
type Redis struct {
	client *redis.Client
}

// NewRedis connects and pings to ensure the server is alive.
func NewRedis(addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("progress: marshal event for job %s: %v", ev.JobID, err)
		return
	}
	if err := r.client.Publish(ctx, ChannelFor(ev.JobID), payload).Err(); err != nil {
		log.Printf("progress: publish for job %s: %v", ev.JobID, err)
	}
}

// Close releases the redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Noop discards events; the default when no redis is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) {}
