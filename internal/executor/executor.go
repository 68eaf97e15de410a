// Package executor runs single and bulk verifications: credit reservation
// up front, a bounded worker pool over the cascade, in-order result
// publication, periodic snapshot persistence, and credit settlement.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Temiboboye/zbai/internal/ledger"
	"github.com/Temiboboye/zbai/internal/models"
	"github.com/Temiboboye/zbai/internal/progress"
	"github.com/Temiboboye/zbai/internal/store"
)

var (
	// ErrInvalidInput covers empty or oversized batches.
	ErrInvalidInput = errors.New("invalid input")

	// ErrJobNotFound mirrors store.ErrJobNotFound at the engine boundary.
	ErrJobNotFound = store.ErrJobNotFound
)

// Engine is the per-address cascade; *verify.Engine satisfies it.
type Engine interface {
	Verify(ctx context.Context, input string) models.VerificationResult
}

// Options tune the executor. Zero values take the documented defaults.
type Options struct {
	Workers       int           // concurrent probes per job (default 10)
	MaxBulk       int           // max addresses per bulk job (default 100000)
	FlushEvery    int           // persist snapshot every K completions (default 10)
	FlushInterval time.Duration // or every T elapsed (default 2s)
	RatePerSec    int           // global probe rate limit; 0 disables
	RefundOnFail  *bool         // refund unused credits when a job fails (default true)
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 10
	}
	if o.MaxBulk <= 0 {
		o.MaxBulk = 100000
	}
	if o.FlushEvery <= 0 {
		o.FlushEvery = 10
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 2 * time.Second
	}
	if o.RefundOnFail == nil {
		refund := true
		o.RefundOnFail = &refund
	}
	return o
}

// Executor owns all live jobs. Each job's state is mutated only by its own
// run loop; readers get snapshots.
type Executor struct {
	engine    Engine
	ledger    ledger.Ledger
	store     store.JobStore
	publisher progress.Publisher
	opts      Options

	rootCtx  context.Context
	shutdown context.CancelFunc
	limiter  *rateLimiter

	mu   sync.Mutex
	live map[string]*liveJob
	wg   sync.WaitGroup
}

type liveJob struct {
	mu     sync.Mutex
	job    models.BulkJob
	cancel context.CancelFunc

	// persistMu serializes store writes for this job; persisted is the
	// highest processed count already written through it.
	persistMu sync.Mutex
	persisted int
}

// New builds an executor. Call Close to cancel live jobs and stop the
// rate limiter.
func New(engine Engine, lgr ledger.Ledger, st store.JobStore, pub progress.Publisher, opts Options) *Executor {
	if pub == nil {
		pub = progress.Noop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		engine:    engine,
		ledger:    lgr,
		store:     st,
		publisher: pub,
		opts:      opts.withDefaults(),
		rootCtx:   ctx,
		shutdown:  cancel,
		live:      make(map[string]*liveJob),
	}
	if e.opts.RatePerSec > 0 {
		e.limiter = newRateLimiter(ctx, e.opts.RatePerSec)
	}
	return e
}

// Close cancels every live job and waits for their run loops to settle.
func (e *Executor) Close() {
	e.shutdown()
	e.wg.Wait()
}

// VerifyOne reserves one credit, runs the cascade and commits the
// reservation for any returned result, conclusive negatives included.
func (e *Executor) VerifyOne(ctx context.Context, owner, email string) (models.VerificationResult, error) {
	token, err := e.ledger.Reserve(ctx, owner, 1)
	if err != nil {
		return models.VerificationResult{}, fmt.Errorf("reserve credit: %w", err)
	}

	res := e.runOne(ctx, email)
	res.CreditsUsed = 1

	if err := e.ledger.Commit(ctx, token, 1); err != nil {
		log.Printf("executor: commit reservation %s: %v", token, err)
	}
	return res, nil
}

// SubmitBulk deduplicates the batch case-insensitively (keeping first-seen
// order), reserves one credit per unique address, and starts the job.
func (e *Executor) SubmitBulk(ctx context.Context, owner string, addresses []string) (string, error) {
	if len(addresses) == 0 {
		return "", fmt.Errorf("empty batch: %w", ErrInvalidInput)
	}
	if len(addresses) > e.opts.MaxBulk {
		return "", fmt.Errorf("batch of %d exceeds limit %d: %w", len(addresses), e.opts.MaxBulk, ErrInvalidInput)
	}

	unique := dedupe(addresses)
	if len(unique) == 0 {
		return "", fmt.Errorf("batch contains no usable addresses: %w", ErrInvalidInput)
	}

	token, err := e.ledger.Reserve(ctx, owner, len(unique))
	if err != nil {
		return "", fmt.Errorf("reserve %d credits: %w", len(unique), err)
	}

	job := models.BulkJob{
		ID:        uuid.New().String(),
		OwnerID:   owner,
		Status:    models.JobQueued,
		Total:     len(unique),
		Results:   []models.VerificationResult{},
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.Upsert(ctx, job); err != nil {
		// No probes ran; release the full hold.
		if rerr := e.ledger.Refund(context.WithoutCancel(ctx), token, len(unique)); rerr != nil {
			log.Printf("executor: refund after enqueue failure: %v", rerr)
		}
		return "", fmt.Errorf("persist job: %w", err)
	}

	jobCtx, cancel := context.WithCancel(e.rootCtx)
	lj := &liveJob{job: job, cancel: cancel}

	e.mu.Lock()
	e.live[job.ID] = lj
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(jobCtx, lj, token, unique)
	}()
	return job.ID, nil
}

// GetJob returns a snapshot from the live set, falling back to the store
// for finished jobs.
func (e *Executor) GetJob(ctx context.Context, id string) (models.BulkJob, error) {
	e.mu.Lock()
	lj, ok := e.live[id]
	e.mu.Unlock()

	if ok {
		lj.mu.Lock()
		defer lj.mu.Unlock()
		return lj.job.Snapshot(), nil
	}
	return e.store.Load(ctx, id)
}

// ListJobs returns the owner's jobs from the store, newest first. Live jobs
// appear with their last persisted snapshot.
func (e *Executor) ListJobs(ctx context.Context, owner string, f store.Filter) ([]models.BulkJob, error) {
	return e.store.List(ctx, owner, f)
}

// CancelJob aborts a live job at its next suspension point. Cancelling a
// finished job is a no-op.
func (e *Executor) CancelJob(ctx context.Context, id string) error {
	e.mu.Lock()
	lj, ok := e.live[id]
	e.mu.Unlock()

	if ok {
		lj.cancel()
		return nil
	}
	if _, err := e.store.Load(ctx, id); err != nil {
		return err
	}
	return nil
}

// run drives one bulk job to completion. Results are buffered by input
// index so publication order always matches input order regardless of
// which worker finishes first.
func (e *Executor) run(ctx context.Context, lj *liveJob, token ledger.Token, addresses []string) {
	jobID := lj.job.ID

	lj.mu.Lock()
	lj.job.Status = models.JobProcessing
	snapshot := lj.job.Snapshot()
	lj.mu.Unlock()
	e.persistJob(lj, snapshot)

	buf := newOrderBuffer(len(addresses))
	lastFlush := time.Now()
	completions := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for i, addr := range addresses {
		if gctx.Err() != nil {
			break
		}
		i, addr := i, addr
		g.Go(func() error {
			if err := e.throttle(gctx); err != nil {
				return err
			}
			res := e.runOne(gctx, addr)
			res.CreditsUsed = 1

			// A cancelled job freezes at whatever was already published;
			// results racing the cancellation are dropped, not appended.
			if gctx.Err() != nil {
				return gctx.Err()
			}

			lj.mu.Lock()
			ready := buf.complete(i, res)
			if len(ready) == 0 {
				lj.mu.Unlock()
				return nil
			}
			lj.job.Results = append(lj.job.Results, ready...)
			lj.job.Processed = len(lj.job.Results)
			completions += len(ready)
			flush := completions >= e.opts.FlushEvery ||
				time.Since(lastFlush) >= e.opts.FlushInterval ||
				lj.job.Processed == lj.job.Total
			var snap models.BulkJob
			if flush {
				completions = 0
				lastFlush = time.Now()
				snap = lj.job.Snapshot()
			}
			lj.mu.Unlock()

			if flush {
				e.persistJob(lj, snap)
				e.publish(snap)
			}
			return nil
		})
	}

	runErr := g.Wait()

	lj.mu.Lock()
	if runErr != nil || ctx.Err() != nil {
		lj.job.Status = models.JobFailed
	} else {
		now := time.Now().UTC()
		lj.job.Status = models.JobCompleted
		lj.job.CompletedAt = &now
	}
	final := lj.job.Snapshot()
	lj.mu.Unlock()

	e.settle(token, final)
	e.persistJob(lj, final)
	e.publish(final)

	e.mu.Lock()
	delete(e.live, jobID)
	e.mu.Unlock()

	log.Printf("executor: job %s %s (%d/%d)", jobID, final.Status, final.Processed, final.Total)
}

// settle finalizes the reservation: completed jobs debit every unique
// address, failed jobs debit only what was processed when refund-on-fail
// is enabled.
func (e *Executor) settle(token ledger.Token, job models.BulkJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	used := job.Total
	if job.Status == models.JobFailed && *e.opts.RefundOnFail {
		used = job.Processed
	}
	if err := e.ledger.Commit(ctx, token, used); err != nil {
		log.Printf("executor: settle job %s (%d used): %v", job.ID, used, err)
	}
}

// runOne isolates one address: the cascade never errors by contract, and a
// panicking probe is converted into a final_status=error result so the job
// keeps going.
func (e *Executor) runOne(ctx context.Context, email string) (res models.VerificationResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("executor: cascade panic for %q: %v", email, r)
			res = errorResult(email, fmt.Sprintf("internal probe failure: %v", r))
		}
	}()

	if ctx.Err() != nil {
		return errorResult(email, "verification aborted: "+ctx.Err().Error())
	}
	return e.engine.Verify(ctx, email)
}

func errorResult(email, reason string) models.VerificationResult {
	return models.VerificationResult{
		Email:        email,
		Syntax:       models.SyntaxInvalid,
		Domain:       models.DomainInvalid,
		MX:           models.MXNotFound,
		MXRecords:    []string{},
		SMTP:         models.SMTPNoMX,
		SMTPProvider: "generic",
		SpamRisk:     models.RiskHigh,
		FinalStatus:  models.StatusError,
		Reason:       reason,
		Details:      map[string]interface{}{},
		Timestamp:    time.Now().UTC(),
		CreditsUsed:  1,
	}
}

func (e *Executor) throttle(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	return e.limiter.wait(ctx)
}

// persistJob writes a snapshot through the job's persist lock. Flushes from
// concurrent workers would otherwise race each other into the store, letting
// an older snapshot land after a newer one; holding the lock across the
// Upsert and dropping snapshots behind the high-water mark keeps the durable
// processed count from ever going backwards. Terminal snapshots carry a
// status change at an equal count, so only strictly older ones are dropped.
func (e *Executor) persistJob(lj *liveJob, snap models.BulkJob) {
	lj.persistMu.Lock()
	defer lj.persistMu.Unlock()
	if snap.Processed < lj.persisted {
		return
	}
	lj.persisted = snap.Processed
	e.persist(snap)
}

func (e *Executor) persist(job models.BulkJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.store.Upsert(ctx, job); err != nil {
		log.Printf("executor: persist job %s: %v", job.ID, err)
	}
}

func (e *Executor) publish(job models.BulkJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.publisher.Publish(ctx, progress.Event{
		JobID:     job.ID,
		OwnerID:   job.OwnerID,
		Status:    job.Status,
		Processed: job.Processed,
		Total:     job.Total,
		Timestamp: time.Now().UTC(),
	})
}

// dedupe collapses duplicates case-insensitively, keeping the first
// occurrence and its original casing. Blank entries are dropped.
func dedupe(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, a := range addresses {
		trimmed := strings.TrimSpace(a)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}
