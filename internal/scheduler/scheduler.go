// Package scheduler queues game-analysis jobs and dispatches them to the
// analyzer with a bounded number of concurrently running jobs. Jobs are
// tracked by ID so callers can poll progress and cancel.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/gambitlabs/insights/internal/analyzer"
	"github.com/gambitlabs/insights/internal/chess"
	"github.com/gambitlabs/insights/internal/metrics"
)

var (
	// ErrBusy means the queue is full; the caller should retry later.
	ErrBusy = errors.New("scheduler: queue full")
	// ErrJobNotFound means no job with the given ID is tracked.
	ErrJobNotFound = errors.New("scheduler: job not found")
)

// State is the lifecycle state of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

func (s State) terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// GameAnalyzer runs one full game analysis.
type GameAnalyzer interface {
	Analyze(ctx context.Context, in analyzer.GameInput, cfg analyzer.EngineConfig, progress func(done, total int)) (*analyzer.GameAnalysis, error)
}

// ResultWriter persists a finished analysis.
type ResultWriter interface {
	WriteGameAnalysis(ctx context.Context, ga *analyzer.GameAnalysis) (replaced bool, err error)
}

// Config tunes the scheduler.
type Config struct {
	MaxRunning     int           // concurrently running jobs (default 2)
	QueueDepth     int           // queued jobs before Submit returns ErrBusy (default 64)
	RetainFinished time.Duration // how long terminal jobs stay pollable (default 10m)
	Logger         zerolog.Logger
}

func (c *Config) applyDefaults() {
	if c.MaxRunning <= 0 {
		c.MaxRunning = 2
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 64
	}
	if c.RetainFinished <= 0 {
		c.RetainFinished = 10 * time.Minute
	}
}

// Status is a point-in-time snapshot of one job.
type Status struct {
	State          State  `json:"state"`
	PliesCompleted int    `json:"plies_completed"`
	TotalPlies     int    `json:"total_plies"`
	Err            string `json:"error,omitempty"`
}

type job struct {
	id  string
	in  analyzer.GameInput
	cfg analyzer.EngineConfig

	mu         sync.Mutex
	state      State
	done       int
	total      int
	err        error
	cancel     context.CancelFunc
	finishedAt time.Time
}

func (j *job) snapshot() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := Status{State: j.state, PliesCompleted: j.done, TotalPlies: j.total}
	if j.err != nil {
		st.Err = j.err.Error()
	}
	return st
}

// Scheduler owns the job queue and the dispatch loop.
type Scheduler struct {
	an    GameAnalyzer
	store ResultWriter
	cfg   Config
	log   zerolog.Logger

	queue chan *job
	sem   *semaphore.Weighted

	mu   sync.Mutex
	jobs map[string]*job
}

func New(an GameAnalyzer, store ResultWriter, cfg Config) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		an:    an,
		store: store,
		cfg:   cfg,
		log:   cfg.Logger,
		queue: make(chan *job, cfg.QueueDepth),
		sem:   semaphore.NewWeighted(int64(cfg.MaxRunning)),
		jobs:  make(map[string]*job),
	}
}

// Submit validates the move list, enqueues a job, and returns its ID.
// Structural errors (illegal moves, empty game) are reported synchronously
// so they never occupy a queue slot.
func (s *Scheduler) Submit(in analyzer.GameInput, cfg analyzer.EngineConfig) (string, error) {
	if _, _, err := chess.Replay(in.Moves); err != nil {
		return "", fmt.Errorf("validate game %s: %w", in.GameID, err)
	}

	j := &job{
		id:    uuid.NewString(),
		in:    in,
		cfg:   cfg,
		state: StateQueued,
		total: len(in.Moves),
	}

	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()

	select {
	case s.queue <- j:
	default:
		s.mu.Lock()
		delete(s.jobs, j.id)
		s.mu.Unlock()
		return "", ErrBusy
	}

	metrics.JobsQueued.Inc()
	s.log.Info().Str("job_id", j.id).Str("game_id", in.GameID).Int("plies", j.total).Msg("job queued")
	return j.id, nil
}

// Run dispatches queued jobs until ctx is cancelled, then waits for running
// jobs to drain. Terminal jobs stay pollable for RetainFinished and are then
// dropped so the job table stays bounded.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	sweep := time.NewTicker(s.cfg.RetainFinished)
	defer sweep.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-sweep.C:
			s.evictFinished(time.Now())
		case j := <-s.queue:
			metrics.JobsQueued.Dec()
			if j.snapshot().State == StateCancelled {
				// Cancelled while still queued; nothing ran, nothing persists.
				metrics.JobsFinished.WithLabelValues(string(StateCancelled)).Inc()
				continue
			}
			if err := s.sem.Acquire(ctx, 1); err != nil {
				wg.Wait()
				return err
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer s.sem.Release(1)
				s.runJob(ctx, j)
			}()
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, j *job) {
	jctx, cancel := context.WithCancel(ctx)
	defer cancel()

	j.mu.Lock()
	if j.state == StateCancelled {
		j.mu.Unlock()
		metrics.JobsFinished.WithLabelValues(string(StateCancelled)).Inc()
		return
	}
	j.state = StateRunning
	j.cancel = cancel
	j.mu.Unlock()

	metrics.JobsRunning.Inc()
	defer metrics.JobsRunning.Dec()

	progress := func(done, total int) {
		j.mu.Lock()
		if done > j.done {
			j.done = done
		}
		j.total = total
		j.mu.Unlock()
	}

	ga, err := s.an.Analyze(jctx, j.in, j.cfg, progress)

	final := StateCompleted
	switch {
	case jctx.Err() != nil:
		// Cancelled mid-flight: discard whatever was computed.
		final = StateCancelled
		err = nil
	case err != nil:
		final = StateFailed
	default:
		if _, werr := s.store.WriteGameAnalysis(ctx, ga); werr != nil {
			final = StateFailed
			err = fmt.Errorf("persist analysis: %w", werr)
		}
	}

	j.mu.Lock()
	j.state = final
	j.err = err
	j.finishedAt = time.Now()
	if final == StateCompleted {
		j.done = j.total
	}
	j.mu.Unlock()

	metrics.JobsFinished.WithLabelValues(string(final)).Inc()

	ev := s.log.Info()
	if err != nil {
		ev = s.log.Error().Err(err)
	}
	ev.Str("job_id", j.id).Str("game_id", j.in.GameID).Str("state", string(final)).Msg("job finished")
}

// Status reports the current state of a job. Finished jobs age out after
// RetainFinished and report ErrJobNotFound.
func (s *Scheduler) Status(id string) (Status, error) {
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return Status{}, ErrJobNotFound
	}
	return j.snapshot(), nil
}

// Cancel stops a queued or running job. Cancelling a job that already
// reached a terminal state is a no-op.
func (s *Scheduler) Cancel(id string) error {
	s.mu.Lock()
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	switch j.state {
	case StateQueued:
		j.state = StateCancelled
		j.finishedAt = time.Now()
	case StateRunning:
		j.state = StateCancelled
		if j.cancel != nil {
			j.cancel()
		}
	}
	return nil
}

// evictFinished drops terminal jobs whose retention window has passed.
func (s *Scheduler) evictFinished(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, j := range s.jobs {
		j.mu.Lock()
		expired := j.state.terminal() && !j.finishedAt.IsZero() &&
			now.Sub(j.finishedAt) >= s.cfg.RetainFinished
		j.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}
