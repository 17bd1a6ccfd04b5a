package pipeline

import (
	"context"
	"sync"
	"time"

	"court-intake-service/internal/logging"
)

// Runner executes one stage job.
type Runner interface {
	Run(ctx context.Context, job Job) error
}

// WorkerPool is a bounded queue of stage jobs drained by a fixed set of
// workers. Jobs that do not fit in the queue are dropped; the recovery
// monitor picks their records up again.
type WorkerPool struct {
	jobs    chan Job
	workers int
	logger  *logging.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
}

func NewWorkerPool(queueSize, workers int, logger *logging.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		jobs:    make(chan Job, queueSize),
		workers: workers,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		timers:  make(map[*time.Timer]struct{}),
	}
}

// Start launches the workers.
func (w *WorkerPool) Start(r Runner) {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.worker(i, r)
	}
}

// Enqueue schedules job, after delay when it is positive.
func (w *WorkerPool) Enqueue(job Job, delay time.Duration) {
	if delay <= 0 {
		w.push(job)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx.Err() != nil {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		w.mu.Lock()
		delete(w.timers, t)
		w.mu.Unlock()
		w.push(job)
	})
	w.timers[t] = struct{}{}
}

func (w *WorkerPool) push(job Job) {
	if w.ctx.Err() != nil {
		return
	}
	select {
	case w.jobs <- job:
		w.logger.ForRecord(job.RecordID).Debugf("Queued %s", job.Stage)
	default:
		w.logger.ForRecord(job.RecordID).Errorf("Queue full, dropping %s job", job.Stage)
	}
}

func (w *WorkerPool) worker(id int, r Runner) {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			w.logger.Debugf("Worker %d stopped", id)
			return
		case job := <-w.jobs:
			if err := r.Run(w.ctx, job); err != nil {
				w.logger.ForRecord(job.RecordID).Errorf("%s stage: %v", job.Stage, err)
			}
		}
	}
}

// Stop cancels pending delays and waits for in-flight jobs to return.
func (w *WorkerPool) Stop() {
	w.mu.Lock()
	w.cancel()
	for t := range w.timers {
		t.Stop()
	}
	w.timers = map[*time.Timer]struct{}{}
	w.mu.Unlock()
	w.wg.Wait()
}
