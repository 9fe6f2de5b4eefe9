package worker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kacperjurak/goedxcore/pkg/models"
)

// ErrClosed is returned when submitting to a pool that has been shut down
var ErrClosed = errors.New("worker pool is shut down")

// Pool manages concurrent spectrum refinement workers
type Pool struct {
	jobs         chan job
	webhookQueue chan models.WebhookItem
	workers      int
	shutdown     chan struct{}
	closed       bool
	mu           sync.RWMutex
	once         sync.Once
	wg           sync.WaitGroup
	processor    ProcessorFunc
	webhook      WebhookFunc
	log          *zap.Logger
}

type job struct {
	item    models.WorkItem
	results chan<- models.WorkResult
}

// ProcessorFunc refines one spectrum
type ProcessorFunc func(req models.RefineRequest) (models.RefineResponse, error)

// WebhookFunc delivers one finished spectrum
type WebhookFunc func(item models.WebhookItem) error

// Options holds configuration for creating a new worker pool
type Options struct {
	Workers   int
	QueueSize int
	Processor ProcessorFunc
	Webhook   WebhookFunc
	Logger    *zap.Logger
}

// New creates a new worker pool with specified configuration
func New(opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = opts.Workers * 2
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	pool := &Pool{
		jobs: make(chan job, opts.QueueSize),
		// webhooks are slower than refinement, give them more room
		webhookQueue: make(chan models.WebhookItem, opts.Workers*4),
		workers:      opts.Workers,
		shutdown:     make(chan struct{}),
		processor:    opts.Processor,
		webhook:      opts.Webhook,
		log:          opts.Logger,
	}

	pool.start()
	return pool
}

// start initializes and starts all workers
func (p *Pool) start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.wg.Add(1)
	go p.webhookProcessor()

	p.log.Info("worker pool started", zap.Int("workers", p.workers))
}

// worker refines jobs until shutdown
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		// shutdown wins over queued jobs, which Shutdown drains
		select {
		case <-p.shutdown:
			return
		default:
		}

		select {
		case j := <-p.jobs:
			j.results <- p.processJob(id, j.item)

		case <-p.shutdown:
			return
		}
	}
}

// processJob runs the processor, turning a panic into an error result
func (p *Pool) processJob(worker int, item models.WorkItem) (res models.WorkResult) {
	res = models.WorkResult{
		ID:        item.ID,
		RequestID: item.RequestID,
		BatchID:   item.BatchID,
		Iteration: item.Iteration,
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("processor panicked: %v", r)
		}
		res.ProcessingTime = time.Since(start)
		if res.Err != nil {
			p.log.Error("spectrum refinement failed",
				zap.Int("worker", worker),
				zap.String("request_id", item.RequestID),
				zap.String("batch_id", item.BatchID),
				zap.Int("iteration", item.Iteration),
				zap.Error(res.Err))
		}
	}()

	res.Response, res.Err = p.processor(item.Request)
	return res
}

// webhookProcessor hands webhooks to their own goroutines so workers never wait on them
func (p *Pool) webhookProcessor() {
	defer p.wg.Done()

	for {
		select {
		case item := <-p.webhookQueue:
			go p.sendWebhook(item)

		case <-p.shutdown:
			return
		}
	}
}

func (p *Pool) sendWebhook(item models.WebhookItem) {
	if p.webhook == nil {
		return
	}
	if err := p.webhook(item); err != nil {
		p.log.Warn("webhook delivery failed",
			zap.String("request_id", item.RequestID),
			zap.Error(err))
	}
}

// SubmitJob queues a job; its result is sent on results. It blocks while the queue
// is full and fails once the pool is shut down.
func (p *Pool) SubmitJob(item models.WorkItem, results chan<- models.WorkResult) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case <-p.shutdown:
		return ErrClosed
	default:
	}

	j := job{item: item, results: results}
	select {
	case p.jobs <- j:
		return nil
	default:
		p.log.Warn("jobs queue full, job may be delayed", zap.String("request_id", item.RequestID))
	}
	select {
	case p.jobs <- j:
		return nil
	case <-p.shutdown:
		return ErrClosed
	}
}

// QueueWebhook queues a webhook for async delivery, dropping it when the queue is full
func (p *Pool) QueueWebhook(item models.WebhookItem) {
	select {
	case p.webhookQueue <- item:
	default:
		p.log.Warn("webhook queue full, dropping webhook", zap.String("request_id", item.RequestID))
	}
}

// Shutdown stops the workers after their current job. Jobs still queued are answered
// with ErrClosed so no caller waits for a result that never comes.
func (p *Pool) Shutdown() {
	p.once.Do(func() {
		p.log.Info("shutting down worker pool")
		close(p.shutdown)
		p.wg.Wait()

		p.mu.Lock()
		p.closed = true
		var pending []job
		for len(p.jobs) > 0 {
			pending = append(pending, <-p.jobs)
		}
		p.mu.Unlock()

		for _, j := range pending {
			j.results <- models.WorkResult{
				ID:        j.item.ID,
				RequestID: j.item.RequestID,
				BatchID:   j.item.BatchID,
				Iteration: j.item.Iteration,
				Err:       ErrClosed,
			}
		}
		p.log.Info("worker pool shutdown complete", zap.Int("cancelled", len(pending)))
	})
}
