package forwarder

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/internal/pkg/transaction"
)

const (
	defaultWorkers   = 4
	queueSizePerWork = 64
)

// Notifier delivers one outcome; *Client is the production implementation.
type Notifier interface {
	Notify(ctx context.Context, rec *transaction.Record, outcome transaction.Status) error
}

type job struct {
	rec     *transaction.Record
	outcome transaction.Status
}

// Dispatcher runs deliveries on a small worker pool so the callback
// acknowledgment never waits for the consumer.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	workers  int
	jobs     chan job
	wg       sync.WaitGroup
	mu       sync.RWMutex
	running  bool
}

// NewDispatcher creates a dispatcher; call Start before Dispatch.
func NewDispatcher(notifier Notifier, workers int) *Dispatcher {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Dispatcher{
		notifier: notifier,
		timeout:  Timeout,
		workers:  workers,
		jobs:     make(chan job, workers*queueSizePerWork),
	}
}

// Start launches the workers.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return
	}
	d.running = true
	log.Infof("[Forwarder] Starting %d workers", d.workers)

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
}

// Stop drains queued deliveries and waits for in-flight ones.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.jobs)
	d.mu.Unlock()

	log.Info("[Forwarder] Stopping workers...")
	d.wg.Wait()
	log.Info("[Forwarder] All workers stopped")
}

// Dispatch schedules a delivery and returns immediately. When the queue is
// full the delivery runs on its own goroutine instead of blocking.
func (d *Dispatcher) Dispatch(rec *transaction.Record, outcome transaction.Status) {
	j := job{rec: rec, outcome: outcome}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.running {
		log.Warnf("[Forwarder] Dispatcher not running, delivering %s unmanaged", rec.ID)
		go d.deliver(j)
		return
	}

	select {
	case d.jobs <- j:
	default:
		log.Warnf("[Forwarder] Queue full, delivering %s on overflow goroutine", rec.ID)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliver(j)
		}()
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for j := range d.jobs {
		d.deliver(j)
	}
	log.Debugf("[Forwarder] Worker %d stopped", id)
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.notifier.Notify(ctx, j.rec, j.outcome); err != nil {
		log.Errorf("[Forwarder] Failed to notify consumer for %s (%s): %v", j.rec.ID, j.outcome, err)
		return
	}
	log.Infof("[Forwarder] Consumer notified for %s (%s)", j.rec.ID, j.outcome)
}
