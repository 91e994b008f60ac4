package worker

import (
	"log"
	"sync"

	"wahub/internal/messaging"
	"wahub/internal/metrics"
)

// DispatchFunc handles one collaborator envelope. A returned error sends
// the delivery to the tenant's DLQ.
type DispatchFunc func(env messaging.Envelope) error

// Pool fans envelopes out to a bounded number of dispatch workers for one
// tenant.
type Pool struct {
	tenantID string
	dispatch DispatchFunc

	mu      sync.Mutex
	jobs    chan job
	stopCh  chan struct{}
	wg      sync.WaitGroup
	workers int
}

type job struct {
	env  messaging.Envelope
	done func(err error)
}

func NewPool(tenantID string, workers int, dispatch DispatchFunc) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		tenantID: tenantID,
		dispatch: dispatch,
		jobs:     make(chan job),
		stopCh:   make(chan struct{}),
		workers:  workers,
	}
}

func (p *Pool) Start() {
	log.Printf("[Worker] Starting pool for tenant %s (%d workers)", p.tenantID, p.workers)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(p.stopCh)
	}
}

func (p *Pool) run(stop <-chan struct{}) {
	defer p.wg.Done()
	metrics.DispatcherActive.WithLabelValues(p.tenantID).Add(1)
	defer metrics.DispatcherActive.WithLabelValues(p.tenantID).Sub(1)

	for {
		select {
		case <-stop:
			return
		case j := <-p.jobs:
			j.done(p.dispatch(j.env))
		}
	}
}

// Submit blocks until a worker picks the envelope up or the pool stops.
// done is called with the dispatch result exactly once per accepted job.
func (p *Pool) Submit(env messaging.Envelope, done func(err error)) bool {
	p.mu.Lock()
	stop := p.stopCh
	p.mu.Unlock()

	select {
	case p.jobs <- job{env: env, done: done}:
		return true
	case <-stop:
		return false
	}
}

func (p *Pool) Stop() {
	p.mu.Lock()
	select {
	case <-p.stopCh:
		p.mu.Unlock()
		return
	default:
	}
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	log.Printf("[Worker] Stopped pool for tenant %s", p.tenantID)
}

// SetWorkerCount rescales the pool to a new concurrency level.
func (p *Pool) SetWorkerCount(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n <= 0 || n == p.workers {
		return
	}
	log.Printf("[Worker][%s] Rescaling pool: %d -> %d", p.tenantID, p.workers, n)

	if n > p.workers {
		for ; p.workers < n; p.workers++ {
			p.wg.Add(1)
			go p.run(p.stopCh)
		}
		return
	}
	// Shrink by restarting with the new count.
	close(p.stopCh)
	p.wg.Wait()
	p.stopCh = make(chan struct{})
	p.workers = n
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.run(p.stopCh)
	}
}
