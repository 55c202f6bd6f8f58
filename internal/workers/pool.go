// Package workers runs a fixed pool of compute goroutines addressed round robin.
package workers

import (
	"errors"
	"fmt"
	"sync"

	"dither-studio/internal/logger"
)

// DefaultMaxWorkers caps the pool when the configuration does not.
const DefaultMaxWorkers = 8

var (
	ErrNoWorkers         = errors.New("no live workers")
	ErrWorkerUnavailable = errors.New("worker unavailable")
	ErrPoolClosed        = errors.New("pool closed")
)

// Direction tells a Tap whether a frame went to or came from a worker.
type Direction uint8

const (
	Sent Direction = iota + 1
	Received
)

func (d Direction) String() string {
	if d == Sent {
		return "sent"
	}
	return "received"
}

// Tap observes every frame crossing the pool boundary. It must not retain or modify frame.
type Tap func(dir Direction, workerID int, frame []byte)

type Options struct {
	// Parallelism is the hardware parallelism hint.
	Parallelism int
	MaxWorkers  int
	// ReplyBuffer sizes the shared reply channel; 0 picks 4 per worker.
	ReplyBuffer      int
	MailboxWarnDepth int
	Tap              Tap
	Logger           logger.Logger
}

// Size is max(1, min(2*parallelism, maxWorkers)). A non-positive maxWorkers means
// DefaultMaxWorkers.
func Size(parallelism, maxWorkers int) int {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}
	n := 2 * parallelism
	if n > maxWorkers {
		n = maxWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

type Pool struct {
	mu      sync.Mutex
	workers []*Worker
	next    int
	closed  bool

	replies   chan Reply
	faults    chan Fault
	done      chan struct{}
	wg        sync.WaitGroup
	tap       Tap
	warnDepth int
	logger    logger.Logger
}

// New spawns Size(opts.Parallelism, opts.MaxWorkers) workers, each running its own Handler
// from factory.
func New(factory HandlerFactory, opts Options) (*Pool, error) {
	if factory == nil {
		return nil, fmt.Errorf("handler factory is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}

	size := Size(opts.Parallelism, opts.MaxWorkers)
	replyBuffer := opts.ReplyBuffer
	if replyBuffer <= 0 {
		replyBuffer = 4 * size
	}

	p := &Pool{
		workers:   make([]*Worker, size),
		replies:   make(chan Reply, replyBuffer),
		faults:    make(chan Fault, size),
		done:      make(chan struct{}),
		tap:       opts.Tap,
		warnDepth: opts.MailboxWarnDepth,
		logger:    log,
	}

	for i := range p.workers {
		handler := factory(i)
		if handler == nil {
			close(p.done)
			for _, w := range p.workers[:i] {
				w.box.close()
			}
			p.wg.Wait()
			return nil, fmt.Errorf("worker %d: factory returned nil handler", i)
		}
		w := &Worker{id: i, box: newMailbox(), handler: handler, pool: p}
		p.workers[i] = w
		p.wg.Add(1)
		go w.run()
	}

	log.Info("WorkerPool", "pool created", map[string]interface{}{
		"size":        size,
		"parallelism": opts.Parallelism,
		"max_workers": opts.MaxWorkers,
	})

	return p, nil
}

// Size is the number of slots, live or not.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Live counts workers that still accept frames.
func (p *Pool) Live() int {
	n := 0
	for _, w := range p.workers {
		if w.Alive() {
			n++
		}
	}
	return n
}

// Next returns the worker under the rotation pointer and advances it, wrapping to 0. Dead
// slots are skipped without disturbing the order of the live ones.
func (p *Pool) Next() (*Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	for range p.workers {
		w := p.workers[p.next]
		p.next++
		if p.next == len(p.workers) {
			p.next = 0
		}
		if w.Alive() {
			return w, nil
		}
	}
	return nil, ErrNoWorkers
}

// SendNext hands frame to the next worker in rotation and reports which one took it.
func (p *Pool) SendNext(frame []byte) (int, error) {
	w, err := p.Next()
	if err != nil {
		return -1, err
	}
	if err := w.Send(frame); err != nil {
		return w.id, err
	}
	return w.id, nil
}

// Broadcast sends frames, in order and as one unit, to every live worker in pool order.
// The rotation pointer is not touched.
func (p *Pool) Broadcast(frames ...[]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	delivered := 0
	for _, w := range p.workers {
		if !w.Alive() {
			continue
		}
		if err := w.Send(frames...); err != nil {
			p.logger.Warning("WorkerPool", "broadcast skipped worker", map[string]interface{}{
				"worker_id": w.id,
				"error":     err.Error(),
			})
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return ErrNoWorkers
	}
	return nil
}

// Replies delivers worker output in arrival order across all workers.
func (p *Pool) Replies() <-chan Reply {
	return p.replies
}

// Faults delivers one Fault per worker that stopped.
func (p *Pool) Faults() <-chan Fault {
	return p.faults
}

func (p *Pool) fault(f Fault) {
	p.logger.Error("WorkerPool", f.Err, map[string]interface{}{
		"worker_id": f.WorkerID,
		"live":      p.Live(),
	})
	p.faults <- f
}

func (p *Pool) observe(dir Direction, workerID int, frame []byte) {
	if p.tap != nil {
		p.tap(dir, workerID, frame)
	}
}

// Shutdown stops every worker and waits for them to exit. Queued frames are dropped.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)
	for _, w := range p.workers {
		w.box.close()
	}
	p.wg.Wait()

	p.logger.Info("WorkerPool", "pool stopped", map[string]interface{}{
		"size": len(p.workers),
	})
	return nil
}
