package workers

import (
	"fmt"
	"sync/atomic"
)

// EmitFunc delivers a reply frame computed against the given image generation.
type EmitFunc func(generation uint8, frame []byte)

// Handler is the code every worker runs. Handle is called with frames in arrival order on
// the worker's own goroutine; it never runs concurrently with itself.
type Handler interface {
	Handle(frame []byte, emit EmitFunc) error
}

// HandlerFactory builds one independent Handler per worker.
type HandlerFactory func(workerID int) Handler

// Reply is an unsolicited message from a worker.
type Reply struct {
	WorkerID   int
	Generation uint8
	Frame      []byte
}

// Fault reports a worker that stopped and will not accept further work.
type Fault struct {
	WorkerID int
	Err      error
}

type Worker struct {
	id      int
	box     *mailbox
	handler Handler
	dead    atomic.Bool
	pool    *Pool
}

func (w *Worker) ID() int {
	return w.id
}

// Alive reports whether the worker still accepts frames.
func (w *Worker) Alive() bool {
	return !w.dead.Load()
}

// Send queues frames on the worker's mailbox as one unit.
func (w *Worker) Send(frames ...[]byte) error {
	if w.dead.Load() {
		return fmt.Errorf("worker %d: %w", w.id, ErrWorkerUnavailable)
	}
	depth, ok := w.box.put(frames...)
	if !ok {
		return fmt.Errorf("worker %d: %w", w.id, ErrPoolClosed)
	}
	for _, f := range frames {
		w.pool.observe(Sent, w.id, f)
	}
	if w.pool.warnDepth > 0 && depth > w.pool.warnDepth {
		w.pool.logger.Warning("Worker", "mailbox backlog", map[string]interface{}{
			"worker_id": w.id,
			"depth":     depth,
		})
	}
	return nil
}

func (w *Worker) run() {
	defer w.pool.wg.Done()

	for {
		frame, ok := w.box.take()
		if !ok {
			return
		}
		if err := w.process(frame); err != nil {
			w.dead.Store(true)
			w.box.close()
			w.pool.fault(Fault{WorkerID: w.id, Err: err})
			return
		}
	}
}

// process runs the handler and converts a panic into a fault. Handler errors are logged and
// the worker keeps going.
func (w *Worker) process(frame []byte) (fault error) {
	defer func() {
		if r := recover(); r != nil {
			fault = fmt.Errorf("worker %d panicked: %v", w.id, r)
		}
	}()

	if err := w.handler.Handle(frame, w.emit); err != nil {
		w.pool.logger.Error("Worker", err, map[string]interface{}{
			"worker_id": w.id,
			"bytes":     len(frame),
		})
	}
	return nil
}

func (w *Worker) emit(generation uint8, frame []byte) {
	w.pool.observe(Received, w.id, frame)
	select {
	case w.pool.replies <- Reply{WorkerID: w.id, Generation: generation, Frame: frame}:
	case <-w.pool.done:
	}
}
