package bt

import (
	"context"
	"log/slog"
	"sync"
)

// Task is a unit of work run on a Worker. ctx is cancelled when the worker
// stops.
type Task func(ctx context.Context)

type workerState int

const (
	workerIdle workerState = iota
	workerRunning
	workerStopped
)

// Worker runs posted tasks one at a time, in order, on a dedicated
// goroutine. Post never blocks.
type Worker struct {
	name string

	mu     sync.Mutex
	state  workerState
	queue  []Task
	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates a stopped worker; call Start before posting.
func NewWorker(name string) *Worker {
	return &Worker{name: name}
}

// Start launches the worker goroutine. Starting a running or stopped worker
// does nothing.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != workerIdle {
		return
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.wake = make(chan struct{}, 1)
	w.done = make(chan struct{})
	w.state = workerRunning
	go w.loop()
}

// Post enqueues t and reports whether it was accepted. Tasks are rejected
// unless the worker is running.
func (w *Worker) Post(t Task) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != workerRunning {
		return false
	}
	w.queue = append(w.queue, t)
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// Pending returns the number of queued tasks that have not started.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Stop drops pending tasks, cancels the running one and waits for the
// goroutine to exit. Idempotent, and safe on a worker that was never
// started. Must not be called from a task.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.state != workerRunning {
		w.state = workerStopped
		w.mu.Unlock()
		return
	}
	w.state = workerStopped
	if n := len(w.queue); n > 0 {
		slog.Debug("[BT] worker dropping pending tasks", "worker", w.name, "count", n)
	}
	w.queue = nil
	w.cancel()
	done := w.done
	w.mu.Unlock()

	<-done
}

func (w *Worker) loop() {
	defer close(w.done)
	for {
		w.mu.Lock()
		if w.state != workerRunning {
			w.mu.Unlock()
			return
		}
		if len(w.queue) == 0 {
			w.mu.Unlock()
			select {
			case <-w.wake:
				continue
			case <-w.ctx.Done():
				return
			}
		}
		t := w.queue[0]
		w.queue[0] = nil
		w.queue = w.queue[1:]
		ctx := w.ctx
		w.mu.Unlock()

		w.run(ctx, t)
	}
}

func (w *Worker) run(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[BT] worker task panicked", "worker", w.name, "panic", r)
		}
	}()
	t(ctx)
}
