package bt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Options configures a Session.
type Options struct {
	BindTimeout  time.Duration // how long StartConnect waits for the binder
	BindInterval time.Duration // binder readiness poll interval
	Pair         PairOptions
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		BindTimeout:  5 * time.Second,
		BindInterval: 200 * time.Millisecond,
		Pair:         DefaultPairOptions(),
	}
}

// Session bonds with and connects the A2DP profile of devices handed to
// StartConnect, delivering one Outcome per call to its Sink. Connection
// sequences run one at a time on a private Worker.
type Session struct {
	binder ProfileBinder
	pairer *Pairer
	worker *Worker
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	target  Device
	closed  bool
	pollers sync.WaitGroup

	// notifyMu orders deliveries against Destroy clearing the sink.
	notifyMu sync.Mutex
	sink     Sink
}

// NewSession starts the worker and binds the profile service. Call Destroy
// when done.
func NewSession(adapter Adapter, binder ProfileBinder, sink Sink, opts Options) (*Session, error) {
	def := DefaultOptions()
	if opts.BindTimeout <= 0 {
		opts.BindTimeout = def.BindTimeout
	}
	if opts.BindInterval <= 0 {
		opts.BindInterval = def.BindInterval
	}

	s := &Session{
		binder: binder,
		pairer: NewPairer(adapter, opts.Pair),
		worker: NewWorker("a2dp-connect"),
		opts:   opts,
		sink:   sink,
	}
	s.opts.Pair = s.pairer.opts
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.worker.Start()
	if err := binder.Bind(); err != nil {
		s.worker.Stop()
		s.cancel()
		return nil, fmt.Errorf("bt: bind profile service: %w", err)
	}
	return s, nil
}

// StartConnect begins a connection attempt for dev and returns its attempt
// ID. It never blocks; the outcome arrives on the Sink. Attempts queue
// behind any attempt already running. After Destroy it does nothing and
// returns "".
func (s *Session) StartConnect(dev Device) string {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		slog.Warn("[BT] StartConnect on destroyed session", "device", dev.Address)
		return ""
	}
	s.target = dev
	s.pollers.Add(1)
	s.mu.Unlock()

	id := uuid.NewString()
	slog.Info("[BT] connect requested", "attempt", id, "device", dev.Address, "name", dev.Name)
	go s.awaitProfile(id, dev)
	return id
}

// Target returns the device of the most recent StartConnect.
func (s *Session) Target() Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Reconnect starts another attempt for the current target.
func (s *Session) Reconnect() (string, error) {
	s.mu.Lock()
	closed, target := s.closed, s.target
	s.mu.Unlock()

	if closed {
		return "", ErrSessionClosed
	}
	if target.Address == "" {
		return "", errors.New("bt: no device to reconnect")
	}
	return s.StartConnect(target), nil
}

// Destroy tears the session down. No outcome is delivered once it returns,
// including for attempts still in flight. Idempotent. Must not be called
// from a Sink.
func (s *Session) Destroy() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.notifyMu.Lock()
	s.sink = nil
	s.notifyMu.Unlock()

	s.cancel()
	s.worker.Stop()
	s.pollers.Wait()

	if err := s.binder.Unbind(); err != nil {
		return fmt.Errorf("bt: unbind profile service: %w", err)
	}
	slog.Debug("[BT] session destroyed")
	return nil
}

// awaitProfile waits for the binder and hands the attempt to the worker.
func (s *Session) awaitProfile(id string, dev Device) {
	defer s.pollers.Done()

	ready, err := pollUntil(s.ctx, s.opts.BindInterval, s.opts.BindTimeout, func() (bool, error) {
		return s.binder.Ready(), nil
	})
	if err != nil {
		slog.Debug("[BT] profile wait aborted", "attempt", id, "error", err)
		return
	}
	if !ready {
		s.notify(failed(id, dev, newError(KindBindingTimeout,
			fmt.Errorf("profile service not ready after %s", s.opts.BindTimeout))))
		return
	}

	if !s.worker.Post(func(ctx context.Context) { s.connect(ctx, id, dev) }) {
		slog.Debug("[BT] worker stopped, attempt dropped", "attempt", id)
	}
}

// connect runs on the worker. Every error or panic below it becomes a
// failure outcome.
func (s *Session) connect(ctx context.Context, id string, dev Device) {
	var out Outcome
	defer func() {
		if r := recover(); r != nil {
			out = failed(id, dev, newError(KindPlatformCallFault, fmt.Errorf("panic: %v", r)))
		}
		if errors.Is(out.Err, context.Canceled) {
			slog.Debug("[BT] attempt cancelled", "attempt", id)
		}
		s.notify(out)
	}()
	out = s.sequence(ctx, id, dev)
}

func (s *Session) sequence(ctx context.Context, id string, dev Device) Outcome {
	log := slog.With("attempt", id, "device", dev.Address)

	log.Debug("[BT] checking bond state")
	bonded, err := s.pairer.EnsureBonded(ctx, dev, s.opts.Pair.Timeout)
	if err != nil {
		return failed(id, dev, newError(KindPlatformCallFault, err))
	}
	if !bonded {
		log.Warn("[BT] not bonded, attempting A2DP connect anyway")
	}

	h := s.binder.Handle()
	if h == nil {
		return failed(id, dev, newError(KindPlatformCallFault, ErrProfileUnavailable))
	}

	state, err := h.ConnectionState(ctx, dev)
	if err != nil {
		return failed(id, dev, newError(KindPlatformCallFault, fmt.Errorf("query A2DP state: %w", err)))
	}
	log.Debug("[BT] A2DP state", "state", state)
	if state == StateConnected {
		return succeeded(id, dev)
	}

	ok, err := h.Connect(ctx, dev)
	if err != nil {
		return failed(id, dev, newError(KindPlatformCallFault, fmt.Errorf("connect A2DP: %w", err)))
	}
	log.Info("[BT] A2DP connect returned", "ok", ok)
	if ok {
		return succeeded(id, dev)
	}

	kind := KindProfileConnectFailure
	if !bonded {
		kind = KindPairingTimeout
	}
	return failed(id, dev, newError(kind, fmt.Errorf("A2DP connect to %s refused", dev.Address)))
}

func (s *Session) notify(o Outcome) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if s.sink == nil {
		slog.Debug("[BT] outcome dropped after teardown", "attempt", o.AttemptID, "result", o.Result)
		return
	}
	if o.OK() {
		slog.Info("[BT] connected", "attempt", o.AttemptID, "device", o.Device.Address)
	} else {
		slog.Warn("[BT] connect failed", "attempt", o.AttemptID, "device", o.Device.Address, "kind", o.Kind, "error", o.Err)
	}
	s.sink.Notify(o)
}
