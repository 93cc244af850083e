// ABOUTME: Fire-and-forget message stream: unbounded FIFO plus one delivery worker.
// ABOUTME: Delivers strictly in order with at most one message in flight.

package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/courier/internal/delivery"
)

var (
	// ErrStreamClosed is returned when running a stream whose worker has terminated.
	ErrStreamClosed = errors.New("stream closed")
	// ErrAlreadyRunning is returned when a second worker is started.
	ErrAlreadyRunning = errors.New("stream already running")
)

// Deliverer runs one message to a terminal outcome. *delivery.Sender
// satisfies it.
type Deliverer interface {
	Deliver(ctx context.Context, msg delivery.Message) delivery.Outcome
}

// Observer is called with every terminal outcome, on the worker goroutine.
type Observer func(delivery.Outcome)

type item struct {
	msg    delivery.Message
	notify Observer
}

// Stream decouples producers from network I/O. Any number of goroutines may
// call Send; a single worker drains the queue. The queue is unbounded and
// applies no backpressure.
type Stream struct {
	deliverer Deliverer
	logger    *slog.Logger
	observers []Observer

	mu      sync.Mutex
	queue   []item
	ready   chan struct{}
	running bool
	closed  bool

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Option configures a Stream.
type Option func(*Stream)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stream) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver registers fn for every terminal outcome.
func WithObserver(fn Observer) Option {
	return func(s *Stream) { s.observers = append(s.observers, fn) }
}

// New creates a stream that delivers through d.
func New(d Deliverer, opts ...Option) *Stream {
	s := &Stream{
		deliverer: d,
		logger:    slog.Default(),
		ready:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "stream")
	return s
}

// Send enqueues msg and returns immediately.
func (s *Stream) Send(msg delivery.Message) {
	s.enqueue(item{msg: msg})
}

// SendNotify enqueues msg and calls fn with its terminal outcome. fn runs on
// the worker goroutine and must not block.
func (s *Stream) SendNotify(msg delivery.Message, fn Observer) {
	s.enqueue(item{msg: msg, notify: fn})
}

// Pending returns the number of queued messages not yet taken by the worker.
func (s *Stream) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Stream) enqueue(it item) {
	s.mu.Lock()
	s.queue = append(s.queue, it)
	closed := s.closed
	s.mu.Unlock()

	if closed {
		s.logger.Warn("message queued on a closed stream will not be delivered",
			"message_id", it.msg.ID,
		)
		return
	}

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Run is the worker loop. It blocks until ctx is cancelled or a delivery is
// interrupted, then returns the cancellation error. A stream runs at most
// once; afterwards Run returns ErrStreamClosed.
func (s *Stream) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.closed = true
		s.mu.Unlock()
	}()

	s.logger.Info("stream worker started")
	for {
		it, err := s.next(ctx)
		if err != nil {
			s.logger.Info("stream worker stopped", "reason", err)
			return err
		}

		out := s.deliver(ctx, it.msg)
		s.publish(it, out)

		if out.Result == delivery.ResultCancelled {
			s.logger.Info("stream worker stopped", "reason", out.Err, "pending", s.Pending())
			return out.Err
		}
	}
}

// Start runs the worker on its own goroutine.
func (s *Stream) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStreamClosed
	}
	if s.running || s.done != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		err := s.Run(ctx)
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	}()
	return nil
}

// Stop cancels a worker launched by Start and waits for it to exit. It
// returns the worker's exit error, which is context.Canceled on a clean stop.
func (s *Stream) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// next blocks until a message is available or ctx is done.
func (s *Stream) next(ctx context.Context) (item, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			it := s.queue[0]
			s.queue[0] = item{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return it, nil
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return item{}, ctx.Err()
		case <-s.ready:
		}
	}
}

// deliver isolates one delivery sequence so a panicking transport cannot stall
// the stream.
func (s *Stream) deliver(ctx context.Context, msg delivery.Message) (out delivery.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("delivery sequence panicked",
				"message_id", msg.ID,
				"panic", r,
			)
			out = delivery.Outcome{
				Message: msg,
				Result:  delivery.ResultFailed,
				Err:     fmt.Errorf("delivery of %s panicked: %v", msg.ID, r),
			}
		}
	}()
	return s.deliverer.Deliver(ctx, msg)
}

func (s *Stream) publish(it item, out delivery.Outcome) {
	for _, fn := range s.observers {
		s.safeCall(fn, out)
	}
	if it.notify != nil {
		s.safeCall(it.notify, out)
	}
}

func (s *Stream) safeCall(fn Observer, out delivery.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("outcome observer panicked",
				"message_id", out.Message.ID,
				"panic", r,
			)
		}
	}()
	fn(out)
}
