package audit

import (
	"context"
	"log/slog"
	"sync"

	"terrier/pkg/requestcontext"

	dErrors "terrier/pkg/domain-errors"
)

// Store is the persistence sink for audit entries.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListBySubject(ctx context.Context, subjectRef string) ([]Entry, error)
}

// Sink receives a copy of every published entry. Sinks are best-effort:
// a failing sink is logged and never blocks the write path.
type Sink interface {
	Publish(ctx context.Context, entry Entry) error
}

// Publisher records audit entries. By default entries are appended
// synchronously so callers observe persistence errors. WithAsyncBuffer
// switches to a buffered worker that drops on overflow and drains on Close.
type Publisher struct {
	store  Store
	sinks  []Sink
	logger *slog.Logger

	buf    chan Entry
	wg     sync.WaitGroup
	closed chan struct{}
}

type Option func(*Publisher)

// WithAsyncBuffer makes Emit non-blocking, queueing entries through a
// buffer of the given size. Entries emitted when the buffer is full are
// dropped.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.buf = make(chan Entry, size)
	}
}

// WithSink attaches an additional best-effort delivery target.
func WithSink(sink Sink) Option {
	return func(p *Publisher) {
		p.sinks = append(p.sinks, sink)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		logger: slog.Default(),
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.buf != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

func (p *Publisher) Emit(ctx context.Context, entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = requestcontext.Now(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}

	if p.buf == nil {
		return p.write(ctx, entry)
	}

	select {
	case p.buf <- entry:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.logger.Warn("audit buffer full, dropping entry",
			"action", entry.Action, "subject_ref", entry.SubjectRef)
		return dErrors.New(dErrors.CodeInternal, "audit buffer full")
	}
}

func (p *Publisher) List(ctx context.Context, subjectRef string) ([]Entry, error) {
	return p.store.ListBySubject(ctx, subjectRef)
}

// Close stops the async worker, draining any buffered entries first.
// Safe to call on a synchronous publisher.
func (p *Publisher) Close() {
	select {
	case <-p.closed:
		return
	default:
		close(p.closed)
	}
	if p.buf != nil {
		close(p.buf)
		p.wg.Wait()
	}
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for entry := range p.buf {
		if err := p.write(context.Background(), entry); err != nil {
			p.logger.Error("audit append failed",
				"action", entry.Action, "subject_ref", entry.SubjectRef, "error", err)
		}
	}
}

func (p *Publisher) write(ctx context.Context, entry Entry) error {
	if err := p.store.Append(ctx, entry); err != nil {
		return err
	}
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, entry); err != nil {
			p.logger.Warn("audit sink publish failed",
				"action", entry.Action, "subject_ref", entry.SubjectRef, "error", err)
		}
	}
	return nil
}
