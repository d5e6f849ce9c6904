package event

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultPoolSize = 1000
	defaultTimeout  = 30 * time.Second
)

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

// Bus is an in-memory event bus. Handlers run asynchronously, bounded by the pool size.
type Bus struct {
	log      *zap.Logger
	pool     chan struct{}
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	handlers map[string][]Handler
}

type Option func(*Bus)

func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) { b.log = l }
}

func WithPoolSize(n int) Option {
	return func(b *Bus) { b.pool = make(chan struct{}, n) }
}

// NewBus create a new event bus. Caller should call Stop for graceful shutdown the bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		log:      zap.NewNop(),
		pool:     make(chan struct{}, defaultPoolSize),
		wg:       new(sync.WaitGroup),
		handlers: make(map[string][]Handler),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Subscribe to an event
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[name] = append(b.handlers[name], h)
}

// On subscribes a handler for the concrete event type E.
func On[E Event](b *Bus, h func(ctx context.Context, e E) error) {
	var zero E
	b.Subscribe(zero.Name(), func(ctx context.Context, e Event) error {
		te, ok := e.(E)
		if !ok {
			return fmt.Errorf("event: unexpected type %T for %s", e, e.Name())
		}
		return h(ctx, te)
	})
}

// Publish an event
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, h := range b.handlers[e.Name()] {
		b.dispatch(ctx, h, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, h Handler, e Event) {
	b.wg.Add(1)

	b.pool <- struct{}{}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTimeout)
		defer func() {
			if r := recover(); r != nil {
				b.log.Error("event: handler panic",
					zap.String("event", e.Name()),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
			}

			cancel()
			<-b.pool
			b.wg.Done()
		}()

		if err := h(ctx, e); err != nil {
			b.log.Error("event: handle event failed",
				zap.String("event", e.Name()),
				zap.Error(err),
			)
		}
	}()
}

// Stop waits for all handlers to finish
func (b *Bus) Stop() {
	b.wg.Wait()
}
