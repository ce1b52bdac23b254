// Package loader coalesces concurrent per-key loads into batch queries.
//
// Callers resolving a relation for many parents each call Load with their
// own key. Loads that arrive within the batch window (or until the batch
// is full) are merged into one keyed request, executed in one round trip,
// and the results are fanned back out by key position.
package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/nestql/internal/ir"
	"github.com/roach88/nestql/internal/queryir"
)

// ErrClosed is returned by Load after the loader stopped.
var ErrClosed = errors.New("loader: closed")

// Fetcher loads one batch. It must return exactly one value per key, in
// key order.
type Fetcher func(ctx context.Context, keys []queryir.KeyCriterion) ([]any, error)

// Loader batches Load calls. Start it with Run; Load blocks until the
// value for its key is available.
type Loader struct {
	fetch    Fetcher
	wait     time.Duration
	maxBatch int
	logger   *zap.Logger

	queue *pendingQueue
	full  chan struct{}
}

// Option configures a Loader.
type Option func(*Loader)

// WithWait sets the batch window. Zero dispatches as soon as Run sees a
// pending load.
func WithWait(d time.Duration) Option {
	return func(l *Loader) { l.wait = d }
}

// WithMaxBatch caps the number of keys per fetch.
func WithMaxBatch(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxBatch = n
		}
	}
}

// WithLogger sets the logger used for batch tracing.
func WithLogger(log *zap.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.logger = log
		}
	}
}

// New creates a loader around fetch. Defaults: 2ms window, 100 keys.
func New(fetch Fetcher, opts ...Option) *Loader {
	l := &Loader{
		fetch:    fetch,
		wait:     2 * time.Millisecond,
		maxBatch: 100,
		logger:   zap.NewNop(),
		queue:    newPendingQueue(),
		full:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the value for key once its batch has been fetched.
func (l *Loader) Load(ctx context.Context, key queryir.KeyCriterion) (any, error) {
	p := pending{key: key, result: make(chan result, 1)}
	n, ok := l.queue.Enqueue(p)
	if !ok {
		return nil, ErrClosed
	}
	if n >= l.maxBatch {
		select {
		case l.full <- struct{}{}:
		default:
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-p.result:
		return r.value, r.err
	}
}

// LoadMany loads every key concurrently and returns the values in order.
// The first error wins.
func (l *Loader) LoadMany(ctx context.Context, keys []queryir.KeyCriterion) ([]any, error) {
	values := make([]any, len(keys))
	errs := make([]error, len(keys))
	done := make(chan struct{})
	for i, key := range keys {
		go func(i int, key queryir.KeyCriterion) {
			values[i], errs[i] = l.Load(ctx, key)
			done <- struct{}{}
		}(i, key)
	}
	for range keys {
		<-done
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return values, nil
}

// Close stops accepting loads. Run dispatches what is already queued and
// returns.
func (l *Loader) Close() {
	l.queue.Close()
}

// Run dispatches batches until ctx is cancelled or Close is called.
// Loads still queued when ctx is cancelled fail with ctx.Err().
func (l *Loader) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.failPending(ctx.Err())
			return ctx.Err()
		case _, ok := <-l.queue.Wait():
			if !ok {
				l.dispatchAll(ctx)
				return nil
			}
		}
		if l.queue.Len() == 0 {
			continue
		}

		if l.wait > 0 && l.queue.Len() < l.maxBatch {
			timer := time.NewTimer(l.wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				l.failPending(ctx.Err())
				return ctx.Err()
			case <-timer.C:
			case <-l.full:
				timer.Stop()
			}
		}
		l.dispatchAll(ctx)
	}
}

func (l *Loader) dispatchAll(ctx context.Context) {
	for l.queue.Len() > 0 {
		l.dispatch(ctx, l.queue.Drain(l.maxBatch))
	}
}

// dispatch fetches one batch. Equal keys share a single slot.
func (l *Loader) dispatch(ctx context.Context, batch []pending) {
	var (
		keys  []queryir.KeyCriterion
		index = make(map[string]int, len(batch))
		slots = make([]int, len(batch))
	)
	for i, p := range batch {
		id := keyID(p.key)
		slot, seen := index[id]
		if !seen {
			slot = len(keys)
			index[id] = slot
			keys = append(keys, p.key)
		}
		slots[i] = slot
	}

	l.logger.Debug("dispatching batch", zap.Int("loads", len(batch)), zap.Int("keys", len(keys)))
	values, err := l.fetch(ctx, keys)
	if err == nil && len(values) != len(keys) {
		err = fmt.Errorf("loader: fetch returned %d values for %d keys", len(values), len(keys))
	}
	if err != nil {
		l.logger.Error("batch fetch failed", zap.Error(err), zap.Int("keys", len(keys)))
	}

	for i, p := range batch {
		if err != nil {
			p.result <- result{err: err}
			continue
		}
		p.result <- result{value: values[slots[i]]}
	}
}

func (l *Loader) failPending(err error) {
	l.queue.Close()
	for _, p := range l.queue.Drain(0) {
		p.result <- result{err: err}
	}
}

// keyID renders a key as a stable map key.
func keyID(k queryir.KeyCriterion) string {
	var b strings.Builder
	for _, kv := range k {
		b.WriteString(kv.Column)
		b.WriteByte('=')
		fmt.Fprintf(&b, "%T:%s", kv.Value, ir.String(kv.Value))
		b.WriteByte(0)
	}
	return b.String()
}
