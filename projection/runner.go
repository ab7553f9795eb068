package projection

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"github.com/weegigs/wee-ledger-go/wl"
)

const tracerName = "ledger-projection"

const (
	defaultApplyAttempts = 5
	defaultApplyDelay    = 100 * time.Millisecond
	defaultWaitPoll      = 20 * time.Millisecond
)

type RunnerOption[M any] func(*Runner[M])

func WithLogger[M any](logger *zerolog.Logger) RunnerOption[M] {
	return func(runner *Runner[M]) {
		runner.log = logger
	}
}

func WithApplyAttempts[M any](attempts uint) RunnerOption[M] {
	return func(runner *Runner[M]) {
		runner.attempts = attempts
	}
}

// NewRunner builds the long-lived consumer for one projection. The runner
// owns model exclusively; other components read it through Read.
func NewRunner[M any](name string, store wl.EventStore, checkpoints Checkpoints, model *M, handlers Handlers[M], options ...RunnerOption[M]) *Runner[M] {
	runner := &Runner[M]{
		name:        name,
		store:       store,
		checkpoints: checkpoints,
		model:       model,
		handlers:    handlers,
		attempts:    defaultApplyAttempts,
	}

	for _, option := range options {
		option(runner)
	}

	if runner.log == nil {
		runner.log = &log.Logger
	}

	return runner
}

type Runner[M any] struct {
	name        string
	store       wl.EventStore
	checkpoints Checkpoints
	model       *M
	handlers    Handlers[M]
	attempts    uint
	log         *zerolog.Logger

	mu     sync.RWMutex
	cursor atomic.Uint64
}

func (r *Runner[M]) Name() string {
	return r.name
}

// Position reports the last durably applied global position.
func (r *Runner[M]) Position() uint64 {
	return r.cursor.Load()
}

// Read grants shared access to the read model. The model must not escape fn.
func (r *Runner[M]) Read(fn func(model *M) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn(r.model)
}

// Run consumes records from the cursor onwards until the context ends or a
// record exhausts its retries. It returns nil on context cancellation and an
// ApplyError on exhaustion.
func (r *Runner[M]) Run(ctx context.Context) error {
	position, err := r.checkpoints.Load(ctx, r.name)
	if err != nil {
		return err
	}
	r.cursor.Store(position)

	sub, err := r.store.Subscribe(ctx, position+1)
	if err != nil {
		return err
	}
	defer sub.Close()

	r.log.Info().Str("projection", r.name).Uint64("position", position).Msg("projection catching up")

	for record := range sub.Events() {
		if record.GlobalPosition <= r.cursor.Load() {
			// at-least-once delivery may replay the tail
			continue
		}

		if err := r.apply(ctx, record); err != nil {
			return err
		}
	}

	if err := sub.Err(); err != nil && ctx.Err() == nil {
		return err
	}

	return nil
}

func (r *Runner[M]) apply(ctx context.Context, record wl.RecordedEvent) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "apply "+record.EventType.String())
	defer span.End()

	handler := r.handlers[record.EventType]

	if handler != nil {
		err := retry.Do(
			func() error {
				r.mu.Lock()
				defer r.mu.Unlock()
				return handler.Apply(r.model, &record)
			},
			retry.Context(ctx),
			retry.Attempts(r.attempts),
			retry.Delay(defaultApplyDelay),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(attempt uint, err error) {
				r.log.Warn().
					Str("projection", r.name).
					Str("stream", record.StreamID.String()).
					Uint64("position", record.GlobalPosition).
					Uint("attempt", attempt+1).
					Err(err).
					Msg("retrying projection apply")
			}),
		)
		if err != nil {
			r.log.Error().
				Str("projection", r.name).
				Str("stream", record.StreamID.String()).
				Uint64("position", record.GlobalPosition).
				Err(err).
				Msg("projection halted; cursor not advanced")

			return &ApplyError{
				Projection: r.name,
				Record:     record.Key(),
				Position:   record.GlobalPosition,
				Cause:      err,
			}
		}
	}

	// advance only after the model reflects the record
	if err := r.checkpoints.Save(ctx, r.name, record.GlobalPosition); err != nil {
		return err
	}
	r.cursor.Store(record.GlobalPosition)

	return nil
}

// Wait blocks until the projection has applied at least position, honouring
// read-your-writes for a caller that knows its commit position.
func (r *Runner[M]) Wait(ctx context.Context, position uint64, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(defaultWaitPoll)
	defer ticker.Stop()

	for {
		if r.cursor.Load() >= position {
			return nil
		}

		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return ErrLagTimeout
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
