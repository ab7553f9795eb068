package wl

import (
	"context"
	"fmt"

	"github.com/avast/retry-go"
	"go.opentelemetry.io/otel"
)

const tracerName = "ledger-service"

// defaultAttempts bounds the reconstruct/decide/append cycle when an append
// loses a concurrency race. Exhaustion surfaces the conflict to the caller.
const defaultAttempts = 3

type CommandHandlers[T any] map[CommandName]CommandHandler[T]

type ServiceDescriptor[T any] struct {
	Handlers map[CommandName]func() CommandHandler[T]
	Reducers map[EventType]func() Reducer[T]
}

// ExecutionResult reports a committed command. When the handler produced no
// events the committed fields echo the entity's current version and the
// position is zero.
type ExecutionResult[T any] struct {
	Entity            Entity[T]
	CommittedVersion  uint64
	CommittedPosition uint64
}

type CommandService[T any] interface {
	Load(ctx context.Context, stream StreamID) (Entity[T], error)
	Execute(ctx context.Context, stream StreamID, command Command) (ExecutionResult[T], error)
}

type ServiceOption[T any] func(*commandService[T])

func WithAttempts[T any](attempts uint) ServiceOption[T] {
	return func(service *commandService[T]) {
		service.attempts = attempts
	}
}

func NewCommandService[T any](store EventStore, descriptor ServiceDescriptor[T], options ...ServiceOption[T]) CommandService[T] {
	reducers := Reducers[T]{}
	for eventType, reducer := range descriptor.Reducers {
		reducers[eventType] = reducer()
	}

	handlers := CommandHandlers[T]{}
	for name, handler := range descriptor.Handlers {
		handlers[name] = handler()
	}

	service := &commandService[T]{
		store:    store,
		loader:   &EntityLoader[T]{Store: store, Renderer: &Renderer[T]{Reducers: reducers}},
		handlers: handlers,
		attempts: defaultAttempts,
	}

	for _, option := range options {
		option(service)
	}

	return service
}

type commandService[T any] struct {
	store    EventStore
	loader   *EntityLoader[T]
	handlers CommandHandlers[T]
	attempts uint
}

func (s *commandService[T]) Load(ctx context.Context, stream StreamID) (Entity[T], error) {
	return s.loader.Load(ctx, stream)
}

// Execute loads the entity, decides, and appends with the loaded version as
// the concurrency token. A conflict reloads against the new version and
// retries the whole cycle; a domain rule violation is surfaced immediately.
func (s *commandService[T]) Execute(ctx context.Context, stream StreamID, command Command) (ExecutionResult[T], error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, fmt.Sprintf("execute %s", CommandNameOf(command)))
	defer span.End()

	handler := s.handlers[CommandNameOf(command)]
	if handler == nil {
		return ExecutionResult[T]{}, &CommandNotFoundError{Command: CommandNameOf(command)}
	}

	var result ExecutionResult[T]

	err := retry.Do(
		func() error {
			attempt, err := s.attempt(ctx, stream, handler, command)
			if err != nil {
				return err
			}

			result = attempt
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.RetryIf(IsConflict),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return ExecutionResult[T]{}, err
	}

	return result, nil
}

func (s *commandService[T]) attempt(ctx context.Context, stream StreamID, handler CommandHandler[T], command Command) (ExecutionResult[T], error) {
	entity, err := s.loader.Load(ctx, stream)
	if err != nil {
		return ExecutionResult[T]{}, err
	}

	events, err := s.decide(ctx, handler, command, entity)
	if err != nil {
		return ExecutionResult[T]{}, err
	}

	if len(events) == 0 {
		return ExecutionResult[T]{Entity: entity, CommittedVersion: entity.Version}, nil
	}

	committed, err := s.store.Append(ctx, stream, Exactly(entity.Version), events...)
	if err != nil {
		return ExecutionResult[T]{}, err
	}

	updated, err := s.loader.Load(ctx, stream)
	if err != nil {
		return ExecutionResult[T]{}, err
	}

	last := committed[len(committed)-1]
	return ExecutionResult[T]{
		Entity:            updated,
		CommittedVersion:  last.SequenceNumber,
		CommittedPosition: last.GlobalPosition,
	}, nil
}

func (s *commandService[T]) decide(ctx context.Context, handler CommandHandler[T], command Command, entity Entity[T]) ([]ProposedEvent, error) {
	switch cmd := command.(type) {
	case RemoteCommand:
		return handler.HandleRemoteCommand(ctx, cmd, entity)
	default:
		return handler.HandleCommand(ctx, cmd, entity)
	}
}
