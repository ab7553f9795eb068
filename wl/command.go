package wl

import (
	"context"

	"github.com/goccy/go-json"
)

type CommandName string
type Command any

// RemoteCommand carries a command delivered by an external transport. The
// transport is only required to deliver a well-formed name and payload.
type RemoteCommand struct {
	CommandName CommandName `json:"command"`
	Payload     Data        `json:"payload"`
}

func CommandNameOf(command Command) CommandName {
	var name CommandName
	switch cmd := command.(type) {
	case RemoteCommand:
		name = cmd.CommandName
	default:
		name = CommandName(NameOf(command))
	}

	return name
}

// CommandHandler decides what a command means for the current state. Handlers
// are pure: no I/O, and identical state and command always produce the same
// events or the same failure.
type CommandHandler[T any] interface {
	HandleCommand(ctx context.Context, cmd Command, state Entity[T]) ([]ProposedEvent, error)
	HandleRemoteCommand(ctx context.Context, cmd RemoteCommand, state Entity[T]) ([]ProposedEvent, error)
}

type CommandHandlerFunction[T any, C any] func(ctx context.Context, cmd C, state Entity[T]) ([]ProposedEvent, error)

func (f CommandHandlerFunction[T, C]) HandleCommand(ctx context.Context, cmd Command, state Entity[T]) ([]ProposedEvent, error) {
	command, ok := cmd.(C)
	if !ok {
		return nil, UnexpectedCommand(cmd)
	}

	return f(ctx, command, state)
}

func (f CommandHandlerFunction[T, C]) HandleRemoteCommand(ctx context.Context, cmd RemoteCommand, state Entity[T]) ([]ProposedEvent, error) {
	var command C

	if cmd.Payload.Encoding != JSONEncoding {
		return nil, InvalidEncoding(JSONEncoding, cmd.Payload.Encoding)
	}

	if err := json.UnmarshalContext(ctx, cmd.Payload.Data, &command); err != nil {
		return nil, err
	}

	return f(ctx, command, state)
}
