// Package projection maintains read models by folding committed records in
// global position order. Each projection owns its read model and tracks its
// own cursor, so independent projections catch up at independent rates.
package projection

import (
	"context"

	"github.com/weegigs/wee-ledger-go/wl"
)

// Handler applies one event type to a read model. Handlers must be
// idempotent: the runner advances its cursor only after a successful apply,
// so a crash between the two re-delivers the record on restart.
type Handler[M any] interface {
	Apply(model *M, evt *wl.RecordedEvent) error
}

// HandlerFunction decodes the record's payload into E before applying. The
// record is passed alongside for access to positions and metadata.
type HandlerFunction[M any, E any] func(model *M, event *E, record *wl.RecordedEvent) error

func (f HandlerFunction[M, E]) Apply(model *M, record *wl.RecordedEvent) error {
	var event E
	if err := wl.UnmarshalFromData(record.Data, &event); err != nil {
		return err
	}

	return f(model, &event, record)
}

// Handlers routes records by event type. Types without a handler are
// skipped; a projection only consumes what it cares about.
type Handlers[M any] map[wl.EventType]Handler[M]

// Checkpoints durably tracks the last applied global position per
// projection.
type Checkpoints interface {
	Load(ctx context.Context, projection string) (uint64, error)
	Save(ctx context.Context, projection string, position uint64) error
}
