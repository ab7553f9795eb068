package projection

import (
	"errors"
	"fmt"

	"github.com/weegigs/wee-ledger-go/wl"
)

// ApplyError reports a record that could not be applied after bounded
// retries. The projection's cursor stays at the position before the record;
// nothing is skipped.
type ApplyError struct {
	Projection string
	Record     wl.EventKey
	Position   uint64
	Cause      error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("projection %s failed to apply %s#%d at position %d: %v",
		e.Projection, e.Record.Stream, e.Record.Sequence, e.Position, e.Cause)
}

func (e *ApplyError) Unwrap() error {
	return e.Cause
}

func IsApplyError(err error) bool {
	var apply *ApplyError
	return errors.As(err, &apply)
}

// ErrLagTimeout is returned by Wait when a projection does not reach the
// requested position within the deadline.
var ErrLagTimeout = errors.New("timed out waiting for projection to catch up")
