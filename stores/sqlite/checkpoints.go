package sqlite

import (
	"context"
	"database/sql"
	"errors"

	werrors "github.com/pkg/errors"

	"github.com/weegigs/wee-ledger-go/wl"
)

// Checkpoints persists projection cursors in the same database as the
// ledger, so a projection and its cursor survive restarts together.
type Checkpoints struct {
	db    *sql.DB
	clock wl.Clock
}

func NewCheckpoints(store *Store) *Checkpoints {
	return &Checkpoints{db: store.DB(), clock: store.clock}
}

func (c *Checkpoints) Load(ctx context.Context, projection string) (uint64, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT position FROM checkpoints WHERE projection = ?`, projection)

	var position uint64
	if err := row.Scan(&position); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, werrors.Wrapf(err, "failed to load checkpoint for %s", projection)
	}

	return position, nil
}

func (c *Checkpoints) Save(ctx context.Context, projection string, position uint64) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO checkpoints (projection, position, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (projection) DO UPDATE SET
		     position = excluded.position,
		     updated_at = excluded.updated_at`,
		projection, position, wl.TimestampFromTime(c.clock.Now()).String())
	if err != nil {
		return werrors.Wrapf(err, "failed to save checkpoint for %s", projection)
	}

	return nil
}
