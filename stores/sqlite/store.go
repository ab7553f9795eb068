// Package sqlite persists the ledger in a SQLite database via
// modernc.org/sqlite. The events table is keyed by (stream_id, sequence)
// with the rowid acting as the global position; the version check rides on
// the unique index, so two racing writers for the same stream cannot both
// commit.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goccy/go-json"
	werrors "github.com/pkg/errors"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/weegigs/wee-ledger-go/wl"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	position    INTEGER PRIMARY KEY AUTOINCREMENT,
	stream_id   TEXT    NOT NULL,
	sequence    INTEGER NOT NULL,
	event_id    TEXT    NOT NULL,
	event_type  TEXT    NOT NULL,
	encoding    TEXT    NOT NULL,
	payload     BLOB    NOT NULL,
	metadata    TEXT,
	occurred_at TEXT    NOT NULL,
	UNIQUE (stream_id, sequence)
);

CREATE TABLE IF NOT EXISTS checkpoints (
	projection TEXT PRIMARY KEY,
	position   INTEGER NOT NULL,
	updated_at TEXT    NOT NULL
);
`

type StoreOption func(*Store)

func WithClock(clock wl.Clock) StoreOption {
	return func(store *Store) {
		store.clock = clock
	}
}

func WithPollInterval(interval time.Duration) StoreOption {
	return func(store *Store) {
		store.pollInterval = interval
	}
}

// Open opens (creating if necessary) a ledger database at path. Use
// ":memory:" for an ephemeral store.
func Open(path string, options ...StoreOption) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, werrors.Wrap(err, "failed to open ledger database")
	}

	// the schema relies on serialized writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, werrors.Wrap(err, "failed to apply ledger schema")
	}

	store := &Store{db: db}
	for _, option := range options {
		option(store)
	}

	if store.clock == nil {
		store.clock = wl.SystemClock{}
	}
	if store.ids == nil {
		store.ids = wl.NewIDGenerator(store.clock)
	}

	return store, nil
}

type Store struct {
	db           *sql.DB
	clock        wl.Clock
	ids          wl.IDGenerator
	pollInterval time.Duration
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle so checkpoint and read model storage can
// share the database.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Append(ctx context.Context, stream wl.StreamID, expected wl.ExpectedVersion, events ...wl.ProposedEvent) ([]wl.RecordedEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := wl.ValidateProposed(stream, events); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, werrors.Wrap(err, "failed to begin append transaction")
	}
	defer tx.Rollback()

	var current uint64
	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM events WHERE stream_id = ?`, stream.String())
	if err := row.Scan(&current); err != nil {
		return nil, werrors.Wrapf(err, "failed to read current version of %s", stream)
	}

	if expected.Checked() && uint64(expected) != current {
		return nil, wl.Conflict(stream, expected, current)
	}

	timestamp := wl.TimestampFromTime(s.clock.Now())
	committed := make([]wl.RecordedEvent, len(events))

	for i, event := range events {
		record := wl.RecordedEvent{
			StreamID:       stream,
			SequenceNumber: current + uint64(i) + 1,
			EventID:        s.ids.NewEventID(),
			EventType:      event.Type,
			Data:           event.Data,
			OccurredAt:     timestamp,
			Metadata:       event.Metadata,
		}

		metadata, err := marshalMetadata(record.Metadata)
		if err != nil {
			return nil, err
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO events (stream_id, sequence, event_id, event_type, encoding, payload, metadata, occurred_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			record.StreamID.String(),
			record.SequenceNumber,
			record.EventID.String(),
			record.EventType.String(),
			record.Data.Encoding,
			record.Data.Data,
			metadata,
			record.OccurredAt.String(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				// a concurrent writer claimed the sequence first
				return nil, wl.Conflict(stream, expected, current)
			}
			return nil, werrors.Wrapf(err, "failed to append %s to %s", record.EventType, stream)
		}

		position, err := result.LastInsertId()
		if err != nil {
			return nil, werrors.Wrap(err, "failed to read assigned position")
		}
		record.GlobalPosition = uint64(position)

		committed[i] = record
	}

	if err := tx.Commit(); err != nil {
		return nil, werrors.Wrapf(err, "failed to commit append to %s", stream)
	}

	return committed, nil
}

func (s *Store) ReadStream(ctx context.Context, stream wl.StreamID, fromVersion uint64) ([]wl.RecordedEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, stream_id, sequence, event_id, event_type, encoding, payload, metadata, occurred_at
		 FROM events WHERE stream_id = ? AND sequence > ? ORDER BY sequence`,
		stream.String(), fromVersion)
	if err != nil {
		return nil, werrors.Wrapf(err, "failed to read stream %s", stream)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *Store) ReadAll(ctx context.Context, fromPosition uint64, limit int) ([]wl.RecordedEvent, error) {
	if limit <= 0 {
		limit = defaultReadAllLimit
	}
	if fromPosition == 0 {
		fromPosition = 1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT position, stream_id, sequence, event_id, event_type, encoding, payload, metadata, occurred_at
		 FROM events WHERE position >= ? ORDER BY position LIMIT ?`,
		fromPosition, limit)
	if err != nil {
		return nil, werrors.Wrap(err, "failed to read ledger")
	}
	defer rows.Close()

	return scanEvents(rows)
}

const defaultReadAllLimit = 256

func (s *Store) Subscribe(ctx context.Context, fromPosition uint64) (wl.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return wl.Poll(ctx, s, fromPosition, s.pollInterval), nil
}

func scanEvents(rows *sql.Rows) ([]wl.RecordedEvent, error) {
	var events []wl.RecordedEvent

	for rows.Next() {
		var record wl.RecordedEvent
		var metadata sql.NullString

		if err := rows.Scan(
			&record.GlobalPosition,
			&record.StreamID,
			&record.SequenceNumber,
			&record.EventID,
			&record.EventType,
			&record.Data.Encoding,
			&record.Data.Data,
			&metadata,
			&record.OccurredAt,
		); err != nil {
			return nil, werrors.Wrap(err, "failed to scan event row")
		}

		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &record.Metadata); err != nil {
				return nil, werrors.Wrapf(err, "failed to decode metadata for %s#%d", record.StreamID, record.SequenceNumber)
			}
		}

		events = append(events, record)
	}

	return events, rows.Err()
}

func marshalMetadata(metadata wl.Metadata) (sql.NullString, error) {
	if len(metadata) == 0 {
		return sql.NullString{}, nil
	}

	encoded, err := json.Marshal(metadata)
	if err != nil {
		return sql.NullString{}, werrors.Wrap(err, "failed to encode metadata")
	}

	return sql.NullString{String: string(encoded), Valid: true}, nil
}

func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
