package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	dsherrors "github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/errors"
)

const badgerCheckpointPrefix = "checkpoint/"

// BadgerCheckpoints keeps every partition in one embedded Badger
// database. Badger's directory lock gives single-process ownership.
type BadgerCheckpoints struct {
	db  *badger.DB
	now func() time.Time
}

// OpenBadgerCheckpoints opens (or creates) the database in dir. An empty
// dir opens an in-memory database.
func OpenBadgerCheckpoints(dir string, logger *slog.Logger) (*BadgerCheckpoints, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = badgerLogger{logger: logger}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, dsherrors.New(dsherrors.ErrCodeCheckpoint, "failed to open checkpoint database", err).
			WithDetail("dir", dir)
	}
	return &BadgerCheckpoints{db: db, now: time.Now}, nil
}

// Open returns a handle on one partition.
func (b *BadgerCheckpoints) Open(partition string) (*BadgerCheckpoint, error) {
	if err := validatePartition(partition); err != nil {
		return nil, err
	}
	return &BadgerCheckpoint{parent: b, partition: partition}, nil
}

// Partitions lists the partitions that hold a checkpoint, in key order.
func (b *BadgerCheckpoints) Partitions() ([]string, error) {
	var names []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(badgerCheckpointPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), badgerCheckpointPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, dsherrors.New(dsherrors.ErrCodeCheckpoint, "failed to list checkpoints", err)
	}
	return names, nil
}

// Clear deletes every partition.
func (b *BadgerCheckpoints) Clear() error {
	return b.db.DropPrefix([]byte(badgerCheckpointPrefix))
}

// Close closes the database.
func (b *BadgerCheckpoints) Close() error {
	return b.db.Close()
}

// BadgerCheckpoint is one partition stored under a single key.
type BadgerCheckpoint struct {
	parent    *BadgerCheckpoints
	partition string
}

func (c *BadgerCheckpoint) key() []byte {
	return []byte(badgerCheckpointPrefix + c.partition)
}

// Load reads the partition. A missing key is an empty checkpoint.
func (c *BadgerCheckpoint) Load(ctx context.Context) (*Checkpoint, error) {
	var state *Checkpoint
	err := c.parent.db.View(func(txn *badger.Txn) error {
		var err error
		state, err = c.get(txn)
		return err
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (c *BadgerCheckpoint) get(txn *badger.Txn) (*Checkpoint, error) {
	item, err := txn.Get(c.key())
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return &Checkpoint{Partition: c.partition}, nil
	}
	if err != nil {
		return nil, dsherrors.New(dsherrors.ErrCodeCheckpoint, "failed to read checkpoint", err).
			WithDetail("partition", c.partition)
	}

	var state Checkpoint
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &state)
	})
	if err != nil {
		return nil, dsherrors.New(dsherrors.ErrCodeCheckpoint, "checkpoint value is corrupt", err).
			WithDetail("partition", c.partition)
	}
	state.Partition = c.partition
	return &state, nil
}

// Append records id as done in a read-modify-write transaction.
func (c *BadgerCheckpoint) Append(ctx context.Context, id string) error {
	err := c.parent.db.Update(func(txn *badger.Txn) error {
		state, err := c.get(txn)
		if err != nil {
			state = &Checkpoint{Partition: c.partition}
		}
		state.Completed = append(state.Completed, id)
		state.LastIndex = len(state.Completed)
		state.UpdatedAt = c.parent.now().UTC()

		data, err := json.Marshal(state)
		if err != nil {
			return err
		}
		return txn.Set(c.key(), data)
	})
	if err != nil {
		return dsherrors.New(dsherrors.ErrCodeCheckpoint, "failed to append checkpoint", err).
			WithDetail("partition", c.partition)
	}
	return nil
}

// Close is a no-op; the parent owns the database.
func (c *BadgerCheckpoint) Close() error { return nil }

// badgerLogger routes Badger's printf-style logging into slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error("badger", slog.String("msg", trimLog(format, args)))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn("badger", slog.String("msg", trimLog(format, args)))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug("badger", slog.String("msg", trimLog(format, args)))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug("badger", slog.String("msg", trimLog(format, args)))
}

func trimLog(format string, args []any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
