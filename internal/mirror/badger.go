package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// BadgerConfig configures an embedded BadgerDB slot.
type BadgerConfig struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	Key        string
}

// BadgerSlot keeps the mirror blob under one key of an embedded BadgerDB.
type BadgerSlot struct {
	db  *badger.DB
	key []byte
}

// OpenBadgerSlot opens the database at cfg.Path, or in memory when
// cfg.InMemory is set.
func OpenBadgerSlot(cfg BadgerConfig, log *zap.Logger) (*BadgerSlot, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("mirror path is required for a persistent badger slot")
	}
	if cfg.Key == "" {
		return nil, errors.New("mirror key is required")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create mirror directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{log: log.Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger mirror: %w", err)
	}
	return &BadgerSlot{db: db, key: []byte(cfg.Key)}, nil
}

func (s *BadgerSlot) Load(_ context.Context) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrSlotEmpty
	}
	return out, err
}

func (s *BadgerSlot) Store(_ context.Context, data []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key, data)
	})
}

func (s *BadgerSlot) Discard(_ context.Context) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key)
	})
}

func (s *BadgerSlot) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's internal logging to zap. Info and debug
// chatter from compactions is dropped to debug level.
type badgerLogger struct {
	log *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.log.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.log.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.log.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.log.Debugf(format, args...) }
