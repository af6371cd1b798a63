package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"

	"opdag/backend/storage"
)

const keyPrefix = "snapshot/"

// Config describes where and how the snapshot database is opened.
type Config struct {
	// Path is the database directory. Required unless InMemory is set.
	Path string

	// InMemory keeps everything in memory (tests, demos).
	InMemory bool

	SyncWrites bool

	// Logger receives badger's internal log lines. The zero logger discards
	// them.
	Logger *zerolog.Logger
}

// InMemoryConfig returns a configuration for a throwaway database.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts zerolog to badger.Logger.
type badgerLogger struct {
	log zerolog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Store implements storage.Store on top of badger.
//
// - implements storage.Store
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the snapshot database.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, xerrors.New("path is required for a persistent snapshot store")
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, xerrors.Errorf("failed to create %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{log: *cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, xerrors.Errorf("failed to open badger: %w", err)
	}
	return &Store{db: db}, nil
}

// Put implements storage.Store.
func (s *Store) Put(ctx context.Context, replica string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+replica), data)
	})
}

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, replica string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + replica))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, xerrors.Errorf("%s: %w", replica, storage.ErrNoSnapshot)
	}
	if err != nil {
		return nil, xerrors.Errorf("failed to read snapshot of %s: %w", replica, err)
	}
	return data, nil
}

// Delete implements storage.Store.
func (s *Store) Delete(ctx context.Context, replica string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + replica))
	})
}

// Replicas implements storage.Store.
func (s *Store) Replicas(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			out = append(out, strings.TrimPrefix(string(it.Item().Key()), keyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to list snapshots: %w", err)
	}
	slices.Sort(out)
	return out, nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	return s.db.Close()
}
