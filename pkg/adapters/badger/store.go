// Package badger stores flow documents in an embedded Badger key/value database.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/goccy/go-json"

	"github.com/aretw0/weft/pkg/domain"
)

const keyPrefix = "workspace/"

// Store implements ports.FlowStore on Badger.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	stop   chan struct{}
}

// Config selects where and how the database is opened.
type Config struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir           string
	InMemory      bool
	EncryptionKey []byte
	// GCInterval runs value-log garbage collection periodically; zero disables it.
	GCInterval time.Duration
}

// New opens the database described by cfg.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger.With("component", "badger")}
	if len(cfg.EncryptionKey) > 0 {
		opts.EncryptionKey = cfg.EncryptionKey
		opts.IndexCacheSize = 16 << 20
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open database: %w", err)
	}

	s := &Store{db: db, logger: logger, stop: make(chan struct{})}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		go s.runGarbageCollection(cfg.GCInterval)
	}
	return s, nil
}

func key(id string) []byte {
	return []byte(keyPrefix + id)
}

// Save writes the document of a workspace.
func (s *Store) Save(ctx context.Context, id string, doc domain.FlowDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("badger: marshal document: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(id), data)
	})
	if err != nil {
		return fmt.Errorf("badger: save %s: %w", id, err)
	}
	return nil
}

// Load reads the document of a workspace.
func (s *Store) Load(ctx context.Context, id string) (domain.FlowDocument, error) {
	var doc domain.FlowDocument
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.FlowDocument{}, domain.ErrWorkspaceNotFound
	}
	if err != nil {
		return domain.FlowDocument{}, fmt.Errorf("badger: load %s: %w", id, err)
	}
	return doc, nil
}

// Delete removes a workspace. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(id))
	})
	if err != nil {
		return fmt.Errorf("badger: delete %s: %w", id, err)
	}
	return nil
}

// List returns every stored workspace id, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), keyPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: list: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	close(s.stop)
	return s.db.Close()
}

func (s *Store) runGarbageCollection(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			for {
				if err := s.db.RunValueLogGC(0.5); err != nil {
					if !errors.Is(err, badger.ErrNoRewrite) {
						s.logger.Debug("value log gc", "err", err)
					}
					break
				}
			}
		}
	}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(f, v...)))
}
