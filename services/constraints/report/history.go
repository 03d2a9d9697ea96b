// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrRunNotFound is returned when a run id is not in the history.
var ErrRunNotFound = errors.New("run not found")

// Key layout:
//
//	run/<started-at unix nanos, 20 digits>/<run id>  -> Document JSON
//	id/<run id>                                      -> run/... key
const (
	runPrefix = "run/"
	idPrefix  = "id/"
)

// HistoryConfig configures a HistoryStore.
type HistoryConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps the history in memory only.
	InMemory bool

	// Logger receives badger's internal messages. Nil disables them.
	Logger *slog.Logger
}

// RunSummary is one row of the history listing.
type RunSummary struct {
	RunID       string    `json:"runId" yaml:"runId"`
	StartedAt   time.Time `json:"startedAt" yaml:"startedAt"`
	Total       int       `json:"total" yaml:"total"`
	Successful  int       `json:"successful" yaml:"successful"`
	Failed      int       `json:"failed" yaml:"failed"`
	SuccessRate float64   `json:"successRate" yaml:"successRate"`
}

// HistoryStore persists run reports in BadgerDB.
//
// Thread Safety: Safe for concurrent use.
type HistoryStore struct {
	db       *badger.DB
	inMemory bool
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenHistory opens (creating if needed) the run history database.
//
// Description:
//
//	Opens BadgerDB at cfg.Path, or in memory. Writes are synchronous for
//	on-disk stores so that a report survives the process exiting right
//	after the run.
//
// Outputs:
//   - *HistoryStore: The store. Caller must call Close().
//   - error: Non-nil if the path is missing or the database cannot open.
func OpenHistory(cfg HistoryConfig) (*HistoryStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent history")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create history directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	return &HistoryStore{db: db, inMemory: cfg.InMemory}, nil
}

// OpenHistoryInMemory opens an in-memory store. Data is lost on Close.
func OpenHistoryInMemory() (*HistoryStore, error) {
	return OpenHistory(HistoryConfig{InMemory: true})
}

// Close closes the database.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

func runKey(doc Document) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", runPrefix, doc.StartedAt.UnixNano(), doc.RunID))
}

// Save stores the report. Saving the same run again replaces it.
func (s *HistoryStore) Save(ctx context.Context, r *Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := r.Document()
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", doc.RunID, err)
	}
	key := runKey(doc)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set([]byte(idPrefix+doc.RunID), key)
	})
	if err != nil {
		return fmt.Errorf("save run %s: %w", doc.RunID, err)
	}
	return nil
}

// Get loads one run by id.
func (s *HistoryStore) Get(ctx context.Context, runID string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc Document
	err := s.db.View(func(txn *badger.Txn) error {
		idItem, err := txn.Get([]byte(idPrefix + runID))
		if err != nil {
			return err
		}
		key, err := idItem.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	return &doc, nil
}

// List returns up to limit runs, newest first. A limit <= 0 lists all.
func (s *HistoryStore) List(ctx context.Context, limit int) ([]RunSummary, error) {
	var out []RunSummary
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(runPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(runPrefix + "\xff")); it.ValidForPrefix([]byte(runPrefix)); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var doc Document
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &doc)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, RunSummary{
				RunID:       doc.RunID,
				StartedAt:   doc.StartedAt,
				Total:       doc.Statistics.Total,
				Successful:  doc.Statistics.Successful,
				Failed:      doc.Statistics.Failed,
				SuccessRate: doc.Statistics.SuccessRate,
			})
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// Prune deletes all but the newest keep runs and returns how many were
// removed.
func (s *HistoryStore) Prune(ctx context.Context, keep int) (int, error) {
	type victim struct {
		key   []byte
		runID string
	}
	var victims []victim
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		opts.Prefix = []byte(runPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		seen := 0
		for it.Seek([]byte(runPrefix + "\xff")); it.ValidForPrefix([]byte(runPrefix)); it.Next() {
			seen++
			if seen <= keep {
				continue
			}
			key := it.Item().KeyCopy(nil)
			// run/<20 digits>/<id>
			victims = append(victims, victim{key: key, runID: string(key[len(runPrefix)+21:])})
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan runs: %w", err)
	}

	for _, v := range victims {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			if err := txn.Delete(v.key); err != nil {
				return err
			}
			return txn.Delete([]byte(idPrefix + v.runID))
		})
		if err != nil {
			return 0, fmt.Errorf("delete run %s: %w", v.runID, err)
		}
	}

	if len(victims) > 0 && !s.inMemory {
		// ErrNoRewrite means nothing was worth collecting.
		err := s.db.RunValueLogGC(0.5)
		if err != nil && !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
			return len(victims), fmt.Errorf("value log gc: %w", err)
		}
	}
	return len(victims), nil
}
