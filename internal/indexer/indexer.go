// Package indexer orchestrates a full indexing pass: ask the planner what
// changed, prepare every touched file concurrently (read, classify, hash,
// extract trigrams), then apply the prepared changes inside one store
// transaction so a crash or cancellation mid-pass leaves the index exactly
// as it was before the pass started.
package indexer

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/standardbeagle/source-fast/internal/classify"
	"github.com/standardbeagle/source-fast/internal/config"
	srcerrors "github.com/standardbeagle/source-fast/internal/errors"
	"github.com/standardbeagle/source-fast/internal/logging"
	"github.com/standardbeagle/source-fast/internal/planner"
	"github.com/standardbeagle/source-fast/internal/store"
	"github.com/standardbeagle/source-fast/internal/trigram"
	"github.com/standardbeagle/source-fast/pkg/pathutil"
)

// EventKind marks the stage a progress Event describes.
type EventKind string

const (
	EventScanning EventKind = "scanning"
	EventPlanning EventKind = "planning"
	EventApplied  EventKind = "applied"
	EventFinished EventKind = "finished"
)

// Event is a single progress notification. Run logs the scanning, planning
// and finished stages; every event is also sent to the caller's channel, if
// one was passed to Run, and dropped when that channel is not ready to
// receive.
type Event struct {
	Kind  EventKind
	Path  string
	Mode  planner.Mode
	Total int
	Err   error
}

// Indexer ties together the planner, the store, and the file-classification
// and trigram-extraction logic that turns a file's bytes into what the
// store needs to index it.
type Indexer struct {
	root       string
	cfg        *config.Config
	store      *store.Store
	classifier *classify.Classifier
	logger     *zap.Logger
}

// Open opens (or creates) the store at root. A store whose schema this
// build cannot read is dropped and recreated, per the store's
// Corrupt-recovery contract.
func Open(root string, cfg *config.Config, logger *zap.Logger) (*Indexer, error) {
	storeLogger := logging.Component(logger, "store")

	timeout := time.Duration(cfg.Performance.LockTimeoutMs) * time.Millisecond
	st, err := store.Open(root, timeout, storeLogger)
	if err != nil {
		if srcerrors.IsKind(err, srcerrors.KindCorrupt) {
			if rmErr := store.Remove(root); rmErr != nil {
				return nil, rmErr
			}
			st, err = store.Open(root, timeout, storeLogger)
		}
		if err != nil {
			return nil, err
		}
	}

	return &Indexer{
		root:       root,
		cfg:        cfg,
		store:      st,
		classifier: classify.New(cfg.Index.ProbeSize, cfg.Index.MaxFileSize),
		logger:     logger,
	}, nil
}

// Close releases the underlying store handle.
func (ix *Indexer) Close() error {
	return ix.store.Close()
}

// Store returns the underlying store, so callers that also need to query
// (rather than just index) can build a queryeval.Evaluator over the same
// open handle.
func (ix *Indexer) Store() *store.Store {
	return ix.store
}

// preparedChange is the result of reading and analyzing one file, computed
// concurrently across workers, ready to be applied serially.
type preparedChange struct {
	path     string
	delete   bool
	mtime    int64
	size     int64
	hash     uint64
	trigrams []uint32
}

// Run executes one full indexing pass: plan, prepare every change
// concurrently, then apply them all inside a single transaction. events
// may be nil if the caller doesn't want progress notifications.
func (ix *Indexer) Run(ctx context.Context, events chan<- Event) error {
	emit(events, Event{Kind: EventScanning})
	if ix.logger != nil {
		ix.logger.Info("scanning")
	}

	p := planner.New(ix.cfg, ix.store, ix.root, logging.Component(ix.logger, "planner"))
	plan, err := p.Plan(ctx)
	if err != nil {
		return err
	}

	emit(events, Event{Kind: EventPlanning, Mode: plan.Mode, Total: len(plan.Actions)})
	if ix.logger != nil {
		ix.logger.Info("planned", zap.String("mode", plan.Mode.String()), zap.Int("actions", len(plan.Actions)))
	}

	prepared, prepareErrs := ix.prepareAll(ctx, plan.Actions)
	if prepareErrs != nil && ix.logger != nil {
		ix.logger.Warn("pass completed with per-file errors", zap.Int("count", len(prepareErrs.Errors)), zap.Error(prepareErrs))
	}

	txn, err := ix.store.Begin(ctx)
	if err != nil {
		return err
	}

	for i, pc := range prepared {
		if err := ctx.Err(); err != nil {
			_ = txn.Abort()
			return err
		}
		if pc == nil {
			continue
		}
		action := plan.Actions[i]
		if pc.delete {
			if err := txn.DeleteFile(pc.path); err != nil {
				_ = txn.Abort()
				return err
			}
		} else {
			if _, err := txn.UpsertFile(pc.path, pc.mtime, pc.size, pc.hash, pc.trigrams); err != nil {
				_ = txn.Abort()
				return err
			}
		}
		emit(events, Event{Kind: EventApplied, Path: action.Path})
	}

	if plan.NewHead != "" {
		if err := txn.SetMeta(store.MetaVCSHead, plan.NewHead); err != nil {
			_ = txn.Abort()
			return err
		}
	}
	if err := txn.SetMeta(store.MetaLastIndexedAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
		_ = txn.Abort()
		return err
	}

	if err := txn.Commit(); err != nil {
		return err
	}

	var finishedErr error
	if prepareErrs != nil {
		finishedErr = prepareErrs
	}
	emit(events, Event{Kind: EventFinished, Mode: plan.Mode, Total: len(plan.Actions), Err: finishedErr})
	if ix.logger != nil {
		ix.logger.Info("finished", zap.String("mode", plan.Mode.String()))
	}
	return nil
}

// prepareAll computes a preparedChange for every action concurrently,
// bounded by the configured worker count. A single file's read/classify
// error leaves that slot nil rather than failing the whole pass, since one
// unreadable file shouldn't block indexing the rest; every such error is
// still collected and returned as a MultiError so the caller can log or
// surface the full set instead of losing them to a per-file log line.
func (ix *Indexer) prepareAll(ctx context.Context, actions []planner.Action) ([]*preparedChange, *srcerrors.MultiError) {
	results := make([]*preparedChange, len(actions))

	workers := ix.cfg.Performance.Workers
	if workers <= 0 {
		workers = 1
	}

	var mu sync.Mutex
	var prepareErrs []error

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(workers))

	for i, action := range actions {
		i, action := i, action
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)

			pc, err := ix.prepare(action)
			if err != nil {
				mu.Lock()
				prepareErrs = append(prepareErrs, err)
				mu.Unlock()
				if ix.logger != nil {
					ix.logger.Warn("skipping file", zap.String("path", action.Path), zap.Error(err))
				}
				return nil
			}
			results[i] = pc
			return nil
		})
	}
	_ = g.Wait()
	return results, srcerrors.NewMultiError(prepareErrs)
}

func (ix *Indexer) prepare(action planner.Action) (*preparedChange, error) {
	if action.Kind == planner.ActionDelete {
		return &preparedChange{path: action.Path, delete: true}, nil
	}

	abs := pathutil.ToAbsolute(action.Path, ix.root)
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			// Raced with a deletion between planning and preparing; treat
			// it the same as an explicit delete.
			return &preparedChange{path: action.Path, delete: true}, nil
		}
		return nil, srcerrors.New(srcerrors.KindIOError, "stat", err).WithPath(action.Path)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, srcerrors.New(srcerrors.KindIOError, "read", err).WithPath(action.Path)
	}

	probe := data
	if int64(len(probe)) > ix.cfg.Index.ProbeSize && ix.cfg.Index.ProbeSize > 0 {
		probe = probe[:ix.cfg.Index.ProbeSize]
	}
	if ix.classifier.Classify(info.Size(), probe) == classify.Binary {
		return &preparedChange{path: action.Path, delete: true}, nil
	}

	existing, found, err := ix.store.FileByPath(action.Path)
	if err != nil {
		return nil, err
	}
	hash := xxhash.Sum64(data)
	if found && existing.ContentHash == hash && existing.Size == info.Size() {
		// Unchanged content; nothing to re-apply.
		return nil, nil
	}

	return &preparedChange{
		path:     action.Path,
		mtime:    info.ModTime().UnixNano(),
		size:     info.Size(),
		hash:     hash,
		trigrams: trigram.ExtractSorted(data),
	}, nil
}

func emit(events chan<- Event, e Event) {
	if events == nil {
		return
	}
	select {
	case events <- e:
	default:
	}
}
