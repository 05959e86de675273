// Package workerpool dispatches independent per-object evaluations
// across a bounded set of worker goroutines and streams results to a
// spill file, per spec.md §4.6.
package workerpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/karlgluck/tagengine/engine"
	"github.com/karlgluck/tagengine/reader"
	"github.com/karlgluck/tagengine/scanner"
	"github.com/karlgluck/tagengine/tagstore"
)

// DefaultWorkers and DefaultBatchSize mirror spec.md §5's defaults.
const (
	DefaultWorkers   = 16
	DefaultBatchSize = 32
)

// Options configures a Pool.
type Options struct {
	Workers           int
	BatchSize         int
	ChannelsLimit     int
	ChannelsThreshold int
	MaxSteps          int
	// Rules restricts evaluation to this rule-id subset (the output of
	// engine.SelectRules); nil evaluates every registered rule.
	Rules []string
	Log   logr.Logger
}

// Pool evaluates a batch of objects against a shared, read-only rule
// registry.
type Pool struct {
	reg  *engine.Registry
	opts Options
}

// New returns a Pool bound to reg.
func New(reg *engine.Registry, opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Log.GetSink() == nil {
		opts.Log = logr.Discard()
	}
	return &Pool{reg: reg, opts: opts}
}

// ObjectError pairs an object path with a fatal, per-object error --
// the spec.md §7 ObjectNotFound case. It never aborts the rest of the
// batch.
type ObjectError struct {
	ObjectPath string
	Err        error
}

func (e *ObjectError) Error() string { return fmt.Sprintf("%s: %v", e.ObjectPath, e.Err) }
func (e *ObjectError) Unwrap() error { return e.Err }

// Run evaluates every object under objectPaths, writing one SpillRecord
// per object to spill as soon as its evaluation completes. It returns
// every evaluator Result (batch order not guaranteed, per spec.md §5)
// plus the ObjectErrors accumulated for paths that could not be
// scanned at all.
func (p *Pool) Run(ctx context.Context, objectPaths []string, spill *SpillWriter) ([]*engine.Result, []*ObjectError) {
	workers := p.opts.Workers
	if workers > len(objectPaths) {
		workers = len(objectPaths)
	}
	if workers < 1 {
		workers = 1
	}
	batchSize := p.opts.BatchSize
	if batchSize > workers {
		batchSize = workers
	}
	if batchSize < 1 {
		batchSize = 1
	}

	var (
		results   []*engine.Result
		objErrs   []*ObjectError
		resultsMu sync.Mutex
		spillMu   sync.Mutex
	)

	rd := reader.New(reader.Options{
		ChannelsLimit:     p.opts.ChannelsLimit,
		ChannelsThreshold: p.opts.ChannelsThreshold,
		Log:               p.opts.Log,
	})

	for start := 0; start < len(objectPaths); start += batchSize {
		end := start + batchSize
		if end > len(objectPaths) {
			end = len(objectPaths)
		}
		batch := objectPaths[start:end]

		var items []scanner.Item
		var validPaths []string
		for _, path := range batch {
			found, err := scanner.Scan(path)
			if err != nil {
				objErrs = append(objErrs, &ObjectError{ObjectPath: path, Err: err})
				continue
			}
			validPaths = append(validPaths, path)
			items = append(items, found...)
		}

		tagged, err := rd.ReadAll(ctx, items)
		if err != nil {
			objErrs = append(objErrs, &ObjectError{ObjectPath: "<batch>", Err: err})
			continue
		}
		// A valid object with zero tag files still needs an evaluator
		// pass -- an unguarded "always" rule can fire on an empty
		// context -- so seed an empty entry for any path ReadAll never
		// saw a tag item for.
		for _, path := range validPaths {
			if _, ok := tagged[path]; !ok {
				tagged[path] = tagstore.New(path)
			}
		}

		var g errgroup.Group
		g.SetLimit(workers)
		ev := engine.NewEvaluator(p.reg, engine.Options{MaxSteps: p.opts.MaxSteps, Log: p.opts.Log, Rules: p.opts.Rules})

		for _, obj := range tagged {
			obj := obj
			g.Go(func() error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				res := ev.Evaluate(ctx, obj.Path, obj.Tags)

				resultsMu.Lock()
				results = append(results, res)
				resultsMu.Unlock()

				if spill != nil {
					spillMu.Lock()
					err := spill.Write(RecordOf(res))
					spillMu.Unlock()
					if err != nil {
						return err
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			objErrs = append(objErrs, &ObjectError{ObjectPath: "<batch>", Err: err})
		}
	}

	return results, objErrs
}
