package index

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"semdex/internal/embedder"
	"semdex/internal/store"
	"semdex/internal/walker"
)

// IndexProject walks root once and indexes every eligible file. A failure on
// one file is logged and recorded, and the walk moves on; only a backend
// configuration error aborts the run, so persistent unavailability surfaces
// as one actionable message instead of one error per file. The returned
// count is the number of files successfully processed.
func (ix *Indexer) IndexProject(ctx context.Context, root string) (int, []FileFailure, error) {
	if err := ix.checkModel(); err != nil {
		return 0, nil, err
	}

	files, walkErrs := walker.Walk(root, ix.policy)

	var (
		indexed  atomic.Int64
		failMu   sync.Mutex
		failures []FileFailure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers())

	for fi := range files {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil // a fatal error already stopped the run
			}
			unlock := ix.locks.lock(fi.RelPath)
			err := ix.indexLocked(gctx, root, fi.RelPath)
			unlock()

			if err != nil {
				if errors.Is(err, embedder.ErrBackendUnavailable) {
					return err // fatal: stop the walk, surface once
				}
				log.Printf("index %s: %v", fi.RelPath, err)
				failMu.Lock()
				failures = append(failures, FileFailure{Path: fi.RelPath, Err: err})
				failMu.Unlock()
				return nil
			}

			n := indexed.Add(1)
			if ix.Progress != nil {
				ix.Progress(int(n), fi.RelPath)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(indexed.Load()), failures, err
	}
	if err := <-walkErrs; err != nil {
		return int(indexed.Load()), failures, err
	}

	if err := ix.store.SetMeta(store.MetaKeyModel, ix.emb.Model()); err != nil {
		return int(indexed.Load()), failures, err
	}
	return int(indexed.Load()), failures, nil
}

// checkModel wipes the project's rows when the embedding model changed since
// the last run: vectors from different models are not comparable.
func (ix *Indexer) checkModel() error {
	last, err := ix.store.GetMeta(store.MetaKeyModel)
	if err != nil {
		return err
	}
	if last != "" && last != ix.emb.Model() {
		log.Printf("embedding model changed from %q to %q, clearing index", last, ix.emb.Model())
		return ix.store.Clear()
	}
	return nil
}
