package analyze

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shelfgap/shelfgap/internal/scan"
	"github.com/shelfgap/shelfgap/internal/sig"
	"github.com/shelfgap/shelfgap/internal/sigcache"
	"github.com/shelfgap/shelfgap/internal/stats"
)

// resolver widens library peer groups on demand. Each group is deepened at
// most once per run, no matter how many datalake workers collide with it, so
// concurrent classification never hashes a library file twice.
type resolver struct {
	idx      *sig.Index
	selector *sig.Selector
	cache    *sigcache.Cache // may be nil
	stats    *stats.Collector

	partialOnce sync.Map // size key -> *groupOnce
	fullOnce    sync.Map // partial key -> *groupOnce
}

type groupOnce struct {
	once sync.Once
	err  error
}

// ensurePartials computes the partial hash for every library record in the
// size group and indexes them under their (size, partial) keys. A read
// failure on one library file drops only that file from matching.
func (r *resolver) ensurePartials(size int64) error {
	key := sig.SizeKey(size)
	v, _ := r.partialOnce.LoadOrStore(key, &groupOnce{})
	g := v.(*groupOnce)
	g.once.Do(func() {
		var errs []error
		for _, rec := range r.idx.Get(key) {
			partial, err := r.partialFor(rec)
			if err != nil {
				errs = append(errs, fmt.Errorf("partial %s: %w", rec.Path, err))
				continue
			}
			r.idx.Insert(sig.PartialKey(size, partial), rec)
		}
		g.err = errors.Join(errs...)
	})
	return g.err
}

// ensureFulls computes the full hash for every library record in the
// (size, partial) group and indexes them under their full keys.
func (r *resolver) ensureFulls(size int64, partial string) error {
	key := sig.PartialKey(size, partial)
	v, _ := r.fullOnce.LoadOrStore(key, &groupOnce{})
	g := v.(*groupOnce)
	g.once.Do(func() {
		var errs []error
		for _, rec := range r.idx.Get(key) {
			full, err := r.fullFor(rec, partial)
			if err != nil {
				errs = append(errs, fmt.Errorf("full %s: %w", rec.Path, err))
				continue
			}
			r.idx.Insert(sig.FullKey(size, partial, full), rec)
		}
		g.err = errors.Join(errs...)
	})
	return g.err
}

// partialFor returns the partial hash for a library record, consulting the
// cache first.
func (r *resolver) partialFor(rec *scan.FileRecord) (string, error) {
	mtime := rec.ModTime.UnixNano()
	if r.cache != nil {
		if p, _, ok := r.cache.Get(rec.Path, rec.Size, mtime); ok && p != "" {
			r.stats.AddCacheHits(1)
			return p, nil
		}
	}

	partial, err := sig.PartialHash(rec.Path)
	if err != nil {
		return "", err
	}
	r.stats.AddPartialHashed(1)

	if r.cache != nil {
		// Cache failures are not file failures.
		_ = r.cache.Put(rec.Path, rec.Size, mtime, partial, "")
	}
	return partial, nil
}

func (r *resolver) fullFor(rec *scan.FileRecord, partial string) (string, error) {
	mtime := rec.ModTime.UnixNano()
	if r.cache != nil {
		if _, f, ok := r.cache.Get(rec.Path, rec.Size, mtime); ok && f != "" {
			r.stats.AddCacheHits(1)
			return f, nil
		}
	}

	full, err := r.selector.FullHash(rec.Path, rec.Size)
	if err != nil {
		return "", err
	}
	r.stats.AddFullHashed(1)

	if r.cache != nil {
		_ = r.cache.Put(rec.Path, rec.Size, mtime, partial, full)
	}
	return full, nil
}
