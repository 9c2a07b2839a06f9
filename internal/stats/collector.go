package stats

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Collector tracks run statistics using lock-free atomic counters. Shared by
// analysis and copy phases; each phase touches only its own counters.
type Collector struct {
	filesScanned   atomic.Int64
	filesSkipped   atomic.Int64 // resolved by a prior checkpoint
	missing        atomic.Int64
	present        atomic.Int64
	errored        atomic.Int64
	partialHashed  atomic.Int64
	fullHashed     atomic.Int64
	cacheHits      atomic.Int64
	lakeDuplicates atomic.Int64

	filesCopied  atomic.Int64
	filesRenamed atomic.Int64
	copySkipped  atomic.Int64
	overwritten  atomic.Int64
	copyFailed   atomic.Int64
	bytesCopied  atomic.Int64

	startTime time.Time
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

func (c *Collector) AddFilesScanned(n int64)   { c.filesScanned.Add(n) }
func (c *Collector) AddFilesSkipped(n int64)   { c.filesSkipped.Add(n) }
func (c *Collector) AddMissing(n int64)        { c.missing.Add(n) }
func (c *Collector) AddPresent(n int64)        { c.present.Add(n) }
func (c *Collector) AddErrored(n int64)        { c.errored.Add(n) }
func (c *Collector) AddPartialHashed(n int64)  { c.partialHashed.Add(n) }
func (c *Collector) AddFullHashed(n int64)     { c.fullHashed.Add(n) }
func (c *Collector) AddCacheHits(n int64)      { c.cacheHits.Add(n) }
func (c *Collector) AddLakeDuplicates(n int64) { c.lakeDuplicates.Add(n) }

func (c *Collector) AddFilesCopied(n int64)  { c.filesCopied.Add(n) }
func (c *Collector) AddFilesRenamed(n int64) { c.filesRenamed.Add(n) }
func (c *Collector) AddCopySkipped(n int64)  { c.copySkipped.Add(n) }
func (c *Collector) AddOverwritten(n int64)  { c.overwritten.Add(n) }
func (c *Collector) AddCopyFailed(n int64)   { c.copyFailed.Add(n) }
func (c *Collector) AddBytesCopied(n int64)  { c.bytesCopied.Add(n) }

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesScanned   int64
	FilesSkipped   int64
	Missing        int64
	Present        int64
	Errored        int64
	PartialHashed  int64
	FullHashed     int64
	CacheHits      int64
	LakeDuplicates int64

	FilesCopied  int64
	FilesRenamed int64
	CopySkipped  int64
	Overwritten  int64
	CopyFailed   int64
	BytesCopied  int64

	Elapsed time.Duration
}

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		FilesScanned:   c.filesScanned.Load(),
		FilesSkipped:   c.filesSkipped.Load(),
		Missing:        c.missing.Load(),
		Present:        c.present.Load(),
		Errored:        c.errored.Load(),
		PartialHashed:  c.partialHashed.Load(),
		FullHashed:     c.fullHashed.Load(),
		CacheHits:      c.cacheHits.Load(),
		LakeDuplicates: c.lakeDuplicates.Load(),
		FilesCopied:    c.filesCopied.Load(),
		FilesRenamed:   c.filesRenamed.Load(),
		CopySkipped:    c.copySkipped.Load(),
		Overwritten:    c.overwritten.Load(),
		CopyFailed:     c.copyFailed.Load(),
		BytesCopied:    c.bytesCopied.Load(),
		Elapsed:        time.Since(c.startTime),
	}
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"scanned=%d skipped=%d missing=%d present=%d errored=%d partial=%d full=%d",
		s.FilesScanned, s.FilesSkipped, s.Missing, s.Present, s.Errored,
		s.PartialHashed, s.FullHashed,
	)
}
