package sig

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/zeebo/blake3"
)

// Digester produces a full-content blake3 digest for the file at path.
// All implementations must produce identical output for identical input;
// results from different backends are compared against each other across
// runs and across trees.
type Digester interface {
	Name() string
	Sum(path string, size int64) (string, error)
}

// CPUDigester streams the file through blake3 with a fixed read buffer.
type CPUDigester struct{}

func (CPUDigester) Name() string { return "cpu" }

func (CPUDigester) Sum(path string, _ int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	buf := make([]byte, 1024*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SelectorConfig is the run-scoped policy for full-hash backend choice.
type SelectorConfig struct {
	AccelEnabled   bool
	AccelDevice    int
	AccelThreshold int64 // files at least this large go to the accelerated path
}

// Selector picks a Digester per file for the full-hash stage and downgrades
// to the CPU path when the accelerated backend is unavailable or fails.
type Selector struct {
	cfg   SelectorConfig
	cpu   Digester
	accel Digester

	warnOnce sync.Once
}

// NewSelector builds a selector. When acceleration is requested but the
// backend cannot initialize, the selector logs a degraded-mode notice and
// runs CPU-only; a missing accelerator never aborts a run.
func NewSelector(cfg SelectorConfig) *Selector {
	s := &Selector{cfg: cfg, cpu: CPUDigester{}}

	if cfg.AccelEnabled {
		accel, err := NewAccelDigester(cfg.AccelDevice)
		if err != nil {
			slog.Warn("accelerated hashing unavailable, using cpu only", "error", err)
		} else {
			s.accel = accel
			slog.Info("accelerated hashing enabled",
				"backend", accel.Name(),
				"device", cfg.AccelDevice,
				"threshold", cfg.AccelThreshold,
			)
		}
	}

	return s
}

// AccelActive reports whether the accelerated backend initialized.
func (s *Selector) AccelActive() bool { return s.accel != nil }

// pick returns the backend for a file of the given size.
func (s *Selector) pick(size int64) Digester {
	if s.accel != nil && size >= s.cfg.AccelThreshold {
		return s.accel
	}
	return s.cpu
}

// FullHash computes the full-content digest for path using the selected
// backend. An accelerated-path failure falls back to CPU for that file and
// the run continues.
func (s *Selector) FullHash(path string, size int64) (string, error) {
	backend := s.pick(size)
	digest, err := backend.Sum(path, size)
	if err != nil && backend != s.cpu {
		s.warnOnce.Do(func() {
			slog.Warn("accelerated hashing failed, falling back to cpu",
				"path", path, "error", err)
		})
		return s.cpu.Sum(path, size)
	}
	return digest, err
}
