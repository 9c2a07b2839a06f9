// Package copier imports missing files flat into a target directory,
// resolving name conflicts per a configured policy.
package copier

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Mode is the run-scoped conflict policy.
type Mode string

const (
	ModeRename    Mode = "rename"
	ModeSkip      Mode = "skip"
	ModeOverwrite Mode = "overwrite"
)

// ParseMode validates a conflict mode string. An invalid mode is a fatal
// configuration error, caught before any copying starts.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeRename, ModeSkip, ModeOverwrite:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid conflict mode %q (want rename, skip, or overwrite)", s)
	}
}

// Action is the outcome decided for one file.
type Action string

const (
	ActionCopy      Action = "copy"
	ActionRename    Action = "rename"
	ActionSkip      Action = "skip"
	ActionOverwrite Action = "overwrite"
)

// Decision is the resolved outcome for one missing file.
type Decision struct {
	SourcePath string
	DestPath   string
	Action     Action
}

// Resolver decides the destination name and action for each source file
// landing in one flat target directory. It is safe for concurrent use: names
// handed out but not yet on disk are held in a claimed set, so two workers
// can never be assigned the same destination.
type Resolver struct {
	targetDir string
	mode      Mode

	mu      sync.Mutex
	claimed map[string]bool
}

// NewResolver creates a resolver for the target directory.
func NewResolver(targetDir string, mode Mode) *Resolver {
	return &Resolver{
		targetDir: targetDir,
		mode:      mode,
		claimed:   make(map[string]bool),
	}
}

// Resolve decides the outcome for srcPath. Without a conflict the action is
// always a plain copy regardless of mode.
func (r *Resolver) Resolve(srcPath string) Decision {
	name := filepath.Base(srcPath)

	r.mu.Lock()
	defer r.mu.Unlock()

	dest := filepath.Join(r.targetDir, name)
	if !r.taken(dest) {
		r.claimed[dest] = true
		return Decision{SourcePath: srcPath, DestPath: dest, Action: ActionCopy}
	}

	switch r.mode {
	case ModeSkip:
		return Decision{SourcePath: srcPath, DestPath: dest, Action: ActionSkip}
	case ModeOverwrite:
		r.claimed[dest] = true
		return Decision{SourcePath: srcPath, DestPath: dest, Action: ActionOverwrite}
	default: // ModeRename
		renamed := r.nextFreeName(name)
		r.claimed[renamed] = true
		return Decision{SourcePath: srcPath, DestPath: renamed, Action: ActionRename}
	}
}

// taken reports whether a destination is already on disk or claimed by a
// concurrent worker this run.
func (r *Resolver) taken(dest string) bool {
	if r.claimed[dest] {
		return true
	}
	_, err := os.Lstat(dest)
	return err == nil
}

// nextFreeName appends an incrementing numeric disambiguator to the filename
// stem until an unused name is found. Always succeeds.
func (r *Resolver) nextFreeName(name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for n := 1; ; n++ {
		candidate := filepath.Join(r.targetDir, fmt.Sprintf("%s_%d%s", stem, n, ext))
		if !r.taken(candidate) {
			return candidate
		}
	}
}
