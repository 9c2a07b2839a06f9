//go:build !linux && !darwin

package sig

import "errors"

// NewAccelDigester is unsupported on this platform; callers fall back to the
// CPU path.
func NewAccelDigester(int) (Digester, error) {
	return nil, errors.New("accelerated hashing not supported on this platform")
}
