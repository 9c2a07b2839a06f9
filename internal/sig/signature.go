package sig

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// PartialSize is the prefix length hashed for the partial layer.
const PartialSize = 1024

// Depth is how far a signature has been resolved.
type Depth int

const (
	DepthSize Depth = iota + 1
	DepthPartial
	DepthFull
)

// Signature is a lazily-widened content identity. Size is always known;
// Partial and Full are hex blake3 digests computed only when a shallower
// layer collides. An empty string means the layer has not been computed.
type Signature struct {
	Size    int64
	Partial string
	Full    string
}

// Depth returns the deepest computed layer.
func (s Signature) Depth() Depth {
	switch {
	case s.Full != "":
		return DepthFull
	case s.Partial != "":
		return DepthPartial
	default:
		return DepthSize
	}
}

// SizeKey returns the index key for the size layer.
func SizeKey(size int64) string {
	return fmt.Sprintf("s:%d", size)
}

// PartialKey returns the index key for the (size, partial) layer.
func PartialKey(size int64, partial string) string {
	return fmt.Sprintf("s:%d|p:%s", size, partial)
}

// FullKey returns the index key for the (size, partial, full) layer.
func FullKey(size int64, partial, full string) string {
	return fmt.Sprintf("s:%d|p:%s|f:%s", size, partial, full)
}

// SizeKey returns the index key for the size layer.
func (s Signature) SizeKey() string {
	return SizeKey(s.Size)
}

// PartialKey returns the index key for the (size, partial) layer.
// Panics if the partial layer has not been computed; keys at mixed depths
// must never be compared.
func (s Signature) PartialKey() string {
	if s.Partial == "" {
		panic("sig: partial key requested before partial hash computed")
	}
	return PartialKey(s.Size, s.Partial)
}

// FullKey returns the index key for the (size, partial, full) layer.
func (s Signature) FullKey() string {
	if s.Full == "" {
		panic("sig: full key requested before full hash computed")
	}
	return FullKey(s.Size, s.Partial, s.Full)
}

// PartialHash hashes the first PartialSize bytes of the file at path,
// returning the hex-encoded blake3 digest. Files shorter than PartialSize
// hash whatever is there, including nothing at all for zero-byte files.
func PartialHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, PartialSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("read prefix %s: %w", path, err)
	}

	h := blake3.New()
	h.Write(buf[:n])
	return hex.EncodeToString(h.Sum(nil)), nil
}
