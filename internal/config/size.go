package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSize parses a human-readable size string into bytes.
// Supports: 100, 100B, 100K, 100KB, 100M, 100MB, 100G, 100GB, 100T, 100TB
// (case-insensitive). Uses powers of 1024.
func ParseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	multiplier := int64(1)
	numStr := strings.TrimSuffix(s, "B")

	if len(numStr) > 0 {
		switch numStr[len(numStr)-1:] {
		case "K":
			multiplier = 1024
			numStr = numStr[:len(numStr)-1]
		case "M":
			multiplier = 1024 * 1024
			numStr = numStr[:len(numStr)-1]
		case "G":
			multiplier = 1024 * 1024 * 1024
			numStr = numStr[:len(numStr)-1]
		case "T":
			multiplier = 1024 * 1024 * 1024 * 1024
			numStr = numStr[:len(numStr)-1]
		}
	}

	if numStr == "" {
		return 0, fmt.Errorf("invalid size: %q", s)
	}

	if n, err := strconv.ParseInt(numStr, 10, 64); err == nil {
		return n * multiplier, nil
	}

	f, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size: %q", s)
	}
	return int64(f * float64(multiplier)), nil
}
