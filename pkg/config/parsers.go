package config

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// ParseSize parses a humanized byte size such as "512KB" or "2 MiB".
// Empty input yields 0 (no limit).
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(n), nil
}

// MaxResourceBytes resolves the hydration content cap in bytes.
func (c *Config) MaxResourceBytes() int64 {
	n, err := ParseSize(c.Hydration.MaxResourceSize)
	if err != nil {
		return 0
	}
	return n
}
