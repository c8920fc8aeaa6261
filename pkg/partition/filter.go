package partition

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// ErrInvalidPattern is returned when a partition filter cannot be compiled.
var ErrInvalidPattern = errors.New("invalid partition pattern")

// Filter returns the partitions matching at least one glob pattern, preserving
// input order. An empty pattern list returns parts unchanged.
//
// Patterns use doublestar syntax, e.g. "00a*", "{0000,0001}", "f[0-7]??".
func Filter(parts []string, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return parts, nil
	}

	cleaned := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, p)
		}
		cleaned = append(cleaned, p)
	}
	if len(cleaned) == 0 {
		return parts, nil
	}

	out := make([]string, 0)
	for _, part := range parts {
		for _, p := range cleaned {
			// Patterns were validated above, so Match cannot fail.
			if ok, _ := doublestar.Match(p, part); ok {
				out = append(out, part)
				break
			}
		}
	}
	return out, nil
}

// ListFile is the on-disk shape of a partition list.
type ListFile struct {
	Partitions []string `yaml:"partitions"`
}

// LoadList reads a YAML partition list written by SaveList.
func LoadList(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read partition list %s: %w", path, err)
	}

	var lf ListFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parse partition list %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(lf.Partitions))
	out := make([]string, 0, len(lf.Partitions))
	for _, p := range lf.Partitions {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// SaveList writes parts as a YAML partition list.
func SaveList(path string, parts []string) error {
	if parts == nil {
		parts = []string{}
	}
	data, err := yaml.Marshal(&ListFile{Partitions: parts})
	if err != nil {
		return fmt.Errorf("encode partition list: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write partition list %s: %w", path, err)
	}
	return nil
}

// Restrict keeps only the partitions of parts that also appear in allowed,
// in the order of parts. It is used to apply a partition list file on top of
// a generated scheme so that order stays deterministic.
func Restrict(parts []string, allowed []string) []string {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	out := make([]string, 0, len(allowed))
	for _, p := range parts {
		if _, ok := set[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
