// Package partition generates the fixed set of key-space prefixes that a run
// enumerates.
//
// A Scheme describes fixed-width prefixes over a bounded alphabet. The set of
// all prefixes for a scheme covers the key space exactly once: every key whose
// first Width characters come from Alphabet falls under exactly one partition.
package partition

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// HexAlphabet is the lowercase hexadecimal alphabet.
const HexAlphabet = "0123456789abcdef"

// Hex4 is the reference scheme: 65536 partitions "0000".."ffff".
var Hex4 = Scheme{Alphabet: HexAlphabet, Width: 4}

// MaxPartitions bounds the size of a generated set.
const MaxPartitions = 1 << 24

// Errors returned by Scheme validation.
var (
	ErrEmptyAlphabet     = errors.New("alphabet is empty")
	ErrDuplicateSymbol   = errors.New("alphabet contains duplicate symbols")
	ErrInvalidWidth      = errors.New("width must be at least 1")
	ErrTooManyPartitions = errors.New("scheme produces too many partitions")
)

// Scheme describes a fixed-width prefix layout.
type Scheme struct {
	// Alphabet lists the symbols in ascending order. Order determines the
	// generated order.
	Alphabet string

	// Width is the number of symbols per partition.
	Width int
}

// Validate checks that the scheme can be generated.
func (s Scheme) Validate() error {
	symbols := []rune(s.Alphabet)
	if len(symbols) == 0 {
		return ErrEmptyAlphabet
	}
	seen := make(map[rune]struct{}, len(symbols))
	for _, r := range symbols {
		if _, ok := seen[r]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateSymbol, r)
		}
		seen[r] = struct{}{}
	}
	if s.Width < 1 {
		return ErrInvalidWidth
	}
	if n := math.Pow(float64(len(symbols)), float64(s.Width)); n > MaxPartitions {
		return fmt.Errorf("%w: %.0f > %d", ErrTooManyPartitions, n, MaxPartitions)
	}
	return nil
}

// Count returns the number of partitions the scheme produces.
func (s Scheme) Count() int {
	n := 1
	base := len([]rune(s.Alphabet))
	for i := 0; i < s.Width; i++ {
		n *= base
	}
	return n
}

// Generate returns every partition of the scheme in odometer order: the
// last position varies fastest. For Hex4 this is numeric order 0..65535.
func Generate(s Scheme) ([]string, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	symbols := []rune(s.Alphabet)
	base := len(symbols)
	out := make([]string, 0, s.Count())
	digits := make([]int, s.Width)

	var b strings.Builder
	for {
		b.Reset()
		for _, d := range digits {
			b.WriteRune(symbols[d])
		}
		out = append(out, b.String())

		// Increment the odometer; stop after wrapping the most significant digit.
		i := s.Width - 1
		for i >= 0 {
			digits[i]++
			if digits[i] < base {
				break
			}
			digits[i] = 0
			i--
		}
		if i < 0 {
			return out, nil
		}
	}
}

// MustGenerate is like Generate but panics on an invalid scheme.
func MustGenerate(s Scheme) []string {
	out, err := Generate(s)
	if err != nil {
		panic(err)
	}
	return out
}
