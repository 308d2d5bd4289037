package entities

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
)

var ErrInvalidRange = errors.New("invalid range")

const rangeChars = "0123456789,- "

// ParseRangeString parses strings like "1-4,6" into the sorted, de-duplicated
// list of numbers they cover. An empty spec yields no numbers. Every number
// must be within [min, max].
func ParseRangeString(spec string, min, max int) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}
	if i := strings.IndexFunc(spec, func(r rune) bool {
		return !strings.ContainsRune(rangeChars, r)
	}); i >= 0 {
		return nil, fmt.Errorf("%w: unexpected character %q in %q", ErrInvalidRange, spec[i], spec)
	}

	var result []int
	for _, seg := range strings.Split(spec, ",") {
		lo, hi, err := parseSegment(seg)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidRange, spec, err)
		}
		if lo < min || hi > max {
			return nil, fmt.Errorf("%w: %q: %q is outside %d-%d", ErrInvalidRange, spec, strings.TrimSpace(seg), min, max)
		}
		for i := lo; i <= hi; i++ {
			result = append(result, i)
		}
	}

	slices.Sort(result)
	return slices.Compact(result), nil
}

func parseSegment(seg string) (int, int, error) {
	parts := strings.Split(seg, "-")
	switch len(parts) {
	case 1:
		n, err := parseNumber(parts[0])
		return n, n, err
	case 2:
		lo, err := parseNumber(parts[0])
		if err != nil {
			return 0, 0, err
		}
		hi, err := parseNumber(parts[1])
		if err != nil {
			return 0, 0, err
		}
		if lo > hi {
			return 0, 0, fmt.Errorf("reversed range %d-%d", lo, hi)
		}
		return lo, hi, nil
	default:
		return 0, 0, fmt.Errorf("malformed segment %q", seg)
	}
}

func parseNumber(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty segment")
	}
	return strconv.Atoi(s)
}
