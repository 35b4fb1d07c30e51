// Package idalloc finds free numeric identifiers inside a range.
package idalloc

import (
	"errors"
	"sort"
)

// ErrExhausted is returned when every identifier in the range is taken.
var ErrExhausted = errors.New("no identifiers available in the configured range")

// Next returns the smallest identifier in [start, end] that is not present
// in existing. Identifiers below start are ignored and duplicates are
// tolerated. An empty set always yields start.
func Next(existing []int, start, end int) (int, error) {
	if len(existing) == 0 {
		return start, nil
	}

	ids := make([]int, len(existing))
	copy(ids, existing)
	sort.Ints(ids)

	i := start
	for _, e := range ids {
		if e < start {
			continue
		}
		if e == i {
			i++
		} else if e > i {
			break
		}
	}

	if i > end {
		return 0, ErrExhausted
	}
	return i, nil
}
