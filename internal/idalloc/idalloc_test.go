package idalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	tests := []struct {
		name     string
		existing []int
		start    int
		end      int
		want     int
	}{
		{"empty set", nil, 500, 65535, 500},
		{"contiguous block", []int{500, 501, 502}, 500, 65535, 503},
		{"gap", []int{500, 502}, 500, 65535, 501},
		{"gap after start", []int{5, 7}, 5, 10, 6},
		{"unsorted", []int{502, 500, 501, 504}, 500, 65535, 503},
		{"below start ignored", []int{0, 1, 100}, 500, 65535, 500},
		{"below start then block", []int{10, 500, 501}, 500, 65535, 502},
		{"first free after start", []int{501, 502}, 500, 65535, 500},
		{"duplicates", []int{500, 500, 501}, 500, 65535, 502},
		{"last slot", []int{500, 501}, 500, 502, 502},
		{"above end ignored", []int{500, 70000}, 500, 65535, 501},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.existing, tt.start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextExhausted(t *testing.T) {
	_, err := Next([]int{500, 501, 502}, 500, 502)
	assert.ErrorIs(t, err, ErrExhausted)

	_, err = Next([]int{5, 6, 7}, 5, 6)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestNextProperties(t *testing.T) {
	sets := [][]int{
		{},
		{500},
		{500, 501, 503, 504, 510},
		{1, 2, 3, 600, 601},
		{499, 500, 500, 501, 502, 505},
	}

	for _, s := range sets {
		got, err := Next(s, 500, 1000)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, got, 500)
		assert.LessOrEqual(t, got, 1000)
		assert.NotContains(t, s, got)

		// Nothing smaller in range is free
		for candidate := 500; candidate < got; candidate++ {
			assert.Contains(t, s, candidate)
		}
	}
}
