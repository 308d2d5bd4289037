package entities

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRangeString(t *testing.T) {
	for spec, expected := range map[string][]int{
		"1":             {1},
		"1-4,6":         {1, 2, 3, 4, 6},
		" 6, 1-3 ":      {1, 2, 3, 6},
		"1-3,2-4":       {1, 2, 3, 4},
		"8,8,8":         {8},
		"1 - 2 , 64":    {1, 2, 64},
		"10-12,1,30-30": {1, 10, 11, 12, 30},
	} {
		t.Run(spec, func(t *testing.T) {
			result, err := ParseRangeString(spec, 1, 64)
			require.NoError(t, err)
			require.Equal(t, expected, result)
		})
	}
}

func TestParseRangeStringEmpty(t *testing.T) {
	for _, spec := range []string{"", "   "} {
		result, err := ParseRangeString(spec, 1, 64)
		require.NoError(t, err)
		require.Empty(t, result)
	}
}

func TestParseRangeStringInvalid(t *testing.T) {
	for _, spec := range []string{
		"a",
		"1;2",
		"1,,2",
		"1-",
		"-1",
		"1-2-3",
		"4-1",
		"0",
		"65",
		"60-70",
		",",
	} {
		t.Run(spec, func(t *testing.T) {
			_, err := ParseRangeString(spec, 1, 64)
			require.ErrorIs(t, err, ErrInvalidRange)
		})
	}
}
