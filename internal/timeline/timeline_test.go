package timeline

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	require.NoError(t, Validate([]Range{{0, 5}, {5, 10}}, 10))
	require.NoError(t, Validate([]Range{{100, 200}}, 0), "unknown duration skips the upper bound")

	cases := []struct {
		name   string
		ranges []Range
		index  int
	}{
		{"reversed", []Range{{0, 1}, {5, 2}}, 1},
		{"empty", []Range{{3, 3}}, 0},
		{"negative start", []Range{{-1, 2}}, 0},
		{"past duration", []Range{{0, 1}, {2, 3}, {8, 12}}, 2},
		{"infinite end", []Range{{0, math.Inf(1)}}, 0},
		{"not a number", []Range{{math.NaN(), 1}}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.ranges, 10)
			require.ErrorIs(t, err, ErrInvalidRange)

			var rangeErr *RangeError
			require.True(t, errors.As(err, &rangeErr))
			assert.Equal(t, tc.index, rangeErr.Index)
		})
	}
}

func TestValidateRejectsInfiniteEndWithUnknownDuration(t *testing.T) {
	err := Validate([]Range{{0, math.Inf(1)}}, 0)
	require.ErrorIs(t, err, ErrInvalidRange)
	assert.Contains(t, err.Error(), "not finite")
}

func TestSplitAt(t *testing.T) {
	got, err := SplitAt([]float64{30, 10, 10, -4, 60, 99}, 60)
	require.NoError(t, err)
	assert.Equal(t, []Range{{0, 10}, {10, 30}, {30, 60}}, got)

	got, err = SplitAt(nil, 12.5)
	require.NoError(t, err)
	assert.Equal(t, []Range{{0, 12.5}}, got)

	_, err = SplitAt([]float64{1}, 0)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestRemove(t *testing.T) {
	got, err := Remove([]Range{{20, 30}, {0, 5}, {25, 40}}, 60)
	require.NoError(t, err)
	assert.Equal(t, []Range{{5, 20}, {40, 60}}, got)

	got, err = Remove([]Range{{0, 60}}, 60)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Remove([]Range{{10, 20}, {20, 30}}, 30)
	require.NoError(t, err)
	assert.Equal(t, []Range{{0, 10}}, got)

	_, err = Remove([]Range{{50, 70}}, 60)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestParseRange(t *testing.T) {
	cases := map[string]Range{
		"12.5:30":       {12.5, 30},
		" 0:1 ":         {0, 1},
		"1:00-1:30":     {60, 90},
		"1:02:03.5-2:0": {3723.5, 120},
		"5:2":           {5, 2},
	}
	for raw, want := range cases {
		got, err := ParseRange(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	for _, raw := range []string{"", "abc", "1:2:3", "-5:3", "1-x", "0:inf", "0-Infinity", "nan:4"} {
		_, err := ParseRange(raw)
		assert.ErrorIs(t, err, ErrInvalidRange, raw)
	}
}

func TestParseRangesKeepsOrder(t *testing.T) {
	got, err := ParseRanges([]string{"10:20", "0:5"})
	require.NoError(t, err)
	assert.Equal(t, []Range{{10, 20}, {0, 5}}, got)

	_, err = ParseRanges([]string{"0:5", "bad"})
	assert.Error(t, err)
}
