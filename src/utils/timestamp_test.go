package utils

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTimestamp(t *testing.T) {
	t.Run("epoch millis pass through", func(t *testing.T) {
		ts, ok := NormalizeTimestamp(int64(1_704_205_800_000))
		require.True(t, ok)
		assert.Equal(t, int64(1_704_205_800_000), ts)
	})

	t.Run("epoch seconds scale up", func(t *testing.T) {
		ts, ok := NormalizeTimestamp(int64(1_704_205_800))
		require.True(t, ok)
		assert.Equal(t, int64(1_704_205_800_000), ts)
	})

	t.Run("float seconds from JSON decode", func(t *testing.T) {
		ts, ok := NormalizeTimestamp(float64(1_704_205_800))
		require.True(t, ok)
		assert.Equal(t, int64(1_704_205_800_000), ts)
	})

	t.Run("json.Number", func(t *testing.T) {
		ts, ok := NormalizeTimestamp(json.Number("1704205800000"))
		require.True(t, ok)
		assert.Equal(t, int64(1_704_205_800_000), ts)
	})

	t.Run("RFC3339 strings", func(t *testing.T) {
		ts, ok := NormalizeTimestamp("2024-01-02T14:30:00Z")
		require.True(t, ok)
		assert.Equal(t, int64(1_704_205_800_000), ts)
	})

	t.Run("numeric strings", func(t *testing.T) {
		ts, ok := NormalizeTimestamp("1704205800")
		require.True(t, ok)
		assert.Equal(t, int64(1_704_205_800_000), ts)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, ok := NormalizeTimestamp("not a timestamp")
		assert.False(t, ok)
		_, ok = NormalizeTimestamp(nil)
		assert.False(t, ok)
		_, ok = NormalizeTimestamp(struct{}{})
		assert.False(t, ok)
	})
}

func TestCoerceFloat(t *testing.T) {
	cases := []struct {
		name  string
		input interface{}
		want  float64
		ok    bool
	}{
		{"float64", 101.5, 101.5, true},
		{"int", 100, 100.0, true},
		{"json.Number", json.Number("99.25"), 99.25, true},
		{"numeric string", "123.5", 123.5, true},
		{"garbage string", "abc", 0, false},
		{"nil", nil, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := CoerceFloat(tc.input)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestNormalizeSymbol(t *testing.T) {
	sym, ok := NormalizeSymbol("  aapl ")
	require.True(t, ok)
	assert.Equal(t, "AAPL", sym)

	_, ok = NormalizeSymbol("   ")
	assert.False(t, ok)
}
