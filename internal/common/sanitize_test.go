package common

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeReplacesNonFiniteAtAnyDepth(t *testing.T) {
	in := map[string]any{
		"a": math.NaN(),
		"b": []any{1.5, math.Inf(1), []any{math.Inf(-1), "x", nil, true}},
		"c": map[string]any{"d": map[string]any{"e": math.NaN(), "f": 2.0}},
	}

	got := Sanitize(in)

	want := map[string]any{
		"a": NonFiniteSentinel,
		"b": []any{1.5, NonFiniteSentinel, []any{NonFiniteSentinel, "x", nil, true}},
		"c": map[string]any{"d": map[string]any{"e": NonFiniteSentinel, "f": 2.0}},
	}
	assert.Equal(t, want, got)
}

func TestSanitizeIsIdempotent(t *testing.T) {
	in := []any{math.NaN(), []any{math.Inf(1), 3.0, "NaN"}, map[string]any{"k": math.Inf(-1)}}

	once := Sanitize(in)
	twice := Sanitize(once)

	assert.Equal(t, once, twice)
}

func TestSanitizePassesScalarsThrough(t *testing.T) {
	for _, v := range []any{nil, true, "s", 0.0, -12.25, float32(1.5)} {
		assert.Equal(t, v, Sanitize(v))
	}
}

func TestSanitizeDeepNesting(t *testing.T) {
	var v any = math.NaN()
	for i := 0; i < 5000; i++ {
		v = []any{v}
	}

	out := Sanitize(v)
	for i := 0; i < 5000; i++ {
		arr, ok := out.([]any)
		require.True(t, ok)
		require.Len(t, arr, 1)
		out = arr[0]
	}
	assert.Equal(t, NonFiniteSentinel, out)
}

func TestNormalizeNonFinite(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no tokens", `[[1.0,2.0,3.0]]`, `[[1.0,2.0,3.0]]`},
		{"bare tokens", `[[NaN,Infinity,-Infinity],[1,2,3]]`, `[["NaN","NaN","NaN"],[1,2,3]]`},
		{"inside strings", `["NaN is fine","say \"Infinity\"",NaN]`, `["NaN is fine","say \"Infinity\"","NaN"]`},
		{"negative numbers untouched", `[-1.5,-Infinity]`, `[-1.5,"NaN"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeNonFinite([]byte(tt.in))
			assert.Equal(t, tt.want, string(got))

			var v any
			require.NoError(t, json.Unmarshal(got, &v))
		})
	}
}
