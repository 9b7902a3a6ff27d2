package common

import (
	"bytes"
	"math"
)

// NonFiniteSentinel replaces NaN and ±Inf wherever they occur in a decoded payload.
const NonFiniteSentinel = "NaN"

// Sanitize returns a copy of v where every non-finite number is replaced by
// NonFiniteSentinel. Sequences and string-keyed mappings are walked recursively;
// every other value is returned unchanged.
func Sanitize(v any) any {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return NonFiniteSentinel
		}
		return t
	case float32:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return NonFiniteSentinel
		}
		return t
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Sanitize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = Sanitize(item)
		}
		return out
	default:
		return v
	}
}

var nonFiniteLiterals = [][]byte{
	[]byte("-Infinity"),
	[]byte("Infinity"),
	[]byte("NaN"),
}

// NormalizeNonFinite rewrites bare NaN, Infinity and -Infinity tokens (which
// encoding/json rejects) into the quoted sentinel. Tokens inside string
// literals are left alone. raw is returned as-is when nothing matched.
func NormalizeNonFinite(raw []byte) []byte {
	var (
		out      *bytes.Buffer
		inString bool
		escaped  bool
		last     int
	)

	quoted := []byte(`"` + NonFiniteSentinel + `"`)

	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			continue
		}
		if c != '-' && c != 'I' && c != 'N' {
			continue
		}
		for _, lit := range nonFiniteLiterals {
			if !bytes.HasPrefix(raw[i:], lit) {
				continue
			}
			if out == nil {
				out = bytes.NewBuffer(make([]byte, 0, len(raw)+8))
			}
			out.Write(raw[last:i])
			out.Write(quoted)
			i += len(lit) - 1
			last = i + 1
			break
		}
	}

	if out == nil {
		return raw
	}
	out.Write(raw[last:])
	return out.Bytes()
}
