package utils

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// NormalizeText trims and case-folds a value for field comparison.
func NormalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// NormalizeValue collapses a value into its canonical comparison form:
// nil pointers and empty interfaces become nil, times become a single
// timestamp format, maps and structs become sorted-key canonical JSON.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(time.RFC3339)
	case string:
		return t
	case json.Number:
		return t.String()
	case bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return t
	default:
		return canonicalJSON(v)
	}
}

// NormalizedEqual reports whether two values are equal after canonical
// normalization. Comparing any value against itself always yields true.
func NormalizedEqual(a, b any) bool {
	na, nb := NormalizeValue(a), NormalizeValue(b)
	if na == nil && nb == nil {
		return true
	}
	if na == nil || nb == nil {
		return false
	}
	return canonicalJSON(na) == canonicalJSON(nb)
}

// canonicalJSON marshals v with every nested object's keys sorted, so two
// structurally equal values always produce identical strings.
func canonicalJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	var sb strings.Builder
	writeCanonical(&sb, decoded)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			sb.Write(kb)
			sb.WriteByte(':')
			writeCanonical(sb, t[k])
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, item)
		}
		sb.WriteByte(']')
	default:
		b, _ := json.Marshal(t)
		sb.Write(b)
	}
}
