// Package extract searches loosely-structured provider responses for
// known field names. Provider deployments disagree on response shape, so
// callers hand in a decoded JSON document plus the candidate field names
// they would accept, and extraction walks the whole tree.
package extract

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// FindNumber searches doc depth-first for the first candidate key holding
// a numeric value. At each object the candidate keys are probed in the
// order given before descending; a key whose value is not numeric (and not
// a numeric string) is skipped and the search continues. Objects descend
// in sorted key order so the result does not depend on map iteration.
func FindNumber(doc any, keys []string) (float64, bool) {
	switch node := doc.(type) {
	case map[string]any:
		for _, k := range keys {
			if v, ok := node[k]; ok {
				if n, numeric := asNumber(v); numeric {
					return n, true
				}
			}
		}
		for _, k := range sortedKeys(node) {
			if n, ok := FindNumber(node[k], keys); ok {
				return n, true
			}
		}
	case []any:
		for _, item := range node {
			if n, ok := FindNumber(item, keys); ok {
				return n, true
			}
		}
	}
	return 0, false
}

// CountOccurrences walks the entire document and sums a contribution for
// every candidate key it finds: the length of an array value, the numeric
// value of a number (or numeric string), or 1 for any other non-null
// value. There is no early exit; keys nested inside matched values still
// contribute.
func CountOccurrences(doc any, keys []string) int {
	total := 0
	switch node := doc.(type) {
	case map[string]any:
		for _, k := range keys {
			v, ok := node[k]
			if !ok || v == nil {
				continue
			}
			switch vv := v.(type) {
			case []any:
				total += len(vv)
			default:
				if n, numeric := asNumber(v); numeric {
					total += int(n)
				} else {
					total++
				}
			}
		}
		for _, v := range node {
			total += CountOccurrences(v, keys)
		}
	case []any:
		for _, item := range node {
			total += CountOccurrences(item, keys)
		}
	}
	return total
}

// asNumber coerces JSON scalars to float64. Strings qualify only when
// they parse cleanly as a number.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
