package radar

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ExtractActiveRegions returns the sorted, de-duplicated region IDs whose map
// value coerces to exactly 1. Entries with unparseable keys or values are
// skipped; malformed input never aborts normalization.
func ExtractActiveRegions(regionMap map[string]interface{}) []int {
	seen := make(map[int]bool)
	active := make([]int, 0, len(regionMap))

	for key, value := range regionMap {
		id, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			continue
		}
		v, ok := coerceInt(value)
		if !ok || v != 1 {
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		active = append(active, id)
	}

	sort.Ints(active)
	return active
}

// coerceInt converts the loosely typed region values seen on the wire. JSON
// numbers arrive as float64 and truncate toward zero; numeric strings are
// trimmed and parsed; booleans count as 1/0.
func coerceInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int(math.Trunc(v)), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i), true
		}
		if f, err := v.Float64(); err == nil {
			return int(math.Trunc(f)), true
		}
		return 0, false
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return i, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// TargetCount returns the number of tracked targets in the payload
func TargetCount(targets []map[string]interface{}) int {
	return len(targets)
}
