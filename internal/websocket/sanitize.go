package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// storageIDKey is the internal primary-key field name used by the storage
// layer. It must never reach a client.
const storageIDKey = "_id"

// Sanitize prepares a payload for transmission: internal identifier objects
// are converted to their string form and storage primary-key fields are
// stripped, recursively through maps and lists. Applied to every outbound
// message regardless of event type.
func Sanitize(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, val := range v {
			if key == storageIDKey {
				continue
			}
			out[key] = Sanitize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = Sanitize(item)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = Sanitize(item)
		}
		return out
	case time.Time:
		return v
	case fmt.Stringer:
		return v.String()
	case nil, bool, string, int, int32, int64, float32, float64:
		return v
	default:
		// Typed payloads (structs, typed slices) are reduced to their wire
		// form so stripping stays structural through every nesting level.
		return sanitizeWireForm(value)
	}
}

// sanitizeWireForm round-trips a value through its JSON encoding and
// sanitizes the generic result. Values that do not encode pass through.
func sanitizeWireForm(value interface{}) interface{} {
	raw, err := json.Marshal(value)
	if err != nil {
		return value
	}
	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return value
	}
	return Sanitize(decoded)
}

// SanitizeMap is a convenience wrapper for map payloads
func SanitizeMap(data map[string]interface{}) map[string]interface{} {
	clean, _ := Sanitize(data).(map[string]interface{})
	return clean
}
