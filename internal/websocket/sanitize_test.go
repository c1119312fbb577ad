package websocket

import (
	"encoding/json"
	"strings"
	"testing"

	"ohmguard/internal/radar"
)

type objectID struct {
	hex string
}

func (o objectID) String() string { return o.hex }

func TestSanitizeStripsIDKeyRecursively(t *testing.T) {
	data := map[string]interface{}{
		"_id":  "top-level",
		"name": "sensor-1",
		"site": map[string]interface{}{
			"_id":   "nested",
			"label": "floor 2",
		},
		"events": []interface{}{
			map[string]interface{}{
				"_id":   "in-list",
				"type":  "FALL",
				"inner": map[string]interface{}{"_id": "deep", "ok": true},
			},
		},
	}

	clean := SanitizeMap(data)

	if _, ok := clean["_id"]; ok {
		t.Fatalf("expected top-level _id stripped")
	}
	site := clean["site"].(map[string]interface{})
	if _, ok := site["_id"]; ok {
		t.Fatalf("expected nested _id stripped")
	}
	if site["label"] != "floor 2" {
		t.Fatalf("expected sibling fields preserved")
	}
	event := clean["events"].([]interface{})[0].(map[string]interface{})
	if _, ok := event["_id"]; ok {
		t.Fatalf("expected _id inside list stripped")
	}
	inner := event["inner"].(map[string]interface{})
	if _, ok := inner["_id"]; ok {
		t.Fatalf("expected deeply nested _id stripped")
	}
	if inner["ok"] != true {
		t.Fatalf("expected deep sibling fields preserved")
	}
}

func TestSanitizeConvertsIdentifierObjects(t *testing.T) {
	data := map[string]interface{}{
		"sensor_id": objectID{hex: "65a1b2c3"},
		"refs":      []interface{}{objectID{hex: "65ffeedd"}},
	}

	clean := SanitizeMap(data)

	if clean["sensor_id"] != "65a1b2c3" {
		t.Fatalf("expected identifier converted to string, got %#v", clean["sensor_id"])
	}
	if clean["refs"].([]interface{})[0] != "65ffeedd" {
		t.Fatalf("expected identifier in list converted, got %#v", clean["refs"])
	}
}

func TestSanitizeTraversesTypedEventPayloads(t *testing.T) {
	event := radar.Normalize(radar.IngestRequest{
		Payload: radar.Payload{
			PresenceDetected:  true,
			PresenceRegionMap: map[string]interface{}{"3": 1},
			TrackerTargets: []map[string]interface{}{
				{"_id": "internal-object-id", "x": 1.5},
			},
			Timestamp: 1726000000000,
		},
		Type:     1,
		DeviceID: "dev-1",
	}, radar.Identity{})

	clean := Sanitize(event)

	raw, err := json.Marshal(clean)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(string(raw), `"_id"`) {
		t.Fatalf("expected _id stripped from nested audit payload, got %s", raw)
	}

	decoded := clean.(map[string]interface{})
	if decoded["eventType"] != "FALL" {
		t.Fatalf("expected event fields preserved, got %v", decoded["eventType"])
	}
	audit := decoded["rawPayloadJson"].(map[string]interface{})
	payload := audit["payload"].(map[string]interface{})
	target := payload["trackerTargets"].([]interface{})[0].(map[string]interface{})
	if target["x"] != 1.5 {
		t.Fatalf("expected sibling target fields preserved, got %v", target)
	}
}

func TestSanitizePassesScalarsThrough(t *testing.T) {
	if got := Sanitize("hello"); got != "hello" {
		t.Fatalf("expected string untouched, got %#v", got)
	}
	if got := Sanitize(float64(3)); got != float64(3) {
		t.Fatalf("expected number untouched, got %#v", got)
	}
	if got := Sanitize(nil); got != nil {
		t.Fatalf("expected nil untouched, got %#v", got)
	}
}
