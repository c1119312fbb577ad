// Package radar normalizes raw fall-detection sensor reports into canonical
// platform events. Normalization never fails: malformed fields degrade to
// documented fallbacks so a single bad report cannot stall the pipeline.
package radar

import "time"

// EventType classifies a radar report
type EventType string

const (
	EventFall       EventType = "FALL"
	EventPreFall    EventType = "PRE_FALL"
	EventInactivity EventType = "INACTIVITY"
	EventPresence   EventType = "PRESENCE"
	EventUnknown    EventType = "UNKNOWN"
)

// eventTypeCodes maps the sensor's numeric type codes to event types. Codes
// outside the table are expected input and classify as UNKNOWN.
var eventTypeCodes = map[int]EventType{
	1: EventFall,
	2: EventPreFall,
	3: EventInactivity,
	4: EventPresence,
}

// EventTypeFromCode maps a sensor type code to an EventType
func EventTypeFromCode(code int) EventType {
	if t, ok := eventTypeCodes[code]; ok {
		return t
	}
	return EventUnknown
}

// PresenceStatus reports whether the sensor currently detects a person
type PresenceStatus string

const (
	PresenceDetected    PresenceStatus = "DETECTED"
	PresenceNotDetected PresenceStatus = "NOT_DETECTED"
)

// Severity ranks an event for alerting
type Severity string

const (
	SeverityLow  Severity = "LOW"
	SeverityMed  Severity = "MED"
	SeverityHigh Severity = "HIGH"
)

// Status tracks the event workflow. Events are always created NEW; later
// transitions belong to the care-workflow service.
type Status string

const (
	StatusNew        Status = "NEW"
	StatusAck        Status = "ACK"
	StatusResolved   Status = "RESOLVED"
	StatusFalseAlarm Status = "FALSE_ALARM"
)

// Payload is the raw report body as sent by the sensor. Region map values and
// tracker targets are loosely typed on the wire and parsed best-effort.
type Payload struct {
	PresenceDetected       bool                     `json:"presenceDetected"`
	PresenceRegionMap      map[string]interface{}   `json:"presenceRegionMap"`
	PresenceTargetType     int                      `json:"presenceTargetType"`
	RoomPresenceIndication int                      `json:"roomPresenceIndication"`
	Timestamp              int64                    `json:"timestamp"` // epoch milliseconds, may be zero
	TrackerTargets         []map[string]interface{} `json:"trackerTargets"`
}

// IngestRequest is the body of an inbound sensor report
type IngestRequest struct {
	Payload  Payload `json:"payload"`
	Type     int     `json:"type"`
	DeviceID string  `json:"deviceId"`
}

// Identity holds the resolved sensor/site/zone/tenant identifiers for a
// device. All fields are optional; resolution failure leaves them nil.
type Identity struct {
	SensorID *string
	SiteID   *string
	ZoneID   *string
	TenantID *string
}

// RawAudit echoes the original report for traceability
type RawAudit struct {
	Payload Payload `json:"payload"`
	Type    int     `json:"type"`
}

// Event is the canonical, normalized radar event
type Event struct {
	ID       string  `json:"id"`
	DeviceID string  `json:"deviceId"`
	SensorID *string `json:"sensorId,omitempty"`
	SiteID   *string `json:"siteId,omitempty"`
	ZoneID   *string `json:"zoneId,omitempty"`
	TenantID *string `json:"tenantId,omitempty"`

	EventType        EventType      `json:"eventType"`
	PresenceStatus   PresenceStatus `json:"presenceStatus"`
	PresenceDetected bool           `json:"presenceDetected"`
	ActiveRegions    []int          `json:"activeRegions"`
	TargetCount      int            `json:"targetCount"`

	OccurredAt   time.Time `json:"occurredAt"`   // canonical UTC instant
	RawTimestamp int64     `json:"rawTimestamp"` // original epoch ms, preserved verbatim
	CreatedAt    time.Time `json:"createdAt"`

	Severity Severity `json:"severity"`
	Status   Status   `json:"status"`

	RawPayload RawAudit `json:"rawPayloadJson"`
}

// Tenant returns the owning tenant ID, or "" when unresolved
func (e *Event) Tenant() string {
	if e.TenantID == nil {
		return ""
	}
	return *e.TenantID
}
