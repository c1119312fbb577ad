package radar

import (
	"time"

	"github.com/google/uuid"
)

// Normalize transforms a raw sensor report into a canonical event. It never
// fails: unknown type codes, malformed region entries, and invalid timestamps
// all degrade to their documented fallbacks, and missing identity fields stay
// nil.
func Normalize(req IngestRequest, identity Identity) Event {
	payload := req.Payload

	eventType := EventTypeFromCode(req.Type)

	presenceStatus := PresenceNotDetected
	if payload.PresenceDetected {
		presenceStatus = PresenceDetected
	}

	return Event{
		ID:       uuid.New().String(),
		DeviceID: req.DeviceID,
		SensorID: identity.SensorID,
		SiteID:   identity.SiteID,
		ZoneID:   identity.ZoneID,
		TenantID: identity.TenantID,

		EventType:        eventType,
		PresenceStatus:   presenceStatus,
		PresenceDetected: payload.PresenceDetected,
		ActiveRegions:    ExtractActiveRegions(payload.PresenceRegionMap),
		TargetCount:      TargetCount(payload.TrackerTargets),

		OccurredAt:   EpochMSToTime(payload.Timestamp),
		RawTimestamp: payload.Timestamp,
		CreatedAt:    time.Now().UTC(),

		Severity: DetermineSeverity(eventType, payload),
		Status:   StatusNew,

		RawPayload: RawAudit{Payload: payload, Type: req.Type},
	}
}
