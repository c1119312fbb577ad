package radar

// DetermineSeverity ranks an event from its type and payload. Deterministic
// and side-effect free.
func DetermineSeverity(eventType EventType, payload Payload) Severity {
	switch eventType {
	case EventFall:
		return SeverityHigh
	case EventPreFall:
		return SeverityMed
	case EventInactivity:
		// Duration is not present in the payload at this layer, so
		// INACTIVITY is always MED.
		return SeverityMed
	default:
		return SeverityLow
	}
}
