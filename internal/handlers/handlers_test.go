package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ohmguard/internal/push"
	"ohmguard/internal/radar"
	"ohmguard/internal/rooms"
	ws "ohmguard/internal/websocket"
	"ohmguard/pkg/clients/registry"
	"ohmguard/pkg/kafka"
	"ohmguard/pkg/logging"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func strPtr(s string) *string { return &s }

type stubResolver struct {
	identity *registry.DeviceIdentity
	tokens   []string
	err      error
}

func (s *stubResolver) Resolve(ctx context.Context, deviceID string) (*registry.DeviceIdentity, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.identity, nil
}

func (s *stubResolver) AlertTokens(ctx context.Context, tenantID string) ([]string, error) {
	return s.tokens, nil
}

type stubProducer struct {
	mu     sync.Mutex
	topics []string
	events []kafka.Event
}

func (s *stubProducer) PublishEvent(topic string, event kafka.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, topic)
	s.events = append(s.events, event)
	return nil
}

type notifyCall struct {
	tokens   []string
	resident string
	location string
}

type stubNotifier struct {
	calls chan notifyCall
}

func (s *stubNotifier) SendFallAlert(ctx context.Context, tokens []string, residentName, location string) []push.FallAlertResult {
	s.calls <- notifyCall{tokens: tokens, resident: residentName, location: location}
	results := make([]push.FallAlertResult, len(tokens))
	for i, token := range tokens {
		results[i] = push.FallAlertResult{Token: token, Success: true}
	}
	return results
}

func newTestHandlers(resolver Resolver, producer Producer, notifier Notifier) (*Handlers, *ws.Hub) {
	logger := logging.NewLogger()
	hub := ws.NewHub(rooms.NewRegistry(), logger, nil)
	h := NewHandlers(logger, hub, resolver, producer, notifier, nil, Config{ServiceName: "watchman", EventsTopic: "radar-events"})
	return h, hub
}

func postIngest(t *testing.T, h *Handlers, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/events/radar", h.HandleIngest)

	req := httptest.NewRequest("POST", "/api/events/radar", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const fallReport = `{
	"payload": {
		"presenceDetected": true,
		"presenceRegionMap": {"3": 1, "7": 0, "x": 1},
		"trackerTargets": [{"x": 1.0}, {"x": 2.0}],
		"timestamp": 1726000000000
	},
	"type": 1,
	"deviceId": "dev-1"
}`

func TestHandleIngestReturnsNormalizedEvent(t *testing.T) {
	resolver := &stubResolver{identity: &registry.DeviceIdentity{
		DeviceID: "dev-1",
		SensorID: strPtr("sensor-1"),
		TenantID: strPtr("tenant-1"),
	}}
	h, _ := newTestHandlers(resolver, nil, nil)

	w := postIngest(t, h, fallReport)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var event radar.Event
	if err := json.Unmarshal(w.Body.Bytes(), &event); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if event.EventType != radar.EventFall {
		t.Fatalf("expected FALL, got %s", event.EventType)
	}
	if event.Severity != radar.SeverityHigh {
		t.Fatalf("expected HIGH severity, got %s", event.Severity)
	}
	if len(event.ActiveRegions) != 1 || event.ActiveRegions[0] != 3 {
		t.Fatalf("unexpected active regions: %v", event.ActiveRegions)
	}
	if event.TargetCount != 2 {
		t.Fatalf("expected 2 targets, got %d", event.TargetCount)
	}
	if event.Tenant() != "tenant-1" {
		t.Fatalf("expected resolved tenant, got %q", event.Tenant())
	}
}

func TestHandleIngestMissingDeviceID(t *testing.T) {
	h, _ := newTestHandlers(nil, nil, nil)

	w := postIngest(t, h, `{"payload": {}, "type": 4}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleIngestResolverFailureStillNormalizes(t *testing.T) {
	resolver := &stubResolver{err: &registry.APIError{StatusCode: 503}}
	h, _ := newTestHandlers(resolver, nil, nil)

	w := postIngest(t, h, fallReport)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 despite resolver failure, got %d", w.Code)
	}

	var event radar.Event
	if err := json.Unmarshal(w.Body.Bytes(), &event); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if event.TenantID != nil {
		t.Fatalf("expected nil tenant when resolution fails, got %v", *event.TenantID)
	}
	if event.EventType != radar.EventFall {
		t.Fatalf("expected normalization to proceed, got %s", event.EventType)
	}
}

func TestHandleIngestPublishesEvent(t *testing.T) {
	producer := &stubProducer{}
	h, _ := newTestHandlers(nil, producer, nil)

	w := postIngest(t, h, fallReport)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}

	producer.mu.Lock()
	defer producer.mu.Unlock()
	if len(producer.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(producer.events))
	}
	if producer.topics[0] != "radar-events" {
		t.Fatalf("expected radar-events topic, got %q", producer.topics[0])
	}
	if producer.events[0].Type != "FALL" {
		t.Fatalf("expected FALL event type, got %q", producer.events[0].Type)
	}
}

func TestFallAlertFansOutToTokens(t *testing.T) {
	resolver := &stubResolver{
		identity: &registry.DeviceIdentity{DeviceID: "dev-1", TenantID: strPtr("tenant-1")},
		tokens:   []string{"ExponentPushToken[a]", "ExponentPushToken[b]"},
	}
	notifier := &stubNotifier{calls: make(chan notifyCall, 1)}
	h, _ := newTestHandlers(resolver, nil, notifier)

	postIngest(t, h, fallReport)

	select {
	case call := <-notifier.calls:
		if len(call.tokens) != 2 {
			t.Fatalf("expected 2 tokens, got %d", len(call.tokens))
		}
		if !strings.Contains(call.resident, "dev-1") {
			t.Fatalf("expected device in alert, got %q", call.resident)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected fall alert to be dispatched")
	}
}

func TestFallAlertSkippedWithoutTenant(t *testing.T) {
	notifier := &stubNotifier{calls: make(chan notifyCall, 1)}
	h, _ := newTestHandlers(nil, nil, notifier)

	postIngest(t, h, fallReport)

	select {
	case <-notifier.calls:
		t.Fatalf("expected no alert without a resolved tenant")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFallAlertSkippedForNonFallEvents(t *testing.T) {
	resolver := &stubResolver{
		identity: &registry.DeviceIdentity{DeviceID: "dev-1", TenantID: strPtr("tenant-1")},
		tokens:   []string{"ExponentPushToken[a]"},
	}
	notifier := &stubNotifier{calls: make(chan notifyCall, 1)}
	h, _ := newTestHandlers(resolver, nil, notifier)

	postIngest(t, h, `{"payload": {"presenceDetected": true}, "type": 4, "deviceId": "dev-1"}`)

	select {
	case <-notifier.calls:
		t.Fatalf("expected no alert for PRESENCE events")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleEventRadarReportReentersPipeline(t *testing.T) {
	producer := &stubProducer{}
	h, _ := newTestHandlers(nil, producer, nil)

	err := h.HandleEvent(kafka.Event{
		ID:   "k-1",
		Type: "radar_report",
		Data: map[string]interface{}{
			"payload":  map[string]interface{}{"presenceDetected": true, "timestamp": float64(1726000000000)},
			"type":     float64(1),
			"deviceId": "dev-2",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	producer.mu.Lock()
	defer producer.mu.Unlock()
	if len(producer.events) != 1 {
		t.Fatalf("expected report to be normalized and published, got %d events", len(producer.events))
	}
	if producer.events[0].Type != "FALL" {
		t.Fatalf("expected FALL, got %q", producer.events[0].Type)
	}
}

func TestHandleEventDropsTenantlessUpdates(t *testing.T) {
	h, _ := newTestHandlers(nil, nil, nil)

	for _, eventType := range []string{"presence_update", "sensor_status", "sensor_registered"} {
		if err := h.HandleEvent(kafka.Event{ID: "k-1", Type: eventType}); err != nil {
			t.Fatalf("expected tenant-less %s to be dropped without error, got %v", eventType, err)
		}
	}
}

func TestHandleEventIgnoresUnknownTypes(t *testing.T) {
	h, _ := newTestHandlers(nil, nil, nil)
	if err := h.HandleEvent(kafka.Event{ID: "k-1", Type: "stream_lifecycle"}); err != nil {
		t.Fatalf("expected unknown type to be ignored, got %v", err)
	}
}

func TestHandleAdminBroadcastValidation(t *testing.T) {
	h, _ := newTestHandlers(nil, nil, nil)
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/admin/broadcast", h.HandleAdminBroadcast)

	req := httptest.NewRequest("POST", "/admin/broadcast", bytes.NewBufferString(`{"data": {}}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing event name, got %d", w.Code)
	}

	req = httptest.NewRequest("POST", "/admin/broadcast", bytes.NewBufferString(`{"event": "maintenance_notice", "data": {"message": "upgrade"}}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleStats(t *testing.T) {
	h, _ := newTestHandlers(nil, nil, nil)
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/admin/stats", h.HandleStats)

	req := httptest.NewRequest("GET", "/admin/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var stats map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid stats body: %v", err)
	}
	if _, ok := stats["connections"]; !ok {
		t.Fatalf("expected connections in stats, got %v", stats)
	}
}

func TestIngestBroadcastsToJoinedClient(t *testing.T) {
	resolver := &stubResolver{identity: &registry.DeviceIdentity{
		DeviceID: "dev-1",
		TenantID: strPtr("tenant-1"),
	}}
	h, hub := newTestHandlers(resolver, nil, nil)
	go hub.Run()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", h.HandleWebSocket)
	router.POST("/api/events/radar", h.HandleIngest)

	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"action": "join_tenant", "tenant_id": "tenant-1"}); err != nil {
		t.Fatalf("failed to send join: %v", err)
	}

	// The write pump may coalesce queued frames into one message separated
	// by newlines, so frames are read raw and split.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pending [][]byte
	readFrame := func() map[string]interface{} {
		t.Helper()
		for len(pending) == 0 {
			_, message, err := conn.ReadMessage()
			if err != nil {
				t.Fatalf("failed to read frame: %v", err)
			}
			for _, part := range bytes.Split(message, []byte{'\n'}) {
				if len(part) > 0 {
					pending = append(pending, part)
				}
			}
		}
		raw := pending[0]
		pending = pending[1:]
		var frame map[string]interface{}
		if err := json.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("invalid frame %s: %v", raw, err)
		}
		return frame
	}

	ack := readFrame()
	if ack["type"] != "join_ack" || ack["success"] != true {
		t.Fatalf("unexpected join ack: %v", ack)
	}
	joined := readFrame()
	if joined["type"] != "joined" {
		t.Fatalf("unexpected joined notice: %v", joined)
	}

	resp, err := http.Post(srv.URL+"/api/events/radar", "application/json", bytes.NewBufferString(fallReport))
	if err != nil {
		t.Fatalf("ingest request failed: %v", err)
	}
	_ = resp.Body.Close()

	frame := readFrame()
	if frame["type"] != "new_event" {
		t.Fatalf("expected new_event frame, got %v", frame["type"])
	}
	event := frame["event"].(map[string]interface{})
	if event["eventType"] != "FALL" {
		t.Fatalf("expected FALL event, got %v", event["eventType"])
	}
}
