package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/star/orbitview/internal/classify"
	"github.com/star/orbitview/internal/session"
	"github.com/star/orbitview/internal/transform"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

var (
	testFetchedAt = time.Date(2024, 4, 9, 11, 30, 0, 0, time.UTC)
	testFrame     = time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
)

// fakeSource advances its frame time on every Status call.
type fakeSource struct {
	mu      sync.Mutex
	status  session.Status
	objects []session.ObjectView
	err     error
	calls   int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		status: session.Status{
			Tracking:         true,
			Objects:          2,
			CatalogFetchedAt: testFetchedAt,
			CatalogSource:    "test",
			LastFrame:        testFrame,
		},
		objects: []session.ObjectView{
			{NORADID: 25544, Name: "ISS (ZARYA)", Category: classify.Research,
				Visible: true, Placed: true, Position: transform.Vec3{X: 1, Y: 2, Z: 10}},
			{NORADID: 44714, Name: "STARLINK-1008", Category: classify.Starlink,
				Visible: false, Placed: true, Position: transform.Vec3{X: 5, Y: 5, Z: 5}},
		},
	}
}

func (f *fakeSource) Status(ctx context.Context) (session.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return session.Status{}, f.err
	}
	f.calls++
	st := f.status
	st.LastFrame = f.status.LastFrame.Add(time.Duration(f.calls) * time.Second)
	return st, nil
}

func (f *fakeSource) Objects(ctx context.Context) ([]session.ObjectView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]session.ObjectView(nil), f.objects...), nil
}

func testConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		KeepaliveInterval:  30 * time.Second,
	}
}

// sseMessages decodes every "data:" line of an SSE body.
func sseMessages(t *testing.T, body string) []map[string]any {
	t.Helper()
	var out []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		jsonStr, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal([]byte(jsonStr), &msg); err != nil {
			t.Errorf("invalid JSON in SSE data line: %v", err)
			continue
		}
		out = append(out, msg)
	}
	return out
}

// TestBuildPositionsMessage verifies hidden markers and filtered categories
// are left out of the batch.
func TestBuildPositionsMessage(t *testing.T) {
	objects := []session.ObjectView{
		{NORADID: 1, Category: classify.Starlink, Visible: true, Placed: true, Position: transform.Vec3{X: 11}},
		{NORADID: 2, Category: classify.Starlink, Visible: false, Placed: true},
		{NORADID: 3, Category: classify.Military, Visible: true, Placed: true, Position: transform.Vec3{Y: 11}},
		{NORADID: 4, Category: classify.Military, Visible: true, Placed: false},
	}

	msg := buildPositionsMessage(testFrame, objects, streamParams{})
	if msg.Type != "positions" {
		t.Errorf("type = %q, want positions", msg.Type)
	}
	if msg.Frame != "render" {
		t.Errorf("frame = %q, want render", msg.Frame)
	}
	if msg.T != "2024-04-09T12:00:00Z" {
		t.Errorf("t = %q, want 2024-04-09T12:00:00Z", msg.T)
	}
	if len(msg.Sat) != 2 || msg.Sat[0].ID != 1 || msg.Sat[1].ID != 3 {
		t.Fatalf("sat = %+v, want ids [1 3]", msg.Sat)
	}
	if msg.Sat[0].P != [3]float64{11, 0, 0} {
		t.Errorf("sat[0].p = %v, want [11 0 0]", msg.Sat[0].P)
	}

	filtered := buildPositionsMessage(testFrame, objects, streamParams{category: classify.Military, filter: true})
	if len(filtered.Sat) != 1 || filtered.Sat[0].ID != 3 {
		t.Errorf("filtered sat = %+v, want only id 3", filtered.Sat)
	}
}

// TestPositionsMessageJSON verifies the wire field names.
func TestPositionsMessageJSON(t *testing.T) {
	msg := positionsMessage{
		Type:  "positions",
		T:     "2024-04-09T12:00:00Z",
		Frame: "render",
		Sat: []satPayload{
			{ID: 12345, C: classify.Starlink, P: [3]float64{11, 0, 0}},
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}

	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}

	sats, ok := parsed["sat"].([]any)
	if !ok || len(sats) != 1 {
		t.Fatalf("sat = %v, want 1-element array", parsed["sat"])
	}
	sat := sats[0].(map[string]any)
	if sat["id"].(float64) != 12345 {
		t.Errorf("sat[0].id = %v, want 12345", sat["id"])
	}
	if sat["c"] != "starlink" {
		t.Errorf("sat[0].c = %v, want starlink", sat["c"])
	}
}

// TestMetadataMessage verifies catalog age and the not-loaded encoding.
func TestMetadataMessage(t *testing.T) {
	now := testFetchedAt.Add(30 * time.Minute)
	msg := buildMetadataMessage(session.Status{
		CatalogFetchedAt: testFetchedAt,
		CatalogSource:    "https://example.test/tle",
		Objects:          42,
		Tracking:         true,
	}, now)
	if msg.CatalogAt != "2024-04-09T11:30:00Z" {
		t.Errorf("catalog_fetched_at = %q", msg.CatalogAt)
	}
	if msg.AgeSec != 1800 {
		t.Errorf("catalog_age_seconds = %d, want 1800", msg.AgeSec)
	}

	empty := buildMetadataMessage(session.Status{}, now)
	if empty.AgeSec != -1 || empty.CatalogAt != "" {
		t.Errorf("not loaded: got age %d at %q, want -1 and empty", empty.AgeSec, empty.CatalogAt)
	}
	data, _ := json.Marshal(empty)
	if strings.Contains(string(data), "catalog_fetched_at") {
		t.Errorf("empty catalog time should be omitted: %s", data)
	}
}

// TestSSEMessageFormat verifies the SSE wire format: "data: {json}\n\n".
func TestSSEMessageFormat(t *testing.T) {
	handler := NewHandler(newFakeSource(), testConfig(), nil, testLogger())

	req := httptest.NewRequest("GET", "/api/v1/stream/positions?interval_ms=250", nil)
	req.RemoteAddr = "127.0.0.1:12345"

	ctx, cancel := context.WithTimeout(req.Context(), 700*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	handler.HandlePositions(w, req)

	resp := w.Result()
	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", resp.Header.Get("Cache-Control"))
	}

	body := w.Body.String()
	msgs := sseMessages(t, body)
	if len(msgs) < 2 {
		t.Fatalf("got %d messages, want metadata followed by positions", len(msgs))
	}
	if msgs[0]["type"] != "metadata" {
		t.Errorf("first message type = %v, want metadata", msgs[0]["type"])
	}
	if msgs[0]["catalog_fetched_at"] != "2024-04-09T11:30:00Z" {
		t.Errorf("metadata catalog_fetched_at = %v", msgs[0]["catalog_fetched_at"])
	}

	var positions int
	for _, m := range msgs[1:] {
		if m["type"] != "positions" {
			continue
		}
		positions++
		sats := m["sat"].([]any)
		if len(sats) != 1 {
			t.Errorf("positions carried %d markers, want only the visible one", len(sats))
		}
	}
	if positions < 2 {
		t.Errorf("got %d positions messages, want at least 2", positions)
	}

	for _, line := range strings.Split(body, "\n") {
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") && !strings.HasPrefix(line, "retry: ") && line != ":" {
			t.Errorf("unexpected SSE line: %q", line)
		}
	}

	if got := handler.Active(); got != 0 {
		t.Errorf("active streams after disconnect = %d, want 0", got)
	}
}

// TestSelectionMessage verifies a selection change is announced once.
func TestSelectionMessage(t *testing.T) {
	src := newFakeSource()
	src.status.Selection = &session.SelectionView{Name: "ISS (ZARYA)", NORADID: 25544, Points: 1441}
	handler := NewHandler(src, testConfig(), nil, testLogger())

	req := httptest.NewRequest("GET", "/api/v1/stream/positions?interval_ms=250", nil)
	ctx, cancel := context.WithTimeout(req.Context(), 600*time.Millisecond)
	defer cancel()
	w := httptest.NewRecorder()
	handler.HandlePositions(w, req.WithContext(ctx))

	var selections int
	for _, m := range sseMessages(t, w.Body.String()) {
		if m["type"] == "selection" {
			selections++
			if m["norad_id"].(float64) != 25544 || m["points"].(float64) != 1441 {
				t.Errorf("selection message = %v", m)
			}
		}
	}
	if selections != 1 {
		t.Errorf("got %d selection messages, want 1", selections)
	}
}

// TestRateLimiting verifies per-IP concurrent stream limits.
func TestRateLimiting(t *testing.T) {
	limiter := newStreamLimiter(3, 0)

	for i := 0; i < 3; i++ {
		if !limiter.acquire("10.0.0.1") {
			t.Fatalf("acquire %d should succeed", i+1)
		}
	}

	if limiter.acquire("10.0.0.1") {
		t.Error("acquire beyond limit should fail")
	}

	if !limiter.acquire("10.0.0.2") {
		t.Error("different IP should not be rate limited")
	}

	limiter.release("10.0.0.1")
	if !limiter.acquire("10.0.0.1") {
		t.Error("acquire after release should succeed")
	}

	if c := limiter.count("10.0.0.1"); c != 3 {
		t.Errorf("count = %d, want 3", c)
	}
	if c := limiter.count("10.0.0.2"); c != 1 {
		t.Errorf("count = %d, want 1", c)
	}
	if a := limiter.active(); a != 4 {
		t.Errorf("active = %d, want 4", a)
	}
}

// TestGlobalLimit verifies the cap across IPs.
func TestGlobalLimit(t *testing.T) {
	limiter := newStreamLimiter(5, 2)
	if !limiter.acquire("a") || !limiter.acquire("b") {
		t.Fatal("first two acquires should succeed")
	}
	if limiter.acquire("c") {
		t.Error("acquire beyond global cap should fail")
	}
	limiter.release("a")
	if !limiter.acquire("c") {
		t.Error("acquire after release should succeed")
	}
}

// TestReleaseUnknownIP verifies stray releases cannot corrupt the total.
func TestReleaseUnknownIP(t *testing.T) {
	limiter := newStreamLimiter(1, 1)
	limiter.release("10.9.9.9")
	if a := limiter.active(); a != 0 {
		t.Fatalf("active = %d, want 0", a)
	}
	if !limiter.acquire("10.0.0.1") {
		t.Error("acquire should succeed after a stray release")
	}
}

// TestRateLimitingConcurrent verifies rate limiter thread safety.
func TestRateLimitingConcurrent(t *testing.T) {
	limiter := newStreamLimiter(100, 0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.acquire("10.0.0.1") {
				defer limiter.release("10.0.0.1")
				time.Sleep(10 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if c := limiter.count("10.0.0.1"); c != 0 {
		t.Errorf("count after all released = %d, want 0", c)
	}
}

// TestRateLimitHTTPResponse verifies 429 response when limit exceeded.
func TestRateLimitHTTPResponse(t *testing.T) {
	handler := NewHandler(newFakeSource(), Config{
		MaxConcurrentPerIP: 1,
		KeepaliveInterval:  30 * time.Second,
	}, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest("GET", "/api/v1/stream/positions", nil).WithContext(ctx)
		req.RemoteAddr = "10.0.0.1:12345"
		handler.HandlePositions(httptest.NewRecorder(), req)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for handler.limiter.count("10.0.0.1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first stream never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}

	req := httptest.NewRequest("GET", "/api/v1/stream/positions", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	w := httptest.NewRecorder()
	handler.HandlePositions(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	cancel()
	<-done
}

// TestInvalidQueryParams verifies error responses for bad parameters.
func TestInvalidQueryParams(t *testing.T) {
	handler := NewHandler(newFakeSource(), testConfig(), nil, testLogger())

	tests := []struct {
		name  string
		query string
	}{
		{"interval too small", "?interval_ms=10"},
		{"interval too large", "?interval_ms=60000"},
		{"interval non-numeric", "?interval_ms=abc"},
		{"unknown category", "?category=weather"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/stream/positions"+tt.query, nil)
			req.RemoteAddr = "127.0.0.1:12345"
			w := httptest.NewRecorder()
			handler.HandlePositions(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

// TestSourceUnavailable verifies a closed session is reported as 503.
func TestSourceUnavailable(t *testing.T) {
	src := newFakeSource()
	src.err = session.ErrClosed
	handler := NewHandler(src, testConfig(), nil, testLogger())

	w := httptest.NewRecorder()
	handler.HandlePositions(w, httptest.NewRequest("GET", "/api/v1/stream/positions", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

// TestKeepaliveFormat verifies keep-alive is an SSE comment.
func TestKeepaliveFormat(t *testing.T) {
	w := httptest.NewRecorder()
	c := &client{w: w, flusher: w, rc: http.NewResponseController(w), logger: testLogger()}
	if err := c.sendKeepalive(); err != nil {
		t.Fatal(err)
	}
	if got := w.Body.String(); got != ":\n\n" {
		t.Errorf("keepalive = %q, want %q", got, ":\n\n")
	}
	if c.messagesSent != 0 {
		t.Errorf("keepalive counted as a message")
	}
}
