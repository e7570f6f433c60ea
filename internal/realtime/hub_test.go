package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testHub(opts ...Option) *Hub {
	return NewHub(slog.Default(), opts...)
}

func TestWants_All(t *testing.T) {
	client := &Client{sub: Subscription{All: true, Kinds: []Kind{KindDomainSeen}}}

	if !client.wants(&Message{Kind: KindEventStored}) {
		t.Error("All overrides other filters")
	}
}

func TestWants_KindFilter(t *testing.T) {
	client := &Client{sub: Subscription{
		Kinds: []Kind{KindPhishingDetected, KindDomainSeen},
	}}

	if !client.wants(&Message{Kind: KindPhishingDetected}) {
		t.Error("Should receive phishing_detected")
	}
	if !client.wants(&Message{Kind: KindDomainSeen}) {
		t.Error("Should receive domain_seen")
	}
	if client.wants(&Message{Kind: KindEventStored}) {
		t.Error("Should NOT receive event_stored")
	}
}

func TestWants_DomainFilter(t *testing.T) {
	client := &Client{sub: Subscription{Domains: []string{"Example.com"}}}

	if !client.wants(&Message{Kind: KindDomainSeen, Domain: "example.com"}) {
		t.Error("Should match exact domain")
	}
	if !client.wants(&Message{Kind: KindDomainSeen, Domain: "login.example.com"}) {
		t.Error("Should match subdomain")
	}
	if client.wants(&Message{Kind: KindDomainSeen, Domain: "notexample.com"}) {
		t.Error("Should NOT match unrelated suffix")
	}
	if client.wants(&Message{Kind: KindEventStored}) {
		t.Error("Messages without a domain should not pass a domain filter")
	}
}

func TestWants_EmptySubscription(t *testing.T) {
	client := &Client{sub: Subscription{}}

	if !client.wants(&Message{Kind: KindEventStored}) {
		t.Error("Empty subscription (no filters) should receive messages")
	}
}

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	if stats := h.Stats(); stats != (Stats{}) {
		t.Errorf("Expected zero stats, got %+v", stats)
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{All: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	if n := h.Stats().Connected; n != 1 {
		t.Errorf("Expected 1 connected client, got %d", n)
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats.Connected != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %d", stats.Connected)
	}
	if stats.PeakClients != 1 || stats.TotalClients != 1 {
		t.Errorf("Expected peak and total 1, got %+v", stats)
	}
}

func TestHub_FilteredPublish(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{Kinds: []Kind{KindPhishingDetected}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.Publish(KindDomainSeen, "example.com", map[string]string{"domain": "example.com"})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive domain_seen")
	default:
	}

	h.Publish(KindPhishingDetected, "evil.example.com", map[string]string{"status": "DANGER"})

	select {
	case raw := <-client.send:
		var msg struct {
			Kind   Kind   `json:"kind"`
			Domain string `json:"domain"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("invalid message: %v", err)
		}
		if msg.Kind != KindPhishingDetected || msg.Domain != "evil.example.com" {
			t.Errorf("unexpected message %s", raw)
		}
	case <-time.After(time.Second):
		t.Error("Client should receive phishing_detected")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Hub did not stop after context cancellation")
	}

	// Upgrades after shutdown are refused.
	w := httptest.NewRecorder()
	h.HandleWebSocket(w, httptest.NewRequest("GET", "/ws", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 after shutdown, got %d", w.Code)
	}
}

func TestHub_WebSocketRoundTrip(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for h.Stats().Connected == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	h.Publish(KindEventStored, "example.com", map[string]string{"type": "login"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !strings.Contains(string(raw), `"kind":"event_stored"`) {
		t.Errorf("unexpected message %s", raw)
	}
}

func TestCheckOrigin(t *testing.T) {
	h := testHub(WithOriginCheck(func(origin string) bool {
		return origin == "chrome-extension://abcdefghijklmnopabcdefghijklmnop"
	}))

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"chrome-extension://abcdefghijklmnopabcdefghijklmnop", true},
		{"http://example.com", true}, // same host as the request
		{"http://evil.com", false},
	}
	for _, tc := range tests {
		r := httptest.NewRequest("GET", "http://example.com/ws", nil)
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		if got := h.checkOrigin(r); got != tc.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tc.origin, got, tc.want)
		}
	}
}

func TestHub_PublishDropsWhenQueueFull(t *testing.T) {
	h := testHub()

	for i := 0; i < publishBuffer+5; i++ {
		h.Publish(KindEventStored, "example.com", nil)
	}

	stats := h.Stats()
	if stats.Published != publishBuffer || stats.Dropped != 5 {
		t.Errorf("Expected %d published and 5 dropped, got %+v", publishBuffer, stats)
	}
}

func TestHub_LaggingClientDisconnected(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	client := &Client{hub: h, send: make(chan []byte), sub: Subscription{All: true}}
	h.register <- client

	h.Publish(KindEventStored, "example.com", nil)

	deadline := time.Now().Add(time.Second)
	for h.Stats().Connected != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := h.Stats().Connected; n != 0 {
		t.Fatalf("Expected lagging client removed, %d connected", n)
	}
	if _, ok := <-client.send; ok {
		t.Error("Expected send channel closed")
	}
}
