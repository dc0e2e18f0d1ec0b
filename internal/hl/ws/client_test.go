package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

func TestNextBackoffSequence(t *testing.T) {
	max := 60 * time.Second
	got := []time.Duration{5 * time.Second}
	for i := 0; i < 5; i++ {
		got = append(got, nextBackoff(got[len(got)-1], max))
	}
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, 60 * time.Second, 60 * time.Second}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("backoff step %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func newEchoServer(t *testing.T, onMessage func(map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg map[string]any
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if onMessage != nil {
				onMessage(msg)
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestClientSendsPing(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msgCh := make(chan map[string]any, 1)
	server := newEchoServer(t, func(msg map[string]any) {
		select {
		case msgCh <- msg:
		default:
		}
	})
	defer server.Close()

	client := New(wsURL(server), 10*time.Millisecond, 100*time.Millisecond, 20*time.Millisecond, zap.NewNop())
	defer client.Disconnect()

	go func() {
		_ = client.Run(ctx, nil)
	}()

	select {
	case msg := <-msgCh:
		if msg["method"] != "ping" {
			t.Fatalf("expected ping message, got %v", msg)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for ping")
	}
}

func TestClientReplaysSubscriptionsOnConnect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	subCh := make(chan map[string]any, 4)
	server := newEchoServer(t, func(msg map[string]any) {
		if msg["method"] == "subscribe" {
			select {
			case subCh <- msg:
			default:
			}
		}
	})
	defer server.Close()

	client := New(wsURL(server), 10*time.Millisecond, 100*time.Millisecond, 0, zap.NewNop())
	defer client.Disconnect()
	if err := client.Subscribe(ctx, map[string]any{"method": "subscribe", "subscription": map[string]any{"type": "l2Book", "coin": "HYPE"}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	go func() {
		_ = client.Run(ctx, nil)
	}()

	select {
	case msg := <-subCh:
		sub, _ := msg["subscription"].(map[string]any)
		if sub == nil || sub["coin"] != "HYPE" {
			t.Fatalf("unexpected subscription payload %v", msg)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for subscription replay")
	}
}

func TestDisconnectStopsRunAndIsIdempotent(t *testing.T) {
	ctx := context.Background()

	server := newEchoServer(t, nil)
	defer server.Close()

	client := New(wsURL(server), 10*time.Millisecond, 100*time.Millisecond, 0, zap.NewNop())
	done := make(chan error, 1)
	go func() {
		done <- client.Run(ctx, nil)
	}()

	time.Sleep(50 * time.Millisecond)
	client.Disconnect()
	client.Disconnect()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error after disconnect, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not stop after disconnect")
	}
}

func TestDisconnectInterruptsBackoffWait(t *testing.T) {
	ctx := context.Background()

	// Unreachable endpoint forces the client into its backoff wait.
	client := New("ws://127.0.0.1:1", 10*time.Second, 60*time.Second, 0, zap.NewNop())
	done := make(chan error, 1)
	go func() {
		done <- client.Run(ctx, nil)
	}()

	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	client.Disconnect()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error after disconnect, got %v", err)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Fatalf("disconnect took %s to interrupt backoff", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect did not interrupt backoff wait")
	}
}

func TestProbeReceivesFirstMessage(t *testing.T) {
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
		_ = conn.Write(r.Context(), websocket.MessageText, []byte(`{"channel":"subscriptionResponse"}`))
		<-r.Context().Done()
	}))
	defer server.Close()

	client := New(wsURL(server), time.Second, time.Second, 0, zap.NewNop())
	raw, err := client.Probe(ctx, map[string]any{"method": "subscribe"}, time.Second)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	var frame struct {
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("decode probe frame: %v", err)
	}
	if frame.Channel != "subscriptionResponse" {
		t.Fatalf("unexpected probe frame %s", raw)
	}
}

func TestProbeTimesOutWithoutMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		<-r.Context().Done()
	}))
	defer server.Close()

	client := New(wsURL(server), time.Second, time.Second, 0, zap.NewNop())
	if _, err := client.Probe(context.Background(), map[string]any{"method": "subscribe"}, 100*time.Millisecond); err == nil {
		t.Fatal("expected probe timeout")
	}
}
