package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"hl-spread-bot/internal/config"

	"go.uber.org/zap"
)

func TestTelegramDisabledIsNoop(t *testing.T) {
	tg := NewTelegram(config.TelegramConfig{Enabled: false}, zap.NewNop())
	if err := tg.Send(context.Background(), "position opened"); err != nil {
		t.Fatalf("disabled send: %v", err)
	}
}

func TestTelegramSendsMessage(t *testing.T) {
	var gotPath string
	var gotPayload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer server.Close()

	tg := newTelegram(config.TelegramConfig{Enabled: true, Token: "tok", ChatID: "42"}, zap.NewNop(), server.URL, server.Client())
	if err := tg.Send(context.Background(), "position opened"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/bottok/sendMessage" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotPayload["chat_id"] != "42" || gotPayload["text"] != "position opened" {
		t.Fatalf("payload = %+v", gotPayload)
	}
}

func TestTelegramReportsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	}))
	defer server.Close()

	tg := newTelegram(config.TelegramConfig{Enabled: true, Token: "tok", ChatID: "42"}, zap.NewNop(), server.URL, server.Client())
	if err := tg.Send(context.Background(), "halted"); err == nil {
		t.Fatal("expected error for ok=false response")
	}
}

func TestTelegramRequiresCredentials(t *testing.T) {
	tg := NewTelegram(config.TelegramConfig{Enabled: true}, zap.NewNop())
	if err := tg.Send(context.Background(), "halted"); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}
