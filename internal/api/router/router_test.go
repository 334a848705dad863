package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/relaykit/whatsapp-relay/internal/conversation"
	"github.com/relaykit/whatsapp-relay/internal/webhook"
)

func newTestRouter(t *testing.T) (http.Handler, *conversation.Registry) {
	t.Helper()
	registry := conversation.NewRegistry()
	pending := conversation.NewPendingReplies(nil)
	wh := webhook.NewHandler(webhook.Config{
		AppSecret:   "secret",
		VerifyToken: "verify",
		Registry:    registry,
		Pending:     pending,
	})
	r := New(&Config{
		WebhookHandler: wh,
		Registry:       registry,
		StartTime:      time.Now().Add(-90 * time.Second),
	})
	return r, registry
}

func TestRootDescriptor(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["service"] != "whatsapp-relay" {
		t.Fatalf("unexpected descriptor: %v", body)
	}
}

func TestHealthReportsConversationsAndUptime(t *testing.T) {
	r, registry := newTestRouter(t)
	registry.GetOrCreate("+15551234567")
	registry.GetOrCreate("+15559876543")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Status              string `json:"status"`
		ActiveConversations int    `json:"activeConversations"`
		Uptime              string `json:"uptime"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("expected ok status, got %q", body.Status)
	}
	if body.ActiveConversations != 2 {
		t.Fatalf("expected 2 conversations, got %d", body.ActiveConversations)
	}
	if body.Uptime == "" {
		t.Fatal("expected uptime in response")
	}
}

func TestWebhookRoutesWired(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 from verify route, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 from unsigned event post, got %d", rec.Code)
	}
}
