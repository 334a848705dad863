package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/relaykit/whatsapp-relay/pkg/logging"
)

func newTestSender(t *testing.T, handler http.HandlerFunc) *WhatsAppSender {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewWhatsAppSender(WhatsAppConfig{
		AccessToken:   "token",
		PhoneNumberID: "12345",
		APIVersion:    "v23.0",
		BaseURL:       srv.URL,
	}, logging.Default())
}

func TestSendReturnsMessageID(t *testing.T) {
	var captured map[string]interface{}
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v23.0/12345/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"messages": []map[string]string{{"id": "wamid.abc123"}},
		})
	})

	id, err := sender.Send(context.Background(), "15551234567", "hello operator")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id != "wamid.abc123" {
		t.Fatalf("expected provider id, got %q", id)
	}
	if captured["to"] != "15551234567" {
		t.Errorf("expected to in payload, got %v", captured["to"])
	}
	text, _ := captured["text"].(map[string]interface{})
	if text["body"] != "hello operator" {
		t.Errorf("expected body in payload, got %v", captured["text"])
	}
}

func TestSendFailsWithoutMessageID(t *testing.T) {
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"messages": []map[string]string{}})
	})

	if _, err := sender.Send(context.Background(), "15551234567", "hello"); err == nil {
		t.Fatal("expected error when response carries no message id")
	}
}

func TestSendPropagatesAPIError(t *testing.T) {
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid token"}}`, http.StatusUnauthorized)
	})

	_, err := sender.Send(context.Background(), "15551234567", "hello")
	if err == nil {
		t.Fatal("expected error from 401 response")
	}
	if !strings.Contains(err.Error(), "status=401") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestSendValidatesInput(t *testing.T) {
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	if _, err := sender.Send(context.Background(), "", "hello"); err == nil {
		t.Fatal("expected error for empty recipient")
	}
	if _, err := sender.Send(context.Background(), "15551234567", "   "); err == nil {
		t.Fatal("expected error for blank text")
	}
}

func TestMarkRead(t *testing.T) {
	var captured map[string]interface{}
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})
	})

	if err := sender.MarkRead(context.Background(), "wamid.inbound"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if captured["status"] != "read" {
		t.Errorf("expected read status, got %v", captured["status"])
	}
	if captured["message_id"] != "wamid.inbound" {
		t.Errorf("expected message id, got %v", captured["message_id"])
	}
}

func TestTypingIndicator(t *testing.T) {
	var captured map[string]interface{}
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})
	})

	if err := sender.TypingIndicator(context.Background(), "15551234567", 2500); err != nil {
		t.Fatalf("TypingIndicator: %v", err)
	}
	if captured["type"] != "typing_on" {
		t.Errorf("expected typing_on payload, got %v", captured["type"])
	}
}
