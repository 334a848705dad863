package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/relaykit/whatsapp-relay/pkg/logging"
)

var whatsappTracer = otel.Tracer("relay.internal.messaging.whatsapp")

const graphAPIBaseURL = "https://graph.facebook.com"

// WhatsAppSender sends messages through the WhatsApp Cloud API (Graph API).
type WhatsAppSender struct {
	accessToken   string
	phoneNumberID string
	baseURL       string
	httpClient    *http.Client
	logger        *logging.Logger
}

// WhatsAppConfig carries the Cloud API credentials for the sender.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	APIVersion    string
	// BaseURL overrides the Graph API host, used by tests.
	BaseURL string
}

// NewWhatsAppSender builds a sender for the WhatsApp Cloud API.
func NewWhatsAppSender(cfg WhatsAppConfig, logger *logging.Logger) *WhatsAppSender {
	if logger == nil {
		logger = logging.Default()
	}
	version := cfg.APIVersion
	if version == "" {
		version = "v23.0"
	}
	base := cfg.BaseURL
	if base == "" {
		base = graphAPIBaseURL
	}
	return &WhatsAppSender{
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		baseURL:       fmt.Sprintf("%s/%s/%s", base, version, cfg.PhoneNumberID),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

var _ Gateway = (*WhatsAppSender)(nil)

// Send posts a text message and returns the provider message id.
func (s *WhatsAppSender) Send(ctx context.Context, to, text string) (string, error) {
	if s.accessToken == "" {
		return "", errors.New("messaging: whatsapp access token missing")
	}
	if to == "" {
		return "", errors.New("messaging: to required")
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("messaging: text required")
	}

	ctx, span := whatsappTracer.Start(ctx, "messaging.whatsapp.send")
	defer span.End()
	span.SetAttributes(attribute.String("relay.to", to))

	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": text},
	}

	body, err := s.post(ctx, "/messages", payload)
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	var parsed struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("messaging: failed to decode send response: %w", err)
	}
	if len(parsed.Messages) == 0 || parsed.Messages[0].ID == "" {
		err := errors.New("messaging: send response carried no message id")
		span.RecordError(err)
		return "", err
	}

	s.logger.Info("whatsapp message sent", "to", to, "message_id", parsed.Messages[0].ID)
	return parsed.Messages[0].ID, nil
}

// MarkRead flags an inbound message as read. Callers treat failures as non-fatal.
func (s *WhatsAppSender) MarkRead(ctx context.Context, messageID string) error {
	if messageID == "" {
		return errors.New("messaging: message id required")
	}

	ctx, span := whatsappTracer.Start(ctx, "messaging.whatsapp.mark_read")
	defer span.End()

	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	}
	_, err := s.post(ctx, "/messages", payload)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// TypingIndicator shows a typing bubble to the recipient. The Cloud API ties
// the indicator to the last read message, so this reuses the read receipt
// endpoint; durationHint is advisory only and not sent on the wire.
func (s *WhatsAppSender) TypingIndicator(ctx context.Context, to string, durationHint int) error {
	if to == "" {
		return errors.New("messaging: to required")
	}

	ctx, span := whatsappTracer.Start(ctx, "messaging.whatsapp.typing")
	defer span.End()
	span.SetAttributes(attribute.Int("relay.typing_hint_ms", durationHint))

	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "typing_on",
	}
	_, err := s.post(ctx, "/messages", payload)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (s *WhatsAppSender) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("messaging: failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("messaging: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("messaging: whatsapp request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("messaging: whatsapp API error: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
