package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/relaykit/whatsapp-relay/internal/conversation"
	"github.com/relaykit/whatsapp-relay/internal/messaging"
	"github.com/relaykit/whatsapp-relay/internal/observability/metrics"
	"github.com/relaykit/whatsapp-relay/pkg/logging"
)

var errInvalidSignature = errors.New("webhook: invalid signature")

// expectedObject is the top-level tag Meta sets on WhatsApp Business deliveries.
const expectedObject = "whatsapp_business_account"

// Config wires the webhook handler's collaborators.
type Config struct {
	AppSecret   string
	VerifyToken string
	Registry    *conversation.Registry
	Pending     *conversation.PendingReplies
	Gateway     messaging.Gateway
	Logger      *logging.Logger
	Metrics     *metrics.RelayMetrics
}

// Handler processes WhatsApp Cloud API webhook traffic: the one-time
// subscription handshake and per-delivery event batches.
type Handler struct {
	appSecret   string
	verifyToken string
	registry    *conversation.Registry
	pending     *conversation.PendingReplies
	gateway     messaging.Gateway
	logger      *logging.Logger
	metrics     *metrics.RelayMetrics
	tracer      trace.Tracer
}

// NewHandler creates a webhook handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Registry == nil {
		panic("webhook: registry cannot be nil")
	}
	if cfg.Pending == nil {
		panic("webhook: pending table cannot be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		appSecret:   cfg.AppSecret,
		verifyToken: cfg.VerifyToken,
		registry:    cfg.Registry,
		pending:     cfg.Pending,
		gateway:     cfg.Gateway,
		logger:      logger,
		metrics:     cfg.Metrics,
		tracer:      otel.Tracer("relay.internal.webhook"),
	}
}

// HandleVerify answers GET /webhook, the subscription handshake: echo the
// challenge when mode is subscribe and the token matches, 403 otherwise.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && VerifyToken(h.verifyToken, token) {
		h.logger.Info("webhook subscription verified")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
		return
	}

	h.logger.Warn("webhook verification rejected", "mode", mode)
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleEvents answers POST /webhook. Deliveries move through
// received -> verified -> parsed -> dispatched -> acknowledged; signature
// failures 401, unparseable bodies 400, and everything after a successful
// parse acknowledges 200 so the provider never re-delivers a batch whose
// sub-entries partially failed.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "webhook.handle_events")
	defer span.End()
	start := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.metrics.ObserveInbound("delivery", "read_error")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if !VerifySignature(h.appSecret, r.Header.Get(SignatureHeader), body) {
		h.logger.Warn("invalid webhook signature")
		h.metrics.ObserveInbound("delivery", "unauthorized")
		span.RecordError(errInvalidSignature)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.logger.Error("failed to parse webhook payload", "error", err)
		h.metrics.ObserveInbound("delivery", "malformed")
		span.RecordError(err)
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	if payload.Object != expectedObject {
		// Irrelevant traffic, not an error.
		h.metrics.ObserveInbound("delivery", "ignored")
		w.WriteHeader(http.StatusOK)
		return
	}
	span.SetAttributes(attribute.Int("relay.entries", len(payload.Entry)))

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				h.processMessage(ctx, msg)
			}
			for _, status := range change.Value.Statuses {
				// Delivery/read receipts are informational only.
				h.logger.Debug("status update",
					"message_id", status.ID,
					"status", status.Status,
					"recipient", status.RecipientID,
				)
				h.metrics.ObserveInbound("status", "ok")
			}
		}
	}

	h.metrics.ObserveInbound("delivery", "ok")
	h.metrics.ObserveWebhookLatency("delivery", time.Since(start).Seconds())
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) processMessage(ctx context.Context, msg Message) {
	text, ok := extractText(msg)
	if !ok {
		h.logger.Info("skipping unsupported message kind", "type", msg.Type, "message_id", msg.ID)
		h.metrics.ObserveInbound("message", "skipped")
		return
	}

	if h.gateway != nil && msg.ID != "" {
		// Best effort; a failed read receipt must not abort the batch.
		if err := h.gateway.MarkRead(ctx, msg.ID); err != nil {
			h.logger.Debug("mark read failed", "message_id", msg.ID, "error", err)
		}
	}

	convID := h.registry.GetOrCreate(msg.From)
	h.registry.AppendMessage(convID, conversation.RoleUser, text, messageTime(msg.Timestamp))

	key := messaging.NormalizeKey(msg.From)
	if h.pending.Resolve(key, text) {
		h.logger.Info("inbound message resolved a reply wait", "conversation_id", convID)
		h.metrics.SetReplyWaits(h.pending.Len())
	} else {
		h.logger.Info("inbound message recorded", "conversation_id", convID)
	}
	h.metrics.ObserveInbound("message", "ok")
}

// messageTime converts the provider's unix-seconds string, falling back to now.
func messageTime(ts string) time.Time {
	if secs, err := strconv.ParseInt(ts, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0)
	}
	return time.Now()
}
