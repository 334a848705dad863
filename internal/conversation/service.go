package conversation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/relaykit/whatsapp-relay/internal/messaging"
	"github.com/relaykit/whatsapp-relay/internal/observability/metrics"
	"github.com/relaykit/whatsapp-relay/pkg/logging"
)

var serviceTracer = otel.Tracer("relay.internal.conversation.service")

// typingHintMillis is how long a typing bubble is requested before a send.
const typingHintMillis = 2000

// SendResult is the outcome of one relayed message. A timeout while waiting
// for a reply is a success at this boundary, reported through TimedOut.
type SendResult struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Reply          string `json:"reply,omitempty"`
	TimedOut       bool   `json:"timed_out,omitempty"`
	Waited         bool   `json:"waited"`
}

// ServiceConfig wires the relay service's collaborators.
type ServiceConfig struct {
	Registry       *Registry
	Pending        *PendingReplies
	Gateway        messaging.Gateway
	OperatorNumber string
	DefaultTimeout time.Duration
	Logger         *logging.Logger
	Metrics        *metrics.RelayMetrics
}

// Service implements the tool-facing relay operations against the configured
// operator number: send a message, optionally blocking for the reply, and
// read back conversation history.
type Service struct {
	registry *Registry
	pending  *PendingReplies
	gateway  messaging.Gateway
	operator string
	timeout  time.Duration
	logger   *logging.Logger
	metrics  *metrics.RelayMetrics
}

// NewService creates the relay service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Registry == nil {
		panic("conversation: registry cannot be nil")
	}
	if cfg.Pending == nil {
		panic("conversation: pending table cannot be nil")
	}
	if cfg.Gateway == nil {
		panic("conversation: gateway cannot be nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &Service{
		registry: cfg.Registry,
		pending:  cfg.Pending,
		gateway:  cfg.Gateway,
		operator: cfg.OperatorNumber,
		timeout:  timeout,
		logger:   logger,
		metrics:  cfg.Metrics,
	}
}

// SendMessage relays text to the operator. When waitForReply is set it blocks
// until the operator's next inbound message resolves the wait or the timeout
// elapses; both are successful outcomes. A zero timeout uses the default.
func (s *Service) SendMessage(ctx context.Context, text string, waitForReply bool, timeout time.Duration) (*SendResult, error) {
	ctx, span := serviceTracer.Start(ctx, "conversation.send_message")
	defer span.End()
	span.SetAttributes(attribute.Bool("relay.wait_for_reply", waitForReply))

	convID := s.registry.GetOrCreate(s.operator)

	if err := s.gateway.TypingIndicator(ctx, s.operator, typingHintMillis); err != nil {
		s.logger.Debug("typing indicator failed", "error", err)
	}

	messageID, err := s.gateway.Send(ctx, s.operator, text)
	if err != nil {
		s.metrics.ObserveOutbound("error")
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: send failed: %w", err)
	}
	s.metrics.ObserveOutbound("sent")
	s.registry.AppendMessage(convID, RoleAssistant, text, time.Now())

	result := &SendResult{ConversationID: convID, MessageID: messageID}
	if !waitForReply {
		s.logger.Info("message relayed", "conversation_id", convID, "message_id", messageID)
		return result, nil
	}

	if timeout <= 0 {
		timeout = s.timeout
	}
	key := messaging.NormalizeKey(s.operator)
	outcomes := s.pending.Register(key, timeout)
	s.metrics.SetReplyWaits(s.pending.Len())
	s.logger.Info("waiting for operator reply", "conversation_id", convID, "timeout", timeout)

	result.Waited = true
	select {
	case outcome := <-outcomes:
		s.metrics.SetReplyWaits(s.pending.Len())
		if outcome.TimedOut {
			s.metrics.ObserveReplyOutcome("timeout")
			s.logger.Info("reply wait timed out", "conversation_id", convID)
			result.TimedOut = true
			return result, nil
		}
		s.metrics.ObserveReplyOutcome("resolved")
		s.logger.Info("reply received", "conversation_id", convID)
		result.Reply = outcome.Reply
		return result, nil
	case <-ctx.Done():
		s.metrics.SetReplyWaits(s.pending.Len())
		span.RecordError(ctx.Err())
		return nil, ctx.Err()
	}
}

// History returns the most recently created conversation's last limit
// messages in chronological order. An empty registry yields an empty slice.
func (s *Service) History(limit int) []Message {
	id, ok := s.registry.LatestID()
	if !ok {
		return []Message{}
	}
	return s.registry.History(id, limit)
}
