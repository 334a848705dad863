package mcptool

import (
	"context"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/relaykit/whatsapp-relay/internal/conversation"
	"github.com/relaykit/whatsapp-relay/pkg/logging"
)

const defaultTimeoutMs = 3600000

// Implementation identifies this server to MCP clients.
var Implementation = &mcp.Implementation{Name: "whatsapp-relay", Version: "1.0.0"}

// NewServer builds an MCP server exposing the relay tools.
func NewServer(svc *conversation.Service, logger *logging.Logger) *mcp.Server {
	if logger == nil {
		logger = logging.Default()
	}
	srv := mcp.NewServer(Implementation, nil)
	registerSendMessage(srv, svc, logger)
	registerHistory(srv, svc)
	return srv
}

// NewHTTPHandler mounts the MCP server over streamable HTTP.
func NewHTTPHandler(srv *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return srv
	}, nil)
}

// --- send_message ---

type sendMessageArgs struct {
	Message      string `json:"message" jsonschema:"Text to relay to the operator over WhatsApp"`
	WaitForReply bool   `json:"wait_for_reply,omitempty" jsonschema:"Block until the operator replies or the timeout elapses"`
	TimeoutMs    int    `json:"timeout_ms,omitempty" jsonschema:"Reply-wait timeout in milliseconds (default one hour)"`
}

type sendMessageResult struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Reply          string `json:"reply,omitempty"`
	TimedOut       bool   `json:"timed_out,omitempty"`
	Waited         bool   `json:"waited"`
}

func registerSendMessage(srv *mcp.Server, svc *conversation.Service, logger *logging.Logger) {
	tool := &mcp.Tool{
		Name:        "send_message",
		Description: "Send a WhatsApp message to the operator, optionally blocking until they reply. A timeout while waiting is a normal outcome, not an error.",
	}

	mcp.AddTool(srv, tool, func(ctx context.Context, _ *mcp.CallToolRequest, args sendMessageArgs) (*mcp.CallToolResult, sendMessageResult, error) {
		timeoutMs := args.TimeoutMs
		if timeoutMs <= 0 {
			timeoutMs = defaultTimeoutMs
		}
		result, err := svc.SendMessage(ctx, args.Message, args.WaitForReply, time.Duration(timeoutMs)*time.Millisecond)
		if err != nil {
			logger.Error("send_message tool failed", "error", err)
			return nil, sendMessageResult{}, err
		}
		return nil, sendMessageResult{
			ConversationID: result.ConversationID,
			MessageID:      result.MessageID,
			Reply:          result.Reply,
			TimedOut:       result.TimedOut,
			Waited:         result.Waited,
		}, nil
	})
}

// --- get_conversation_history ---

type historyArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of most recent messages to return (default 20)"`
}

type historyResult struct {
	Messages []conversation.Message `json:"messages"`
}

func registerHistory(srv *mcp.Server, svc *conversation.Service) {
	tool := &mcp.Tool{
		Name:        "get_conversation_history",
		Description: "Return the most recent messages exchanged with the operator, oldest first.",
	}

	mcp.AddTool(srv, tool, func(_ context.Context, _ *mcp.CallToolRequest, args historyArgs) (*mcp.CallToolResult, historyResult, error) {
		limit := args.Limit
		if limit <= 0 {
			limit = 20
		}
		return nil, historyResult{Messages: svc.History(limit)}, nil
	})
}
