package tool

import (
	"context"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/x402mail/x402mail-go/internal/telemetry"
)

const (
	serverName         = "x402mail"
	serverInstructions = "Email tools powered by x402 micropayments. " +
		"Send emails, check your inbox, and read messages. " +
		"Your inbox address is derived from your wallet."
)

// Tool names.
const (
	ToolSendEmail    = "send_email"
	ToolGetInbox     = "get_inbox"
	ToolListMessages = "list_messages"
	ToolReadMessage  = "read_message"
)

// ServerOption configures NewServer.
type ServerOption func(*serverOptions)

type serverOptions struct {
	version string
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// WithVersion sets the version reported to the host.
func WithVersion(v string) ServerOption {
	return func(o *serverOptions) { o.version = v }
}

// WithLogger sets the logger for failed tool calls.
func WithLogger(l *slog.Logger) ServerOption {
	return func(o *serverOptions) { o.logger = l }
}

// WithMetrics records every tool call.
func WithMetrics(m *telemetry.Metrics) ServerOption {
	return func(o *serverOptions) { o.metrics = m }
}

// NewServer creates an MCP server with the mail tools. The mail client is
// obtained from provider on every call.
func NewServer(provider ClientProvider, opts ...ServerOption) *mcp.Server {
	o := &serverOptions{version: "dev", logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	server := mcp.NewServer(
		&mcp.Implementation{Name: serverName, Version: o.version},
		&mcp.ServerOptions{Instructions: serverInstructions},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolSendEmail,
		Description: "Send an email. Costs ~$0.005 in USDC. Returns the message_id and your inbox address.",
	}, instrument(o, ToolSendEmail, NewSendEmail(provider).SendEmail))

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolGetInbox,
		Description: "Get your inbox address and message counts. Costs ~$0.001 in USDC. Returns your inbox address, total message count, and unread count.",
	}, instrument(o, ToolGetInbox, NewGetInbox(provider).GetInbox))

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolListMessages,
		Description: "List inbox messages. Costs ~$0.002 in USDC. Returns messages with id, from, subject, preview, received_at, is_read.",
	}, instrument(o, ToolListMessages, NewListMessages(provider).ListMessages))

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolReadMessage,
		Description: "Read a specific message by ID. Marks it as read. Costs ~$0.001 in USDC. Returns the full message with from, subject, body, received_at.",
	}, instrument(o, ToolReadMessage, NewReadMessage(provider).ReadMessage))

	return server
}

func instrument[In, Out any](o *serverOptions, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		res, out, err := h(ctx, req, input)
		o.metrics.RecordToolCall(ctx, name, time.Since(start), err)
		if err != nil {
			o.logger.Warn("tool call failed", "tool", name, "error", err)
		}
		return res, out, err
	}
}
