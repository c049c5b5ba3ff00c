package tool

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/x402mail/x402mail-go/internal/mailapi"
)

type ReadMessageRequest struct {
	MessageID int64 `json:"message_id" jsonschema:"the ID of the message to read"`
}

type readMessageSvc interface {
	Read(ctx context.Context, messageID int64) (mailapi.Message, error)
}

func NewReadMessage(provider ClientProvider) *ReadMessage {
	return &ReadMessage{provider: provider}
}

// ReadMessage fetches a full message and marks it read.
type ReadMessage struct {
	provider ClientProvider
}

func (t *ReadMessage) ReadMessage(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ReadMessageRequest,
) (*mcp.CallToolResult, mailapi.Message, error) {
	svc, err := t.provider.Client(ctx)
	if err != nil {
		return nil, nil, err
	}

	msg, err := svc.Read(ctx, input.MessageID)
	if err != nil {
		return nil, nil, fmt.Errorf("read message %d failed: %w", input.MessageID, err)
	}
	if msg == nil {
		msg = mailapi.Message{}
	}

	return nil, msg, nil
}
