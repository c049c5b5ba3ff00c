package tool

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/x402mail/x402mail-go/internal/mailapi"
)

type ListMessagesRequest struct {
	Limit      *int `json:"limit,omitempty" jsonschema:"max messages to return (default 10)"`
	UnreadOnly bool `json:"unread_only,omitempty" jsonschema:"only show unread messages"`
}

type ListMessagesResponse struct {
	Messages []mailapi.Message `json:"messages" jsonschema:"messages as returned by the server"`
}

type listMessagesSvc interface {
	Messages(ctx context.Context, q mailapi.MessagesQuery) ([]mailapi.Message, error)
}

func NewListMessages(provider ClientProvider) *ListMessages {
	return &ListMessages{provider: provider}
}

type ListMessages struct {
	provider ClientProvider
}

func (t *ListMessages) ListMessages(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListMessagesRequest,
) (*mcp.CallToolResult, ListMessagesResponse, error) {
	svc, err := t.provider.Client(ctx)
	if err != nil {
		return nil, ListMessagesResponse{}, err
	}

	messages, err := svc.Messages(ctx, mailapi.MessagesQuery{
		Limit:      input.Limit,
		UnreadOnly: input.UnreadOnly,
	})
	if err != nil {
		return nil, ListMessagesResponse{}, fmt.Errorf("list messages failed: %w", err)
	}
	if messages == nil {
		messages = []mailapi.Message{}
	}

	return nil, ListMessagesResponse{Messages: messages}, nil
}
