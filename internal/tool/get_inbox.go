package tool

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/x402mail/x402mail-go/internal/mailapi"
)

type GetInboxRequest struct{}

type getInboxSvc interface {
	Inbox(ctx context.Context) (mailapi.InboxSummary, error)
}

func NewGetInbox(provider ClientProvider) *GetInbox {
	return &GetInbox{provider: provider}
}

type GetInbox struct {
	provider ClientProvider
}

func (t *GetInbox) GetInbox(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ GetInboxRequest,
) (*mcp.CallToolResult, mailapi.InboxSummary, error) {
	svc, err := t.provider.Client(ctx)
	if err != nil {
		return nil, nil, err
	}

	res, err := svc.Inbox(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("get inbox failed: %w", err)
	}
	if res == nil {
		res = mailapi.InboxSummary{}
	}

	return nil, res, nil
}
