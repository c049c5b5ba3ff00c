package tool

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/x402mail/x402mail-go/internal/mailapi"
)

type SendEmailRequest struct {
	To               string `json:"to" jsonschema:"recipient email address"`
	Subject          string `json:"subject" jsonschema:"email subject line"`
	Body             string `json:"body" jsonschema:"email body (plain text or HTML)"`
	ReplyTo          string `json:"reply_to,omitempty" jsonschema:"optional reply-to address"`
	ReplyToMessageID *int64 `json:"reply_to_message_id,omitempty" jsonschema:"optional message ID to reply to (for threading)"`
}

type sendEmailSvc interface {
	Send(ctx context.Context, msg mailapi.OutboundMessage) (mailapi.SendResult, error)
}

func NewSendEmail(provider ClientProvider) *SendEmail {
	return &SendEmail{provider: provider}
}

// SendEmail sends an email through the paid API.
type SendEmail struct {
	provider ClientProvider
}

func (t *SendEmail) SendEmail(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SendEmailRequest,
) (*mcp.CallToolResult, mailapi.SendResult, error) {
	svc, err := t.provider.Client(ctx)
	if err != nil {
		return nil, nil, err
	}

	res, err := svc.Send(ctx, mailapi.OutboundMessage{
		To:               input.To,
		Subject:          input.Subject,
		Body:             input.Body,
		ReplyTo:          input.ReplyTo,
		ReplyToMessageID: input.ReplyToMessageID,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("send email failed: %w", err)
	}
	if res == nil {
		res = mailapi.SendResult{}
	}

	return nil, res, nil
}
