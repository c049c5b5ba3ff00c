package tool_test

import (
	"context"
	"sync"

	"github.com/x402mail/x402mail-go/internal/mailapi"
	"github.com/x402mail/x402mail-go/internal/tool"
)

var _ tool.MailService = (*mailSvcMock)(nil)

type mailSvcMock struct {
	SendFunc     func(ctx context.Context, msg mailapi.OutboundMessage) (mailapi.SendResult, error)
	InboxFunc    func(ctx context.Context) (mailapi.InboxSummary, error)
	MessagesFunc func(ctx context.Context, q mailapi.MessagesQuery) ([]mailapi.Message, error)
	ReadFunc     func(ctx context.Context, messageID int64) (mailapi.Message, error)

	mu    sync.Mutex
	calls struct {
		Send     []mailapi.OutboundMessage
		Messages []mailapi.MessagesQuery
		Read     []int64
		Inbox    int
	}
}

func (m *mailSvcMock) Send(ctx context.Context, msg mailapi.OutboundMessage) (mailapi.SendResult, error) {
	if m.SendFunc == nil {
		panic("mailSvcMock.SendFunc: method is nil but Send was just called")
	}
	m.mu.Lock()
	m.calls.Send = append(m.calls.Send, msg)
	m.mu.Unlock()
	return m.SendFunc(ctx, msg)
}

func (m *mailSvcMock) Inbox(ctx context.Context) (mailapi.InboxSummary, error) {
	if m.InboxFunc == nil {
		panic("mailSvcMock.InboxFunc: method is nil but Inbox was just called")
	}
	m.mu.Lock()
	m.calls.Inbox++
	m.mu.Unlock()
	return m.InboxFunc(ctx)
}

func (m *mailSvcMock) Messages(ctx context.Context, q mailapi.MessagesQuery) ([]mailapi.Message, error) {
	if m.MessagesFunc == nil {
		panic("mailSvcMock.MessagesFunc: method is nil but Messages was just called")
	}
	m.mu.Lock()
	m.calls.Messages = append(m.calls.Messages, q)
	m.mu.Unlock()
	return m.MessagesFunc(ctx, q)
}

func (m *mailSvcMock) Read(ctx context.Context, messageID int64) (mailapi.Message, error) {
	if m.ReadFunc == nil {
		panic("mailSvcMock.ReadFunc: method is nil but Read was just called")
	}
	m.mu.Lock()
	m.calls.Read = append(m.calls.Read, messageID)
	m.mu.Unlock()
	return m.ReadFunc(ctx, messageID)
}

// staticProvider always returns the same service or error.
type staticProvider struct {
	svc tool.MailService
	err error
}

func (p staticProvider) Client(context.Context) (tool.MailService, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.svc, nil
}
