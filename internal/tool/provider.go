package tool

import (
	"context"
	"sync"
)

// MailService is the mail client as seen by the tools.
type MailService interface {
	sendEmailSvc
	getInboxSvc
	listMessagesSvc
	readMessageSvc
}

// ClientProvider hands out the mail client used by tool handlers.
type ClientProvider interface {
	Client(ctx context.Context) (MailService, error)
}

// ClientFactory builds a mail client.
type ClientFactory func(ctx context.Context) (MailService, error)

// LazyClient builds the client on first use and reuses it afterwards.
// Failed builds are not cached.
type LazyClient struct {
	mu      sync.Mutex
	factory ClientFactory
	client  MailService
}

// NewLazyClient creates a provider around factory.
func NewLazyClient(factory ClientFactory) *LazyClient {
	return &LazyClient{factory: factory}
}

func (l *LazyClient) Client(ctx context.Context) (MailService, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client != nil {
		return l.client, nil
	}

	c, err := l.factory(ctx)
	if err != nil {
		return nil, err
	}
	l.client = c

	return c, nil
}
