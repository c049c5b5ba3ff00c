package mailapi_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x402mail/x402mail-go/internal/mailapi"
	"github.com/x402mail/x402mail-go/internal/wallet"
	"github.com/x402mail/x402mail-go/internal/x402"
)

const testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type recorded struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   []byte
}

// apiStub records requests and answers each with a fixed status and body.
type apiStub struct {
	status int
	body   string

	mu   sync.Mutex
	reqs []recorded
}

func (s *apiStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.reqs = append(s.reqs, recorded{
		method: r.Method,
		path:   r.URL.Path,
		query:  r.URL.Query(),
		header: r.Header.Clone(),
		body:   body,
	})
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(s.status)
	_, _ = io.WriteString(w, s.body)
}

func (s *apiStub) last(t *testing.T) recorded {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.reqs)
	return s.reqs[len(s.reqs)-1]
}

func newTestClient(t *testing.T, status int, body string, opts ...mailapi.Option) (*mailapi.Client, *apiStub) {
	t.Helper()

	stub := &apiStub{status: status, body: body}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	client, err := mailapi.NewFromPrivateKey(testPrivateKey, append([]mailapi.Option{mailapi.WithBaseURL(srv.URL)}, opts...)...)
	require.NoError(t, err)

	return client, stub
}

func TestSend(t *testing.T) {
	replyID := int64(12)

	cases := []struct {
		name         string
		msg          mailapi.OutboundMessage
		expectedBody map[string]any
	}{
		{
			name: "required only",
			msg:  mailapi.OutboundMessage{To: "a@b.com", Subject: "Hi", Body: "Hey"},
			expectedBody: map[string]any{
				"to": "a@b.com", "subject": "Hi", "body": "Hey",
			},
		},
		{
			name: "with optional",
			msg: mailapi.OutboundMessage{
				To: "a@b.com", Subject: "Re: Hi", Body: "Hey", ReplyTo: "me@x.com", ReplyToMessageID: &replyID,
			},
			expectedBody: map[string]any{
				"to": "a@b.com", "subject": "Re: Hi", "body": "Hey",
				"reply_to": "me@x.com", "reply_to_message_id": float64(12),
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, stub := newTestClient(t, http.StatusOK, `{"message_id":"x","inbox":"0xabc@x402mail.com"}`)

			res, err := client.Send(context.Background(), tc.msg)
			require.NoError(t, err)
			assert.Equal(t, mailapi.SendResult{"message_id": "x", "inbox": "0xabc@x402mail.com"}, res)

			req := stub.last(t)
			assert.Equal(t, http.MethodPost, req.method)
			assert.Equal(t, "/api/v1/send", req.path)
			assert.Equal(t, "application/json", req.header.Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.Unmarshal(req.body, &body))
			assert.Equal(t, tc.expectedBody, body)
		})
	}
}

func TestInbox(t *testing.T) {
	client, stub := newTestClient(t, http.StatusOK, `{"inbox":"0xabc@x402mail.com","total":5,"unread":2}`)

	res, err := client.Inbox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mailapi.InboxSummary{
		"inbox":  "0xabc@x402mail.com",
		"total":  json.Number("5"),
		"unread": json.Number("2"),
	}, res)

	req := stub.last(t)
	assert.Equal(t, http.MethodGet, req.method)
	assert.Equal(t, "/api/v1/inbox", req.path)
	assert.Empty(t, req.body)
}

func TestSendPassesResultThrough(t *testing.T) {
	client, stub := newTestClient(t, http.StatusOK, `{"message_id":42,"inbox":"0xabc@x402mail.com","queued_at":"2026-01-02T03:04:05Z"}`)

	res, err := client.Send(context.Background(), mailapi.OutboundMessage{To: "a@b.com", Subject: "Hi", Body: "Hey"})
	require.NoError(t, err)
	assert.Equal(t, mailapi.SendResult{
		"message_id": json.Number("42"),
		"inbox":      "0xabc@x402mail.com",
		"queued_at":  "2026-01-02T03:04:05Z",
	}, res)

	stub.mu.Lock()
	defer stub.mu.Unlock()
	assert.Len(t, stub.reqs, 1)
}

func TestMessages(t *testing.T) {
	three, zero, negative := 3, 0, -1

	cases := []struct {
		name          string
		query         mailapi.MessagesQuery
		expectedQuery url.Values
	}{
		{
			name:          "defaults",
			query:         mailapi.MessagesQuery{},
			expectedQuery: url.Values{"limit": {"10"}, "unread_only": {"false"}},
		},
		{
			name:          "unread only",
			query:         mailapi.MessagesQuery{Limit: &three, UnreadOnly: true},
			expectedQuery: url.Values{"limit": {"3"}, "unread_only": {"true"}},
		},
		{
			name:          "explicit zero",
			query:         mailapi.MessagesQuery{Limit: &zero},
			expectedQuery: url.Values{"limit": {"0"}, "unread_only": {"false"}},
		},
		{
			name:          "negative forwarded",
			query:         mailapi.MessagesQuery{Limit: &negative},
			expectedQuery: url.Values{"limit": {"-1"}, "unread_only": {"false"}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, stub := newTestClient(t, http.StatusOK, `[{"id":1,"subject":"hi","is_read":false}]`)

			msgs, err := client.Messages(context.Background(), tc.query)
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			assert.Equal(t, mailapi.Message{"id": json.Number("1"), "subject": "hi", "is_read": false}, msgs[0])

			req := stub.last(t)
			assert.Equal(t, "/api/v1/inbox/messages", req.path)
			assert.Equal(t, tc.expectedQuery, req.query)
		})
	}
}

func TestMessagesEmpty(t *testing.T) {
	client, _ := newTestClient(t, http.StatusOK, `[]`)

	msgs, err := client.Messages(context.Background(), mailapi.MessagesQuery{})
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

func TestRead(t *testing.T) {
	client, stub := newTestClient(t, http.StatusOK, `{"id":42,"subject":"hello","body":"hi","extra":{"x":[1,2]}}`)

	msg, err := client.Read(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, json.Number("42"), msg["id"])
	assert.Equal(t, "hello", msg["subject"])
	assert.Contains(t, msg, "extra")

	assert.Equal(t, "/api/v1/inbox/messages/42", stub.last(t).path)
}

func TestNon2xx(t *testing.T) {
	statuses := []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError}

	for _, status := range statuses {
		t.Run(http.StatusText(status), func(t *testing.T) {
			client, _ := newTestClient(t, status, `{"detail":"nope"}`)

			_, err := client.Inbox(context.Background())
			require.Error(t, err)

			var apiErr *mailapi.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, status, apiErr.StatusCode)
			assert.Equal(t, http.MethodGet, apiErr.Method)
			assert.Equal(t, "/api/v1/inbox", apiErr.Path)
			assert.Equal(t, `{"detail":"nope"}`, apiErr.Body)
		})
	}
}

func TestBadJSON(t *testing.T) {
	client, _ := newTestClient(t, http.StatusOK, `<html>`)

	_, err := client.Read(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode GET /api/v1/inbox/messages/1 response failed")
}

func TestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client, err := mailapi.NewFromPrivateKey(testPrivateKey,
		mailapi.WithBaseURL(srv.URL),
		mailapi.WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = client.Inbox(context.Background())
	require.Error(t, err)

	var netErr interface{ Timeout() bool }
	require.True(t, errors.As(err, &netErr))
	assert.True(t, netErr.Timeout())
}

func TestPaidRequest(t *testing.T) {
	requirements, err := json.Marshal(x402.PaymentRequirements{
		Scheme:  x402.SchemeExact,
		Network: x402.NetworkBase,
		Amount:  "1000",
		Asset:   "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		PayTo:   "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
	})
	require.NoError(t, err)
	challenge, err := json.Marshal(x402.PaymentRequired{X402Version: x402.V2, Accepts: []json.RawMessage{requirements}})
	require.NoError(t, err)

	var paidCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(x402.HeaderPaymentSignature) == "" {
			w.Header().Set(x402.HeaderPaymentRequired, base64.StdEncoding.EncodeToString(challenge))
			w.WriteHeader(http.StatusPaymentRequired)
			return
		}
		paidCalls.Add(1)
		_, _ = io.WriteString(w, `{"inbox":"0xf39f@x402mail.com","total":0,"unread":0}`)
	}))
	defer srv.Close()

	var events []x402.PaymentEvent
	client, err := mailapi.NewFromPrivateKey(testPrivateKey,
		mailapi.WithBaseURL(srv.URL),
		mailapi.WithPaymentHook(func(ev x402.PaymentEvent) { events = append(events, ev) }))
	require.NoError(t, err)

	res, err := client.Inbox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0xf39f@x402mail.com", res["inbox"])
	assert.Equal(t, int32(1), paidCalls.Load())

	require.Len(t, events, 1)
	assert.NoError(t, events[0].Err)
	assert.Equal(t, "1000", events[0].Amount)
}

func TestNew(t *testing.T) {
	signer, err := wallet.FromPrivateKey(testPrivateKey)
	require.NoError(t, err)

	t.Run("default base URL", func(t *testing.T) {
		client, err := mailapi.New(signer)
		require.NoError(t, err)
		assert.Equal(t, mailapi.DefaultBaseURL, client.BaseURL())
		assert.Equal(t, signer.Address(), client.Address())
	})

	t.Run("empty override keeps default", func(t *testing.T) {
		client, err := mailapi.New(signer, mailapi.WithBaseURL(""))
		require.NoError(t, err)
		assert.Equal(t, mailapi.DefaultBaseURL, client.BaseURL())
	})

	t.Run("trailing slash trimmed", func(t *testing.T) {
		client, err := mailapi.New(signer, mailapi.WithBaseURL("http://localhost:8000/"))
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8000", client.BaseURL())
	})

	t.Run("invalid base URL", func(t *testing.T) {
		_, err := mailapi.New(signer, mailapi.WithBaseURL("localhost"))
		require.Error(t, err)
	})

	t.Run("invalid private key", func(t *testing.T) {
		_, err := mailapi.NewFromPrivateKey("0x1234")
		require.ErrorIs(t, err, wallet.ErrInvalidPrivateKey)
	})
}
