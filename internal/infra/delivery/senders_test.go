package delivery

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	domain "subscription_reminder_bot/internal/domain/delivery"
	"subscription_reminder_bot/internal/domain/subscription"
	"subscription_reminder_bot/internal/domain/user"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
	"gopkg.in/telebot.v3"
)

type capturedRequest struct {
	header http.Header
	body   map[string]any
}

type captureServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []capturedRequest
	status   int
}

func newCaptureServer(t *testing.T) *captureServer {
	t.Helper()
	cs := &captureServer{status: http.StatusOK}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		cs.mu.Lock()
		cs.requests = append(cs.requests, capturedRequest{header: r.Header.Clone(), body: body})
		status := cs.status
		cs.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *captureServer) last(t *testing.T) capturedRequest {
	t.Helper()
	cs.mu.Lock()
	defer cs.mu.Unlock()
	require.NotEmpty(t, cs.requests)
	return cs.requests[len(cs.requests)-1]
}

func testPoster() *Poster {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewPoster(100, 2*time.Second, logrus.NewEntry(l))
}

func testMessage() domain.Message {
	return domain.Message{
		Kind:          domain.KindDue,
		Title:         "Netflix payment due",
		Text:          "Netflix (12.99 EUR) is due now.",
		MarkAsPaidURL: "https://subs.example.com/api/mark-as-paid?token=abc",
		DashboardURL:  "https://subs.example.com",
		Subscription: &subscription.Subscription{
			ID:          uuid.MustParse("5b1e3c1e-3f5a-4c8e-9d1a-2f4b6c8d0e1f"),
			Name:        "Netflix",
			Price:       decimal.RequireFromString("12.99"),
			Currency:    "EUR",
			PaymentDate: time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC),
		},
		SentAt: time.Date(2025, 7, 10, 9, 1, 0, 0, time.UTC),
	}
}

func TestWebhookSender_PostsEvent(t *testing.T) {
	srv := newCaptureServer(t)
	rcpt := &user.User{ExternalServices: user.ExternalServices{
		Webhook: user.ExternalService{Enabled: true, URL: srv.URL, Token: "tok"},
	}}

	err := NewWebhookSender(testPoster()).Send(context.Background(), rcpt, testMessage())
	require.NoError(t, err)

	req := srv.last(t)
	assert.Equal(t, "Bearer tok", req.header.Get("Authorization"))
	assert.Equal(t, "application/json", req.header.Get("Content-Type"))
	assert.Equal(t, "payment_due_now", req.body["event"])
	assert.Equal(t, "12.99", req.body["price"])
	assert.Equal(t, "2025-07-10T09:00:00Z", req.body["paymentDate"])
	assert.Equal(t, "5b1e3c1e-3f5a-4c8e-9d1a-2f4b6c8d0e1f", req.body["subscriptionId"])
}

func TestWebhookSender_NotConfigured(t *testing.T) {
	rcpt := &user.User{ExternalServices: user.ExternalServices{
		Webhook: user.ExternalService{Enabled: false, URL: "http://unused"},
	}}
	err := NewWebhookSender(testPoster()).Send(context.Background(), rcpt, testMessage())
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestPoster_NonSuccessStatusIsError(t *testing.T) {
	srv := newCaptureServer(t)
	srv.status = http.StatusBadGateway

	err := testPoster().PostJSON(context.Background(), srv.URL, nil, map[string]string{"a": "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNtfySender_DefaultsTopicAndAddsAction(t *testing.T) {
	srv := newCaptureServer(t)
	rcpt := &user.User{ExternalServices: user.ExternalServices{
		Ntfy: user.ExternalService{Enabled: true, URL: srv.URL},
	}}

	require.NoError(t, NewNtfySender(testPoster()).Send(context.Background(), rcpt, testMessage()))

	req := srv.last(t)
	assert.Empty(t, req.header.Get("Authorization"))
	assert.Equal(t, defaultNtfyTopic, req.body["topic"])
	actions, ok := req.body["actions"].([]any)
	require.True(t, ok)
	require.Len(t, actions, 1)
	assert.Equal(t, "https://subs.example.com/api/mark-as-paid?token=abc", actions[0].(map[string]any)["url"])
}

func TestDiscordAndSlackSenders(t *testing.T) {
	srv := newCaptureServer(t)
	rcpt := &user.User{ExternalServices: user.ExternalServices{
		Discord: user.ExternalService{Enabled: true, URL: srv.URL},
		Slack:   user.ExternalService{Enabled: true, URL: srv.URL},
	}}
	p := testPoster()

	require.NoError(t, NewDiscordSender(p).Send(context.Background(), rcpt, testMessage()))
	embeds := srv.last(t).body["embeds"].([]any)
	require.Len(t, embeds, 1)
	assert.Equal(t, "Netflix payment due", embeds[0].(map[string]any)["title"])

	require.NoError(t, NewSlackSender(p).Send(context.Background(), rcpt, testMessage()))
	blocks := srv.last(t).body["blocks"].([]any)
	assert.Len(t, blocks, 3)
	assert.Contains(t, srv.last(t).body["text"], "Netflix payment due")
}

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func TestEmailSender(t *testing.T) {
	d := &fakeDialer{}
	s := NewEmailSender(d, "reminders@example.com")

	err := s.Send(context.Background(), &user.User{}, testMessage())
	assert.ErrorIs(t, err, domain.ErrNotConfigured)

	rcpt := &user.User{Email: sql.NullString{String: "ana@example.com", Valid: true}}
	require.NoError(t, s.Send(context.Background(), rcpt, testMessage()))
	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"ana@example.com"}, d.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"Netflix payment due"}, d.sent[0].GetHeader("Subject"))

	d.err = errors.New("smtp down")
	assert.Error(t, s.Send(context.Background(), rcpt, testMessage()))
}

type fakeTelegram struct {
	chatID int64
	text   string
	opts   *telebot.SendOptions
}

func (f *fakeTelegram) SendMessage(chatID int64, text string, opts *telebot.SendOptions) error {
	f.chatID, f.text, f.opts = chatID, text, opts
	return nil
}

func TestTelegramPushSender(t *testing.T) {
	tg := &fakeTelegram{}
	s := NewTelegramPushSender(tg)

	assert.ErrorIs(t, s.Send(context.Background(), &user.User{}, testMessage()), domain.ErrNotConfigured)

	require.NoError(t, s.Send(context.Background(), &user.User{TelegramID: 42}, testMessage()))
	assert.Equal(t, int64(42), tg.chatID)
	assert.Contains(t, tg.text, "<b>Netflix payment due</b>")
	require.NotNil(t, tg.opts.ReplyMarkup)
	require.Len(t, tg.opts.ReplyMarkup.InlineKeyboard, 1)
	assert.Len(t, tg.opts.ReplyMarkup.InlineKeyboard[0], 2)
}
