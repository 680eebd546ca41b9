package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/binarymm/internal/domain"
)

type recordingSender struct {
	name   string
	mu     sync.Mutex
	titles []string
	err    error
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.titles)
}

type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = make(map[string][][]byte)
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *memBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type memJournal struct {
	alerts []domain.Alert
	err    error
}

func (j *memJournal) RecordAlert(_ context.Context, a domain.Alert) error {
	j.alerts = append(j.alerts, a)
	return j.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func alert(level domain.AlertLevel) domain.Alert {
	return domain.Alert{
		ID:        "a-" + string(level),
		Level:     level,
		Type:      "stop_loss",
		Message:   "loss 12% on btc_100k",
		MarketID:  "btc_100k",
		Action:    "CLOSE_POSITION",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDeliverFiltersSendersByLevel(t *testing.T) {
	sender := &recordingSender{name: "rec"}
	bus := &memBus{}
	journal := &memJournal{}
	n := NewNotifier(Config{MinLevel: domain.AlertWarning}, []Sender{sender}, bus, journal, testLogger())

	require.NoError(t, n.Deliver(context.Background(), alert(domain.AlertInfo)))
	require.NoError(t, n.Deliver(context.Background(), alert(domain.AlertWarning)))
	require.NoError(t, n.Deliver(context.Background(), alert(domain.AlertCritical)))

	assert.Equal(t, []string{"[WARNING] stop_loss", "[CRITICAL] stop_loss"}, sender.titles)
	assert.Len(t, bus.published[domain.ChannelAlerts], 3, "every alert is published")
	assert.Len(t, journal.alerts, 3, "every alert is journaled")

	var ev map[string]any
	require.NoError(t, json.Unmarshal(bus.published[domain.ChannelAlerts][0], &ev))
	assert.Equal(t, "info", ev["level"])
	assert.Equal(t, "btc_100k", ev["market_id"])
}

func TestDeliverAttemptsEveryDestination(t *testing.T) {
	failing := &recordingSender{name: "down", err: errors.New("502")}
	ok := &recordingSender{name: "up"}
	journal := &memJournal{err: errors.New("pg down")}
	n := NewNotifier(Config{}, []Sender{failing, ok}, nil, journal, testLogger())

	err := n.Deliver(context.Background(), alert(domain.AlertCritical))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pg down")
	assert.Contains(t, err.Error(), "down: 502")
	assert.Equal(t, 1, ok.count())
}

func TestHandleQueuesForRun(t *testing.T) {
	sender := &recordingSender{name: "rec"}
	n := NewNotifier(Config{MinLevel: domain.AlertInfo, Buffer: 1}, []Sender{sender}, nil, nil, testLogger())

	n.Handle(alert(domain.AlertWarning))
	n.Handle(alert(domain.AlertCritical)) // queue full, dropped

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 1, sender.count())
}

func TestFormatAlert(t *testing.T) {
	title, msg := FormatAlert(alert(domain.AlertCritical))
	assert.Equal(t, "[CRITICAL] stop_loss", title)
	assert.Equal(t, "loss 12% on btc_100k\nmarket: btc_100k\naction: CLOSE_POSITION\ntime: 2026-03-01 12:00:00", msg)
}

func TestTelegramSender(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bot123:abc/sendMessage" {
			http.Error(w, "bad path", http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.URL, "123:abc", "-1001")
	require.NoError(t, s.Send(context.Background(), "title", "body"))
	assert.Equal(t, "-1001", got["chat_id"])
	assert.Equal(t, "title\nbody", got["text"])

	bad := NewTelegramSender(srv.URL, "wrong", "-1001")
	err := bad.Send(context.Background(), "title", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestDiscordSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), "title", "body"))
	assert.Equal(t, "**title**\n```\nbody\n```", got["content"])

	long := make([]byte, 3000)
	for i := range long {
		long[i] = 'x'
	}
	require.NoError(t, s.Send(context.Background(), "title", string(long)))
	assert.Len(t, got["content"], discordMaxContent)

	// multi-byte text is cut on a character boundary and stays valid UTF-8
	require.NoError(t, s.Send(context.Background(), "风险", strings.Repeat("止损", 1500)))
	assert.True(t, utf8.ValidString(got["content"]))
	assert.Equal(t, discordMaxContent, utf8.RuneCountInString(got["content"]))
	assert.True(t, strings.HasSuffix(got["content"], "止\n```") || strings.HasSuffix(got["content"], "损\n```"))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héll", truncateRunes("héllo", 4))
	assert.Equal(t, "héllo", truncateRunes("héllo", 5))
	assert.Equal(t, "héllo", truncateRunes("héllo", 9))
	assert.Equal(t, "", truncateRunes("止损", 0))
	assert.Equal(t, "止", truncateRunes("止损", 1))
}

func TestLarkSenderCachesToken(t *testing.T) {
	var tokenCalls, messageCalls atomic.Int32
	var content string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v3/tenant_access_token/internal":
			tokenCalls.Add(1)
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["app_secret"] != "s3cret" {
				_, _ = w.Write([]byte(`{"code":10014,"msg":"app secret invalid"}`))
				return
			}
			_, _ = w.Write([]byte(`{"code":0,"msg":"ok","tenant_access_token":"t-1","expire":7200}`))
		case "/im/v1/messages":
			messageCalls.Add(1)
			if r.Header.Get("Authorization") != "Bearer t-1" || r.URL.Query().Get("receive_id_type") != "chat_id" {
				_, _ = w.Write([]byte(`{"code":99991663,"msg":"invalid token"}`))
				return
			}
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			content = body["content"]
			_, _ = w.Write([]byte(`{"code":0,"msg":"success"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := NewLarkSender(LarkConfig{BaseURL: srv.URL, AppID: "cli_1", AppSecret: "s3cret", ChatID: "oc_1"})
	require.NoError(t, s.Send(context.Background(), "title", "body"))
	require.NoError(t, s.Send(context.Background(), "title", "again"))
	assert.Equal(t, int32(1), tokenCalls.Load())
	assert.Equal(t, int32(2), messageCalls.Load())
	assert.JSONEq(t, `{"text":"title\nagain"}`, content)

	bad := NewLarkSender(LarkConfig{BaseURL: srv.URL, AppID: "cli_1", AppSecret: "nope", ChatID: "oc_1"})
	err := bad.Send(context.Background(), "title", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app secret invalid")
}

func TestLarkSenderRefreshesExpiredToken(t *testing.T) {
	var tokenCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/v3/tenant_access_token/internal" {
			tokenCalls.Add(1)
			_, _ = w.Write([]byte(`{"code":0,"tenant_access_token":"t-1","expire":7200}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":0}`))
	}))
	defer srv.Close()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := NewLarkSender(LarkConfig{BaseURL: srv.URL, ChatID: "oc_1"})
	s.now = func() time.Time { return now }

	require.NoError(t, s.Send(context.Background(), "a", "b"))
	now = now.Add(2 * time.Hour)
	require.NoError(t, s.Send(context.Background(), "a", "b"))
	assert.Equal(t, int32(2), tokenCalls.Load())
}
