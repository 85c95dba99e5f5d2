package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shelf/internal/notify"
)

func TestEventText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		event notify.Event
		want  string
	}{
		{notify.Event{Kind: notify.KindUpload, Key: "a.txt"}, "Uploaded a.txt"},
		{notify.Event{Kind: notify.KindMove, Key: "a.txt", NewKey: "b.txt", Count: 1}, "Moved a.txt to b.txt"},
		{notify.Event{Kind: notify.KindMove, Key: "docs/", NewKey: "old/", Count: 4}, "Moved docs/ to old/ (4 objects)"},
		{notify.Event{Kind: notify.KindDelete, Key: "a.txt", Count: 1}, "Deleted a.txt"},
		{notify.Event{Kind: notify.KindDelete, Key: "a.txt", Count: 3}, "Deleted 3 objects"},
		{notify.Event{Kind: notify.KindCreateFolder, Key: "new/"}, "Created folder new/"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, tt.event.Text())
	}
}

func TestNewEventIsUnique(t *testing.T) {
	t.Parallel()

	a := notify.NewEvent(notify.KindUpload, "a", "", 1)
	b := notify.NewEvent(notify.KindUpload, "a", "", 1)
	require.NotEqual(t, a.ID, b.ID)
	require.False(t, a.At.IsZero())
}

type captureSink struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
	block  chan struct{}
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Send(ctx context.Context, e notify.Event) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *captureSink) Events() []notify.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Event(nil), s.events...)
}

func TestNotifierDelivers(t *testing.T) {
	t.Parallel()

	failing := &captureSink{err: errors.New("unreachable")}
	sink := &captureSink{}
	n := notify.NewNotifier(4, time.Second, failing, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	n.Publish(notify.NewEvent(notify.KindUpload, "a.txt", "", 1))
	n.Publish(notify.NewEvent(notify.KindDelete, "b.txt", "", 1))

	require.Eventually(t, func() bool { return len(sink.Events()) == 2 }, time.Second, 5*time.Millisecond)
	// A failing sink does not stop delivery to the others.
	require.Len(t, failing.Events(), 2)

	cancel()
	require.NoError(t, <-done)
}

func TestNotifierDropsWhenFull(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	n := notify.NewNotifier(2, time.Second, sink)

	// Nothing is consuming, so the third publish must not block.
	finished := make(chan struct{})
	go func() {
		for range 3 {
			n.Publish(notify.NewEvent(notify.KindUpload, "a", "", 1))
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}

	// The two queued events are drained on shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, n.Run(ctx))
	require.Len(t, sink.Events(), 2)
}

func TestNotifierWithoutSinksIsNoop(t *testing.T) {
	t.Parallel()

	n := notify.NewNotifier(1, time.Second)
	for range 10 {
		n.Publish(notify.NewEvent(notify.KindUpload, "a", "", 1))
	}
}

func TestNotifierDeliveryTimeout(t *testing.T) {
	t.Parallel()

	slow := &captureSink{block: make(chan struct{})}
	fast := &captureSink{}
	n := notify.NewNotifier(4, 20*time.Millisecond, slow, fast)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = n.Run(ctx) }()

	n.Publish(notify.NewEvent(notify.KindUpload, "a", "", 1))
	require.Eventually(t, func() bool { return len(fast.Events()) == 1 }, time.Second, 5*time.Millisecond)
	require.Empty(t, slow.Events())
}

func TestTelegramSink(t *testing.T) {
	t.Parallel()

	var (
		gotPath string
		gotBody map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	sink := &notify.TelegramSink{
		Token:   "123:secret",
		ChatID:  "-100",
		BaseURL: srv.URL,
		Client:  srv.Client(),
		Prefix:  "Shelf",
	}

	err := sink.Send(context.Background(), notify.Event{Kind: notify.KindUpload, Key: "a.txt"})
	require.NoError(t, err)
	require.Equal(t, "/bot123:secret/sendMessage", gotPath)
	require.Equal(t, map[string]string{"chat_id": "-100", "text": "Shelf: Uploaded a.txt"}, gotBody)
}

func TestTelegramSinkErrorHidesToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	sink := &notify.TelegramSink{Token: "123:secret", ChatID: "1", BaseURL: srv.URL}
	err := sink.Send(context.Background(), notify.Event{Kind: notify.KindUpload, Key: "a"})
	require.Error(t, err)
	require.NotContains(t, err.Error(), "secret")
}

func TestWebhookSink(t *testing.T) {
	t.Parallel()

	var got notify.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := &notify.WebhookSink{URL: srv.URL, Client: srv.Client()}
	event := notify.NewEvent(notify.KindMove, "a/", "b/", 3)
	require.NoError(t, sink.Send(context.Background(), event))
	require.Equal(t, event.ID, got.ID)
	require.Equal(t, notify.KindMove, got.Kind)
	require.Equal(t, "b/", got.NewKey)
	require.Equal(t, 3, got.Count)
}

func TestWebhookSinkRejectsErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := &notify.WebhookSink{URL: srv.URL}
	err := sink.Send(context.Background(), notify.NewEvent(notify.KindUpload, "a", "", 1))
	require.ErrorContains(t, err, "502")
}
