package audit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(module, message string, details map[string]interface{}) {}
func (nopLogger) Info(module, message string, details map[string]interface{})  {}
func (nopLogger) Warn(module, message string, details map[string]interface{})  {}
func (nopLogger) Error(module, message string, details map[string]interface{}) {}
func (nopLogger) Sync() error                                                  { return nil }

func TestNewRelayWithoutKeyIsNoop(t *testing.T) {
	relay := NewRelay("http://example.com", "", nil, nopLogger{})
	_, isNoop := relay.(*NoopRelay)
	assert.True(t, isNoop)

	// Must be callable without side effects.
	relay.Emit(NewEvent(KindSessionStart, "s1", nil))
	relay.Close()
}

func TestRelayDeliversEvents(t *testing.T) {
	var received atomic.Int32
	var lastQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		lastQuery.Store(r.URL.Query().Get("code"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	relay := NewRelay(srv.URL, "secret", nil, nopLogger{})
	relay.Emit(NewEvent(KindToolCall, "s1", map[string]interface{}{"tool": "search"}))

	assert.Eventually(t, func() bool {
		return received.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "secret", lastQuery.Load())

	relay.Close()
}

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := &HTTPRelay{
		endpoint:   srv.URL,
		apiKey:     "key",
		httpClient: &http.Client{Timeout: time.Second},
		logger:     nopLogger{},
		maxRetries: 4,
		baseDelay:  5 * time.Millisecond,
	}
	r.deliver(context.Background(), []byte(`{"kind":"tool-call"}`))

	assert.Equal(t, int32(3), attempts.Load())
}

func TestDeliverDropsAfterRetriesExhausted(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := &HTTPRelay{
		endpoint:   srv.URL,
		apiKey:     "key",
		httpClient: &http.Client{Timeout: time.Second},
		logger:     nopLogger{},
		maxRetries: 2,
		baseDelay:  time.Millisecond,
	}
	r.deliver(context.Background(), []byte(`{"kind":"tool-call"}`))

	// Initial attempt plus two retries, then the event is dropped.
	assert.Equal(t, int32(3), attempts.Load())
}

type captureMirror struct {
	events atomic.Int32
}

func (m *captureMirror) Publish(ctx context.Context, event Event) error {
	m.events.Add(1)
	return nil
}

func TestMirrorReceivesDeliveredEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mirror := &captureMirror{}
	relay := NewRelay(srv.URL, "key", mirror, nopLogger{})
	relay.Emit(NewEvent(KindSessionEnd, "s1", nil))

	require.Eventually(t, func() bool {
		return mirror.events.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	relay.Close()
}

func TestEmitNeverBlocksWhenEndpointIsDown(t *testing.T) {
	relay := NewRelay("http://127.0.0.1:1", "key", nil, nopLogger{})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			relay.Emit(NewEvent(KindError, "s1", nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked while delivery was failing")
	}
	relay.Close()
}
