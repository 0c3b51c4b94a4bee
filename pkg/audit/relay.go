package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/maisumh/aisearch-openai-rag-audio/internal/pkg/logger"
)

const relayTopic = "audit_events"

// Relay forwards session events to the external audit endpoint. Emit never
// blocks session processing and delivery is best-effort.
type Relay interface {
	Emit(event Event)
	Close()
}

// Mirror receives a copy of every delivered event (e.g. a NATS publisher).
type Mirror interface {
	Publish(ctx context.Context, event Event) error
}

// HTTPRelay queues events on an in-process watermill channel; a single worker
// drains the queue and POSTs each event with bounded retries.
type HTTPRelay struct {
	endpoint   string
	apiKey     string
	pubSub     *gochannel.GoChannel
	httpClient *http.Client
	logger     logger.ILogger
	mirror     Mirror

	maxRetries int
	baseDelay  time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRelay builds the relay. An empty API key disables auditing entirely and
// returns a no-op implementation instead of failing startup.
func NewRelay(endpoint, apiKey string, mirror Mirror, log logger.ILogger) Relay {
	if apiKey == "" {
		log.Info("AuditRelay", "No audit API key configured, relay disabled", nil)
		return &NoopRelay{}
	}

	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermill.NewStdLogger(false, false),
	)

	r := &HTTPRelay{
		endpoint:   endpoint,
		apiKey:     apiKey,
		pubSub:     pubSub,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     log,
		mirror:     mirror,
		maxRetries: 4,
		baseDelay:  250 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	messages, err := pubSub.Subscribe(ctx, relayTopic)
	if err != nil {
		// gochannel only errors on a closed pubsub; treat as disabled.
		log.Error("AuditRelay", "Failed to subscribe to relay topic", map[string]interface{}{"error": err.Error()})
		cancel()
		return &NoopRelay{}
	}

	r.wg.Add(1)
	go r.deliverLoop(ctx, messages)

	return r
}

func (r *HTTPRelay) Emit(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		r.logger.Warn("AuditRelay", "Failed to marshal event", map[string]interface{}{"error": err.Error()})
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := r.pubSub.Publish(relayTopic, msg); err != nil {
		r.logger.Warn("AuditRelay", "Failed to queue event", map[string]interface{}{"error": err.Error()})
	}
}

func (r *HTTPRelay) Close() {
	r.cancel()
	_ = r.pubSub.Close()
	r.wg.Wait()
}

func (r *HTTPRelay) deliverLoop(ctx context.Context, messages <-chan *message.Message) {
	defer r.wg.Done()
	for msg := range messages {
		r.deliver(ctx, msg.Payload)
		// Always ack: after retries exhaust the event is dropped, delivery
		// failure never affects session processing.
		msg.Ack()
	}
}

func (r *HTTPRelay) deliver(ctx context.Context, payload []byte) {
	delay := r.baseDelay
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			delay *= 2
		}

		if lastErr = r.post(ctx, payload); lastErr == nil {
			if r.mirror != nil {
				var event Event
				if err := json.Unmarshal(payload, &event); err == nil {
					if err := r.mirror.Publish(ctx, event); err != nil {
						r.logger.Warn("AuditRelay", "Mirror publish failed", map[string]interface{}{"error": err.Error()})
					}
				}
			}
			return
		}
	}

	r.logger.Warn("AuditRelay", "Dropping event after retries exhausted", map[string]interface{}{
		"error":   lastErr.Error(),
		"retries": r.maxRetries,
	})
}

func (r *HTTPRelay) post(ctx context.Context, payload []byte) error {
	url := fmt.Sprintf("%s?code=%s", r.endpoint, r.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return fmt.Errorf("audit endpoint returned %d", res.StatusCode)
	}
	return nil
}

// NoopRelay is used when no audit key is configured. Emit calls are no-ops
// and never block.
type NoopRelay struct{}

func (n *NoopRelay) Emit(event Event) {}
func (n *NoopRelay) Close()           {}
