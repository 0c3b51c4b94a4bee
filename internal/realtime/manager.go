package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/maisumh/aisearch-openai-rag-audio/internal/grounding"
	"github.com/maisumh/aisearch-openai-rag-audio/internal/pkg/logger"
	"github.com/maisumh/aisearch-openai-rag-audio/pkg/audit"
)

const presenceKeyPrefix = "voicerag:session:"

// Manager tracks live sessions and coordinates graceful shutdown. An optional
// redis client publishes per-session presence keys so a fleet of gateways can
// be inspected centrally.
type Manager struct {
	cfg      SessionConfig
	resolver *grounding.Resolver
	relay    audit.Relay
	logger   logger.ILogger
	redis    *redis.Client

	mu       sync.Mutex
	sessions map[string]*Session
	draining bool
}

func NewManager(cfg SessionConfig, resolver *grounding.Resolver, relay audit.Relay, log logger.ILogger, redisClient *redis.Client) *Manager {
	return &Manager{
		cfg:      cfg,
		resolver: resolver,
		relay:    relay,
		logger:   log,
		redis:    redisClient,
		sessions: make(map[string]*Session),
	}
}

// Accept registers a new session for the given client connection and blocks
// until it reaches a terminal state. Returns an error when the manager is
// already draining.
func (m *Manager) Accept(client Conn, requestID string) error {
	id := uuid.NewString()
	s := newSession(id, client, m.cfg, m.resolver, m.relay, m.logger, requestID)
	s.onTerminal = m.remove

	m.mu.Lock()
	if m.draining {
		m.mu.Unlock()
		_ = client.Close()
		return fmt.Errorf("gateway is shutting down")
	}
	m.sessions[id] = s
	m.mu.Unlock()

	m.markPresence(id)

	return s.Run()
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
	m.clearPresence(s.ID)
}

// ActiveCount reports the number of non-terminal sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown signals every live session to close and waits for all of them to
// reach a terminal state or for ctx to expire, whichever comes first.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.draining = true
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	m.logger.Info("Manager", "Shutting down sessions", map[string]interface{}{"count": len(live)})

	for _, s := range live {
		s.BeginShutdown()
	}
	for _, s := range live {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *Manager) markPresence(id string) {
	if m.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.redis.Set(ctx, presenceKeyPrefix+id, time.Now().UTC().Format(time.RFC3339), 24*time.Hour).Err(); err != nil {
		m.logger.Debug("Manager", "Presence write failed", map[string]interface{}{"error": err.Error()})
	}
}

func (m *Manager) clearPresence(id string) {
	if m.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.redis.Del(ctx, presenceKeyPrefix+id).Err(); err != nil {
		m.logger.Debug("Manager", "Presence delete failed", map[string]interface{}{"error": err.Error()})
	}
}
