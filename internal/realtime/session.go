package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maisumh/aisearch-openai-rag-audio/internal/grounding"
	"github.com/maisumh/aisearch-openai-rag-audio/internal/pkg/logger"
	"github.com/maisumh/aisearch-openai-rag-audio/pkg/audit"
)

// RFC 6455 text opcode; shared by both websocket implementations in use.
const textMessage = 1

type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Conn is the minimal websocket surface the session needs. Both the fiber
// server-side connection and the gorilla client connection satisfy it.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// SessionConfig is an immutable snapshot taken at session creation.
type SessionConfig struct {
	Upstream UpstreamConfig

	// Server-enforced overrides; applied to every session.update so clients
	// cannot choose their own instructions or tools.
	VoiceChoice   string
	SystemMessage string
	Temperature   *float64
	MaxTokens     *int
	DisableAudio  *bool

	HandshakeTimeout time.Duration
	DrainTimeout     time.Duration
}

type toolCompletion struct {
	resp           grounding.ToolCallResponse
	toolName       string
	previousItemID string
}

// Session owns one client connection and its upstream model connection.
// All socket writes happen on the run loop, so per-session ordering of audio
// and events is strictly preserved while tool calls resolve concurrently.
type Session struct {
	ID        string
	cfg       SessionConfig
	client    Conn
	upstream  Conn
	resolver  *grounding.Resolver
	relay     audit.Relay
	logger    logger.ILogger
	requestID string

	state  atomic.Int32
	ctx    context.Context
	cancel context.CancelFunc

	clientIn   chan []byte
	upstreamIn chan []byte
	toolDone   chan toolCompletion
	shutdown   chan struct{}
	done       chan struct{}

	// Tool bookkeeping; touched only on the run loop.
	pending          map[string]string // call id -> previous item id
	inFlight         int
	completedCalls   int
	responseDoneSeen bool

	toolWG       sync.WaitGroup
	shutdownOnce sync.Once
	releaseOnce  sync.Once
	onTerminal   func(*Session)
}

func newSession(id string, client Conn, cfg SessionConfig, resolver *grounding.Resolver, relay audit.Relay, log logger.ILogger, requestID string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:         id,
		cfg:        cfg,
		client:     client,
		resolver:   resolver,
		relay:      relay,
		logger:     log,
		requestID:  requestID,
		ctx:        ctx,
		cancel:     cancel,
		clientIn:   make(chan []byte, 32),
		upstreamIn: make(chan []byte, 32),
		toolDone:   make(chan toolCompletion, 8),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		pending:    make(map[string]string),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Done is closed once the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// BeginShutdown asks the session to close gracefully. Safe to call multiple
// times and from any goroutine.
func (s *Session) BeginShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
}

// Run drives the session to a terminal state. It blocks until the session is
// Closed or Failed and must be called from the connection handler goroutine.
func (s *Session) Run() error {
	handshakeTimeout := s.cfg.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 15 * time.Second
	}

	dialCtx, cancelDial := context.WithTimeout(s.ctx, handshakeTimeout)
	upstream, err := dialUpstream(dialCtx, s.cfg.Upstream, s.requestID)
	cancelDial()
	if err != nil {
		s.logger.Error("Session", "Upstream handshake failed", map[string]interface{}{
			"session_id": s.ID,
			"error":      err.Error(),
		})
		s.sendClientError("Failed to connect to the realtime service. Please check your credentials and try again.")
		s.release(StateFailed, err)
		return err
	}
	s.upstream = upstream

	s.state.Store(int32(StateActive))
	s.relay.Emit(audit.NewEvent(audit.KindSessionStart, s.ID, map[string]interface{}{
		"deployment": s.cfg.Upstream.Deployment,
		"voice":      s.cfg.VoiceChoice,
	}))
	s.logger.Info("Session", "Session active", map[string]interface{}{"session_id": s.ID})

	go s.readPump(s.client, s.clientIn)
	go s.readPump(s.upstream, s.upstreamIn)

	return s.run()
}

// readPump moves inbound text frames onto a channel so the run loop can
// multiplex both directions and tool completions with a single select.
func (s *Session) readPump(conn Conn, out chan<- []byte) {
	defer close(out)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != textMessage {
			s.logger.Warn("Session", "Ignoring non-text frame", map[string]interface{}{
				"session_id":   s.ID,
				"message_type": messageType,
			})
			continue
		}
		select {
		case out <- data:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) run() error {
	for {
		select {
		case data, ok := <-s.clientIn:
			if !ok {
				s.closeGracefully()
				return nil
			}
			s.handleClientFrame(data)

		case data, ok := <-s.upstreamIn:
			if !ok {
				err := fmt.Errorf("upstream disconnected")
				s.logger.Warn("Session", "Upstream disconnect, session failed", map[string]interface{}{"session_id": s.ID})
				s.sendClientError("The realtime service disconnected. Please reconnect.")
				s.drainAndRelease(StateFailed, err)
				return err
			}
			s.handleUpstreamFrame(data)

		case tc := <-s.toolDone:
			s.handleToolCompletion(tc)

		case <-s.shutdown:
			s.closeGracefully()
			return nil
		}
	}
}

// closeGracefully drains in-flight tool calls (bounded) and releases. Results
// arriving after the cancel are discarded, never injected.
func (s *Session) closeGracefully() {
	s.state.Store(int32(StateClosing))
	s.drainAndRelease(StateClosed, nil)
}

func (s *Session) drainAndRelease(final State, cause error) {
	s.cancel()

	drainTimeout := s.cfg.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = 5 * time.Second
	}
	drained := make(chan struct{})
	go func() {
		s.toolWG.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		s.logger.Warn("Session", "Tool drain timed out", map[string]interface{}{"session_id": s.ID})
	}

	s.release(final, cause)
}

// release moves to a terminal state and frees both connections exactly once.
func (s *Session) release(final State, cause error) {
	s.releaseOnce.Do(func() {
		s.cancel()
		s.state.Store(int32(final))

		_ = s.client.Close()
		if s.upstream != nil {
			_ = s.upstream.Close()
		}

		if final == StateFailed {
			payload := map[string]interface{}{}
			if cause != nil {
				payload["error"] = cause.Error()
			}
			s.relay.Emit(audit.NewEvent(audit.KindError, s.ID, payload))
		} else {
			s.relay.Emit(audit.NewEvent(audit.KindSessionEnd, s.ID, nil))
		}

		s.logger.Info("Session", "Session released", map[string]interface{}{
			"session_id": s.ID,
			"state":      final.String(),
		})

		if s.onTerminal != nil {
			s.onTerminal(s)
		}
		close(s.done)
	})
}

// --- client -> upstream ---

func (s *Session) handleClientFrame(data []byte) {
	ev, ok := parseEvent(data)
	if !ok {
		s.logger.Warn("Session", "Dropping malformed client frame", map[string]interface{}{"session_id": s.ID})
		return
	}

	if ev.eventType() == typeSessionUpdate {
		s.enforceSessionOverrides(ev)
		out, err := ev.marshal()
		if err != nil {
			return
		}
		data = out
	}

	s.sendUpstreamRaw(data)
}

// enforceSessionOverrides pins the server-controlled parts of session.update:
// instructions, sampling, voice, turn detection and the tool surface.
func (s *Session) enforceSessionOverrides(ev event) {
	session := ev.getMap("session")
	if session == nil {
		return
	}

	if s.cfg.SystemMessage != "" {
		session["instructions"] = s.cfg.SystemMessage
	}
	if s.cfg.Temperature != nil {
		session["temperature"] = *s.cfg.Temperature
	}
	if s.cfg.MaxTokens != nil {
		session["max_response_output_tokens"] = *s.cfg.MaxTokens
	}
	if s.cfg.DisableAudio != nil {
		session["disable_audio"] = *s.cfg.DisableAudio
	}
	if s.cfg.VoiceChoice != "" {
		session["voice"] = s.cfg.VoiceChoice
	}

	// Semantic VAD waits for complete phrases before committing a turn.
	if _, ok := session["turn_detection"]; !ok {
		session["turn_detection"] = map[string]interface{}{
			"type":            "semantic_vad",
			"create_response": true,
		}
	}

	if s.resolver.HasTools() {
		session["tool_choice"] = "auto"
	} else {
		session["tool_choice"] = "none"
	}
	session["tools"] = s.resolver.Schemas()
}

// --- upstream -> client ---

func (s *Session) handleUpstreamFrame(data []byte) {
	ev, ok := parseEvent(data)
	if !ok {
		// Not a frame the gateway understands; relay untouched.
		s.sendClientRaw(data)
		return
	}

	switch ev.eventType() {
	case typeSessionCreated:
		s.scrubSessionCreated(ev)
		s.forward(ev)

	case typeOutputItemAdded:
		item := ev.getMap("item")
		switch getString(item, "type") {
		case "function_call":
			// Hidden from clients.
		case "text":
			item["text"] = applySSMLFormatting(getString(item, "text"))
			s.forward(ev)
		default:
			s.sendClientRaw(data)
		}

	case typeConversationItemAdded:
		s.handleConversationItem(ev, data)

	case typeFuncArgsDelta, typeFuncArgsDone:
		// Argument streaming is a server-side concern only.

	case typeOutputItemDone:
		item := ev.getMap("item")
		if getString(item, "type") == "function_call" {
			s.dispatchToolCall(item)
			return
		}
		s.sendClientRaw(data)

	case typeResponseDone:
		s.handleResponseDone(ev)

	default:
		s.sendClientRaw(data)
	}
}

func (s *Session) scrubSessionCreated(ev event) {
	session := ev.getMap("session")
	if session == nil {
		return
	}
	session["instructions"] = ""
	session["tools"] = []interface{}{}
	session["voice"] = s.cfg.VoiceChoice
	session["tool_choice"] = "none"
	session["max_response_output_tokens"] = nil
}

func (s *Session) handleConversationItem(ev event, raw []byte) {
	item := ev.getMap("item")
	switch getString(item, "type") {
	case "text":
		content := getString(item, "content")
		confidence := getFloat(item, "confidence", 1.0)

		if !isValidContent(content) {
			s.logger.Debug("Session", "Discarding noise input", map[string]interface{}{
				"session_id": s.ID,
				"content":    content,
			})
			return
		}

		if isLowConfidenceInput(content, confidence) {
			s.logger.Info("Session", "Low confidence input, requesting repeat", map[string]interface{}{
				"session_id": s.ID,
				"confidence": confidence,
			})
			s.sendUpstream(map[string]interface{}{
				"type": "conversation.item.create",
				"item": map[string]interface{}{
					"type":    "text",
					"role":    "assistant",
					"content": applySSMLFormatting(repeatRequestText),
				},
			})
			return
		}

		item["content"] = applySSMLFormatting(content)
		s.forward(ev)

	case "function_call":
		callID := getString(item, "call_id")
		if _, exists := s.pending[callID]; !exists {
			s.pending[callID] = getString(ev, "previous_item_id")
		}

	case "function_call_output":
		// Hidden from clients.

	default:
		s.sendClientRaw(raw)
	}
}

// dispatchToolCall resolves the call off the run loop so audio relay keeps
// flowing; only the tool branch is suspended.
func (s *Session) dispatchToolCall(item map[string]interface{}) {
	callID := getString(item, "call_id")
	name := getString(item, "name")
	previousItemID := s.pending[callID]

	args := make(map[string]interface{})
	if rawArgs := getString(item, "arguments"); rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			s.logger.Warn("Session", "Malformed tool arguments", map[string]interface{}{
				"session_id": s.ID,
				"call_id":    callID,
				"error":      err.Error(),
			})
		}
	}

	s.inFlight++
	s.toolWG.Add(1)
	go func() {
		defer s.toolWG.Done()
		resp := s.resolver.Resolve(s.ctx, grounding.ToolCallRequest{
			CallID:    callID,
			Name:      name,
			Arguments: args,
			SessionID: s.ID,
		})
		select {
		case s.toolDone <- toolCompletion{resp: resp, toolName: name, previousItemID: previousItemID}:
		case <-s.ctx.Done():
			// Session is tearing down; the result is discarded.
		}
	}()
}

func (s *Session) handleToolCompletion(tc toolCompletion) {
	s.inFlight--
	if s.State() != StateActive {
		return
	}

	output := tc.resp.Output
	if tc.resp.Destination == grounding.ToClient {
		output = ""
	}
	s.sendUpstream(map[string]interface{}{
		"type": "conversation.item.create",
		"item": map[string]interface{}{
			"type":    "function_call_output",
			"call_id": tc.resp.CallID,
			"output":  output,
		},
	})

	if tc.resp.Destination == grounding.ToClient {
		s.sendClient(map[string]interface{}{
			"type":             "extension.middle_tier_tool_response",
			"previous_item_id": tc.previousItemID,
			"tool_name":        tc.toolName,
			"tool_result":      tc.resp.Output,
		})
	}

	delete(s.pending, tc.resp.CallID)
	s.completedCalls++

	// The model only accepts a new response once the previous one finished.
	if s.inFlight == 0 && s.responseDoneSeen {
		s.continueResponse()
	}
}

func (s *Session) handleResponseDone(ev event) {
	if s.inFlight > 0 {
		s.responseDoneSeen = true
	} else if s.completedCalls > 0 {
		s.continueResponse()
	}

	// Strip function-call outputs the client should never see.
	if response := ev.getMap("response"); response != nil {
		if outputs, ok := response["output"].([]interface{}); ok {
			kept := make([]interface{}, 0, len(outputs))
			for _, raw := range outputs {
				output, ok := raw.(map[string]interface{})
				if !ok {
					kept = append(kept, raw)
					continue
				}
				switch getString(output, "type") {
				case "function_call":
				case "text":
					output["text"] = applySSMLFormatting(getString(output, "text"))
					kept = append(kept, output)
				default:
					kept = append(kept, raw)
				}
			}
			response["output"] = kept
		}
	}
	s.forward(ev)
}

func (s *Session) continueResponse() {
	s.sendUpstream(map[string]interface{}{"type": "response.create"})
	s.responseDoneSeen = false
	s.completedCalls = 0
}

// --- writes (run loop only) ---

func (s *Session) forward(ev event) {
	data, err := ev.marshal()
	if err != nil {
		return
	}
	s.sendClientRaw(data)
}

func (s *Session) sendClientRaw(data []byte) {
	if err := s.client.WriteMessage(textMessage, data); err != nil {
		s.logger.Debug("Session", "Client write failed", map[string]interface{}{
			"session_id": s.ID,
			"error":      err.Error(),
		})
	}
}

func (s *Session) sendClient(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.sendClientRaw(data)
}

func (s *Session) sendUpstreamRaw(data []byte) {
	if s.upstream == nil {
		return
	}
	if err := s.upstream.WriteMessage(textMessage, data); err != nil {
		s.logger.Debug("Session", "Upstream write failed", map[string]interface{}{
			"session_id": s.ID,
			"error":      err.Error(),
		})
	}
}

func (s *Session) sendUpstream(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.sendUpstreamRaw(data)
}

func (s *Session) sendClientError(message string) {
	s.sendClient(map[string]interface{}{
		"type":    "error",
		"message": message,
	})
}
