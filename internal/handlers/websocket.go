// -----------------------------------------------------------------------
// Last Modified: Tuesday, 13th October 2026 10:41:07 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/locus/internal/common"
	"github.com/ternarybob/locus/internal/interfaces"
	"github.com/ternarybob/locus/internal/models"
	"github.com/ternarybob/locus/internal/services/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const (
	writeWait = 5 * time.Second

	// transitionBuffer bounds queued loading flips awaiting delivery
	transitionBuffer = 32
)

// WSMessage is the envelope for every frame in both directions
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ClientMessage is a frame sent by a client. Type "query" feeds the search
// pipeline; type "clear" clears it.
type ClientMessage struct {
	Type  string `json:"type"`
	Query string `json:"query,omitempty"`
}

// StateSubscriber delivers state snapshots after each write
type StateSubscriber interface {
	Snapshot() models.SearchState
	Subscribe(listener func(models.SearchState)) func()
}

type wsClient struct {
	id string
	mu sync.Mutex

	// last state frame written, guarded by mu
	stateSent bool
	version   uint64
}

// WebSocketHandler streams state snapshots and domain events to clients and
// accepts query keystrokes from them. Snapshot bursts are coalesced by a
// rate limiter and the most recent snapshot is always delivered. Snapshots
// that flip the loading flag bypass coalescing so clients see every search
// start and finish. State frames reach each client in version order.
type WebSocketHandler struct {
	logger       arbor.ILogger
	state        StateSubscriber
	pipeline     SearchPipeline
	eventService interfaces.EventService

	clients map[*websocket.Conn]*wsClient
	mu      sync.RWMutex

	throttler   *rate.Limiter // nil = no throttling
	pending     chan struct{}
	transitions chan models.SearchState
	lastLoading bool // touched only by the state listener
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
}

func NewWebSocketHandler(state StateSubscriber, pipeline SearchPipeline, eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	ctx, cancel := context.WithCancel(context.Background())
	h := &WebSocketHandler{
		logger:       logger,
		state:        state,
		pipeline:     pipeline,
		eventService: eventService,
		clients:      make(map[*websocket.Conn]*wsClient),
		pending:      make(chan struct{}, 1),
		transitions:  make(chan models.SearchState, transitionBuffer),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	if config != nil {
		if interval := common.ParseDuration(config.Throttle, 0); interval > 0 {
			h.throttler = rate.NewLimiter(rate.Every(interval), 1)
			logger.Debug().Str("interval", interval.String()).Msg("State broadcast throttler initialized")
		}
	}

	h.lastLoading = state.Snapshot().Loading
	h.unsubscribe = state.Subscribe(h.onState)

	common.SafeGo(logger, "ws-state-broadcaster", h.broadcastLoop)

	if eventService != nil {
		h.subscribeToEvents()
	}

	return h
}

// onState runs on the writer's goroutine in write order and never blocks it
func (h *WebSocketHandler) onState(snapshot models.SearchState) {
	if snapshot.Loading != h.lastLoading {
		h.lastLoading = snapshot.Loading
		select {
		case h.transitions <- snapshot:
		default:
			h.logger.Warn().Int64("version", int64(snapshot.Version)).Msg("Loading transition queue full, coalescing")
		}
	}

	// One pending signal is enough
	select {
	case h.pending <- struct{}{}:
	default:
	}
}

func (h *WebSocketHandler) broadcastLoop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			return
		case snapshot := <-h.transitions:
			h.broadcastState(snapshot)
			continue
		case <-h.pending:
		}

		if h.throttler != nil {
			if err := h.throttler.Wait(h.ctx); err != nil {
				return
			}
		}
		h.flushTransitions()
		// Read the snapshot after waiting so the newest state wins
		h.broadcastState(h.state.Snapshot())
	}
}

func (h *WebSocketHandler) flushTransitions() {
	for {
		select {
		case snapshot := <-h.transitions:
			h.broadcastState(snapshot)
		default:
			return
		}
	}
}

func (h *WebSocketHandler) subscribeToEvents() {
	forward := func(ctx context.Context, event interfaces.Event) error {
		h.broadcast(WSMessage{
			Type: "event",
			Payload: map[string]interface{}{
				"event_type": string(event.Type),
				"data":       event.Payload,
			},
		})
		return nil
	}

	for _, eventType := range events.AllEventTypes {
		if err := h.eventService.Subscribe(eventType, forward); err != nil {
			h.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe WebSocket to event")
		}
	}
}

// HandleWebSocket upgrades the connection, sends the current state and then
// reads client frames until the connection closes.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := &wsClient{id: common.NewClientID()}

	h.mu.Lock()
	h.clients[conn] = client
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Str("client_id", client.id).Msgf("WebSocket client connected (total: %d)", clientCount)

	h.sendState(conn, client, h.state.Snapshot())

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Str("client_id", client.id).Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Str("client_id", client.id).Msg("WebSocket error")
			}
			return
		}
		h.handleClientMessage(conn, client, data)
	}
}

func (h *WebSocketHandler) handleClientMessage(conn *websocket.Conn, client *wsClient, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.send(conn, client, WSMessage{Type: "error", Payload: "invalid message"})
		return
	}

	switch msg.Type {
	case "query":
		if h.pipeline != nil {
			h.pipeline.Submit(msg.Query)
		}
	case "clear":
		if h.pipeline != nil {
			h.pipeline.Clear()
		}
	case "ping":
		h.send(conn, client, WSMessage{Type: "pong"})
	default:
		h.send(conn, client, WSMessage{Type: "error", Payload: "unknown message type: " + msg.Type})
	}
}

func (h *WebSocketHandler) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	clients := make([]*wsClient, 0, len(h.clients))
	for conn, client := range h.clients {
		conns = append(conns, conn)
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for i, conn := range conns {
		h.write(conn, clients[i], data)
	}
}

// broadcastState writes snapshot to every client that has not yet seen a
// newer version
func (h *WebSocketHandler) broadcastState(snapshot models.SearchState) {
	data, err := json.Marshal(WSMessage{Type: "state", Payload: snapshot})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal state snapshot")
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	clients := make([]*wsClient, 0, len(h.clients))
	for conn, client := range h.clients {
		conns = append(conns, conn)
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for i, conn := range conns {
		h.writeState(conn, clients[i], snapshot.Version, data)
	}
}

func (h *WebSocketHandler) sendState(conn *websocket.Conn, client *wsClient, snapshot models.SearchState) {
	data, err := json.Marshal(WSMessage{Type: "state", Payload: snapshot})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal state snapshot")
		return
	}
	h.writeState(conn, client, snapshot.Version, data)
}

func (h *WebSocketHandler) writeState(conn *websocket.Conn, client *wsClient, version uint64, data []byte) {
	client.mu.Lock()
	defer client.mu.Unlock()

	if client.stateSent && version <= client.version {
		return
	}
	client.stateSent = true
	client.version = version

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Warn().Err(err).Str("client_id", client.id).Msg("Failed to send to WebSocket client")
	}
}

func (h *WebSocketHandler) send(conn *websocket.Conn, client *wsClient, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}
	h.write(conn, client, data)
}

func (h *WebSocketHandler) write(conn *websocket.Conn, client *wsClient, data []byte) {
	client.mu.Lock()
	defer client.mu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Warn().Err(err).Str("client_id", client.id).Msg("Failed to send to WebSocket client")
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops broadcasting and disconnects every client
func (h *WebSocketHandler) Close() {
	h.unsubscribe()
	h.cancel()
	<-h.done

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
	}
}
