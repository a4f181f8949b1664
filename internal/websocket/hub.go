package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/profelabs/profe/server/domain"
	"github.com/profelabs/profe/server/internal/viseme"
	"github.com/profelabs/profe/server/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks

	// Capture buffers idle longer than this are discarded.
	captureIdleTimeout = 2 * time.Minute

	// Server-side history cap per connection, in turns.
	maxHistoryTurns = 20

	// How long one pipeline run may take before the turn is abandoned.
	respondTimeout = 90 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the web client's origin once it is deployed
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub maintains the set of active clients and runs their utterances through
// the voice pipeline.
type Hub struct {
	// Registered clients, keyed by session ID.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	mu sync.RWMutex

	pipeline *usecase.VoicePipeline
	logger   *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(pipeline *usecase.VoicePipeline, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		pipeline:   pipeline,
		logger:     logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	cleanup := time.NewTicker(30 * time.Second)
	defer cleanup.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.sessionID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("sessionID", client.sessionID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.sessionID]; ok {
				delete(h.clients, client.sessionID)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("sessionID", client.sessionID))

		case <-cleanup.C:
			h.dropStaleCaptures()
		}
	}
}

// dropStaleCaptures discards audio buffers whose turn was never closed with
// listening_end, so an abandoned capture cannot hold memory forever.
func (h *Hub) dropStaleCaptures() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.dropStaleCapture(captureIdleTimeout)
	}
}

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// turnSettings are the per-turn knobs sent with listening_start/text_input.
type turnSettings struct {
	language        string
	voice           string
	activityID      string
	activityContext string
	formality       string
	skipCache       bool
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Session ID for this connection
	sessionID string

	// Logger
	logger *zap.Logger

	// Audio capture state for the current turn
	listening   bool
	listeningAt time.Time
	audioBuf    []byte
	settings    turnSettings
	history     []domain.ConversationTurn

	mutex sync.Mutex
}

// HandleWebSocket handles websocket requests from the peer.
func HandleWebSocket(hub *Hub, c echo.Context, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	sessionID := c.QueryParam("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	client := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan WriteData, 256),
		sessionID: sessionID,
		logger:    logger,
	}

	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage processes incoming text frames from the client
func (c *Client) processMessage(message []byte) {
	parsed, err := ParseClientMessage(message)
	if err != nil {
		c.logger.Warn("Rejected client message", zap.Error(err))
		c.sendJSON(CreateErrorMessage("invalid_message", err.Error()))
		return
	}

	switch msg := parsed.(type) {
	case *ListeningStartMessage:
		c.handleListeningStart(msg)
	case *ListeningEndMessage:
		c.handleListeningEnd()
	case *TextInputMessage:
		c.handleTextInput(msg)
	case *PingMessage:
		c.sendJSON(CreatePongMessage(msg.Data))
	}
}

// processBinaryAudioChunk buffers audio for the open capture turn
func (c *Client) processBinaryAudioChunk(data []byte) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.listening {
		c.logger.Warn("Received audio chunk without listening_start",
			zap.String("sessionID", c.sessionID))
		return
	}

	c.audioBuf = append(c.audioBuf, data...)
	c.logger.Debug("Buffered audio chunk",
		zap.String("sessionID", c.sessionID),
		zap.Int("chunkSize", len(data)),
		zap.Int("totalBuffered", len(c.audioBuf)))
}

// handleListeningStart opens a capture turn
func (c *Client) handleListeningStart(msg *ListeningStartMessage) {
	c.mutex.Lock()
	c.listening = true
	c.listeningAt = time.Now()
	c.audioBuf = nil
	c.settings = turnSettings{
		language:        msg.Language,
		voice:           msg.Voice,
		activityID:      msg.ActivityID,
		activityContext: msg.ActivityContext,
		formality:       msg.Formality,
		skipCache:       msg.UseCache != nil && !*msg.UseCache,
	}
	c.mutex.Unlock()

	c.logger.Info("Audio capture started", zap.String("sessionID", c.sessionID))
}

// handleListeningEnd closes the capture turn and kicks off the pipeline
func (c *Client) handleListeningEnd() {
	c.mutex.Lock()
	if !c.listening {
		c.mutex.Unlock()
		c.sendJSON(CreateErrorMessage("no_capture", "listening_end without listening_start"))
		return
	}
	audio := c.audioBuf
	settings := c.settings
	c.listening = false
	c.audioBuf = nil
	c.mutex.Unlock()

	if len(audio) == 0 {
		c.sendJSON(CreateErrorMessage("empty_input", "no audio was captured"))
		return
	}

	go c.respond(domain.StudentUtterance{Audio: audio, Language: settings.language}, settings)
}

// handleTextInput runs a typed utterance through the pipeline
func (c *Client) handleTextInput(msg *TextInputMessage) {
	c.mutex.Lock()
	settings := c.settings
	c.mutex.Unlock()

	if msg.Voice != "" {
		settings.voice = msg.Voice
	}
	settings.skipCache = msg.UseCache != nil && !*msg.UseCache

	go c.respond(domain.StudentUtterance{Text: msg.Text}, settings)
}

// respond runs one utterance through the pipeline and ships the reply.
// Runs on its own goroutine so a slow turn never blocks the read loop.
func (c *Client) respond(input domain.StudentUtterance, settings turnSettings) {
	ctx, cancel := context.WithTimeout(context.Background(), respondTimeout)
	defer cancel()

	c.mutex.Lock()
	history := make([]domain.ConversationTurn, len(c.history))
	copy(history, c.history)
	c.mutex.Unlock()

	response, err := c.hub.pipeline.Respond(ctx, input,
		domain.ConversationContext{
			SessionID:       c.sessionID,
			ActivityID:      settings.activityID,
			ActivityContext: settings.activityContext,
			History:         history,
			Formality:       settings.formality,
		},
		usecase.RequestOptions{Voice: settings.voice, SkipCache: settings.skipCache},
	)
	if err != nil {
		c.logger.Warn("Voice turn failed",
			zap.String("sessionID", c.sessionID), zap.Error(err))
		c.sendJSON(CreateErrorMessage("pipeline_failed", err.Error()))
		return
	}

	c.appendHistory(response.StudentInput, response.Teacher.Text)
	c.sendJSON(toVoiceResponseMessage(c.sessionID, response))
}

// appendHistory records one exchange, keeping the window bounded
func (c *Client) appendHistory(studentText, teacherText string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.history = append(c.history,
		domain.ConversationTurn{Role: "student", Content: studentText},
		domain.ConversationTurn{Role: "teacher", Content: teacherText},
	)
	if len(c.history) > maxHistoryTurns {
		c.history = c.history[len(c.history)-maxHistoryTurns:]
	}
}

// dropStaleCapture discards the audio buffer if the turn has gone idle
func (c *Client) dropStaleCapture(idle time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.listening && time.Since(c.listeningAt) > idle {
		c.logger.Warn("Dropping stale audio capture",
			zap.String("sessionID", c.sessionID),
			zap.Int("bufferedBytes", len(c.audioBuf)))
		c.listening = false
		c.audioBuf = nil
	}
}

func (c *Client) sendJSON(payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("Failed to marshal outbound message", zap.Error(err))
		return
	}
	select {
	case c.send <- WriteData{Type: websocket.TextMessage, Payload: data}:
	default:
		c.logger.Warn("Send buffer full, dropping message",
			zap.String("sessionID", c.sessionID))
	}
}

func toVoiceResponseMessage(sessionID string, response *domain.VoiceResponse) *VoiceResponseMessage {
	cues := make([]WireCue, 0, len(response.Timeline.Cues))
	for _, cue := range response.Timeline.Cues {
		cues = append(cues, WireCue{
			Start:    cue.StartMs,
			End:      cue.EndMs,
			Value:    string(cue.Symbol),
			VisemeID: int(viseme.Map(cue.Symbol)),
		})
	}

	msg := &VoiceResponseMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeVoiceResponse,
			Timestamp: time.Now().Format(time.RFC3339),
		},
		SessionID:      sessionID,
		StudentInput:   response.StudentInput,
		Text:           response.Teacher.Text,
		Animation:      string(response.Teacher.Animation),
		Expression:     string(response.Teacher.Expression),
		MouthCues:      cues,
		Cached:         response.Cached,
		ResponseTimeMs: response.ResponseTimeMs,
	}
	if response.Audio != nil {
		msg.Audio = base64.StdEncoding.EncodeToString(response.Audio.Bytes)
		msg.Duration = response.Audio.DurationSeconds
	}
	return msg
}
