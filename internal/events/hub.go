// Package events pushes live analysis updates to websocket clients:
// search progress lines, finished move evaluations, and pool status.
package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rustypig91/smart-chessboard-logic/internal/analysis"
	"github.com/rustypig91/smart-chessboard-logic/internal/rules"
	"github.com/rustypig91/smart-chessboard-logic/internal/uci"
)

type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ProgressPayload mirrors one engine info line for a position under
// analysis. Exactly one of ScoreCP and MateIn is set when the line
// carried a score.
type ProgressPayload struct {
	BoardID     string   `json:"board_id,omitempty"`
	Fingerprint string   `json:"fingerprint"`
	Depth       int      `json:"depth"`
	SelDepth    int      `json:"sel_depth,omitempty"`
	ScoreCP     *int     `json:"score_cp,omitempty"`
	MateIn      *int     `json:"mate_in,omitempty"`
	Nodes       int64    `json:"nodes"`
	NPS         int64    `json:"nps"`
	PV          []string `json:"pv,omitempty"`
	UpdatedAt   int64    `json:"updated_at_ms"`
}

// EvaluationPayload is one finished move judgment within a game.
type EvaluationPayload struct {
	Ply        int                     `json:"ply"`
	Evaluation analysis.MoveEvaluation `json:"evaluation"`
	UpdatedAt  int64                   `json:"updated_at_ms"`
}

// StatusPayload carries a point-in-time pool and cache snapshot.
type StatusPayload struct {
	Status    analysis.CoordinatorStatus `json:"status"`
	UpdatedAt int64                      `json:"updated_at_ms"`
}

// ProgressFromInfo builds a progress payload from a raw info record.
func ProgressFromInfo(fingerprint string, info uci.Info) ProgressPayload {
	p := ProgressPayload{
		BoardID:     BoardID(fingerprint),
		Fingerprint: fingerprint,
		Depth:       info.Depth,
		SelDepth:    info.SelDepth,
		Nodes:       info.Nodes,
		NPS:         info.NPS,
		PV:          info.PV,
		UpdatedAt:   time.Now().UnixMilli(),
	}
	switch {
	case info.Score.IsCentipawn():
		v := info.Score.Value
		p.ScoreCP = &v
	case info.Score.IsMate():
		v := info.Score.Value
		p.MateIn = &v
	}
	return p
}

// BoardID derives the compact wire identifier clients use to correlate
// updates with a board. Empty when the fingerprint does not pack.
func BoardID(fingerprint string) string {
	id, err := rules.PackedKey(fingerprint)
	if err != nil {
		return ""
	}
	return id
}

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans published payloads out to every connected client. Publishes
// never block: a full broadcast buffer or a slow client drops the
// update, the next one supersedes it anyway.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}

	broadcastProgress   chan ProgressPayload
	broadcastEvaluation chan EvaluationPayload
	broadcastStatus     chan StatusPayload
}

func NewHub() *Hub {
	return &Hub{
		clients:             make(map[*Client]struct{}),
		broadcastProgress:   make(chan ProgressPayload, 64),
		broadcastEvaluation: make(chan EvaluationPayload, 32),
		broadcastStatus:     make(chan StatusPayload, 16),
	}
}

func (h *Hub) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case payload := <-h.broadcastProgress:
			h.sendAll(Message{Type: "progress", Payload: mustMarshal(payload)})
		case payload := <-h.broadcastEvaluation:
			h.sendAll(Message{Type: "evaluation", Payload: mustMarshal(payload)})
		case payload := <-h.broadcastStatus:
			h.sendAll(Message{Type: "status", Payload: mustMarshal(payload)})
		}
	}
}

func (h *Hub) sendAll(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.sendJSON(msg)
	}
}

func (h *Hub) PublishProgress(payload ProgressPayload) {
	select {
	case h.broadcastProgress <- payload:
	default:
	}
}

func (h *Hub) PublishEvaluation(payload EvaluationPayload) {
	select {
	case h.broadcastEvaluation <- payload:
	default:
	}
}

func (h *Hub) PublishStatus(payload StatusPayload) {
	select {
	case h.broadcastStatus <- payload:
	default:
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// HasClients reports whether anyone is listening; callers can skip
// building payloads when nobody is.
func (h *Hub) HasClients() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients) > 0
}

func (c *Client) sendJSON(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// ServeWS upgrades the request and attaches the client to the hub.
// initial is sent as the first message when non-nil.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, initial *StatusPayload) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &Client{hub: h, conn: conn, send: make(chan []byte, 16)}
	h.Register(client)

	if initial != nil {
		client.sendJSON(Message{Type: "status", Payload: mustMarshal(*initial)})
	}

	go func() {
		defer conn.Close()
		_ = writeWithHeartbeat(conn, client.send)
	}()

	// Inbound messages are discarded; the read loop only detects the
	// client going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.Unregister(client)
			return
		}
	}
}

const idlePingInterval = 25 * time.Second

func writeWithHeartbeat(conn *websocket.Conn, send <-chan []byte) error {
	ticker := time.NewTicker(idlePingInterval)
	defer ticker.Stop()
	lastWrite := time.Now()
	pingPayload := mustMarshal(Message{Type: "ping"})

	for {
		select {
		case msg, ok := <-send:
			if !ok {
				return nil
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
			lastWrite = time.Now()
		case <-ticker.C:
			if time.Since(lastWrite) < idlePingInterval {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, pingPayload); err != nil {
				return err
			}
			lastWrite = time.Now()
		}
	}
}

func mustMarshal(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
