package runner

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// wsPingPeriod mirrors the teacher corpus's websocket tail handler
// (grafana-loki's pkg/querier/tail/http.go), which keepalive-pings at a
// fixed interval to detect dead viewers.
const wsPingPeriod = 15 * time.Second

// wireEvent is the JSON rendering of an Event sent to WebSocket viewers.
// Event itself is not JSON-tagged because some fields are Go-only (an
// error value, a *network.Event); this is the deliberately narrow wire
// subset.
type wireEvent struct {
	Kind        EventKind `json:"kind"`
	Time        time.Time `json:"time"`
	WorkflowCID string    `json:"workflow_cid,omitempty"`
	TaskName    string    `json:"task_name,omitempty"`
	Replayed    bool      `json:"replayed,omitempty"`
	ReceiptCID  string    `json:"receipt_cid,omitempty"`
	Status      string    `json:"status,omitempty"`
	Err         string    `json:"error,omitempty"`

	NetworkKind string `json:"network_kind,omitempty"`
	NetworkPeer string `json:"network_peer,omitempty"`
	NetworkCID  string `json:"network_cid,omitempty"`
}

func toWireEvent(e Event) wireEvent {
	w := wireEvent{Kind: e.Kind, Time: e.Time}
	if e.WorkflowCID.Defined() {
		w.WorkflowCID = e.WorkflowCID.String()
	}
	w.TaskName = e.TaskName
	w.Replayed = e.Replayed
	if e.ReceiptCID.Defined() {
		w.ReceiptCID = e.ReceiptCID.String()
	}
	w.Status = string(e.Status)
	if e.Err != nil {
		w.Err = e.Err.Error()
	}
	if e.Network != nil {
		w.NetworkKind = string(e.Network.Kind)
		w.NetworkPeer = e.Network.Peer.String()
		if e.Network.CID.Defined() {
			w.NetworkCID = e.Network.CID.String()
		}
		if w.Time.IsZero() {
			w.Time = e.Network.Time
		}
	}
	return w
}

// WebSocketBroadcaster is a development/debugging aid, not the RPC surface
// named as a Non-goal in §1: it fans a Runner's Event stream out over
// WebSocket to any number of local viewers, in the style of the teacher
// corpus's gorilla/websocket tail handler.
type WebSocketBroadcaster struct {
	log      zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewWebSocketBroadcaster wires itself to r's event bus and starts
// forwarding events to connected clients until the runner's event bus
// closes the subscription.
func NewWebSocketBroadcaster(log zerolog.Logger, r *Runner) *WebSocketBroadcaster {
	b := &WebSocketBroadcaster{
		log:      log.With().Str("component", "ws_broadcaster").Logger(),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]struct{}),
	}
	events, _ := r.Subscribe(256)
	go b.pump(events)
	return b
}

func (b *WebSocketBroadcaster) pump(events <-chan Event) {
	for e := range events {
		payload, err := json.Marshal(toWireEvent(e))
		if err != nil {
			b.log.Warn().Err(err).Msg("marshal event for broadcast")
			continue
		}
		b.broadcast(payload)
	}
}

func (b *WebSocketBroadcaster) broadcast(payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			b.log.Debug().Err(err).Msg("write to viewer failed, dropping")
			_ = conn.Close()
			delete(b.clients, conn)
		}
	}
}

// ServeHTTP upgrades an incoming request to a WebSocket connection and
// registers it as an event viewer until it disconnects.
func (b *WebSocketBroadcaster) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := b.upgrader.Upgrade(w, req, nil)
	if err != nil {
		b.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	b.mu.Lock()
	b.clients[conn] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.clients, conn)
		b.mu.Unlock()
		_ = conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(wsPingPeriod * 2))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPingPeriod * 2))
	})

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
