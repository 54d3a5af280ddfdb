package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
	"whisper/runtime"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
)

type GatewayConfig struct {
	SendBufferSize int
	ReadTimeout    time.Duration
	AllowedOrigins []string
}

// Gateway upgrades HTTP requests to WebSocket connections and translates
// between wire frames and coordinator calls. One goroutine per
// connection; the coordinator handles the rest.
type Gateway struct {
	log         *slog.Logger
	coordinator *runtime.Coordinator
	config      GatewayConfig
}

func NewGateway(log *slog.Logger, coordinator *runtime.Coordinator, config GatewayConfig) *Gateway {
	return &Gateway{
		log:         log.With(slog.String("component", "gateway")),
		coordinator: coordinator,
		config:      config,
	}
}

// Handler exposes the WebSocket endpoint and the health probe.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWS)
	mux.HandleFunc("/health", g.handleHealth)
	return mux
}

func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.config.AllowedOrigins,
	})
	if err != nil {
		g.log.Warn("websocket accept failed", slog.Any("error", err))
		return
	}

	conn := NewConnection(ws, g.config.SendBufferSize, g.config.ReadTimeout, g.log)
	session := g.coordinator.NewSession(conn)
	g.log.Info("connection established", slog.String("connID", conn.ID().String()))

	// Blocks until the peer disconnects or the server context ends.
	conn.Run(r.Context(), func(ctx context.Context, frame []byte) {
		g.dispatch(ctx, session, frame)
	})

	// The read pump has exited: tear the session down exactly once.
	// Use a fresh context so cleanup still runs when r.Context() is gone.
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	g.coordinator.Disconnect(cleanupCtx, session)
}

// dispatch routes one inbound frame to the matching coordinator
// operation. Unknown events and malformed payloads only ever affect the
// offending connection.
func (g *Gateway) dispatch(ctx context.Context, session *runtime.Session, frame []byte) {
	if !gjson.ValidBytes(frame) {
		g.coordinator.Reject(ctx, session, "invalid frame")
		return
	}
	name := gjson.GetBytes(frame, "event").String()
	payload := gjson.GetBytes(frame, "payload")

	switch name {
	case "user:join":
		g.coordinator.Join(ctx, session, stringField(payload, "username"))
	case "private:message":
		g.coordinator.Send(ctx, session, stringField(payload, "to"), stringField(payload, "text"))
	case "message:history":
		g.coordinator.History(ctx, session, stringField(payload, "with"))
	case "message:unread":
		g.coordinator.Unread(ctx, session, timeField(payload, "since"))
	case "typing":
		g.coordinator.Typing(ctx, session, stringField(payload, "to"))
	case "stopTyping":
		g.coordinator.StopTyping(ctx, session, stringField(payload, "to"))
	default:
		g.coordinator.Reject(ctx, session, "unknown event")
	}
}

// stringField extracts a payload field that must be a JSON string; any
// other type reads as absent so the coordinator rejects it.
func stringField(payload gjson.Result, field string) string {
	v := payload.Get(field)
	if v.Type != gjson.String {
		return ""
	}
	return v.Str
}

func timeField(payload gjson.Result, field string) time.Time {
	v := payload.Get(field)
	if v.Type != gjson.String {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, v.Str)
	if err != nil {
		return time.Time{}
	}
	return ts
}
