package chat

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oceanmonitor/dashboard/internal/handler/sessionctx"
	"github.com/oceanmonitor/dashboard/internal/middleware"
	chatService "github.com/oceanmonitor/dashboard/internal/service/chat"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

type wsHandler struct {
	upgrader websocket.Upgrader
}

// newWSHandler accepts upgrades from the dashboard page's origin. Requests
// without an Origin header come from non-browser clients and are allowed.
func newWSHandler(allowedOrigin string) *wsHandler {
	return &wsHandler{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(allowedOrigin, origin)
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

type inboundMessage struct {
	Type     string `json:"type"`
	Question string `json:"question,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsConn serialises writes; gorilla allows only one concurrent writer.
type wsConn struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
}

func (c *wsConn) send(msgType string, data interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	msg := outgoingMessage{Type: msgType, SessionID: c.sessionID, Data: data, Timestamp: time.Now().Unix()}
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Printf("[websocket] write %s failed: %v", msgType, err)
	}
}

func (c *wsConn) sendError(message string) {
	c.send("error", map[string]string{"message": message})
}

// handle 处理问答页面的WebSocket连接：接收问题，推送对话快照
func (h *wsHandler) handle(w http.ResponseWriter, r *http.Request) {
	sess := sessionctx.From(r.Context())
	flow := sess.Workspace().Chat

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer raw.Close()

	conn := &wsConn{conn: raw, sessionID: sess.ID}
	log.Printf("[websocket] new chat connection for session: %s", sess.ID)

	ctx, cancel := context.WithCancel(r.Context())
	var pending sync.WaitGroup
	defer func() {
		cancel()
		pending.Wait()
	}()

	_ = raw.SetReadDeadline(time.Now().Add(pongWait))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(pongWait))
	})
	go pingLoop(ctx, raw)

	conn.send("snapshot", flow.Snapshot())

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error: %v", err)
			}
			return
		}
		_ = raw.SetReadDeadline(time.Now().Add(pongWait))
		sess.Touch()

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.sendError("invalid message")
			continue
		}

		switch msg.Type {
		case "question":
			pending.Add(1)
			go func(question string) {
				defer pending.Done()
				h.submit(ctx, conn, flow, question)
			}(msg.Question)
		case "reset":
			flow.Reset()
			conn.send("snapshot", flow.Snapshot())
		case "snapshot":
			conn.send("snapshot", flow.Snapshot())
		default:
			conn.sendError("unsupported message type: " + msg.Type)
		}
	}
}

// submit runs one question. The page is told the question is pending, then
// receives the settled conversation.
func (h *wsHandler) submit(ctx context.Context, conn *wsConn, flow *chatService.Flow, question string) {
	conn.send("pending", map[string]string{"question": question})

	_, err := flow.Submit(ctx, question)
	if err != nil {
		if status := statusFor(err); status != http.StatusBadGateway && status != http.StatusServiceUnavailable {
			conn.sendError(err.Error())
			return
		}
	}
	conn.send("snapshot", flow.Snapshot())
}

// pingLoop 定期发送ping消息
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
