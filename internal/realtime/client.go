// Package realtime carries the per-participant WebSocket connection: upgrade,
// identity resolution, the read/write pumps, and the bounded outbound queue
// feeding the live-session core.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/pulseclass/backend/internal/auth"
	"github.com/pulseclass/backend/internal/live"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket event envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ICEConfig is sent once after connect so the client can build its peer
// connection with the operator's STUN/TURN servers.
type ICEConfig struct {
	ICEServers []webrtc.ICEServer `json:"ice_servers"`
}

func (ICEConfig) EventName() string { return "ice_config" }

// Client is a single WebSocket connection in a session. It implements
// live.Sink: Deliver never blocks, and a full queue reports overflow so the
// registry disconnects the slow consumer instead of stalling the room.
type Client struct {
	id        string
	sessionID uuid.UUID
	identity  auth.Identity
	registry  *live.Registry
	conn      *websocket.Conn
	send      chan WSMessage
	closeOnce sync.Once
	logger    *zap.Logger
}

// Deliver implements live.Sink.
func (c *Client) Deliver(ev live.Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		c.logger.Error("marshal event", zap.Error(err), zap.String("event", ev.EventName()))
		return true
	}
	select {
	case c.send <- WSMessage{Event: ev.EventName(), Data: data}:
		return true
	default:
		return false
	}
}

// Close implements live.Sink. Closing the underlying connection unwinds the
// read pump, which performs the leave.
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		c.logger.Debug("closing connection", zap.String("client_id", c.id), zap.String("reason", reason))
		_ = c.conn.Close()
	})
}

// ServeWs handles the WebSocket upgrade and runs the client loop. The session
// id and bearer token come from the query string; the token is resolved to a
// caller identity before the upgrade.
func ServeWs(registry *live.Registry, resolve func(token string) (auth.Identity, error), iceServers []webrtc.ICEServer, logger *zap.Logger) gin.HandlerFunc {
	return func(g *gin.Context) {
		sessionIDStr := g.Query("session_id")
		token := g.Query("token")
		if sessionIDStr == "" || token == "" {
			g.JSON(http.StatusBadRequest, gin.H{"error": "session_id and token required"})
			return
		}
		sessionID, err := uuid.Parse(sessionIDStr)
		if err != nil {
			g.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
			return
		}
		identity, err := resolve(token)
		if err != nil {
			g.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(g.Writer, g.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			id:        uuid.New().String(),
			sessionID: sessionID,
			identity:  identity,
			registry:  registry,
			conn:      conn,
			send:      make(chan WSMessage, registry.Config().SendBuffer),
			logger:    logger,
		}
		client.Deliver(ICEConfig{ICEServers: iceServers})
		go client.writePump()
		client.readPump()
	}
}

// role maps the identity claim onto a session role.
func (c *Client) role() live.Role {
	if c.identity.Role == string(live.RoleHost) {
		return live.RoleHost
	}
	return live.RoleViewer
}

// fail reports a rejected operation to this connection only.
func (c *Client) fail(err error) {
	c.Deliver(live.Errorf(err))
}

func (c *Client) readPump() {
	defer func() {
		// Disconnect implies leave; orphaned participant entries must not
		// survive. ErrNotParticipant here just means we were evicted or
		// superseded first.
		if err := c.registry.Leave(c.sessionID, c.identity.UserID, c); err != nil &&
			err != live.ErrNotParticipant && err != live.ErrSessionNotFound {
			c.logger.Warn("leave on disconnect", zap.Error(err))
		}
		c.Close("connection closed")
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg WSMessage) {
	ctx := context.Background()
	switch msg.Event {
	case "join_session":
		if err := c.registry.Join(ctx, c.sessionID, c.identity.UserID, c.identity.DisplayName, c.role(), c); err != nil {
			c.fail(err)
		}
	case "leave_session":
		if err := c.registry.Leave(c.sessionID, c.identity.UserID, c); err != nil {
			c.fail(err)
		}
	case "send_message":
		var req live.SubmitRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.Deliver(live.ErrorEvent{Code: "InvalidPayload", Message: "malformed send_message payload"})
			return
		}
		if err := c.registry.SubmitMessage(ctx, c.sessionID, c.identity.UserID, req); err != nil {
			c.fail(err)
		}
	case "typing_start", "typing_stop":
		if err := c.registry.Typing(c.sessionID, c.identity.UserID, msg.Event == "typing_start"); err != nil {
			c.fail(err)
		}
	case "send_reaction":
		var req live.ReactionRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.Deliver(live.ErrorEvent{Code: "InvalidPayload", Message: "malformed send_reaction payload"})
			return
		}
		if err := c.registry.React(c.sessionID, c.identity.UserID, req.Emoji); err != nil {
			c.fail(err)
		}
	case "signal":
		var req live.SignalRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.Deliver(live.ErrorEvent{Code: "InvalidPayload", Message: "malformed signal payload"})
			return
		}
		if err := c.registry.Relay(c.sessionID, c.identity.UserID, req); err != nil {
			c.fail(err)
		}
	case "moderate":
		var req live.ModerateRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.Deliver(live.ErrorEvent{Code: "InvalidPayload", Message: "malformed moderate payload"})
			return
		}
		if err := c.registry.Moderate(ctx, c.sessionID, c.identity.UserID, req); err != nil {
			c.fail(err)
		}
	case "unban":
		var req live.UnbanRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.Deliver(live.ErrorEvent{Code: "InvalidPayload", Message: "malformed unban payload"})
			return
		}
		if err := c.registry.Unban(c.sessionID, c.identity.UserID, req.UserID); err != nil {
			c.fail(err)
		}
	case "start_session":
		if err := c.registry.Transition(ctx, c.sessionID, live.StatusLive, c.identity.UserID); err != nil {
			c.fail(err)
		}
	case "end_session":
		if err := c.registry.Transition(ctx, c.sessionID, live.StatusEnded, c.identity.UserID); err != nil {
			c.fail(err)
		}
	default:
		// ignore unknown events
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close("write pump exit")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
