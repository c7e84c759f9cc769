package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/openclaw/tradegate/internal/domain"
	"github.com/openclaw/tradegate/internal/protocol"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// maxMessageSize is the maximum size of an incoming frame.
	maxMessageSize = 1 << 20
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Sessions authenticate via gateway.connect, not origin.
		return true
	},
}

// Session is the per-connection state. It lives from WS accept to
// disconnect; queues and registries outlive it.
type Session struct {
	gateway   *Gateway
	conn      sessionConn
	logger    *slog.Logger
	connected bool
	sessionID string
	eventSeq  int64

	// follows is the session-scoped marketplace follow map keyed by
	// (accountId, strategyId). It dies with the session.
	follows map[followKey]followRecord
}

type followKey struct {
	accountID  string
	strategyID string
}

type followRecord struct {
	FollowID    string         `json:"followId"`
	AccountID   string         `json:"accountId"`
	StrategyID  string         `json:"strategyId"`
	CreatedAt   string         `json:"createdAt"`
	Constraints map[string]any `json:"constraints,omitempty"`
}

// sessionConn abstracts the transport so tests can drive a session
// without a real socket.
type sessionConn interface {
	ReadMessage() (data []byte, err error)
	WriteMessage(data []byte) error
	Close() error
}

// wsConn adapts a gorilla websocket connection.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// HandleWS upgrades the request and runs the session loop until the peer
// disconnects.
// GET /ws
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("gateway: upgrade failed", slog.String("error", err.Error()))
		return
	}
	conn.SetReadLimit(maxMessageSize)

	session := g.newSession(&wsConn{conn: conn})
	session.run(r.Context())
}

func (g *Gateway) newSession(conn sessionConn) *Session {
	return &Session{
		gateway: g,
		conn:    conn,
		logger:  g.logger,
		follows: make(map[followKey]followRecord),
	}
}

// run is the session loop: read one frame, handle it fully (events then
// response), then read the next. It returns on disconnect; no global
// state is cleaned up.
func (s *Session) run(ctx context.Context) {
	g := s.gateway
	if g.deps.Metrics != nil {
		g.deps.Metrics.SessionsConnected.Inc()
		defer g.deps.Metrics.SessionsConnected.Dec()
	}
	defer s.conn.Close()

	for {
		data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("gateway: unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		if err := s.handleFrame(ctx, data); err != nil {
			s.logger.Warn("gateway: send failed, dropping session", slog.String("error", err.Error()))
			return
		}
	}
}

// handleFrame processes one inbound message and writes everything it
// produces. The returned error is transport-level only; protocol and
// domain failures become response frames.
func (s *Session) handleFrame(ctx context.Context, data []byte) error {
	frame, parseErr := protocol.Parse(data)
	if parseErr != nil {
		return s.sendResponse(protocol.ErrResponse(recoverRequestID(data), protocol.ErrorShape{
			Code:    domain.CodeInvalidRequest,
			Message: "invalid request frame",
		}))
	}

	req, isRequest := frame.(protocol.Request)
	if !isRequest {
		return s.sendResponse(protocol.ErrResponse(recoverRequestID(data), protocol.ErrorShape{
			Code:    domain.CodeInvalidRequest,
			Message: "gateway accepts request frames only",
		}))
	}

	if !s.connected {
		return s.handleConnect(req)
	}

	return s.dispatch(ctx, req)
}

// handleConnect enforces the PRE_CONNECT state: the first request must be
// gateway.connect with a compatible protocol range and, when token auth
// is configured, a matching token.
func (s *Session) handleConnect(req protocol.Request) error {
	g := s.gateway

	if req.Method != "gateway.connect" {
		return s.sendResponse(protocol.ErrResponse(req.ID, protocol.ErrorShape{
			Code:    domain.CodeInvalidRequest,
			Message: "first request must be gateway.connect",
		}))
	}

	var params connectParams
	if err := decodeParams(req.ParamsOrEmpty(), &params); err != nil || params.validate() != nil {
		return s.sendResponse(protocol.ErrResponse(req.ID, protocol.ErrorShape{
			Code:    domain.CodeInvalidParams,
			Message: "invalid gateway.connect params",
		}))
	}

	if params.Protocol.Min > ProtocolVersion || params.Protocol.Max < ProtocolVersion {
		return s.sendResponse(protocol.ErrResponse(req.ID, protocol.ErrorShape{
			Code:    domain.CodeInvalidRequest,
			Message: "protocol mismatch",
			Details: map[string]any{"expectedProtocol": ProtocolVersion},
		}))
	}

	auth := g.currentConfig().Gateway.Auth
	if auth.Mode == "token" {
		supplied := ""
		if params.Auth != nil {
			supplied, _ = params.Auth["token"].(string)
		}
		if supplied != auth.Token {
			return s.sendResponse(protocol.ErrResponse(req.ID, protocol.ErrorShape{
				Code:    domain.CodeInvalidRequest,
				Message: "authentication failed",
			}))
		}
	}

	s.connected = true
	s.sessionID = "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	s.logger.Info("gateway: session connected",
		slog.String("session_id", s.sessionID),
		slog.String("client", params.Client.Name),
	)

	return s.sendResponse(protocol.OKResponse(req.ID, map[string]any{
		"protocol": map[string]any{"selected": ProtocolVersion},
		"session":  map[string]any{"sessionId": s.sessionID, "role": "operator"},
		"server":   map[string]any{"name": ServerName, "version": ServerVersion},
	}))
}

// dispatch routes an OPEN-state request through the method table,
// emitting events before the single response and writing the audit record
// for flagged methods.
func (s *Session) dispatch(ctx context.Context, req protocol.Request) error {
	g := s.gateway

	spec, known := g.methods[req.Method]
	if !known {
		if g.deps.Metrics != nil {
			g.deps.Metrics.RequestsTotal.WithLabelValues(req.Method, "not_found").Inc()
		}
		return s.sendResponse(protocol.ErrResponse(req.ID, protocol.ErrorShape{
			Code:    domain.CodeNotFound,
			Message: fmt.Sprintf("unknown method: %s", req.Method),
		}))
	}

	result := spec.handler(ctx, s, req)

	// Audit before the response goes out so a durable record precedes the
	// acknowledgment of every security-relevant action.
	if spec.audited {
		action := result.auditAction
		if action == "" {
			action = req.Method
		}
		data := result.auditData
		if data == nil {
			data = map[string]any{}
		}
		g.writeAudit(ctx, action, req.ID, data)
	}

	for _, event := range result.events {
		if err := s.sendEvent(ctx, event); err != nil {
			return err
		}
	}

	outcome := "ok"
	var response protocol.Response
	if result.errShape != nil {
		outcome = result.errShape.Code
		response = protocol.ErrResponse(req.ID, *result.errShape)
	} else {
		response = protocol.OKResponse(req.ID, result.payload)
	}
	if g.deps.Metrics != nil {
		g.deps.Metrics.RequestsTotal.WithLabelValues(req.Method, outcome).Inc()
	}
	return s.sendResponse(response)
}

func (s *Session) sendResponse(response protocol.Response) error {
	data, err := protocol.Marshal(response)
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(data)
}

// sendEvent assigns the session event sequence, writes the frame, and
// mirrors it to the bus.
func (s *Session) sendEvent(ctx context.Context, event protocol.Event) error {
	seq := s.eventSeq
	s.eventSeq++
	event.Seq = &seq

	data, err := protocol.Marshal(event)
	if err != nil {
		return err
	}
	if err := s.conn.WriteMessage(data); err != nil {
		return err
	}
	s.gateway.publishEvent(ctx, event)
	return nil
}

// recoverRequestID pulls the client-supplied id out of an otherwise
// rejected frame so the error response can echo it; the literal "invalid"
// is used when the message is not a JSON object.
func recoverRequestID(data []byte) string {
	var probe map[string]any
	if err := json.Unmarshal(data, &probe); err != nil {
		return "invalid"
	}
	if id, ok := probe["id"].(string); ok && id != "" {
		return id
	}
	if id, ok := probe["id"]; ok {
		return fmt.Sprintf("%v", id)
	}
	return "invalid"
}
