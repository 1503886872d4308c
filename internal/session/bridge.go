package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/HefaCom/health-florence-sub002/internal/model"
)

var _ Client = (*BridgeClient)(nil)

// bridge message types
const (
	msgConnect      = "connect"
	msgCancel       = "cancel"
	msgDisconnect   = "disconnect"
	msgProposal     = "proposal"
	msgApproved     = "approved"
	msgRejected     = "rejected"
	msgDisconnected = "disconnected"
	msgError        = "error"
	msgUpdate       = "session_update"
	msgDelete       = "session_delete"
)

// ErrBridgeClosed is returned for calls in flight when the bridge connection drops
var ErrBridgeClosed = errors.New("session: bridge connection closed")

type bridgeRequest struct {
	ProjectID          string                     `json:"projectId"`
	Metadata           model.SessionMetadata      `json:"metadata"`
	RequiredNamespaces map[string]model.Namespace `json:"requiredNamespaces"`
	OptionalNamespaces map[string]model.Namespace `json:"optionalNamespaces"`
}

type bridgeReason struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type bridgeMessage struct {
	Type       string                     `json:"type"`
	Ref        string                     `json:"ref,omitempty"`
	Topic      string                     `json:"topic,omitempty"`
	URI        string                     `json:"uri,omitempty"`
	Request    *bridgeRequest             `json:"request,omitempty"`
	Reason     *bridgeReason              `json:"reason,omitempty"`
	Session    *model.Session             `json:"session,omitempty"`
	Namespaces map[string]model.Namespace `json:"namespaces,omitempty"`
	Error      string                     `json:"error,omitempty"`
}

// BridgeClient is a session Client backed by a wallet-connection sidecar reached
// over a websocket. The sidecar runs the relay protocol. Requests carry a ref that
// the sidecar echoes on its answers; session_update and session_delete messages
// are published on the bus.
type BridgeClient struct {
	url    string
	bus    *Bus
	logger *zap.Logger
	dialer websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	ref     uint64
	pending map[string]chan bridgeMessage
	closed  bool

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// NewBridgeClient creates a client for the sidecar at url. The connection is
// dialed on first use and redialed after it drops.
func NewBridgeClient(url string, bus *Bus, logger *zap.Logger) *BridgeClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BridgeClient{
		url:     url,
		bus:     bus,
		logger:  logger.Named("bridge"),
		dialer:  websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		pending: make(map[string]chan bridgeMessage),
	}
}

// Connect sends a connect request and waits for the sidecar's proposal. A sidecar
// that resumes an existing pairing may answer with the approval directly.
func (c *BridgeClient) Connect(ctx context.Context, req ConnectRequest) (Proposal, error) {
	ref, replies, err := c.send(ctx, bridgeMessage{
		Type: msgConnect,
		Request: &bridgeRequest{
			ProjectID:          req.ProjectID,
			Metadata:           req.Metadata,
			RequiredNamespaces: req.RequiredNamespaces,
			OptionalNamespaces: req.OptionalNamespaces,
		},
	})
	if err != nil {
		return Proposal{}, err
	}

	msg, err := c.await(ctx, replies)
	if err != nil {
		c.cancel(ref)
		return Proposal{}, err
	}

	switch msg.Type {
	case msgProposal:
		return Proposal{
			URI: msg.URI,
			Approval: func(ctx context.Context) (model.Session, error) {
				answer, err := c.await(ctx, replies)
				if err != nil {
					c.cancel(ref)
					return model.Session{}, err
				}
				c.forget(ref)
				return approvedSession(answer)
			},
		}, nil
	case msgApproved, msgRejected, msgError:
		c.forget(ref)
		session, err := approvedSession(msg)
		return Proposal{
			Approval: func(context.Context) (model.Session, error) { return session, err },
		}, nil
	default:
		c.cancel(ref)
		return Proposal{}, fmt.Errorf("unexpected bridge reply %q to connect", msg.Type)
	}
}

// Disconnect asks the sidecar to close topic and waits for its acknowledgement
func (c *BridgeClient) Disconnect(ctx context.Context, topic string, reason Reason) error {
	ref, replies, err := c.send(ctx, bridgeMessage{
		Type:   msgDisconnect,
		Topic:  topic,
		Reason: &bridgeReason{Code: reason.Code, Message: reason.Message},
	})
	if err != nil {
		return err
	}
	defer c.forget(ref)

	msg, err := c.await(ctx, replies)
	if err != nil {
		return err
	}
	switch msg.Type {
	case msgDisconnected:
		return nil
	case msgError:
		return fmt.Errorf("bridge disconnect %s: %s", topic, msg.Error)
	default:
		return fmt.Errorf("unexpected bridge reply %q to disconnect", msg.Type)
	}
}

// Close drops the connection. Calls in flight fail with ErrBridgeClosed.
func (c *BridgeClient) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	var err error
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = conn.Close()
	}
	c.wg.Wait()
	return err
}

// send registers a reply channel under a fresh ref and writes msg
func (c *BridgeClient) send(ctx context.Context, msg bridgeMessage) (string, chan bridgeMessage, error) {
	conn, err := c.connection(ctx)
	if err != nil {
		return "", nil, err
	}

	c.mu.Lock()
	c.ref++
	ref := strconv.FormatUint(c.ref, 10)
	replies := make(chan bridgeMessage, 4)
	c.pending[ref] = replies
	c.mu.Unlock()

	msg.Ref = ref
	if err := c.write(ctx, conn, msg); err != nil {
		c.forget(ref)
		return "", nil, err
	}
	return ref, replies, nil
}

func (c *BridgeClient) write(ctx context.Context, conn *websocket.Conn, msg bridgeMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		defer conn.SetWriteDeadline(time.Time{})
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("bridge write %s: %w", msg.Type, err)
	}
	return nil
}

func (c *BridgeClient) await(ctx context.Context, replies chan bridgeMessage) (bridgeMessage, error) {
	select {
	case msg, ok := <-replies:
		if !ok {
			return bridgeMessage{}, ErrBridgeClosed
		}
		return msg, nil
	case <-ctx.Done():
		return bridgeMessage{}, ctx.Err()
	}
}

// cancel tells the sidecar to abandon ref, best effort
func (c *BridgeClient) cancel(ref string) {
	if !c.forget(ref) {
		return
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.write(ctx, conn, bridgeMessage{Type: msgCancel, Ref: ref}); err != nil {
		c.logger.Debug("bridge cancel failed", zap.String("ref", ref), zap.Error(err))
	}
}

// forget reports whether ref was still pending
func (c *BridgeClient) forget(ref string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[ref]
	delete(c.pending, ref)
	return ok
}

func (c *BridgeClient) connection(ctx context.Context) (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrBridgeClosed
	}
	if c.conn != nil {
		return c.conn, nil
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("bridge dial: %w", err)
	}
	c.conn = conn
	c.wg.Add(1)
	go c.readLoop(conn)
	c.logger.Info("bridge connected", zap.String("url", c.url))
	return conn, nil
}

func (c *BridgeClient) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	defer c.dropConnection(conn)

	for {
		var msg bridgeMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Warn("bridge read failed", zap.Error(err))
			}
			return
		}
		c.dispatch(msg)
	}
}

func (c *BridgeClient) dispatch(msg bridgeMessage) {
	switch msg.Type {
	case msgUpdate:
		c.bus.Publish(Event{Kind: EventSessionUpdate, Topic: msg.Topic, Namespaces: msg.Namespaces})
		return
	case msgDelete:
		c.bus.Publish(Event{Kind: EventSessionDelete, Topic: msg.Topic})
		return
	}

	c.mu.Lock()
	replies, ok := c.pending[msg.Ref]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("bridge reply for unknown ref", zap.String("ref", msg.Ref), zap.String("type", msg.Type))
		return
	}
	select {
	case replies <- msg:
	default:
		c.logger.Warn("bridge reply dropped", zap.String("ref", msg.Ref), zap.String("type", msg.Type))
	}
}

// dropConnection fails every pending call so its waiter returns ErrBridgeClosed
func (c *BridgeClient) dropConnection(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	pending := c.pending
	c.pending = make(map[string]chan bridgeMessage)
	c.mu.Unlock()

	_ = conn.Close()
	for _, replies := range pending {
		close(replies)
	}
}

func approvedSession(msg bridgeMessage) (model.Session, error) {
	switch msg.Type {
	case msgApproved:
		if msg.Session == nil {
			return model.Session{}, errors.New("bridge approval has no session")
		}
		return *msg.Session, nil
	case msgRejected:
		return model.Session{}, fmt.Errorf("wallet rejected session: %s", msg.Error)
	case msgError:
		return model.Session{}, fmt.Errorf("bridge error: %s", msg.Error)
	default:
		return model.Session{}, fmt.Errorf("unexpected bridge reply %q to approval", msg.Type)
	}
}
