// Package signalr implements the small slice of the SignalR JSON hub
// protocol the status hub speaks: a handshake, fire-and-forget invocations,
// server-to-client invocations and pings, all over a single websocket.
package signalr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Hub records are JSON objects separated by 0x1e.
const recordSeparator = 0x1e

const (
	msgInvocation = 1
	msgPing       = 6
	msgClose      = 7
)

var errHandshakeRejected = errors.New("hub handshake rejected")

// Handler receives the first argument of a server invocation, undecoded.
type Handler func(payload json.RawMessage)

type hubMessage struct {
	Type      int               `json:"type"`
	Target    string            `json:"target,omitempty"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// invocationMessage always carries an arguments array, even when empty;
// hubs reject invocations without one.
type invocationMessage struct {
	Type      int               `json:"type"`
	Target    string            `json:"target"`
	Arguments []json.RawMessage `json:"arguments"`
}

// Client is a hub connection. Handlers may be registered before or after
// Start; targets are matched case-insensitively and unknown targets are
// dropped.
type Client struct {
	url    string
	header http.Header
	log    *zap.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	conn     *websocket.Conn

	writeMu sync.Mutex
	done    chan error
}

func NewClient(hubURL string, header http.Header, log *zap.Logger) *Client {
	return &Client{
		url:      hubURL,
		header:   header,
		log:      log,
		handlers: make(map[string]Handler),
		done:     make(chan error, 1),
	}
}

// On registers a handler for a server invocation target.
func (c *Client) On(target string, h Handler) {
	c.mu.Lock()
	c.handlers[strings.ToLower(target)] = h
	c.mu.Unlock()
}

// Done reports the terminal error of the read loop, once.
func (c *Client) Done() <-chan error { return c.done }

// Start dials the hub, performs the protocol handshake and launches the
// read loop.
func (c *Client) Start(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{
		HTTPHeader: c.header,
	})
	if err != nil {
		return fmt.Errorf("dial hub: %w", err)
	}

	if err := c.handshake(ctx, conn); err != nil {
		conn.Close(websocket.StatusProtocolError, "handshake failed")
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

func (c *Client) handshake(ctx context.Context, conn *websocket.Conn) error {
	request := append([]byte(`{"protocol":"json","version":1}`), recordSeparator)
	if err := conn.Write(ctx, websocket.MessageText, request); err != nil {
		return fmt.Errorf("handshake write: %w", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		return fmt.Errorf("handshake read: %w", err)
	}

	var response struct {
		Error string `json:"error"`
	}
	records := splitRecords(data)
	if len(records) == 0 {
		return errHandshakeRejected
	}
	if err := json.Unmarshal(records[0], &response); err != nil {
		return fmt.Errorf("handshake decode: %w", err)
	}
	if response.Error != "" {
		return fmt.Errorf("%w: %s", errHandshakeRejected, response.Error)
	}
	return nil
}

// Invoke sends a fire-and-forget invocation (no invocation id, so the hub
// sends no completion back).
func (c *Client) Invoke(ctx context.Context, target string, args ...any) error {
	arguments := make([]json.RawMessage, 0, len(args))
	for _, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return fmt.Errorf("invoke %s: %w", target, err)
		}
		arguments = append(arguments, raw)
	}
	return c.write(ctx, invocationMessage{Type: msgInvocation, Target: target, Arguments: arguments})
}

// Stop closes the websocket. The read loop ends with a normal-closure error.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "bye")
}

func (c *Client) write(ctx context.Context, msg any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return errors.New("hub not connected")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	payload = append(payload, recordSeparator)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.Write(ctx, websocket.MessageText, payload)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	ctx := context.Background()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.done <- nil
			default:
				c.done <- err
			}
			return
		}

		for _, record := range splitRecords(data) {
			c.dispatch(ctx, record)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, record []byte) {
	var msg hubMessage
	if err := json.Unmarshal(record, &msg); err != nil {
		c.log.Debug("dropping malformed hub record", zap.Error(err))
		return
	}

	switch msg.Type {
	case msgInvocation:
		c.mu.RLock()
		handler := c.handlers[strings.ToLower(msg.Target)]
		c.mu.RUnlock()
		if handler == nil {
			return
		}
		var payload json.RawMessage
		if len(msg.Arguments) > 0 {
			payload = msg.Arguments[0]
		}
		handler(payload)

	case msgPing:
		if err := c.write(ctx, hubMessage{Type: msgPing}); err != nil {
			c.log.Debug("ping reply failed", zap.Error(err))
		}

	case msgClose:
		c.log.Info("hub sent close", zap.String("error", msg.Error))

	default:
		// Completions and stream frames are irrelevant to this client.
	}
}

func splitRecords(data []byte) []json.RawMessage {
	var records []json.RawMessage
	for _, part := range bytes.Split(data, []byte{recordSeparator}) {
		if len(part) == 0 {
			continue
		}
		records = append(records, json.RawMessage(part))
	}
	return records
}
