package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"

	"github.com/dwdwow/morpho-go/logger"
)

var ErrClosed = errors.New("websocket closed")

type rpcResponse struct {
	result json.RawMessage
	err    error
}

// RPCClient issues JSON-RPC calls over one websocket and matches responses
// to requests by id. Calls may be made from any goroutine.
type RPCClient struct {
	url string
	log *logger.Entry

	conn    *websocket.Conn
	writeMu sync.Mutex

	id        int64
	waiters   map[int64]chan rpcResponse
	waitersMu sync.Mutex

	ctx          context.Context
	cancel       context.CancelFunc
	pingInterval time.Duration
}

func NewRPCClient(url string, log *logger.Entry) *RPCClient {
	return &RPCClient{
		url:          url,
		log:          logger.OrDiscard(log, "ws-rpc"),
		pingInterval: 30 * time.Second,
		waiters:      make(map[int64]chan rpcResponse),
	}
}

// Start dials the node and begins dispatching responses
func (c *RPCClient) Start() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket: %w", err)
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.conn = conn

	go c.pingRoutine()
	go c.readLoop(conn)
	return nil
}

// Call sends method with params and waits for its response or ctx
func (c *RPCClient) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	ch := make(chan rpcResponse, 1)

	c.writeMu.Lock()
	if c.conn == nil {
		c.writeMu.Unlock()
		return nil, fmt.Errorf("client not connected")
	}
	c.id++
	id := c.id
	c.waitersMu.Lock()
	c.waiters[id] = ch
	c.waitersMu.Unlock()
	err := c.conn.WriteJSON(newRequest(id, method, params...))
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("failed to send %s: %w", method, err)
	}

	select {
	case resp := <-ch:
		if resp.err != nil {
			return nil, fmt.Errorf("%s: %w", method, resp.err)
		}
		return resp.result, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

// BlockNumber returns the node's latest block number
func (c *RPCClient) BlockNumber(ctx context.Context) (uint64, error) {
	raw, err := c.Call(ctx, "eth_blockNumber")
	if err != nil {
		return 0, err
	}
	var n hexutil.Uint64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("invalid block number %s: %w", string(raw), err)
	}
	return uint64(n), nil
}

func (c *RPCClient) forget(id int64) {
	c.waitersMu.Lock()
	delete(c.waiters, id)
	c.waitersMu.Unlock()
}

// Close stops the client and fails every pending call with ErrClosed
func (c *RPCClient) Close() error {
	if c.cancel != nil {
		c.cancel()
	}

	c.writeMu.Lock()
	conn := c.conn
	c.conn = nil
	c.writeMu.Unlock()

	c.waitersMu.Lock()
	for id, ch := range c.waiters {
		ch <- rpcResponse{err: ErrClosed}
		delete(c.waiters, id)
	}
	c.waitersMu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *RPCClient) pingRoutine() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			conn := c.conn
			var err error
			if conn != nil {
				err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			}
			c.writeMu.Unlock()
			if err != nil {
				c.log.WithError(err).Warn("ping failed")
				c.Close()
				return
			}
		}
	}
}

func (c *RPCClient) readLoop(conn *websocket.Conn) {
	defer c.Close()

	for {
		if c.ctx.Err() != nil {
			return
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.log.WithError(err).Warn("read failed")
			}
			return
		}

		var msg rpcMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.WithError(err).Debug("skipping malformed message")
			continue
		}
		if msg.ID == nil {
			continue
		}

		c.waitersMu.Lock()
		ch, ok := c.waiters[*msg.ID]
		delete(c.waiters, *msg.ID)
		c.waitersMu.Unlock()
		if !ok {
			c.log.WithField("id", *msg.ID).Debug("response without a waiter")
			continue
		}

		resp := rpcResponse{result: msg.Result}
		if msg.Error != nil {
			resp.err = msg.Error
		}
		ch <- resp
	}
}
