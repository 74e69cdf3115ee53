// Package ws provides an EVM websocket subscription client for chain activity
// that invalidates vault data.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"github.com/dwdwow/morpho-go/logger"
)

const subscribeRequestID = 1

// Client is a generic websocket client bound to a single eth_subscribe feed.
// Read is meant to be called from one goroutine in a loop; Close may be
// called from any goroutine and unblocks a pending Read.
type Client[T any] struct {
	url    string
	params []any
	log    *logger.Entry

	mu          sync.Mutex
	conn        *websocket.Conn
	subID       string
	isConnected bool

	writeMu sync.Mutex

	ctx              context.Context
	cancel           context.CancelFunc
	pingInterval     time.Duration
	handshakeTimeout time.Duration
}

func newClient[T any](url string, log *logger.Entry, params ...any) *Client[T] {
	return &Client[T]{
		url:              url,
		params:           params,
		log:              logger.OrDiscard(log, "ws"),
		pingInterval:     30 * time.Second,
		handshakeTimeout: 10 * time.Second,
	}
}

// NewHeadsClient subscribes to new block headers
func NewHeadsClient(url string, log *logger.Entry) *Client[Header] {
	return newClient[Header](url, log, SubscriptionNewHeads)
}

// NewLogsClient subscribes to logs matching filter
func NewLogsClient(url string, filter LogFilter, log *logger.Entry) *Client[Log] {
	return newClient[Log](url, log, SubscriptionLogs, filter)
}

// NewVaultLogsClient subscribes to every log emitted by the given contracts,
// which includes cap submissions and changes on a vault.
func NewVaultLogsClient(url string, log *logger.Entry, vaults ...common.Address) *Client[Log] {
	return NewLogsClient(url, LogFilter{Address: vaults}, log)
}

// SubscriptionID returns the id the node assigned, empty before the first Read
func (c *Client[T]) SubscriptionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subID
}

// start dials, subscribes and waits for the subscription id. Only Read calls it.
func (c *Client[T]) start() error {
	c.mu.Lock()
	if c.isConnected {
		c.mu.Unlock()
		return fmt.Errorf("client already started")
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: c.handshakeTimeout}
	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket: %w", err)
	}

	if err := conn.WriteJSON(newRequest(subscribeRequestID, "eth_subscribe", c.params...)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to send subscription: %w", err)
	}

	subID, err := awaitSubscription(conn)
	if err != nil {
		conn.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.subID = subID
	c.isConnected = true
	c.ctx, c.cancel = ctx, cancel
	c.mu.Unlock()

	c.log.WithFields(logger.Fields{"subscription": subID, "params": c.params}).Debug("subscribed")
	go c.pingRoutine(ctx, conn)
	return nil
}

// awaitSubscription reads until the response to the subscribe request
func awaitSubscription(conn *websocket.Conn) (string, error) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("failed to read subscription response: %w", err)
		}
		var msg rpcMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.ID == nil || *msg.ID != subscribeRequestID {
			continue
		}
		if msg.Error != nil {
			return "", fmt.Errorf("subscribe rejected: %w", msg.Error)
		}
		var id string
		if err := json.Unmarshal(msg.Result, &id); err != nil || id == "" {
			return "", fmt.Errorf("invalid subscription id %s", string(msg.Result))
		}
		return id, nil
	}
}

// Read blocks until the next notification of this subscription arrives.
// It connects on first use and closes the client on any error. Responses,
// foreign subscriptions and non-JSON frames are skipped.
func (c *Client[T]) Read() (data T, err error) {
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	c.mu.Lock()
	connected := c.isConnected && c.conn != nil
	c.mu.Unlock()
	if !connected {
		if err = c.start(); err != nil {
			return data, fmt.Errorf("failed to start client: %w", err)
		}
	}

	c.mu.Lock()
	conn, subID := c.conn, c.subID
	c.mu.Unlock()
	if conn == nil {
		return data, fmt.Errorf("client not connected")
	}

	for {
		_, raw, readErr := conn.ReadMessage()
		if readErr != nil {
			return data, readErr
		}
		if len(raw) > 0 && raw[0] != '{' {
			continue
		}

		var msg rpcMessage
		if unmarshalErr := json.Unmarshal(raw, &msg); unmarshalErr != nil {
			c.log.WithError(unmarshalErr).Debug("skipping malformed message")
			continue
		}
		if msg.Method != "eth_subscription" || msg.Params == nil || msg.Params.Subscription != subID {
			continue
		}

		if unmarshalErr := json.Unmarshal(msg.Params.Result, &data); unmarshalErr != nil {
			return data, fmt.Errorf("failed to unmarshal notification: %w", unmarshalErr)
		}
		return data, nil
	}
}

// Close unsubscribes when possible and closes the connection.
// Safe to call multiple times.
func (c *Client[T]) Close() error {
	c.mu.Lock()
	conn, subID, cancel := c.conn, c.subID, c.cancel
	c.conn = nil
	c.isConnected = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteJSON(newRequest(subscribeRequestID+1, "eth_unsubscribe", subID))
	c.writeMu.Unlock()
	return conn.Close()
}

// pingRoutine sends control pings until ctx is canceled or a ping fails
func (c *Client[T]) pingRoutine(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.handshakeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.log.WithError(err).Warn("ping failed")
				return
			}
		}
	}
}
