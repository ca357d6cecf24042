// Package feedws streams quotes from the upstream websocket and keeps the
// upstream subscription in step with the locally active symbols.
package feedws

import (
	"context"
	"fmt"
	"sort"
	"time"

	"quotecore/internal/feed"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultReconnectDelay = 3 * time.Second

// SymbolSource reports which symbols should be streamed.
type SymbolSource interface {
	ActiveSymbols() []string
	Changes() <-chan struct{}
}

// WSClient handles the websocket connection and message routing. Only the
// goroutine running Run writes to the connection.
type WSClient struct {
	url            string
	prefix         string
	reconnectDelay time.Duration
	source         SymbolSource
	handler        func([]byte)
	dialer         *websocket.Dialer
	subscribed     map[string]bool
	logger         *zap.Logger
}

// NewWSClient creates a client for url. Topics are "<prefix>.<SYMBOL>".
func NewWSClient(url, prefix string, source SymbolSource, logger *zap.Logger) *WSClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSClient{
		url:            url,
		prefix:         prefix,
		reconnectDelay: defaultReconnectDelay,
		source:         source,
		dialer:         websocket.DefaultDialer,
		logger:         logger,
	}
}

// SetMessageHandler sets the function to handle incoming messages.
func (c *WSClient) SetMessageHandler(h func([]byte)) {
	c.handler = h
}

// SetReconnectDelay sets the pause between a dropped connection and the next dial.
func (c *WSClient) SetReconnectDelay(d time.Duration) {
	if d > 0 {
		c.reconnectDelay = d
	}
}

// Run connects, subscribes to the active symbols and listens until ctx is
// done, reconnecting and resubscribing after every connection failure.
func (c *WSClient) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("websocket session ended, reconnecting",
			zap.String("url", c.url), zap.Duration("delay", c.reconnectDelay), zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *WSClient) session(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	defer conn.Close()
	c.logger.Info("websocket connected", zap.String("url", c.url))

	// a fresh connection carries no upstream subscriptions
	c.subscribed = make(map[string]bool)
	if err := c.sync(conn); err != nil {
		return err
	}

	readErr := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			if c.handler != nil {
				c.handler(msg)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
			<-readErr
			return ctx.Err()
		case err := <-readErr:
			return fmt.Errorf("websocket read: %w", err)
		case <-c.source.Changes():
			if err := c.sync(conn); err != nil {
				return err
			}
		}
	}
}

// sync subscribes to newly active symbols and unsubscribes from idle ones.
func (c *WSClient) sync(conn *websocket.Conn) error {
	want := make(map[string]bool)
	var add []string
	for _, sym := range c.source.ActiveSymbols() {
		want[sym] = true
		if !c.subscribed[sym] {
			add = append(add, sym)
		}
	}
	var remove []string
	for sym := range c.subscribed {
		if !want[sym] {
			remove = append(remove, sym)
		}
	}
	sort.Strings(remove)

	if err := c.send(conn, "subscribe", add); err != nil {
		return err
	}
	for _, sym := range add {
		c.subscribed[sym] = true
	}
	if err := c.send(conn, "unsubscribe", remove); err != nil {
		return err
	}
	for _, sym := range remove {
		delete(c.subscribed, sym)
	}
	return nil
}

func (c *WSClient) send(conn *websocket.Conn, op string, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	msg := map[string]interface{}{
		"op":   op,
		"args": feed.Topics(c.prefix, symbols),
	}
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("websocket %s failed: %w", op, err)
	}
	c.logger.Debug("websocket "+op, zap.Strings("symbols", symbols))
	return nil
}
