// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Thermoquad/uartlink/pkg/sensorlink"
)

const (
	handshakeTimeout = 10 * time.Second
	dialTimeout      = 15 * time.Second
)

// WebSocketOptions configures a bridge connection.
type WebSocketOptions struct {
	Username      string
	Password      string
	SkipSSLVerify bool
	Logger        *zap.Logger
}

// WebSocketChannel is a sensorlink.Channel over a serial-to-WebSocket
// bridge. Each binary message carries raw UART bytes.
type WebSocketChannel struct {
	conn *websocket.Conn
	url  string
	log  *zap.Logger
	rx   *byteQueue

	writeMu sync.Mutex
	done    chan struct{}
}

// DialWebSocket connects to a bridge at wsURL and starts the read pump.
func DialWebSocket(ctx context.Context, wsURL string, opts WebSocketOptions) (*WebSocketChannel, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: opts.SkipSSLVerify,
		}
	}

	headers := http.Header{}
	if opts.Username != "" && opts.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(opts.Username + ":" + opts.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	w := &WebSocketChannel{
		conn: conn,
		url:  wsURL,
		log:  log.With(zap.String("url", wsURL)),
		rx:   newByteQueue(),
		done: make(chan struct{}),
	}
	go w.pump()
	return w, nil
}

// pump moves binary messages into the receive queue until the
// connection fails. Read deadlines are never set on conn since a timed
// out gorilla connection is unusable afterwards.
func (w *WebSocketChannel) pump() {
	defer close(w.done)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, websocket.ErrCloseSent) {
				w.log.Debug("websocket closed")
			} else {
				w.log.Warn("websocket read failed", zap.Error(err))
			}
			w.rx.closeWithError(err)
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		w.rx.push(data)
	}
}

// Name returns the bridge URL.
func (w *WebSocketChannel) Name() string {
	return w.url
}

// Done is closed once the bridge connection has failed or been closed.
func (w *WebSocketChannel) Done() <-chan struct{} {
	return w.done
}

// Write sends p as one binary message.
func (w *WebSocketChannel) Write(p []byte, timeout time.Duration) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", sensorlink.ErrLinkFault, err)
	}

	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return sensorlink.ErrTimeout
		}
		return fmt.Errorf("%w: %v", sensorlink.ErrLinkFault, err)
	}
	return nil
}

// ReadExact implements sensorlink.Channel.
func (w *WebSocketChannel) ReadExact(n int, timeout time.Duration) ([]byte, error) {
	return w.rx.readExact(n, timeout)
}

// Buffered returns the number of received bytes not yet read.
func (w *WebSocketChannel) Buffered() int {
	return w.rx.buffered()
}

// Close sends a close frame and tears the connection down.
func (w *WebSocketChannel) Close() error {
	w.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	w.writeMu.Unlock()

	err := w.conn.Close()
	<-w.done
	return err
}
