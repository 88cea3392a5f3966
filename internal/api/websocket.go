package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/astroulette/backend/internal/core"
)

const wsWriteWait = 10 * time.Second

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin) {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && u.Host == r.Host
		},
	}
}

// WSTransport adapts a websocket connection to core.Transport. Only text
// frames are delivered; the connection is closed when ctx is done.
type WSTransport struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func NewWSTransport(ctx context.Context, conn *websocket.Conn) *WSTransport {
	t := &WSTransport{conn: conn, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			_ = t.Close()
		case <-t.done:
		}
	}()
	return t
}

func (t *WSTransport) ReadText(ctx context.Context) (string, error) {
	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("%w: %v", core.ErrDisconnected, err)
		}
		if kind == websocket.TextMessage {
			return string(data), nil
		}
	}
}

func (t *WSTransport) WriteText(_ context.Context, text string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_ = t.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("%w: %v", core.ErrDisconnected, err)
	}
	return nil
}

func (t *WSTransport) Close() error {
	return t.CloseWith(websocket.CloseNormalClosure, "")
}

// CloseWith sends a close frame with the given code and reason, then closes
// the connection. Later calls are no-ops.
func (t *WSTransport) CloseWith(code int, reason string) error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		t.writeMu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
		t.writeMu.Unlock()
		err = t.conn.Close()
	})
	return err
}
