package torn

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"brotherowl/internal/application/port"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
	writeTimeout = 5 * time.Second
	closeGrace   = 250 * time.Millisecond
)

// WSDialer opens the Torn streaming endpoint.
type WSDialer struct {
	wsURL  string
	dialer *websocket.Dialer
	header http.Header
}

func NewWSDialer(wsURL string) *WSDialer {
	return &WSDialer{
		wsURL: strings.TrimSpace(wsURL),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		header: http.Header{"User-Agent": []string{userAgent}},
	}
}

func (d *WSDialer) Dial(ctx context.Context) (port.StreamConn, error) {
	if d.wsURL == "" {
		return nil, errors.New("torn ws_url empty")
	}
	conn, _, err := d.dialer.DialContext(ctx, d.wsURL, d.header)
	if err != nil {
		return nil, err
	}
	return newKeepaliveConn(conn), nil
}

// keepaliveConn pings the server and extends the read deadline on every
// frame or pong, so a silent half-open socket surfaces as a read error.
type keepaliveConn struct {
	conn *websocket.Conn
	wmu  sync.Mutex
	done chan struct{}
	once sync.Once
}

func newKeepaliveConn(conn *websocket.Conn) *keepaliveConn {
	k := &keepaliveConn{conn: conn, done: make(chan struct{})}
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	go k.pingLoop()
	return k
}

func (k *keepaliveConn) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-k.done:
			return
		case <-ticker.C:
			k.wmu.Lock()
			_ = k.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout))
			k.wmu.Unlock()
		}
	}
}

func (k *keepaliveConn) WriteJSON(v any) error {
	k.wmu.Lock()
	defer k.wmu.Unlock()
	_ = k.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return k.conn.WriteJSON(v)
}

func (k *keepaliveConn) ReadMessage() (int, []byte, error) {
	mt, b, err := k.conn.ReadMessage()
	if err == nil {
		_ = k.conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
	return mt, b, err
}

func (k *keepaliveConn) Close() error {
	var err error
	k.once.Do(func() {
		close(k.done)
		k.wmu.Lock()
		_ = k.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(closeGrace))
		k.wmu.Unlock()
		err = k.conn.Close()
	})
	return err
}

var _ port.StreamDialer = (*WSDialer)(nil)
