package forward

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const DefaultRelayAddr = "localhost:8080"

// Relay is the local listener: every text frame received from one client is
// written to every other connected client, never back to its sender.
type Relay struct {
	upgrader websocket.Upgrader
	log      *zap.Logger

	mu      sync.Mutex
	clients map[*relayClient]struct{}
}

type relayClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *relayClient) write(msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

func NewRelay(log *zap.Logger) *Relay {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:     log.Named("relay"),
		clients: make(map[*relayClient]struct{}),
	}
}

// Clients reports the number of connected clients.
func (r *Relay) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Warn("upgrade", zap.Error(err))
		return
	}
	c := &relayClient{conn: conn}

	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.mu.Unlock()
	r.log.Info("client connected", zap.String("remote", req.RemoteAddr))

	defer func() {
		r.remove(c)
		r.log.Info("client disconnected", zap.String("remote", req.RemoteAddr))
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		r.broadcast(c, msg)
	}
}

func (r *Relay) broadcast(from *relayClient, msg []byte) {
	r.mu.Lock()
	targets := make([]*relayClient, 0, len(r.clients))
	for c := range r.clients {
		if c != from {
			targets = append(targets, c)
		}
	}
	r.mu.Unlock()

	for _, c := range targets {
		if err := c.write(msg); err != nil {
			r.log.Debug("drop client", zap.Error(err))
			r.remove(c)
		}
	}
}

func (r *Relay) remove(c *relayClient) {
	r.mu.Lock()
	_, ok := r.clients[c]
	delete(r.clients, c)
	r.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}

// ListenAndServe serves the relay on addr until ctx is done.
func (r *Relay) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	r.log.Info("listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdown)
		r.closeAll()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (r *Relay) closeAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[*relayClient]struct{})
	r.mu.Unlock()
	for c := range clients {
		_ = c.conn.Close()
	}
}
