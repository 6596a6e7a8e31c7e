package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// upgrader accepts any origin: the server binds loopback by default and
// the dashboard may be served from a different local port.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const writeTimeout = 10 * time.Second

// subscribers fans a refresh signal out to every push connection.
type subscribers struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func newSubscribers() *subscribers {
	return &subscribers{subs: make(map[chan struct{}]struct{})}
}

// add registers one connection's refresh channel.
func (s *subscribers) add() chan struct{} {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	return ch
}

// remove unregisters a refresh channel.
func (s *subscribers) remove(ch chan struct{}) {
	s.mu.Lock()
	delete(s.subs, ch)
	s.mu.Unlock()
}

// broadcast wakes every connection; a connection already pending a
// refresh is not queued twice.
func (s *subscribers) broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// handleWS upgrades a connection and starts its push loop.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	go s.pushLoop(conn)
}

// pushLoop computes and pushes the full analysis for one connection: on
// connect, on every tick, and on every log-change refresh. Each
// connection recomputes independently; there is no shared payload cache.
func (s *Server) pushLoop(conn *websocket.Conn) {
	defer conn.Close()

	refresh := s.subs.add()
	defer s.subs.remove(refresh)

	// Reads are discarded; the pump only detects a closed peer.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if !s.push(conn) {
		return
	}

	ticker := time.NewTicker(s.config.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-s.quit:
			return
		case <-ticker.C:
			if !s.push(conn) {
				return
			}
		case <-refresh:
			if !s.push(conn) {
				return
			}
		}
	}
}

// push sends one freshly computed analysis; false means the connection
// is dead.
func (s *Server) push(conn *websocket.Conn) bool {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return false
	}
	if err := conn.WriteJSON(s.deps.Analyzer.Analyze()); err != nil {
		s.logger.Debug("push failed, dropping connection", "error", err)
		return false
	}
	return true
}
