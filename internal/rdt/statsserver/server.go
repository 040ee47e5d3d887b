// Package statsserver implements SPEC_FULL.md's DOMAIN STACK live
// statistics surface: a websocket endpoint that authenticated
// subscribers connect to and receive pushed snapshots of the
// channel's and endpoints' spec.md section 6 statistics, instead of
// having to poll GetStatistics/GetStatistics themselves.
package statsserver

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aetherflow/rdt/internal/rdt/statsserver/auth"
	"github.com/aetherflow/rdt/pkg/guuid"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StatsSnapshotFunc produces the current snapshot for one channel
// name (e.g. channel.Statistics or endpoint.Statistics serialized to
// a generic map so this package has no dependency on either).
type StatsSnapshotFunc func() interface{}

// Server fronts a Hub with an HTTP upgrade handler and a periodic
// push loop, grounded on internal/gateway/websocket/server.go.
type Server struct {
	hub     *Hub
	logger  *zap.Logger
	handler MessageHandler

	sources map[string]StatsSnapshotFunc
	stop    chan struct{}
}

// New constructs a Server. authManager may be nil to accept every
// token under a fixed anonymous identity (local/demo runs).
func New(logger *zap.Logger, authManager *auth.Manager) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	hub := NewHub(logger, nil)
	handler := NewDefaultHandler(hub, logger, authManager)
	hub.handler = handler

	return &Server{
		hub:     hub,
		logger:  logger,
		handler: handler,
		sources: make(map[string]StatsSnapshotFunc),
		stop:    make(chan struct{}),
	}
}

// RegisterSource wires a named stats channel (e.g. "channel_stats",
// "endpoint_stats") to the function that produces its current
// snapshot; PushLoop broadcasts it to every subscriber on interval.
func (s *Server) RegisterSource(channel string, fn StatsSnapshotFunc) {
	s.sources[channel] = fn
}

// PushLoop periodically broadcasts every registered source's current
// snapshot to its subscribers, until Close is called.
func (s *Server) PushLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for channel, fn := range s.sources {
				s.hub.BroadcastToChannel(channel, NewMessage(MessageTypeStatsSnapshot, fn()))
			}
		case <-s.stop:
			return
		}
	}
}

// HandleWebSocket upgrades an incoming HTTP request to a websocket
// connection and registers it with the hub.
func (s *Server) HandleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Error("failed to upgrade connection", zap.Error(err), zap.String("remote_addr", r.RemoteAddr))
			return
		}

		id, err := guuid.New()
		if err != nil {
			s.logger.Error("failed to generate connection id", zap.Error(err))
			conn.Close()
			return
		}

		wsConn := NewConnection(id.String(), conn, s.logger)
		s.hub.Register(wsConn)
		wsConn.Start(s.handler)
		defer s.hub.Unregister(wsConn.ID)

		s.logger.Info("statsserver connection established", zap.String("conn_id", wsConn.ID), zap.String("remote_addr", r.RemoteAddr))

		// Stay registered until the connection's pumps close it.
		<-wsConn.ctx.Done()
	}
}

// BroadcastToChannel pushes msg to every subscriber of channel right
// away, independent of PushLoop's interval — used for one-off events
// like a control-plane reconfiguration.
func (s *Server) BroadcastToChannel(channel string, msg *Message) int {
	return s.hub.BroadcastToChannel(channel, msg)
}

// GetStats reports the hub's connection-bookkeeping counters.
func (s *Server) GetStats() map[string]interface{} { return s.hub.GetStats() }

// Close shuts down the push loop and every subscriber connection.
func (s *Server) Close() {
	close(s.stop)
	s.hub.Close()
}
