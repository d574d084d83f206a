package api

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/braidhq/engine/internal/events"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
	maxMsgSize = 4096
)

// upgrader accepts any origin: the auth middleware already required a
// valid tenant API key before the upgrade is attempted.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleEventStream upgrades to WebSocket and pushes the tenant's
// engine events as they happen. An optional types query parameter
// narrows the stream, e.g. ?types=tool.failed,chain.failed.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing tenant context")
		return
	}

	var types []string
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	stream := &eventStream{
		conn:     conn,
		events:   s.bus.Subscribe(types...),
		bus:      s.bus,
		tenantID: identity.tenant.ID,
		logger:   s.logger,
		done:     make(chan struct{}),
	}
	s.logger.Info("event stream connected", "tenant", identity.tenant.ID, "types", types)

	// writePump owns all writes, readPump owns all reads. Each side
	// tears the stream down when its end of the connection dies.
	go stream.writePump()
	go stream.readPump()
}

type eventStream struct {
	conn     *websocket.Conn
	events   chan *events.CloudEvent
	bus      *events.Bus
	tenantID string
	logger   *slog.Logger
	done     chan struct{}
	once     sync.Once
}

func (es *eventStream) close() {
	es.once.Do(func() {
		close(es.done)
		es.bus.Unsubscribe(es.events)
		es.conn.Close()
		es.logger.Info("event stream disconnected", "tenant", es.tenantID)
	})
}

func (es *eventStream) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		es.close()
	}()

	for {
		select {
		case event, ok := <-es.events:
			if !ok {
				return
			}
			// Tenants only ever see their own events.
			if event.TenantID != es.tenantID {
				continue
			}
			es.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := es.conn.WriteJSON(event); err != nil {
				es.logger.Warn("event stream write failed", "tenant", es.tenantID, "error", err)
				return
			}

		case <-ticker.C:
			es.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := es.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-es.done:
			return
		}
	}
}

// readPump drains client frames so pongs and close frames are
// processed. Clients have nothing to say on this stream; payloads are
// discarded.
func (es *eventStream) readPump() {
	defer es.close()

	es.conn.SetReadLimit(maxMsgSize)
	es.conn.SetReadDeadline(time.Now().Add(pongWait))
	es.conn.SetPongHandler(func(string) error {
		es.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := es.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				es.logger.Warn("event stream read failed", "tenant", es.tenantID, "error", err)
			}
			return
		}
	}
}
