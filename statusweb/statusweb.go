// Package statusweb exposes a BaseAudioSink's clock and latency state over
// a small JSON REST API plus a websocket feed, for operators and dashboards
// to introspect a running sink without touching the pipeline itself.
package statusweb

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/dh1tw/audiosink/audiosink"
)

var upgrader = websocket.Upgrader{}

// Status is the snapshot served at /api/v1/status and pushed to every
// connected websocket client on each poll tick.
type Status struct {
	Rate         int     `json:"rate"`
	SlaveMethod  string  `json:"slaveMethod"`
	ClockTimeUs  int64   `json:"clockTimeUs"`
	LatencyMinUs int64   `json:"latencyMinUs"`
	LatencyMaxUs int64   `json:"latencyMaxUs"`
	Live         bool    `json:"live"`
}

// Server serves the status API for one sink.
type Server struct {
	router *mux.Router
	sink   *audiosink.BaseAudioSink
	method audiosink.SlaveMethod

	muClients sync.Mutex
	clients   map[*wsClient]bool
}

// New returns a configured Server; call ListenAndServe to start it.
func New(sink *audiosink.BaseAudioSink, method audiosink.SlaveMethod) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		sink:    sink,
		method:  method,
		clients: make(map[*wsClient]bool),
	}
	s.router.HandleFunc("/api/v1/status", s.statusHdlr).Methods("GET")
	s.router.HandleFunc("/ws", s.wsHdlr)
	return s
}

// ListenAndServe serves the status API on addr and pushes a status update
// to every connected websocket client every interval. Closing stop ends the
// push loop only; the HTTP server keeps serving until it fails.
func (s *Server) ListenAndServe(addr string, interval time.Duration, stop <-chan struct{}) error {
	go s.pushLoop(interval, stop)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) snapshot() Status {
	now, _ := s.sink.Clock().Now()
	live, min, max, _ := s.sink.QueryLatency()
	return Status{
		SlaveMethod:  s.method.String(),
		ClockTimeUs:  now.Microseconds(),
		LatencyMinUs: min.Microseconds(),
		LatencyMaxUs: max.Microseconds(),
		Live:         live,
	}
}

func (s *Server) statusHdlr(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	if err := json.NewEncoder(w).Encode(s.snapshot()); err != nil {
		log.Println("statusweb:", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (s *Server) pushLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			data, err := json.Marshal(s.snapshot())
			if err != nil {
				log.Println("statusweb:", err)
				continue
			}
			s.muClients.Lock()
			for c := range s.clients {
				c.send <- data
			}
			s.muClients.Unlock()
		}
	}
}

type wsClient struct {
	ws   *websocket.Conn
	send chan []byte
}

func (c *wsClient) write() {
	defer c.ws.Close()
	for msg := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (s *Server) wsHdlr(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	client := &wsClient{ws: conn, send: make(chan []byte, 4)}
	s.muClients.Lock()
	s.clients[client] = true
	s.muClients.Unlock()

	go client.write()

	// draining the read side is only needed to detect disconnects promptly.
	go func() {
		defer func() {
			s.muClients.Lock()
			delete(s.clients, client)
			s.muClients.Unlock()
			close(client.send)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
