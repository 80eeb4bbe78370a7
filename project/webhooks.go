package project

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harpua555/OpenFilamentSensor/common/logger"
	"github.com/harpua555/OpenFilamentSensor/project/history"
)

const (
	wsPingInterval   = 30 * time.Second
	wsWriteDeadline  = 10 * time.Second
	wsReadDeadline   = 60 * time.Second
	wsSendBuffer     = 16
	defaultHistoryN  = 50
	shutdownDeadline = 5 * time.Second
)

var ErrMethodNotAllowed = errors.New("method not allowed")

// MonitorAPI is what the HTTP surface needs from the monitor.
type MonitorAPI interface {
	Status() SensorStatus
	Recalibrate()
	ClearPauseRequest()
}

type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.JamEvent, error)
}

// WebRequest wraps one HTTP call for an endpoint handler.
type WebRequest struct {
	r *http.Request
}

func (self *WebRequest) Method() string {
	return self.r.Method
}

func (self *WebRequest) Context() context.Context {
	return self.r.Context()
}

func (self *WebRequest) Get_str(key string, def string) string {
	if v := self.r.URL.Query().Get(key); v != "" {
		return v
	}
	return def
}

func (self *WebRequest) Get_int(key string, def int) int {
	v, err := strconv.Atoi(self.r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

type EndpointHandler func(*WebRequest) (interface{}, error)

// WebHooks serves sensor status over HTTP and pushes it to websocket
// clients at the UI refresh rate.
type WebHooks struct {
	mux      *http.ServeMux
	monitor  MonitorAPI
	history  HistoryReader
	upgrader websocket.Upgrader
	refresh  time.Duration

	clientsMu sync.Mutex
	clients   map[int64]*wsClient
	nextID    atomic.Int64
}

func NewWebHooks(monitor MonitorAPI, hist HistoryReader, refresh time.Duration) *WebHooks {
	if refresh <= 0 {
		refresh = time.Second
	}
	self := &WebHooks{
		mux:     http.NewServeMux(),
		monitor: monitor,
		history: hist,
		refresh: refresh,
		clients: make(map[int64]*wsClient),
		upgrader: websocket.Upgrader{
			// the UI is served from the printer's own address
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	self.Register_endpoint("/sensor_status", []string{http.MethodGet}, self.handleStatus)
	self.Register_endpoint("/history", []string{http.MethodGet}, self.handleHistory)
	self.Register_endpoint("/recalibrate", []string{http.MethodPost}, self.handleRecalibrate)
	self.Register_endpoint("/pause_request/clear", []string{http.MethodPost}, self.handleClearPause)
	self.mux.HandleFunc("/ws", self.handleWebSocket)
	return self
}

// Register_endpoint exposes handler as a JSON endpoint at path.
func (self *WebHooks) Register_endpoint(path string, methods []string, handler EndpointHandler) {
	self.mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if !methodAllowed(r.Method, methods) {
			writeJSONError(w, http.StatusMethodNotAllowed, ErrMethodNotAllowed)
			return
		}
		result, err := handler(&WebRequest{r: r})
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, result)
	})
}

func methodAllowed(method string, methods []string) bool {
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}

func (self *WebHooks) Handler() http.Handler {
	return corsMiddleware(self.mux)
}

// Serve listens on addr until ctx is cancelled.
func (self *WebHooks) Serve(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           self.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go self.broadcastLoop(ctx)
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
		self.closeClients()
	}()
	logger.Infof("status api listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (self *WebHooks) handleStatus(req *WebRequest) (interface{}, error) {
	return self.monitor.Status(), nil
}

func (self *WebHooks) handleHistory(req *WebRequest) (interface{}, error) {
	if self.history == nil {
		return []history.JamEvent{}, nil
	}
	events, err := self.history.Recent(req.Context(), req.Get_int("limit", defaultHistoryN))
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []history.JamEvent{}
	}
	return events, nil
}

func (self *WebHooks) handleRecalibrate(req *WebRequest) (interface{}, error) {
	self.monitor.Recalibrate()
	return map[string]interface{}{"result": "ok"}, nil
}

func (self *WebHooks) handleClearPause(req *WebRequest) (interface{}, error) {
	self.monitor.ClearPauseRequest()
	return map[string]interface{}{"result": "ok"}, nil
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warnf("write response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": err.Error()})
}

type wsClient struct {
	id     int64
	conn   *websocket.Conn
	sendCh chan SensorStatus
	done   chan struct{}
	once   sync.Once
}

func (c *wsClient) Send(st SensorStatus) {
	select {
	case c.sendCh <- st:
	case <-c.done:
	default:
		// slow client, the next tick carries newer data anyway
	}
}

func (c *wsClient) Close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *wsClient) readPump(onClose func()) {
	defer func() {
		onClose()
		c.Close()
	}()
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debugf("websocket client %d: %v", c.id, err)
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case st := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := c.conn.WriteJSON(st); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (self *WebHooks) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := self.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("websocket upgrade: %v", err)
		return
	}
	client := &wsClient{
		id:     self.nextID.Add(1),
		conn:   conn,
		sendCh: make(chan SensorStatus, wsSendBuffer),
		done:   make(chan struct{}),
	}
	self.clientsMu.Lock()
	self.clients[client.id] = client
	self.clientsMu.Unlock()
	logger.Debugf("websocket client %d connected", client.id)

	// new clients get a snapshot straight away instead of waiting a tick
	client.Send(self.monitor.Status())
	go client.writePump()
	client.readPump(func() { self.removeClient(client.id) })
}

func (self *WebHooks) removeClient(id int64) {
	self.clientsMu.Lock()
	delete(self.clients, id)
	self.clientsMu.Unlock()
	logger.Debugf("websocket client %d disconnected", id)
}

func (self *WebHooks) closeClients() {
	self.clientsMu.Lock()
	defer self.clientsMu.Unlock()
	for id, client := range self.clients {
		client.Close()
		delete(self.clients, id)
	}
}

func (self *WebHooks) ClientCount() int {
	self.clientsMu.Lock()
	defer self.clientsMu.Unlock()
	return len(self.clients)
}

// Broadcast pushes the current status to every websocket client.
func (self *WebHooks) Broadcast() {
	self.clientsMu.Lock()
	if len(self.clients) == 0 {
		self.clientsMu.Unlock()
		return
	}
	clients := make([]*wsClient, 0, len(self.clients))
	for _, c := range self.clients {
		clients = append(clients, c)
	}
	self.clientsMu.Unlock()

	st := self.monitor.Status()
	for _, c := range clients {
		c.Send(st)
	}
}

func (self *WebHooks) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(self.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			self.Broadcast()
		}
	}
}
