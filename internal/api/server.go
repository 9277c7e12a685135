// Package api exposes the thermometer over HTTP: the current snapshot, unit
// switching and a websocket stream of driver events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/ibbq/internal/driver"
	"github.com/srg/ibbq/internal/protocol"
	"github.com/srg/ibbq/internal/thermometer"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"nhooyr.io/websocket"
)

const (
	eventBuffer       = 64
	writeTimeout      = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// EventStream is a subscription to driver events.
type EventStream interface {
	C() <-chan driver.Event
	Close()
}

// Controller is the part of the driver the API needs.
type Controller interface {
	Snapshot(ctx context.Context) (thermometer.Snapshot, error)
	SetUnits(ctx context.Context, unit protocol.Unit) error
	Subscribe(buffer int) EventStream
}

type driverController struct {
	*driver.Driver
}

func (c driverController) Subscribe(buffer int) EventStream {
	return c.Driver.Subscribe(buffer)
}

// ForDriver adapts d to Controller.
func ForDriver(d *driver.Driver) Controller {
	return driverController{Driver: d}
}

// Server serves the HTTP API.
type Server struct {
	ctrl      Controller
	addr      string
	logger    *logrus.Logger
	httpSrv   *http.Server
	boundAddr string
	listenErr error
	ready     chan struct{}
}

// NewServer creates a server listening on addr once started.
func NewServer(ctrl Controller, addr string, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{ctrl: ctrl, addr: addr, logger: logger, ready: make(chan struct{})}
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api", s.handleIndex)
	mux.HandleFunc("GET /api/device", s.handleDevice)
	mux.HandleFunc("PUT /api/units", s.handleUnits)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	return mux
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.listenErr = fmt.Errorf("api listen: %w", err)
		close(s.ready)
		return s.listenErr
	}
	s.boundAddr = listener.Addr().String()
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	close(s.ready)

	s.logger.WithField("addr", s.boundAddr).Info("API server started")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Warn("API server shutdown failed")
		}
	}()

	if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api serve: %w", err)
	}
	return nil
}

// BoundAddr returns the address the server listens on. It blocks until Start
// has bound the listener or failed to.
func (s *Server) BoundAddr() (string, error) {
	<-s.ready
	return s.boundAddr, s.listenErr
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("API endpoint"))
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ctrl.Snapshot(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

type unitsRequest struct {
	Unit string `json:"unit"`
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	var req unitsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	unit, err := protocol.ParseUnit(req.Unit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.ctrl.SetUnits(r.Context(), unit); err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, driver.ErrNotReady):
			status = http.StatusConflict
		case errors.Is(err, protocol.ErrUnsupportedUnit):
			status = http.StatusBadRequest
		case errors.Is(err, driver.ErrStopped):
			status = http.StatusServiceUnavailable
		}
		s.writeError(w, status, err)
		return
	}

	s.logger.WithField("unit", unit.String()).Info("Display unit changed via API")
	s.writeJSON(w, http.StatusOK, map[string]protocol.Unit{"unit": unit})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		s.logger.WithError(err).Warn("Websocket accept failed")
		return
	}

	stream := s.ctrl.Subscribe(eventBuffer)
	defer stream.Close()

	logger := s.logger.WithField("remote", r.RemoteAddr)
	logger.Debug("Event stream client connected")

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx := ws.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			logger.Debug("Event stream client disconnected")
			ws.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-stream.C():
			if !ok {
				ws.Close(websocket.StatusGoingAway, "driver stopped")
				return
			}
			payload, err := EncodeEvent(ev)
			if err != nil {
				logger.WithError(err).Warn("Failed to encode event")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = ws.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				logger.WithError(err).Debug("Event stream write failed")
				return
			}
		}
	}
}

// EncodeEvent renders ev as a JSON object whose first key is "type".
func EncodeEvent(ev driver.Event) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	fields := orderedmap.New[string, json.RawMessage]()
	if err := json.Unmarshal(body, fields); err != nil {
		return nil, fmt.Errorf("event %s is not a JSON object: %w", ev.Name(), err)
	}

	typ, err := json.Marshal(ev.Name())
	if err != nil {
		return nil, err
	}
	out := orderedmap.New[string, json.RawMessage]()
	out.Set("type", typ)
	for pair := fields.Oldest(); pair != nil; pair = pair.Next() {
		out.Set(pair.Key, pair.Value)
	}
	return json.Marshal(out)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Warn("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
