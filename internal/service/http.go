package service

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"pixoo-scened/internal/device"
	"pixoo-scened/internal/rerr"
)

// Server is the HTTP admin surface (§2's "alternate transport"): a
// read/control API that mirrors the MQTT command surface, plus a
// websocket event stream fed by the Hub, which relays State Store
// change notifications.
type Server struct {
	log zerolog.Logger
	svc *Service
	hub *Hub
	mux *chi.Mux

	upgrader websocket.Upgrader
}

// NewServer builds the admin HTTP surface over svc; websocket clients
// receive every State Store change notification broadcast through hub,
// for all scopes. Metrics are not sent on the stream.
func NewServer(log zerolog.Logger, svc *Service, hub *Hub) *Server {
	s := &Server{
		log: log.With().Str("component", "admin-http").Logger(),
		svc: svc,
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/devices", s.handleListDevices)
	r.Get("/devices/{deviceId}", s.handleGetDevice)
	r.Post("/devices/{deviceId}/scene", s.handleSetScene)
	r.Post("/devices/{deviceId}/driver", s.handleSetDriver)
	r.Post("/devices/{deviceId}/play", s.handlePlayback(s.svc.Play))
	r.Post("/devices/{deviceId}/pause", s.handlePlayback(s.svc.Pause))
	r.Post("/devices/{deviceId}/stop", s.handlePlayback(s.svc.Stop))
	r.Get("/devices/{deviceId}/events", s.handleEvents)
	r.Handle("/metrics", promhttp.Handler())

	s.mux = r
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ListDevices())
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	sum, err := s.svc.DeviceSummary(deviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type scenePayload struct {
	Scene  string                 `json:"scene"`
	Params map[string]interface{} `json:"params"`
}

func (s *Server) handleSetScene(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	var body scenePayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, rerr.New(rerr.Validation, deviceID, err))
		return
	}
	if body.Scene == "" {
		writeError(w, rerr.New(rerr.Validation, deviceID, nil))
		return
	}
	if err := s.svc.SetScene(r.Context(), deviceID, body.Scene, body.Params); err != nil {
		writeError(w, err)
		return
	}
	sum, err := s.svc.DeviceSummary(deviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type driverPayload struct {
	Driver string `json:"driver"`
}

func (s *Server) handleSetDriver(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	var body driverPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, rerr.New(rerr.Validation, deviceID, err))
		return
	}
	kind := device.Kind(body.Driver)
	if kind != device.KindReal && kind != device.KindMock {
		writeError(w, rerr.New(rerr.Validation, deviceID, nil))
		return
	}
	if err := s.svc.SetDriver(deviceID, kind); err != nil {
		writeError(w, err)
		return
	}
	sum, err := s.svc.DeviceSummary(deviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handlePlayback(action func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID := chi.URLParam(r, "deviceId")
		if err := action(deviceID); err != nil {
			writeError(w, err)
			return
		}
		sum, err := s.svc.DeviceSummary(deviceID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch, leave := s.hub.Join(conn)
	defer leave()

	for body := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	kind := rerr.Unknown
	if e, ok := err.(*rerr.Error); ok {
		kind = e.Kind
	}
	status := http.StatusInternalServerError
	switch kind {
	case rerr.Validation:
		status = http.StatusBadRequest
	case rerr.NotFound:
		status = http.StatusNotFound
	case rerr.DeviceTransport, rerr.SceneRender, rerr.Persistence, rerr.TransportDisconnect:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"kind": kind.String(), "message": err.Error()})
}
