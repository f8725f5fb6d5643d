// Package agent exposes the bridge control surface over HTTP. The analyzer
// host drives it: list the capturable interfaces, point the relay at a
// receiver address, tear it down again.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"icc.tech/pcap-bridge/internal/bridge"
	"icc.tech/pcap-bridge/internal/core"
	"icc.tech/pcap-bridge/internal/log"
)

// Server is the REST control endpoint.
type Server struct {
	bridge *bridge.Bridge
	srv    *http.Server
}

// NewServer builds a server driving b, listening on addr.
func NewServer(addr string, b *bridge.Bridge) *Server {
	s := &Server{bridge: b}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /interfaces", s.handleInterfaces)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("POST /enable", s.handleEnable)
	mux.HandleFunc("POST /disable", s.handleDisable)
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the route table, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves in the background until Stop.
func (s *Server) Start() {
	go func() {
		log.GetLogger().WithField("addr", s.srv.Addr).Info("agent REST server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.GetLogger().WithError(err).Error("agent REST server stopped")
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		log.GetLogger().WithError(err).Warn("agent REST server shutdown")
	}
}

// enableRequest is the POST /enable body.
type enableRequest struct {
	Interface     string `json:"interface"`
	BridgeAddress string `json:"bridge_address"`
	Direction     string `json:"direction,omitempty"`
}

// disableRequest is the POST /disable body.
type disableRequest struct {
	Interface string `json:"interface"`
}

type interfacesResponse struct {
	Success    bool                 `json:"success"`
	Interfaces []core.InterfaceInfo `json:"interfaces"`
}

// StatsReport is the GET /stats payload.
type StatsReport struct {
	Success        bool                  `json:"success"`
	Connected      bool                  `json:"connected"`
	Destination    string                `json:"destination,omitempty"`
	QueueOverflows uint64                `json:"queue_overflows"`
	Stats          []core.InterfaceStats `json:"stats"`
}

type enableResponse struct {
	Success     bool   `json:"success"`
	InterfaceID uint32 `json:"sw_if_index"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.GetLogger().WithError(err).Warn("writing REST response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrInterfaceNotFound):
		code = http.StatusNotFound
	case errors.Is(err, core.ErrInvalidDestination),
		errors.Is(err, core.ErrInvalidPort),
		errors.Is(err, core.ErrSocketPathTooLong),
		errors.Is(err, core.ErrInvalidDirection):
		code = http.StatusBadRequest
	}
	writeJSON(w, code, errorResponse{Success: false, Error: err.Error()})
}

func (s *Server) handleInterfaces(w http.ResponseWriter, r *http.Request) {
	list, err := s.bridge.ListInterfaces()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, interfacesResponse{Success: true, Interfaces: list})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsReport{
		Success:        true,
		Connected:      s.bridge.Connected(),
		Destination:    s.bridge.Destination(),
		QueueOverflows: s.bridge.QueueOverflows(),
		Stats:          s.bridge.AllStats(),
	})
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	var req enableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if req.Interface == "" || req.BridgeAddress == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "interface and bridge_address are required"})
		return
	}
	filter, err := core.ParseDirectionFilter(req.Direction)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := s.bridge.EnableByName(req.Interface, req.BridgeAddress, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, enableResponse{Success: true, InterfaceID: id})
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	var req disableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if req.Interface == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "interface is required"})
		return
	}
	if _, err := s.bridge.DisableByName(req.Interface); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
