// Package api provides the control server for UI and settings
// collaborators. It speaks JSON-RPC 2.0 over plain HTTP POST and over a
// websocket, and pushes status notifications to subscribed clients. All
// mutating methods go through the host controller, which applies them
// between processing cycles.
//
// Copyright (C) 2026  Go Port Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"cvquant-go/pkg/calibration"
	"cvquant-go/pkg/errors"
	"cvquant-go/pkg/host"
	"cvquant-go/pkg/log"
	"cvquant-go/pkg/pitch"
	"cvquant-go/pkg/scale"
	"cvquant-go/pkg/voltage"
)

// Quantizer is the host surface the API drives.
type Quantizer interface {
	Status() host.Status
	Channels() int
	LookupScale(name string) (*scale.Scale, error)
	Calibration(ch int) (*calibration.Table, error)
	SetChannelScale(ch int, sc *scale.Scale) error
	SetStandard(std voltage.Standard, span int) error
	SetTranspose(ch, octaves, semitones int) error
	SwapCalibration(ch int, tbl *calibration.Table) error
}

// Config holds server configuration.
type Config struct {
	Addr      string
	Quantizer Quantizer
	Logger    *log.Logger

	// PushInterval is how often subscribed clients receive status
	// notifications. Zero means the 250ms default.
	PushInterval time.Duration
}

// Server is the control API server.
type Server struct {
	quant  Quantizer
	addr   string
	logger *log.Logger

	httpServer *http.Server

	wsUpgrader websocket.Upgrader
	wsClients  map[int64]*wsClient
	wsClientMu sync.RWMutex
	nextWSID   int64

	// Subscribed client IDs; a subscription covers the whole status
	// snapshot, there is nothing narrower worth filtering.
	subscriptions map[int64]struct{}
	subMu         sync.RWMutex

	pushInterval time.Duration
	running      atomic.Bool
	startTime    time.Time
}

// New creates a control server. It does not listen until Start.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default().Child("api")
	}
	interval := cfg.PushInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	s := &Server{
		quant:         cfg.Quantizer,
		addr:          cfg.Addr,
		logger:        logger,
		wsClients:     make(map[int64]*wsClient),
		subscriptions: make(map[int64]struct{}),
		pushInterval:  interval,
		startTime:     time.Now(),
	}
	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return s
}

// Handler returns the HTTP handler. Exposed so tests can mount it on a
// httptest server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/jsonrpc", s.handleJSONRPC)
	mux.HandleFunc("/websocket", s.handleWebSocket)
	mux.HandleFunc("/server/info", s.handleServerInfo)
	mux.HandleFunc("/quantizer/status", s.handleStatus)
	return mux
}

// Start runs the server until Stop or a listen error.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}
	s.running.Store(true)
	s.logger.Info("control API listening on %s", s.addr)
	go s.statusPushLoop()
	return s.httpServer.ListenAndServe()
}

// Stop closes all websocket clients and the HTTP server.
func (s *Server) Stop() error {
	s.running.Store(false)

	s.wsClientMu.Lock()
	for _, client := range s.wsClients {
		client.close()
	}
	s.wsClients = make(map[int64]*wsClient)
	s.wsClientMu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id,omitempty"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
	ID      any       `json:"id,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeRPC(w, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: -32700, Message: "Parse error"},
		})
		return
	}

	result, err := s.dispatch(req.Method, req.Params, nil)
	if err != nil {
		s.writeRPC(w, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: rpcCode(err), Message: err.Error()},
			ID:      req.ID,
		})
		return
	}
	s.writeRPC(w, rpcResponse{JSONRPC: "2.0", Result: result, ID: req.ID})
}

func (s *Server) writeRPC(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// rpcCode maps host error kinds onto JSON-RPC error codes so clients
// can distinguish bad requests from rejected edits.
func rpcCode(err error) int {
	switch {
	case errors.Is(err, errors.ErrInvalidScale):
		return -32001
	case errors.Is(err, errors.ErrOutOfRange):
		return -32002
	case errors.Is(err, errors.ErrConfigConflict):
		return -32003
	default:
		return -32000
	}
}

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	result, _ := s.serverInfo()
	s.writeRPC(w, rpcResponse{JSONRPC: "2.0", Result: result})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeRPC(w, rpcResponse{JSONRPC: "2.0", Result: s.quant.Status()})
}

// dispatch routes a JSON-RPC method. client is non-nil only for
// websocket requests; subscription is a websocket-only method.
func (s *Server) dispatch(method string, params json.RawMessage, client *wsClient) (any, error) {
	switch method {
	case "server.info":
		return s.serverInfo()
	case "quantizer.status":
		return s.quant.Status(), nil
	case "quantizer.scales.list":
		return map[string]any{"presets": scale.PresetNames()}, nil
	case "quantizer.scale.set":
		return s.rpcScaleSet(params)
	case "quantizer.standard.set":
		return s.rpcStandardSet(params)
	case "quantizer.transpose.set":
		return s.rpcTransposeSet(params)
	case "quantizer.calibration.get":
		return s.rpcCalibrationGet(params)
	case "quantizer.calibration.set":
		return s.rpcCalibrationSet(params)
	case "quantizer.subscribe":
		if client == nil {
			return nil, fmt.Errorf("quantizer.subscribe requires a websocket connection")
		}
		s.subMu.Lock()
		s.subscriptions[client.id] = struct{}{}
		s.subMu.Unlock()
		return map[string]any{"status": s.quant.Status()}, nil
	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}
}

func (s *Server) serverInfo() (any, error) {
	return map[string]any{
		"channels": s.quant.Channels(),
		"uptime":   time.Since(s.startTime).Seconds(),
	}, nil
}

func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 {
		return fmt.Errorf("missing params")
	}
	return json.Unmarshal(params, v)
}

func (s *Server) rpcScaleSet(params json.RawMessage) (any, error) {
	var p struct {
		Channel int     `json:"channel"`
		Name    string  `json:"name"`
		Span    int32   `json:"span"`
		Offsets []int32 `json:"offsets"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	var sc *scale.Scale
	var err error
	if len(p.Offsets) > 0 {
		offsets := make([]pitch.Unit, len(p.Offsets))
		for i, o := range p.Offsets {
			offsets[i] = pitch.Unit(o)
		}
		sc, err = scale.New(p.Name, pitch.Unit(p.Span), offsets)
	} else {
		sc, err = s.quant.LookupScale(p.Name)
	}
	if err != nil {
		return nil, err
	}
	if err := s.quant.SetChannelScale(p.Channel, sc); err != nil {
		return nil, err
	}
	return "ok", nil
}

func (s *Server) rpcStandardSet(params json.RawMessage) (any, error) {
	var p struct {
		Mode string `json:"mode"`
		Span int    `json:"span"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	std, err := voltage.ParseStandard(p.Mode)
	if err != nil {
		return nil, err
	}
	// span 0 keeps the host's configured span.
	if err := s.quant.SetStandard(std, p.Span); err != nil {
		return nil, err
	}
	return "ok", nil
}

func (s *Server) rpcTransposeSet(params json.RawMessage) (any, error) {
	var p struct {
		Channel   int `json:"channel"`
		Octaves   int `json:"octaves"`
		Semitones int `json:"semitones"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := s.quant.SetTranspose(p.Channel, p.Octaves, p.Semitones); err != nil {
		return nil, err
	}
	return "ok", nil
}

type calPoint struct {
	Pitch int32  `json:"pitch"`
	Code  uint16 `json:"code"`
}

func (s *Server) rpcCalibrationGet(params json.RawMessage) (any, error) {
	var p struct {
		Channel int `json:"channel"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	tbl, err := s.quant.Calibration(p.Channel)
	if err != nil {
		return nil, err
	}
	points := make([]calPoint, 0, len(tbl.Points()))
	for _, pt := range tbl.Points() {
		points = append(points, calPoint{Pitch: int32(pt.Pitch), Code: pt.Code})
	}
	return map[string]any{"channel": p.Channel, "points": points}, nil
}

func (s *Server) rpcCalibrationSet(params json.RawMessage) (any, error) {
	var p struct {
		Channel int        `json:"channel"`
		Points  []calPoint `json:"points"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	points := make([]calibration.Point, len(p.Points))
	for i, pt := range p.Points {
		points[i] = calibration.Point{Pitch: pitch.Unit(pt.Pitch), Code: pt.Code}
	}
	tbl, err := calibration.NewTable(points)
	if err != nil {
		return nil, err
	}
	if err := s.quant.SwapCalibration(p.Channel, tbl); err != nil {
		return nil, err
	}
	return "ok", nil
}

// statusPushLoop periodically notifies subscribed clients.
func (s *Server) statusPushLoop() {
	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	for s.running.Load() {
		<-ticker.C
		s.pushStatus()
	}
}

func (s *Server) pushStatus() {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	if len(s.subscriptions) == 0 {
		return
	}

	status := s.quant.Status()
	notification := map[string]any{
		"jsonrpc": "2.0",
		"method":  "notify_status_update",
		"params":  []any{status},
	}

	for id := range s.subscriptions {
		s.wsClientMu.RLock()
		client, ok := s.wsClients[id]
		s.wsClientMu.RUnlock()
		if ok {
			client.send(notification)
		}
	}
}
