package web

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/asnowfix/alexfil-hub/hlog"
	"github.com/asnowfix/alexfil-hub/internal/device"
	"github.com/asnowfix/alexfil-hub/internal/web/assets"
	"github.com/asnowfix/alexfil-hub/internal/wifi"
	"github.com/go-logr/logr"
	"github.com/gorilla/schema"
	"github.com/gorilla/websocket"
)

const (
	MaxRequestSize = 1024
	RestartDelay   = 2 * time.Second
	LiveInterval   = 500 * time.Millisecond

	scanTimeout = 2 * time.Second
)

// CredentialStore persists the station credentials.
type CredentialStore interface {
	Save(ctx context.Context, creds device.Credentials) error
}

// Restarter restarts the hub after a delay.
type Restarter interface {
	ScheduleRestart(d time.Duration)
}

type route struct {
	method  string
	handler http.HandlerFunc
}

type scanRequest struct {
	reply chan scanReply
}

type scanReply struct {
	code int
	body any
}

// Server is the provisioning web server. Handlers run on net/http
// goroutines: they read a snapshot of the device state published by Update,
// and scan requests are carried out by Update on the loop goroutine.
type Server struct {
	ctx       context.Context
	log       logr.Logger
	addr      string
	scanner   wifi.Scanner
	creds     CredentialStore
	restarter Restarter

	routes   map[string]route
	scans    chan scanRequest
	decoder  *schema.Decoder
	upgrader websocket.Upgrader
	srv      *http.Server

	mu       sync.RWMutex
	snapshot device.State
	live     time.Duration
}

func NewServer(ctx context.Context, log logr.Logger, addr string, scanner wifi.Scanner, creds CredentialStore, restarter Restarter) *Server {
	s := &Server{
		ctx:       ctx,
		log:       log,
		addr:      addr,
		scanner:   scanner,
		creds:     creds,
		restarter: restarter,
		scans:     make(chan scanRequest, 8),
		decoder:   schema.NewDecoder(),
		live:      LiveInterval,
	}
	s.decoder.IgnoreUnknownKeys(true)

	s.routes = map[string]route{
		"/api/status": {http.MethodGet, s.handleStatus},
		"/api/scan":   {http.MethodGet, s.handleScan},
		"/api/save":   {http.MethodPost, s.handleSave},
		"/api/live":   {http.MethodGet, s.handleLive},
	}
	for _, a := range assets.All {
		s.routes[a.Path] = route{http.MethodGet, s.serveGz(a)}
	}
	return s
}

// Begin starts listening. The server stops when the context ends.
func (s *Server) Begin() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("web server listen on %s: %w", s.addr, err)
	}
	s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		s.log.Info("Web server listening", "addr", ln.Addr().String())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(err, "Web server failed")
		} else {
			s.log.Info("Web server stopped")
		}
	}()

	go func() {
		<-s.ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			hlog.ErrorIfNotCanceled(s.log, err, "Web server shutdown failed")
			return
		}
		s.log.V(1).Info("Web server shutdown")
	}()
	return nil
}

// Update publishes the state snapshot and serves the pending scan requests.
func (s *Server) Update(state *device.State) {
	s.mu.Lock()
	s.snapshot = *state
	s.mu.Unlock()

	for {
		select {
		case req := <-s.scans:
			req.reply <- s.scan()
		default:
			return
		}
	}
}

func (s *Server) Snapshot() device.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

func (s *Server) scan() scanReply {
	state, networks := s.scanner.ScanResults()
	switch state {
	case wifi.ScanIdle:
		if err := s.scanner.StartScan(); err != nil {
			s.log.Error(err, "Failed to start scan")
			return scanReply{http.StatusInternalServerError, errorBody("scan_failed")}
		}
		s.log.Info("Scan started")
		return scanReply{http.StatusAccepted, map[string]string{"status": "started"}}
	case wifi.ScanRunning:
		return scanReply{http.StatusAccepted, map[string]string{"status": "scanning"}}
	default:
		s.scanner.ClearScan()
		if networks == nil {
			networks = []wifi.Network{}
		}
		s.log.Info("Scan done", "networks", len(networks))
		return scanReply{http.StatusOK, map[string][]wifi.Network{"networks": networks}}
	}
}

// Handler routes requests. Unknown routes answer OPTIONS with 200 and
// redirect everything else to the UI.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error(fmt.Errorf("%v", rec), "panic recovered", "path", r.URL.Path, "stack", string(debug.Stack()))
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		rt, ok := s.routes[r.URL.Path]
		switch {
		case ok && rt.method == r.Method:
			rt.handler(sw, r)
		case r.Method == http.MethodOptions:
			sw.WriteHeader(http.StatusOK)
		default:
			http.Redirect(sw, r, "/", http.StatusFound)
		}
		s.log.V(1).Info("request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr, "status", sw.status, "bytes", sw.bytes, "dur", time.Since(start))
	})
}

func (s *Server) serveGz(a assets.Asset) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := assets.Read(a.File)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", a.ContentType)
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Vary", "Accept-Encoding")
		_, _ = w.Write(body)
	}
}

type Status struct {
	Connected bool   `json:"connected"`
	IP        string `json:"ip"`
	SavedSSID string `json:"savedSsid"`
	Mode      string `json:"mode"`
	APActive  bool   `json:"apActive"`
}

func statusOf(state device.State) Status {
	c := state.Connectivity
	ip := "0.0.0.0"
	if c.LocalAddress.IsValid() {
		ip = c.LocalAddress.String()
	}
	return Status{
		Connected: c.Associated,
		IP:        ip,
		SavedSSID: c.SavedSSID,
		Mode:      c.Mode,
		APActive:  c.APActive,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusOf(s.Snapshot()))
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	req := scanRequest{reply: make(chan scanReply, 1)}
	select {
	case s.scans <- req:
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "scanning"})
		return
	}

	timer := time.NewTimer(scanTimeout)
	defer timer.Stop()
	select {
	case reply := <-req.reply:
		writeJSON(w, reply.code, reply.body)
	case <-timer.C:
		writeJSON(w, http.StatusServiceUnavailable, errorBody("busy"))
	case <-r.Context().Done():
	}
}

// saveRequest is the body of POST /api/save, as JSON or as a form.
type saveRequest struct {
	SSID     string `json:"ssid" schema:"ssid"`
	Password string `json:"password" schema:"password"`
}

type saveResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func errorBody(code string) saveResponse {
	return saveResponse{OK: false, Error: code}
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestSize)

	req, err := s.decodeSave(r)
	if err != nil {
		s.log.Info("Rejected save request", "error", err.Error())
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_json"))
		return
	}
	if req.SSID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("empty_ssid"))
		return
	}

	if err := s.creds.Save(r.Context(), device.Credentials{SSID: req.SSID, Password: req.Password}); err != nil {
		s.log.Error(err, "Failed to save credentials", "ssid", req.SSID)
		writeJSON(w, http.StatusInternalServerError, errorBody("save_failed"))
		return
	}
	s.log.Info("Credentials saved, restarting", "ssid", req.SSID, "delay", RestartDelay)
	writeJSON(w, http.StatusOK, saveResponse{OK: true})

	s.restarter.ScheduleRestart(RestartDelay)
}

func (s *Server) decodeSave(r *http.Request) (saveRequest, error) {
	var req saveRequest
	if mediaType(r) == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return req, err
		}
		err := s.decoder.Decode(&req, r.PostForm)
		return req, err
	}
	err := decodeJSON(r.Body, &req)
	return req, err
}

// statusWriter captures response status code and bytes written
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// Ensure websocket upgrades can hijack the connection through this wrapper
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := w.ResponseWriter.(http.Hijacker); ok {
		if w.status == 0 {
			w.status = http.StatusSwitchingProtocols
		}
		return hj.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
