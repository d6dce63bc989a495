// Package httpapi exposes the bridge's health and pairing state over HTTP.
//
// All routes except /health require a bearer-token match when an admin token
// is configured. Binding to a non-loopback host without a token is refused at
// construction, before any traffic is accepted.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/chat-gateway/internal/errs"
	"github.com/and161185/chat-gateway/internal/metrics"
	"github.com/and161185/chat-gateway/internal/model"
	"github.com/and161185/chat-gateway/internal/status"
)

const (
	maxBodyBytes      = 256 << 10
	rateLimitWindow   = time.Minute
	rateLimitRequests = 120
)

// Gateway is the controller surface the HTTP layer consumes.
type Gateway interface {
	Start(ctx context.Context) error
	SendText(ctx context.Context, jid, text string) error
	QR() *model.QRSnapshot
}

// Server serves the HTTP surface.
type Server struct {
	host  string
	port  int
	token string

	log       *zap.Logger
	status    *status.Store
	gw        Gateway
	met       metrics.Metrics
	startedAt time.Time

	limMu   sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	count   int
	resetAt time.Time
}

// New constructs the server. It fails when the bind host is non-loopback and
// no admin token is configured.
func New(host string, port int, token string, st *status.Store, gw Gateway, met metrics.Metrics, log *zap.Logger) (*Server, error) {
	if !isLoopbackHost(host) && token == "" {
		return nil, fmt.Errorf("refusing to bind HTTP to non-loopback host %q without GATEWAY_ADMIN_TOKEN", host)
	}
	if met == nil {
		met = metrics.Noop{}
	}
	return &Server{
		host:      host,
		port:      port,
		token:     token,
		log:       log,
		status:    st,
		gw:        gw,
		met:       met,
		startedAt: time.Now(),
		buckets:   map[string]*bucket{},
	}, nil
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.observed("/health", s.handleHealth))
	mux.HandleFunc("GET /status", s.guarded("/status", s.handleStatus))
	mux.HandleFunc("GET /qr", s.guarded("/qr", s.handleQR))
	mux.HandleFunc("POST /init", s.guarded("/init", s.handleInit))
	mux.HandleFunc("POST /send", s.guarded("/send", s.handleSend))
	mux.Handle("GET /metrics", s.guardedHandler("/metrics", promhttp.Handler()))
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(s.host, strconv.Itoa(s.port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"state":     s.status.Snapshot().State,
		"uptime_ms": time.Since(s.startedAt).Milliseconds(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Public())
}

func (s *Server) handleQR(w http.ResponseWriter, _ *http.Request) {
	snap := s.gw.QR()
	if snap == nil {
		writeError(w, statusForErr(errs.ErrNoQR), "No QR available")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AcceptRisk bool `json:"acceptRisk"`
	}
	if err := decodeBody(r, &body); err != nil || !body.AcceptRisk {
		writeError(w, http.StatusBadRequest, `Missing consent. Send JSON: {"acceptRisk": true}`)
		return
	}
	if err := s.gw.Start(r.Context()); err != nil {
		s.status.SetError(err)
		writeError(w, http.StatusInternalServerError, "Failed to start session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		JID  string `json:"jid"`
		Text string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	jid := strings.TrimSpace(body.JID)
	text := strings.TrimSpace(body.Text)
	if jid == "" || text == "" {
		writeError(w, http.StatusBadRequest, `Missing fields. Send JSON: {"jid": string, "text": string}`)
		return
	}
	if err := s.gw.SendText(r.Context(), jid, text); err != nil {
		s.status.SetError(err)
		writeError(w, statusForErr(err), "Failed to send")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// guarded wraps a handler with rate limiting, bearer auth, and request metrics.
func (s *Server) guarded(route string, h http.HandlerFunc) http.HandlerFunc {
	return s.observed(route, func(w http.ResponseWriter, r *http.Request) {
		if err := s.admit(r); err != nil {
			writeError(w, statusForErr(err), admitMessage(err))
			return
		}
		h(w, r)
	})
}

// admit applies the request budget and bearer-token check, in that order.
func (s *Server) admit(r *http.Request) error {
	if !s.allowRequest(r) {
		return errs.ErrRateLimited
	}
	if !s.authorized(r) {
		return errs.ErrUnauthorized
	}
	return nil
}

// statusForErr maps sentinel errors onto HTTP status codes.
func statusForErr(err error) int {
	switch {
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrNoQR):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrNotConnected):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func admitMessage(err error) string {
	if errors.Is(err, errs.ErrRateLimited) {
		return "Rate limit exceeded"
	}
	return "Unauthorized"
}

func (s *Server) guardedHandler(route string, h http.Handler) http.Handler {
	return s.guarded(route, h.ServeHTTP)
}

// observed records request metrics for the route.
func (s *Server) observed(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		h(rec, r)
		s.met.ObserveRequest(r.Method, route, strconv.Itoa(rec.code), time.Since(start).Seconds())
	}
}

func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" {
		return true
	}
	header := r.Header.Get("Authorization")
	expected := "Bearer " + s.token
	return subtle.ConstantTimeCompare([]byte(header), []byte(expected)) == 1
}

// allowRequest applies a fixed-window per-IP budget. Expired buckets are
// replaced on access.
func (s *Server) allowRequest(r *http.Request) bool {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}

	s.limMu.Lock()
	defer s.limMu.Unlock()

	now := time.Now()
	b, ok := s.buckets[ip]
	if !ok || !b.resetAt.After(now) {
		s.buckets[ip] = &bucket{count: 1, resetAt: now.Add(rateLimitWindow)}
		return true
	}
	b.count++
	return b.count <= rateLimitRequests
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func isLoopbackHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "127.0.0.1", "localhost", "::1":
		return true
	}
	return false
}
