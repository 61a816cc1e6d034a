package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tipledger/core/events"
	"tipledger/native/tipvault"
	"tipledger/observability"
)

const (
	defaultMaxBodyBytes = 1 << 20
	requestIDHeader     = "X-Request-ID"
	shutdownTimeout     = 10 * time.Second
)

// ServerConfig tunes transport limits.
type ServerConfig struct {
	RequestsPerMinute int
	Burst             int
	MaxBodyBytes      int64
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	SubscriberBuffer  int
	// Nonces persists the highest accepted nonce per caller. Nil keeps
	// nonces in memory only, so a restart forgets them.
	Nonces NonceStore
}

type callRecorder interface {
	Observe(method string, code int, duration time.Duration)
	RecordThrottle(reason string)
}

type Server struct {
	engine  *tipvault.Engine
	bus     *events.Bus
	cfg     ServerConfig
	logger  *slog.Logger
	limiter *RateLimiter
	nonces  NonceStore
	metrics callRecorder
}

// NewServer exposes engine over JSON-RPC. bus may be nil, in which case the
// event stream endpoint reports 503.
func NewServer(engine *tipvault.Engine, bus *events.Bus, cfg ServerConfig, logger *slog.Logger) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.ModuleMetrics()
	limiter := NewRateLimiter(cfg.RequestsPerMinute, cfg.Burst)
	limiter.onReject = func(string) { metrics.RecordThrottle("rate_limit") }
	nonces := cfg.Nonces
	if nonces == nil {
		nonces = newNonceTracker()
	}
	return &Server{
		engine:  engine,
		bus:     bus,
		cfg:     cfg,
		logger:  logger,
		limiter: limiter,
		nonces:  nonces,
		metrics: metrics,
	}
}

// Router returns the HTTP handler serving JSON-RPC, the event stream,
// metrics and health checks.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(limited chi.Router) {
		limited.Use(s.limiter.Middleware)
		limited.Post("/", s.handle)
		limited.Get("/ws/events", s.handleEventsWS)
	})
	return otelhttp.NewHandler(r, "tipledger.rpc")
}

// Serve listens on addr until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("rpc server listening", slog.String("listen", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("rpc shutdown: %w", err)
		}
		return nil
	}
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxBodyBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	ow := &observedWriter{ResponseWriter: w}
	start := time.Now()
	s.dispatch(ow, r, req)
	elapsed := time.Since(start)
	s.metrics.Observe(req.Method, ow.code, elapsed)

	attrs := []any{
		slog.String("method", req.Method),
		slog.String("request_id", w.Header().Get(requestIDHeader)),
		slog.Duration("duration", elapsed),
	}
	if ow.code != 0 {
		s.logger.Warn("rpc call failed", append(attrs, slog.Int("code", ow.code))...)
		return
	}
	s.logger.Debug("rpc call", attrs...)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	switch req.Method {
	case "tip_initializeConfig":
		s.handleInitializeConfig(w, r, req)
	case "tip_setRelayer":
		s.handleSetRelayer(w, r, req)
	case "tip_setFeeRate":
		s.handleSetFeeRate(w, r, req)
	case "tip_register":
		s.handleRegister(w, r, req)
	case "tip_deposit":
		s.handleDeposit(w, r, req)
	case "tip_approveAllowance":
		s.handleApproveAllowance(w, r, req)
	case "tip_revokeAllowance":
		s.handleRevokeAllowance(w, r, req)
	case "tip_send":
		s.handleSend(w, r, req)
	case "tip_withdraw":
		s.handleWithdraw(w, r, req)
	case "tip_withdrawFee":
		s.handleWithdrawFee(w, r, req)
	case "tip_getConfig":
		s.handleGetConfig(w, r, req)
	case "tip_getVault":
		s.handleGetVault(w, r, req)
	case "tip_getAllowance":
		s.handleGetAllowance(w, r, req)
	case "tip_getFeeVault":
		s.handleGetFeeVault(w, r, req)
	case "tip_getBalance":
		s.handleGetBalance(w, r, req)
	case "tip_deriveAddresses":
		s.handleDeriveAddresses(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}
