// Package server exposes registered contracts over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/woxQAQ/wasm-contracts/internal/config"
	"github.com/woxQAQ/wasm-contracts/internal/contract"
	"github.com/woxQAQ/wasm-contracts/internal/metrics"
	"github.com/woxQAQ/wasm-contracts/internal/wasm"
	"github.com/woxQAQ/wasm-contracts/pkg/protocol"
)

const (
	maxRequestBytes = 16 << 20
	shutdownTimeout = 10 * time.Second
)

// Route templates.
const (
	RouteHealth    = "/healthz"
	RouteContracts = "/v1/contracts"
	RouteCall      = "/v1/contracts/{name}/call"
	RouteMetrics   = "/metrics"
)

// Contracts is the part of contract.Manager the server needs.
type Contracts interface {
	Contracts() []*contract.Contract
	GetContract(name string) (*contract.Contract, error)
	Stats(name string) (contract.Stats, error)
	Call(ctx context.Context, name string, state, action []byte) ([]byte, error)
}

type Server struct {
	cfg       *config.ServerConfig
	contracts Contracts
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	logger    *zap.Logger

	limitMu  sync.Mutex
	limiters map[string]*rate.Limiter

	handler http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records requests and serves gatherer on /metrics when
// metrics are enabled in the config.
func WithMetrics(m *metrics.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

func New(cfg *config.ServerConfig, contracts Contracts, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		contracts: contracts,
		logger:    logger.With(zap.String("component", "http")),
		limiters:  make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	base := alice.New(s.recoverPanics, s.logRequests, s.instrument)

	m := mux.NewRouter()
	m.Handle(RouteHealth, base.ThenFunc(s.health)).Methods(http.MethodGet)
	m.Handle(RouteContracts, base.ThenFunc(s.list)).Methods(http.MethodGet)
	m.Handle(RouteCall, base.Append(s.rateLimit).ThenFunc(s.call)).Methods(http.MethodPost)
	if s.cfg.MetricsEnabled && s.gatherer != nil {
		m.Handle(RouteMetrics, base.Then(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))).Methods(http.MethodGet)
	}

	m.NotFoundHandler = base.ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, protocol.ErrorDetail{
			Code:    protocol.ErrorCodeNotFound,
			Message: http.StatusText(http.StatusNotFound),
		})
	})
	m.MethodNotAllowedHandler = base.ThenFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, protocol.ErrorDetail{
			Code:    protocol.ErrorCodeBadRequest,
			Message: http.StatusText(http.StatusMethodNotAllowed),
		})
	})
	return m
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ls, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ls)
}

// Serve accepts connections on ls until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ls net.Listener) error {
	svr := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Starting http server", zap.String("addr", ls.Addr().String()))
		errc <- svr.Serve(ls)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down http server")
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := svr.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	contracts := s.contracts.Contracts()
	out := protocol.ContractList{Contracts: make([]protocol.ContractInfo, 0, len(contracts))}
	for _, c := range contracts {
		info := protocol.ContractInfo{
			Name:        c.Name(),
			Version:     c.Version(),
			Description: c.Description(),
			StateSchema: c.HasSchema(),
		}
		if st, err := s.contracts.Stats(c.Name()); err == nil {
			info.Stats = &protocol.ContractStats{
				Calls:             st.Calls,
				Failures:          st.Failures,
				Traps:             st.Traps,
				InstancesCreated:  st.Created,
				InstancesRecycled: st.Recycled,
				InstancesEvicted:  st.Evicted,
				InstancesIdle:     st.Idle,
			}
		}
		out.Contracts = append(out.Contracts, info)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) call(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req protocol.CallRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, protocol.ErrorDetail{
			Code:    protocol.ErrorCodeBadRequest,
			Message: fmt.Sprintf("invalid request body: %v", err),
		})
		return
	}

	out, err := s.contracts.Call(r.Context(), name, req.State, req.Action)
	if err != nil {
		code, detail := errorDetail(err)
		s.writeError(w, code, detail)
		return
	}
	if !json.Valid(out) {
		s.writeError(w, http.StatusUnprocessableEntity, protocol.ErrorDetail{
			Code:    protocol.ErrorCodeContractError,
			Message: fmt.Sprintf("contract '%s' returned invalid JSON", name),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, protocol.CallResponse{State: out})
}

// errorDetail maps a call error to a status code and response body.
func errorDetail(err error) (int, protocol.ErrorDetail) {
	var (
		notFound   *contract.ContractNotFoundError
		violation  *contract.SchemaViolationError
		trapErr    *wasm.TrapError
		timeoutErr *wasm.TimeoutError
		limitErr   *wasm.InstanceLimitError
		tooLarge   *wasm.ResultTooLargeError
		memErr     *wasm.MemoryAccessError
		sigErr     *wasm.SignatureError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, protocol.ErrorDetail{Code: protocol.ErrorCodeNotFound, Message: err.Error()}
	case errors.As(err, &violation):
		return http.StatusUnprocessableEntity, protocol.ErrorDetail{Code: protocol.ErrorCodeSchemaViolation, Message: err.Error()}
	case errors.As(err, &trapErr):
		return http.StatusUnprocessableEntity, protocol.ErrorDetail{
			Code:    protocol.ErrorCodeContractTrap,
			Message: fmt.Sprintf("contract trapped in '%s': %v", trapErr.FunctionName, trapErr.Err),
			Stderr:  trapErr.Stderr,
		}
	case errors.Is(err, wasm.ErrInstancePoisoned):
		return http.StatusUnprocessableEntity, protocol.ErrorDetail{Code: protocol.ErrorCodeContractTrap, Message: err.Error()}
	case errors.As(err, &timeoutErr):
		return http.StatusGatewayTimeout, protocol.ErrorDetail{Code: protocol.ErrorCodeTimeout, Message: err.Error()}
	case errors.As(err, &limitErr):
		return http.StatusServiceUnavailable, protocol.ErrorDetail{Code: protocol.ErrorCodeUnavailable, Message: err.Error()}
	case errors.As(err, &tooLarge), errors.As(err, &memErr), errors.As(err, &sigErr), errors.Is(err, wasm.ErrEmptyResult):
		return http.StatusUnprocessableEntity, protocol.ErrorDetail{Code: protocol.ErrorCodeContractError, Message: err.Error()}
	default:
		return http.StatusInternalServerError, protocol.ErrorDetail{Code: protocol.ErrorCodeInternal, Message: err.Error()}
	}
}

// limiter returns the limiter of a contract, or nil when limiting is off.
func (s *Server) limiter(name string) *rate.Limiter {
	rl := s.cfg.RateLimit
	if rl.RequestsPerSecond <= 0 {
		return nil
	}

	s.limitMu.Lock()
	defer s.limitMu.Unlock()

	l, ok := s.limiters[name]
	if !ok {
		burst := rl.Burst
		if burst <= 0 {
			burst = int(math.Max(1, math.Ceil(rl.RequestsPerSecond)))
		}
		l = rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), burst)
		s.limiters[name] = l
	}
	return l
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		// Unknown contracts fall through to a 404 without growing the limiter map.
		if _, err := s.contracts.GetContract(name); err == nil {
			if l := s.limiter(name); l != nil && !l.Allow() {
				s.writeError(w, http.StatusTooManyRequests, protocol.ErrorDetail{
					Code:    protocol.ErrorCodeRateLimited,
					Message: fmt.Sprintf("rate limit exceeded for contract '%s'", name),
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.logger.Error("Handler panic",
					zap.String("path", r.URL.Path),
					zap.Any("panic", v),
					zap.Stack("stack"),
				)
				s.writeError(w, http.StatusInternalServerError, protocol.ErrorDetail{
					Code:    protocol.ErrorCodeInternal,
					Message: http.StatusText(http.StatusInternalServerError),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := wrap(w)
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.logger.Debug("Handled request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Int("bytes", rec.written),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := wrap(w)
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.metrics.RecordHTTP(rec.status, r.Method, routeName(r), time.Since(start))
	})
}

// routeName returns the matched route template so labels stay bounded.
func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, detail protocol.ErrorDetail) {
	s.writeJSON(w, code, protocol.ErrorResponse{Error: detail})
}
