// Package rpc exposes the trading engine over JSON-RPC 2.0.
package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"ngndex/native/amm"
	"ngndex/observability/logging"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeDuplicatePair  = -32010
	codeRateLimited    = -32020
)

// RateLimit bounds mutating requests per source address.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

const (
	// limiterMaxSources caps the per-source limiter table. Idle entries are
	// swept before admitting a new source once the cap is reached.
	limiterMaxSources = 1024
	limiterIdleAfter  = 10 * time.Minute
)

type sourceLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Server hosts the DEX JSON-RPC surface plus health and metrics endpoints.
type Server struct {
	engine    *amm.Engine
	authToken string
	now       func() time.Time

	mu       sync.Mutex
	limiters map[string]*sourceLimiter
	limit    RateLimit
}

// NewServer constructs a server over the supplied engine. authToken guards the
// admin methods; an empty token disables them entirely.
func NewServer(engine *amm.Engine, authToken string, limit RateLimit) *Server {
	if limit.RequestsPerSecond <= 0 {
		limit.RequestsPerSecond = 10
	}
	if limit.Burst <= 0 {
		limit.Burst = 20
	}
	return &Server{
		engine:    engine,
		authToken: strings.TrimSpace(authToken),
		now:       time.Now,
		limiters:  make(map[string]*sourceLimiter),
		limit:     limit,
	}
}

// Router assembles the HTTP handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return otelhttp.NewHandler(r, "ngndex.rpc")
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle routes a JSON-RPC request to the matching method handler.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
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
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
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

	switch req.Method {
	case "dex_createPair", "dex_addLiquidity", "dex_removeLiquidity",
		"dex_swapNGNForStock", "dex_swapStockForNGN":
		if !s.allowMutation(r) {
			slog.Warn("mutation throttled", "method", req.Method)
			writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
			return
		}
	}

	switch req.Method {
	case "dex_createPair":
		s.handleCreatePair(w, r, req)
	case "dex_addLiquidity":
		s.handleAddLiquidity(w, r, req)
	case "dex_removeLiquidity":
		s.handleRemoveLiquidity(w, r, req)
	case "dex_quoteNGNToStock":
		s.handleQuote(w, r, req, amm.DirectionNGNToStock)
	case "dex_quoteStockToNGN":
		s.handleQuote(w, r, req, amm.DirectionStockToNGN)
	case "dex_swapNGNForStock":
		s.handleSwap(w, r, req, amm.DirectionNGNToStock)
	case "dex_swapStockForNGN":
		s.handleSwap(w, r, req, amm.DirectionStockToNGN)
	case "dex_getCurrentPrice":
		s.handleGetCurrentPrice(w, r, req)
	case "dex_getTradingPair":
		s.handleGetTradingPair(w, r, req)
	case "dex_getAllStockTokens":
		s.handleGetAllStockTokens(w, r, req)
	case "dex_getStats":
		s.handleGetStats(w, r, req)
	case "dex_getPriceHistory":
		s.handleGetPriceHistory(w, r, req)
	case "dex_exportPriceHistory":
		s.handleExportPriceHistory(w, r, req)
	case "dex_pausePair", "dex_resumePair", "dex_setFeeRate", "dex_setPriceImpactLimit":
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		s.handleAdmin(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "admin methods disabled"}
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "bearer token required"}
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) != 1 {
		slog.Warn("admin auth rejected", logging.MaskField("token", supplied))
		return &RPCError{Code: codeUnauthorized, Message: "invalid token"}
	}
	return nil
}

func (s *Server) allowMutation(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	now := s.now()
	s.mu.Lock()
	src, ok := s.limiters[host]
	if !ok {
		if len(s.limiters) >= limiterMaxSources {
			s.evictStaleLocked(now)
		}
		src = &sourceLimiter{limiter: rate.NewLimiter(rate.Limit(s.limit.RequestsPerSecond), s.limit.Burst)}
		s.limiters[host] = src
	}
	src.lastSeen = now
	s.mu.Unlock()
	return src.limiter.Allow()
}

// evictStaleLocked drops limiters idle past limiterIdleAfter. When every
// source is still active it removes the least recently seen one so the table
// never grows past limiterMaxSources. Caller holds s.mu.
func (s *Server) evictStaleLocked(now time.Time) {
	oldestKey := ""
	var oldestSeen time.Time
	for key, src := range s.limiters {
		if now.Sub(src.lastSeen) >= limiterIdleAfter {
			delete(s.limiters, key)
			continue
		}
		if oldestKey == "" || src.lastSeen.Before(oldestSeen) {
			oldestKey, oldestSeen = key, src.lastSeen
		}
	}
	if len(s.limiters) >= limiterMaxSources && oldestKey != "" {
		delete(s.limiters, oldestKey)
	}
}

// writeEngineError maps engine failure kinds onto HTTP statuses and JSON-RPC
// codes so callers can distinguish slippage from expiry from missing funds.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, amm.ErrPairNotFound):
		writeError(w, http.StatusNotFound, id, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, amm.ErrPairExists):
		writeError(w, http.StatusConflict, id, codeDuplicatePair, err.Error(), nil)
	case errors.Is(err, amm.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, amm.ErrPairInactive),
		errors.Is(err, amm.ErrInvalidAmount),
		errors.Is(err, amm.ErrInvalidFeeRate),
		errors.Is(err, amm.ErrInsufficientLiquidity),
		errors.Is(err, amm.ErrExcessivePriceImpact),
		errors.Is(err, amm.ErrSlippageExceeded),
		errors.Is(err, amm.ErrExpired),
		errors.Is(err, amm.ErrInsufficientShares),
		errors.Is(err, amm.ErrTransferFailed):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "dex operation failed", err.Error())
	}
}
