package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/flowforge-ai/autopilot/internal/metrics"
)

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey int

const operatorCtxKey contextKey = iota

// authOperator holds the authenticated operator context for a request.
type authOperator struct {
	ID   string
	Name string
	Role string
}

// operatorFromContext extracts the authenticated operator from the request context.
func operatorFromContext(ctx context.Context) *authOperator {
	v, _ := ctx.Value(operatorCtxKey).(*authOperator)
	return v
}

// --- Auth cache (stale-while-revalidate) ---

type cacheEntry struct {
	operator   *authOperator
	expiresAt  time.Time
	refreshing atomic.Bool
}

type authCache struct {
	store sync.Map // map[string]*cacheEntry (keyed by full token)
	ttl   time.Duration
}

func newAuthCache(ttl time.Duration) *authCache {
	return &authCache{ttl: ttl}
}

func (c *authCache) get(token string) (op *authOperator, hit bool, needsRefresh bool) {
	v, ok := c.store.Load(token)
	if !ok {
		return nil, false, false
	}
	entry := v.(*cacheEntry)
	if time.Now().Before(entry.expiresAt) {
		return entry.operator, true, false // fresh
	}
	// Stale — return value but signal refresh needed (only one goroutine refreshes)
	needsRefresh = entry.refreshing.CompareAndSwap(false, true)
	return entry.operator, true, needsRefresh
}

func (c *authCache) set(token string, op *authOperator) {
	c.store.Store(token, &cacheEntry{
		operator:  op,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// --- Auth middleware ---

// authMiddleware returns an http.HandlerFunc that validates Bearer opk_
// tokens and injects the authenticated operator into the request context.
// With no operator store configured (DSN-less development) auth is a
// pass-through; the router logs this loudly at startup.
func (d *Dependencies) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	cache := newAuthCache(d.CacheTTL)

	return func(w http.ResponseWriter, r *http.Request) {
		if d.Operators == nil {
			next(w, r)
			return
		}

		token, ok := extractBearerToken(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Missing or invalid Authorization header"})
			return
		}
		if len(token) < 8 || !strings.HasPrefix(token, "opk_") {
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Invalid operator token format"})
			return
		}

		// Cache lookup
		op, hit, needsRefresh := cache.get(token)
		if hit && needsRefresh {
			// Stale hit — return stale immediately, refresh in background
			go d.refreshAuth(cache, token)
		}
		if hit && op != nil {
			ctx := context.WithValue(r.Context(), operatorCtxKey, op)
			next(w, r.WithContext(ctx))
			return
		}

		// Cache miss — synchronous lookup
		op, err := d.authenticateToken(r.Context(), token)
		if err != nil {
			d.Logger.Warn("operator auth failed", zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Invalid operator token"})
			return
		}

		cache.set(token, op)
		ctx := context.WithValue(r.Context(), operatorCtxKey, op)
		next(w, r.WithContext(ctx))
	}
}

// authenticateToken validates an operator token and returns the operator context.
func (d *Dependencies) authenticateToken(ctx context.Context, token string) (*authOperator, error) {
	prefix := token[:8]
	op, err := d.Operators.LookupByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, fmt.Errorf("operator not found for prefix")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.TokenHash), []byte(token)); err != nil {
		return nil, err
	}

	return &authOperator{
		ID:   op.ID,
		Name: op.Name,
		Role: op.Role,
	}, nil
}

// refreshAuth refreshes the cache entry in the background.
func (d *Dependencies) refreshAuth(cache *authCache, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	op, err := d.authenticateToken(ctx, token)
	if err != nil {
		d.Logger.Warn("background auth refresh failed", zap.Error(err))
		return
	}
	cache.set(token, op)
}

// extractBearerToken extracts the token from "Authorization: Bearer <token>".
func extractBearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	return strings.TrimSpace(auth[len(prefix):]), true
}

// --- JSON helpers ---

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// readJSON decodes a JSON request body into the given pointer.
func readJSON(r *http.Request, v interface{}) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}

// --- Request logging ---

// requestLogging logs every request and counts it against the usage
// counters the cost guard samples. usage may be nil in tests.
func requestLogging(next http.Handler, logger *zap.Logger, usage *metrics.Counters) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if usage != nil {
			usage.Requests.Inc()
		}
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// --- CORS ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
