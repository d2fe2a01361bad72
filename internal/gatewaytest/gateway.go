// Package gatewaytest is a stand-in AirBrx gateway for tests and local
// trial runs.
package gatewaytest

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wesleyorama2/brxload/internal/performance/gateway"
)

// Options shape the fake gateway's behavior.
type Options struct {
	// Latency is added to every query; Jitter adds up to that much more
	Latency time.Duration
	Jitter  time.Duration

	// CacheHitRatio of queries answer with X-Cache-Status: HIT
	CacheHitRatio float64

	// ErrorRatio of queries and smoke requests answer 500
	ErrorRatio float64

	// Unhealthy makes /health answer 503
	Unhealthy bool

	Seed   int64
	Logger log.FieldLogger
}

// Gateway serves /health, the query endpoint and the smoke endpoint.
type Gateway struct {
	opts Options

	mu   sync.Mutex
	rand *rand.Rand

	queries atomic.Int64
	smokes  atomic.Int64
	health  atomic.Int64
}

// New creates a fake gateway.
func New(opts Options) *Gateway {
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	return &Gateway{
		opts: opts,
		rand: rand.New(rand.NewSource(opts.Seed)),
	}
}

// Handler routes the gateway endpoints.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc(gateway.DefaultQueryPath, g.handleQuery)
	mux.HandleFunc(gateway.DefaultSmokePath, g.handleSmoke)
	return mux
}

// Queries returns how many query requests were received.
func (g *Gateway) Queries() int64 { return g.queries.Load() }

// Smokes returns how many smoke requests were received.
func (g *Gateway) Smokes() int64 { return g.smokes.Load() }

// HealthChecks returns how many health probes were received.
func (g *Gateway) HealthChecks() int64 { return g.health.Load() }

func (g *Gateway) randFloat() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rand.Float64()
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.health.Add(1)
	if g.opts.Unhealthy {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (g *Gateway) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	g.queries.Add(1)

	var req gateway.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SQL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "sql is required"})
		return
	}

	if !g.wait(r.Context()) {
		return
	}

	if g.randFloat() < g.opts.ErrorRatio {
		g.opts.Logger.WithField("request_id", req.Metadata.RequestID).Debug("injecting query failure")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "warehouse unavailable"})
		return
	}

	cache := "MISS"
	if g.randFloat() < g.opts.CacheHitRatio {
		cache = gateway.CacheHit
	}
	w.Header().Set(gateway.CacheStatusHeader, cache)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": []map[string]interface{}{{"rows": 1}},
		"metadata": map[string]interface{}{
			"requestId": req.Metadata.RequestID,
			"userRole":  req.Metadata.UserRole,
		},
	})
}

func (g *Gateway) handleSmoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	g.smokes.Add(1)

	var req gateway.SmokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SQL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "sql is required"})
		return
	}

	if g.randFloat() < g.opts.ErrorRatio {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "warehouse unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":   [][]string{{"42"}},
		"database": req.Database,
		"schema":   req.Schema,
	})
}

// wait applies the configured latency; false means the client went away.
func (g *Gateway) wait(ctx context.Context) bool {
	d := g.opts.Latency
	if g.opts.Jitter > 0 {
		d += time.Duration(g.randFloat() * float64(g.opts.Jitter))
	}
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
