// Package gateway drives query traffic against the AirBrx gateway and
// classifies its responses.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/brxload/internal/performance"
	"github.com/wesleyorama2/brxload/internal/performance/metrics"
	"github.com/wesleyorama2/brxload/internal/performance/selector"
)

// Custom metric names recorded by the workloads.
const (
	MetricTotalRequests = "total_requests"
	MetricQueryDuration = "query_duration"
	MetricErrorRate     = "error_rate"
	MetricCacheHitRate  = "cache_hit_rate"
	MetricChecks        = "checks"
)

const (
	// DefaultQueryPath is where the gateway accepts SQL queries.
	DefaultQueryPath = "/query"

	// DefaultOrigin tags requests in the gateway's own telemetry.
	DefaultOrigin = "brxload"

	// bodyPreviewLen bounds the failure body preview in logs.
	bodyPreviewLen = 200
)

// Roles are the simulated user roles, drawn uniformly per request.
var Roles = []string{"teacher", "educator", "district_admin"}

// Observer receives every classified query, e.g. to mirror it into an
// external metrics backend.
type Observer interface {
	ObserveQuery(scenario string, result ExecutionResult)
}

// QueryConfig configures a QueryWorkload.
type QueryConfig struct {
	// BaseURL of the gateway, without trailing slash
	BaseURL string

	// Path defaults to DefaultQueryPath
	Path string

	// Origin defaults to DefaultOrigin
	Origin string

	UserAgent string

	// Debug logs every query, not only failures
	Debug bool

	// Logger defaults to the logrus standard logger
	Logger logrus.FieldLogger

	// Observer is optional
	Observer Observer
}

// QueryRequest is the JSON body posted to the gateway.
type QueryRequest struct {
	SQL        string                 `json:"sql"`
	Parameters map[string]interface{} `json:"parameters"`
	Metadata   QueryMetadata          `json:"metadata"`
}

// QueryMetadata correlates a request with a simulated user and session.
type QueryMetadata struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	RequestID string `json:"requestId"`
	UserRole  string `json:"userRole"`
	Origin    string `json:"origin"`
}

// Identity holds the correlation ids of one request.
type Identity struct {
	UserID    string
	SessionID string
	RequestID string
}

// NewIdentity derives correlation ids from the VU id, the iteration number
// and the request timestamp.
func NewIdentity(vu int, iteration int64, ts time.Time) Identity {
	return Identity{
		UserID:    fmt.Sprintf("user_%d", vu),
		SessionID: fmt.Sprintf("session_%d_%d", vu, iteration),
		RequestID: fmt.Sprintf("req_%d_%d_%d", vu, iteration, ts.UnixMilli()),
	}
}

// PickRole draws a role uniformly from Roles.
func PickRole(r selector.Rand) string {
	return Roles[r.Intn(len(Roles))]
}

// QueryWorkload is the load-test iteration: select a weighted scenario,
// post it to the gateway, classify and record the outcome.
type QueryWorkload struct {
	cfg      QueryConfig
	selector *selector.Selector
	engine   *metrics.Engine

	totalRequests *metrics.Counter
	queryDuration *metrics.Trend
	errorRate     *metrics.Rate
	cacheHitRate  *metrics.Rate
}

// NewQueryWorkload creates the workload and registers its custom metrics.
func NewQueryWorkload(cfg QueryConfig, sel *selector.Selector, engine *metrics.Engine) *QueryWorkload {
	if cfg.Path == "" {
		cfg.Path = DefaultQueryPath
	}
	if cfg.Origin == "" {
		cfg.Origin = DefaultOrigin
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	registry := engine.Registry()
	return &QueryWorkload{
		cfg:           cfg,
		selector:      sel,
		engine:        engine,
		totalRequests: registry.Counter(MetricTotalRequests),
		queryDuration: registry.Trend(MetricQueryDuration),
		errorRate:     registry.Rate(MetricErrorRate),
		cacheHitRate:  registry.Rate(MetricCacheHitRate),
	}
}

// Iterate runs one query. Query failures are recorded, not returned; the
// only error is an abandoned request after ctx was cancelled.
func (w *QueryWorkload) Iterate(ctx context.Context, it *performance.Iteration) error {
	scenario := w.selector.Select(it.Rand)
	_, err := w.Execute(ctx, it.Client, scenario, it.VUID, it.Number, it.Rand)
	return err
}

// Execute posts one scenario and records the result.
func (w *QueryWorkload) Execute(ctx context.Context, client *http.Client, scenario selector.Scenario, vu int, iteration int64, r selector.Rand) (ExecutionResult, error) {
	start := time.Now()
	ident := NewIdentity(vu, iteration, start)

	req, err := w.buildRequest(ctx, scenario, ident, PickRole(r))
	if err != nil {
		return ExecutionResult{}, err
	}

	resp := do(client, req, start)
	if resp.Err != nil && ctx.Err() != nil {
		// Abandoned at shutdown; not a gateway failure
		return ExecutionResult{}, ctx.Err()
	}

	result := Classify(resp)
	w.record(scenario.Name, resp, result)
	w.logResult(scenario.Name, resp, result)

	return result, nil
}

func (w *QueryWorkload) buildRequest(ctx context.Context, scenario selector.Scenario, ident Identity, role string) (*http.Request, error) {
	payload, err := json.Marshal(QueryRequest{
		SQL:        scenario.Query,
		Parameters: map[string]interface{}{},
		Metadata: QueryMetadata{
			UserID:    ident.UserID,
			SessionID: ident.SessionID,
			RequestID: ident.RequestID,
			UserRole:  role,
			Origin:    w.cfg.Origin,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode query")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.BaseURL+w.cfg.Path, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build query request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", ident.RequestID)
	req.Header.Set("X-User-ID", ident.UserID)
	if w.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", w.cfg.UserAgent)
	}

	return req, nil
}

// do issues the request and reads the whole body. Duration runs from start
// until the body has been read.
func do(client *http.Client, req *http.Request, start time.Time) Response {
	resp, err := client.Do(req)
	if err != nil {
		return Response{Err: err, Duration: time.Since(start)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	return Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Duration:   time.Since(start),
		Err:        errors.Wrap(err, "failed to read response body"),
	}
}

func (w *QueryWorkload) record(name string, resp Response, result ExecutionResult) {
	// http_req_failed follows HTTP semantics; error_rate follows the query checks
	httpOK := resp.Err == nil && resp.StatusCode > 0 && resp.StatusCode < 400
	w.engine.RecordLatency(result.Duration, name, httpOK, int64(len(resp.Body)))

	w.totalRequests.Add(1)
	w.queryDuration.AddDuration(result.Duration)
	w.errorRate.Add(!result.Success)
	w.cacheHitRate.Add(result.CacheHit)

	if w.cfg.Observer != nil {
		w.cfg.Observer.ObserveQuery(name, result)
	}
}

func (w *QueryWorkload) logResult(name string, resp Response, result ExecutionResult) {
	if result.Success && !w.cfg.Debug {
		return
	}

	cache := "MISS"
	if result.CacheHit {
		cache = "HIT"
	}

	entry := w.cfg.Logger.WithFields(logrus.Fields{
		"scenario":    name,
		"status":      result.StatusCode,
		"duration_ms": result.Duration.Milliseconds(),
		"cache":       cache,
	})
	msg := fmt.Sprintf("[%s] Status: %d, Duration: %dms, Cache: %s",
		name, result.StatusCode, result.Duration.Milliseconds(), cache)

	if result.Success {
		entry.Info(msg)
		return
	}

	preview := string(resp.Body)
	if resp.Err != nil {
		preview = resp.Err.Error()
	}
	entry.WithField("body", Truncate(preview, bodyPreviewLen)).Warn(msg)
}

// Truncate returns at most n characters of s.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
