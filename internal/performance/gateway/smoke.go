package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wesleyorama2/brxload/internal/performance"
	"github.com/wesleyorama2/brxload/internal/performance/metrics"
	"github.com/wesleyorama2/brxload/pkg/jsonschema"
)

// Smoke defaults.
const (
	DefaultSmokePath     = "/api/query"
	DefaultSmokeSQL      = "SELECT COUNT(*) FROM DISTRICT;"
	DefaultSmokeDatabase = "NWEA"
	DefaultSmokeSchema   = "ASSESSMENT_BSD"

	smokeRequestName = "smoke"
)

// SmokeConfig configures a SmokeWorkload.
type SmokeConfig struct {
	BaseURL  string
	Path     string
	SQL      string
	Database string
	Schema   string

	UserAgent string

	// ResponseSchema, when set, must validate every response body
	ResponseSchema *jsonschema.Schema

	Debug  bool
	Logger logrus.FieldLogger
}

// SmokeRequest is the JSON body posted by the smoke workload.
type SmokeRequest struct {
	SQL      string `json:"sql"`
	Database string `json:"database"`
	Schema   string `json:"schema"`
}

// Check is one named pass/fail assertion on a smoke response.
type Check struct {
	Name   string
	Passed bool
	Detail string
}

// SmokeWorkload posts one fixed query per iteration and asserts that the
// gateway answers it.
type SmokeWorkload struct {
	cfg    SmokeConfig
	engine *metrics.Engine
	checks *metrics.Rate
}

// NewSmokeWorkload creates the workload and registers the checks rate.
func NewSmokeWorkload(cfg SmokeConfig, engine *metrics.Engine) *SmokeWorkload {
	if cfg.Path == "" {
		cfg.Path = DefaultSmokePath
	}
	if cfg.SQL == "" {
		cfg.SQL = DefaultSmokeSQL
	}
	if cfg.Database == "" {
		cfg.Database = DefaultSmokeDatabase
	}
	if cfg.Schema == "" {
		cfg.Schema = DefaultSmokeSchema
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &SmokeWorkload{
		cfg:    cfg,
		engine: engine,
		checks: engine.Registry().Rate(MetricChecks),
	}
}

// Iterate posts the smoke query and records its checks.
func (w *SmokeWorkload) Iterate(ctx context.Context, it *performance.Iteration) error {
	payload, err := json.Marshal(SmokeRequest{
		SQL:      w.cfg.SQL,
		Database: w.cfg.Database,
		Schema:   w.cfg.Schema,
	})
	if err != nil {
		return errors.Wrap(err, "failed to encode smoke query")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.BaseURL+w.cfg.Path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "failed to build smoke request")
	}
	req.Header.Set("Content-Type", "application/json")
	if w.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", w.cfg.UserAgent)
	}

	resp := do(it.Client, req, time.Now())
	if resp.Err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	httpOK := resp.Err == nil && resp.StatusCode > 0 && resp.StatusCode < 400
	w.engine.RecordLatency(resp.Duration, smokeRequestName, httpOK, int64(len(resp.Body)))

	checks := w.Evaluate(resp)
	for _, c := range checks {
		w.checks.Add(c.Passed)
		w.logCheck(it, resp, c)
	}

	return nil
}

// Evaluate runs the smoke checks against a response.
func (w *SmokeWorkload) Evaluate(resp Response) []Check {
	checks := []Check{
		{Name: "status is 200", Passed: resp.Err == nil && resp.StatusCode == http.StatusOK},
		{Name: "response has body", Passed: resp.Err == nil && len(resp.Body) > 0},
	}

	if w.cfg.ResponseSchema != nil {
		c := Check{Name: "body matches schema", Passed: resp.Err == nil}
		if resp.Err == nil {
			if errs := w.cfg.ResponseSchema.Validate(resp.Body); len(errs) > 0 {
				c.Passed = false
				c.Detail = errs.Error()
			}
		}
		checks = append(checks, c)
	}

	if resp.Err != nil {
		for i := range checks {
			checks[i].Detail = resp.Err.Error()
		}
	}

	return checks
}

func (w *SmokeWorkload) logCheck(it *performance.Iteration, resp Response, c Check) {
	entry := w.cfg.Logger.WithFields(logrus.Fields{
		"vu":          it.VUID,
		"iteration":   it.Number,
		"check":       c.Name,
		"status":      resp.StatusCode,
		"duration_ms": resp.Duration.Milliseconds(),
	})

	switch {
	case !c.Passed:
		if c.Detail != "" {
			entry = entry.WithField("detail", Truncate(c.Detail, bodyPreviewLen))
		}
		entry.Warn("check failed")
	case w.cfg.Debug:
		entry.Info("check passed")
	}
}
