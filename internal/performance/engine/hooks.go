package engine

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// HealthPath is probed once during setup.
const HealthPath = "/health"

// SetupData is produced once before any VU starts and handed to every hook.
type SetupData struct {
	RunID      string    `json:"runId"`
	StartTime  time.Time `json:"startTime"`
	GatewayURL string    `json:"gatewayUrl"`

	// Healthy is false when the health probe failed; the run continues
	Healthy bool `json:"healthy"`
}

// Hook observes the run lifecycle. Setup errors abort the run; teardown
// errors are logged.
type Hook interface {
	Setup(ctx context.Context, data *SetupData) error
	Teardown(ctx context.Context, result *TestResult) error
}

// setup logs the run banner, probes the gateway and returns the run data.
func (e *Engine) setup(ctx context.Context, client *http.Client) *SetupData {
	data := &SetupData{
		RunID:      uuid.NewString(),
		StartTime:  time.Now(),
		GatewayURL: e.env.GatewayURL,
	}

	metricsURL := e.env.MetricsURL
	if metricsURL == "" {
		metricsURL = "(push disabled)"
	}

	e.logger.WithFields(log.Fields{
		"run_id":    data.RunID,
		"gateway":   data.GatewayURL,
		"metrics":   metricsURL,
		"scenarios": e.scenarioCount,
		"executor":  e.execConfig.Type,
	}).Infof("Starting %s against %s", e.config.Name, data.GatewayURL)

	if err := probeHealth(ctx, client, data.GatewayURL); err != nil {
		e.logger.WithError(err).Warn("Gateway health check failed, continuing anyway")
	} else {
		data.Healthy = true
		e.logger.Info("Gateway health check passed")
	}

	return data
}

// probeHealth issues one unauthenticated GET against the health endpoint.
func probeHealth(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+HealthPath, nil)
	if err != nil {
		return errors.Wrap(err, "building health request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "health request")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("health endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// teardown logs where the results can be inspected.
func (e *Engine) teardown(result *TestResult) {
	e.logger.WithFields(log.Fields{
		"run_id": result.RunID,
		"start":  result.StartTime.Format(time.RFC3339),
		"end":    result.EndTime.Format(time.RFC3339),
	}).Info("Run completed")

	if e.env.DashboardURL != "" {
		e.logger.Infof("View aggregated metrics at %s", e.env.DashboardURL)
	}
}
