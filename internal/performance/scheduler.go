package performance

import (
	"crypto/tls"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/brxload/internal/performance/metrics"
)

// VUScheduler manages the lifecycle of Virtual Users.
//
// It provides:
// - VU pool management (spawning/stopping VUs)
// - Shared HTTP client configuration
// - Per-VU seeding of random sources
//
// The scheduler is used by executors to control VU counts.
type VUScheduler struct {
	workload Workload
	metrics  *metrics.Engine

	httpClientConfig HTTPClientConfig

	// seed is the base seed; VU n is seeded with seed+n
	seed int64

	// Active VUs
	vus   map[int]*VirtualUser
	vusMu sync.RWMutex

	// VU ID counter
	nextVUID atomic.Int32

	sharedClient *http.Client

	shutdownOnce sync.Once
}

// HTTPClientConfig contains HTTP client configuration.
type HTTPClientConfig struct {
	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// DisableKeepAlives disables HTTP keep-alives
	DisableKeepAlives bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool

	// UseSharedClient indicates whether VUs share a single HTTP client
	UseSharedClient bool
}

// DefaultHTTPClientConfig returns sensible defaults for load testing.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     0, // Unlimited
		IdleConnTimeout:     90 * time.Second,
		UseSharedClient:     true, // Shared by default for connection pooling
	}
}

// NewVUScheduler creates a new VU scheduler.
//
// A zero seed selects a time-based seed, so runs are only reproducible when
// an explicit seed is given.
func NewVUScheduler(workload Workload, metricsEngine *metrics.Engine, httpConfig HTTPClientConfig, seed int64) *VUScheduler {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	scheduler := &VUScheduler{
		workload:         workload,
		metrics:          metricsEngine,
		httpClientConfig: httpConfig,
		seed:             seed,
		vus:              make(map[int]*VirtualUser),
	}

	if httpConfig.UseSharedClient {
		scheduler.sharedClient = NewHTTPClient(httpConfig)
	}

	return scheduler
}

// NewHTTPClient creates an HTTP client with the given settings.
func NewHTTPClient(cfg HTTPClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
	}

	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// Client returns the shared HTTP client, or a new one when clients are
// per-VU.
func (s *VUScheduler) Client() *http.Client {
	if s.sharedClient != nil {
		return s.sharedClient
	}
	return NewHTTPClient(s.httpClientConfig)
}

// Seed returns the base seed of the run.
func (s *VUScheduler) Seed() int64 {
	return s.seed
}

// SpawnVU creates and returns a new Virtual User.
//
// The VU is registered with the scheduler but not started.
// The caller is responsible for running the VU.
func (s *VUScheduler) SpawnVU() *VirtualUser {
	id := int(s.nextVUID.Add(1))

	vu := NewVirtualUser(id, s.workload, s.Client(), s.metrics, s.seed+int64(id))

	s.vusMu.Lock()
	s.vus[id] = vu
	s.vusMu.Unlock()

	return vu
}

// GetVU returns a VU by ID, or nil if not found.
func (s *VUScheduler) GetVU(id int) *VirtualUser {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()
	return s.vus[id]
}

// GetActiveVUCount returns the count of non-stopped VUs.
func (s *VUScheduler) GetActiveVUCount() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	count := 0
	for _, vu := range s.vus {
		if vu.GetState() != VUStateStopped {
			count++
		}
	}
	return count
}

// StopAllVUs requests all VUs to stop.
func (s *VUScheduler) StopAllVUs() {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	for _, vu := range s.vus {
		vu.RequestStop()
	}
}

// RemoveVU removes a VU from the scheduler.
func (s *VUScheduler) RemoveVU(id int) {
	s.vusMu.Lock()
	defer s.vusMu.Unlock()

	if vu, exists := s.vus[id]; exists {
		vu.MarkStopped()
		delete(s.vus, id)
	}
}

// WaitForAllVUs waits for all VUs to stop with a timeout.
//
// Returns the number of VUs that did not stop within the timeout.
func (s *VUScheduler) WaitForAllVUs(timeout time.Duration) int {
	deadline := time.Now().Add(timeout)

	s.vusMu.RLock()
	vus := make([]*VirtualUser, 0, len(s.vus))
	for _, vu := range s.vus {
		vus = append(vus, vu)
	}
	s.vusMu.RUnlock()

	notStopped := 0
	for _, vu := range vus {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			notStopped++
			continue
		}

		if !vu.WaitForStop(remaining) {
			notStopped++
		}
	}

	return notStopped
}

// Shutdown stops all VUs, waits up to timeout for them, and releases idle
// connections. It returns the number of VUs that did not stop in time.
func (s *VUScheduler) Shutdown(timeout time.Duration) int {
	notStopped := 0

	s.shutdownOnce.Do(func() {
		s.StopAllVUs()
		notStopped = s.WaitForAllVUs(timeout)

		if s.sharedClient != nil {
			s.sharedClient.CloseIdleConnections()
		}
		s.metrics.SetActiveVUs(0)
	})

	return notStopped
}

// UpdateMetrics updates the metrics engine with current VU count.
func (s *VUScheduler) UpdateMetrics() {
	s.metrics.SetActiveVUs(s.GetActiveVUCount())
}
