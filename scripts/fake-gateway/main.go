// Command fake-gateway serves a stand-in AirBrx gateway for local trial
// runs:
//
//	go run ./scripts/fake-gateway --addr :8080 --latency 40ms --cache-hit-ratio 0.7
//	AIRBRX_URL=http://localhost:8080 brxload smoke
package main

import (
	"net/http"
	"os"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/brxload/internal/gatewaytest"
)

func main() {
	var (
		addr string
		opts gatewaytest.Options
	)

	cmd := &cobra.Command{
		Use:   "fake-gateway",
		Short: "Serve a stand-in AirBrx gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

			server := &http.Server{
				Addr:              addr,
				Handler:           gatewaytest.New(opts).Handler(),
				ReadTimeout:       5 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       120 * time.Second,
				ReadHeaderTimeout: 2 * time.Second,
			}

			log.WithFields(log.Fields{
				"latency":         opts.Latency,
				"jitter":          opts.Jitter,
				"cache_hit_ratio": opts.CacheHitRatio,
				"error_ratio":     opts.ErrorRatio,
				"cpus":            runtime.NumCPU(),
			}).Infof("Fake gateway listening on %s", addr)

			return server.ListenAndServe()
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&addr, "addr", ":8080", "Listen address")
	flags.DurationVar(&opts.Latency, "latency", 20*time.Millisecond, "Base query latency")
	flags.DurationVar(&opts.Jitter, "jitter", 80*time.Millisecond, "Extra random latency, up to this much")
	flags.Float64Var(&opts.CacheHitRatio, "cache-hit-ratio", 0.6, "Fraction of queries answered from cache")
	flags.Float64Var(&opts.ErrorRatio, "error-ratio", 0.01, "Fraction of requests answered with 500")
	flags.BoolVar(&opts.Unhealthy, "unhealthy", false, "Fail the health endpoint")

	if err := cmd.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
