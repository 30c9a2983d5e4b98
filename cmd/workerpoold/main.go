// Command workerpoold boots a standalone dispatcher daemon: it wires
// configuration, logging, metrics, and an HTTP status surface around a
// pool.Dispatcher backed by transport.ProcessWorker, and shuts down
// gracefully on SIGINT/SIGTERM.
//
// A cobra-based CLI fronting the dispatcher core, with flags and
// environment variables layered over defaults via internal/config.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Gearlay/workerpool/internal/config"
	"github.com/Gearlay/workerpool/internal/logging"
	"github.com/Gearlay/workerpool/pool"
	"github.com/Gearlay/workerpool/transport"
)

func main() {
	cfg := config.Defaults()

	root := &cobra.Command{
		Use:   "workerpoold",
		Short: "Runs a worker-pool dispatcher daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	flags := root.Flags()
	flags.StringVar(&cfg.App.LogLevel, "log-level", cfg.App.LogLevel, "log level (trace, debug, info, warn, error)")
	flags.StringVar(&cfg.App.ListenAddr, "listen", cfg.App.ListenAddr, "HTTP status/metrics listen address")
	flags.StringVar(&cfg.Pool.Script, "script", cfg.Pool.Script, "registered-method namespace passed through to each worker")
	flags.StringVar(&cfg.Pool.WorkerBinary, "worker-binary", cfg.Pool.WorkerBinary, "path to the worker binary to fork per pool slot")
	flags.IntVar(&cfg.Pool.MinWorkers, "min-workers", cfg.Pool.MinWorkers, "minimum (starting) number of workers")
	flags.IntVar(&cfg.Pool.MaxWorkers, "max-workers", cfg.Pool.MaxWorkers, "maximum number of workers (auto-scaling ceiling)")
	flags.IntVar(&cfg.Pool.MaxQueueSize, "max-queue-size", cfg.Pool.MaxQueueSize, "maximum queued tasks before submit fails (-1 = unbounded)")
	flags.IntVar(&cfg.Pool.GradualScalingMs, "gradual-scaling-ms", cfg.Pool.GradualScalingMs, "minimum milliseconds between scale-up worker creations (0 disables)")
	flags.BoolVar(&cfg.Pool.RoundRobin, "round-robin", cfg.Pool.RoundRobin, "rotate non-affinity dispatches through worker indices")
	flags.IntVar(&cfg.Pool.Concurrency, "concurrency", cfg.Pool.Concurrency, "per-worker maximum in-flight calls")

	cfg = config.ApplyEnv(cfg)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(cfg.App.LogLevel)

	metrics := pool.NewMetrics()
	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		return err
	}

	maxQueue := cfg.Pool.MaxQueueSize
	var maxQueuePtr *int
	if maxQueue >= 0 {
		maxQueuePtr = &maxQueue
	}

	disp, err := pool.NewDispatcher(cfg.Pool.Script, pool.Options{
		MinWorkers:     cfg.Pool.MinWorkers,
		MaxWorkers:     cfg.Pool.MaxWorkers,
		MaxQueueSize:   maxQueuePtr,
		GradualScaling: time.Duration(cfg.Pool.GradualScalingMs) * time.Millisecond,
		RoundRobin:     cfg.Pool.RoundRobin,
		Concurrency:    cfg.Pool.Concurrency,
		MaxExec:        cfg.Pool.MaxExec,
		DebugPortStart: cfg.Pool.DebugPortStart,
		Factory:        transport.NewFactory(cfg.Pool.WorkerBinary, logger),
		Logger:         logger,
		Metrics:        metrics,
		OnTerminateWorker: func(p pool.WorkerParams) {
			logger.WithField("debug_port", p.DebugPort).Infof("worker terminated")
		},
	})
	if err != nil {
		return err
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.Sample(disp)
		metricsHandler.ServeHTTP(w, r)
	})
	router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		metrics.Sample(disp)
		writeJSON(w, disp.Stats())
	})
	router.HandleFunc("/debug/crash-worker", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		// Crash-by-index is not implemented: a POST here answers 501 and
		// no worker is touched.
		w.WriteHeader(http.StatusNotImplemented)
		_, _ = w.Write([]byte("crash-by-index requires a worker registry extension; see pool.Dispatcher.Stats for current pool shape"))
	}).Methods(http.MethodPost)

	server := &http.Server{Addr: cfg.App.ListenAddr, Handler: router}

	go func() {
		logger.Infof("workerpoold listening on %s", cfg.App.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("http server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.WithField("signal", sig.String()).Infof("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	_ = server.Shutdown(ctx)

	termFuture := disp.Terminate(false, cfg.App.ShutdownTimeout)
	_, _ = termFuture.Wait(ctx)
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
