// Command roundpool-demo runs a few rounds on a RoundPool and optionally serves
// the pool's metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fluxorio/roundpool/pkg/config"
	"github.com/fluxorio/roundpool/pkg/core/concurrency"
	"github.com/fluxorio/roundpool/pkg/core/failfast"
	metrics "github.com/fluxorio/roundpool/pkg/observability/prometheus"
	"github.com/fluxorio/roundpool/pkg/observability/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// sample is the payload shared by every worker of the typed round
type sample struct {
	X int
	B float32
	F float64
}

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON config file")
	writeConfig := flag.String("write-config", "", "write the effective config as YAML to this path and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *writeConfig != "" {
		if err := config.SaveYAML(*writeConfig, cfg); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdout, os.Stderr); err != nil {
		log.Fatalf("roundpool-demo: %v", err)
	}
}

// run builds the pool and its observers from cfg, runs the demo rounds, and
// tears everything down. Round output goes to out, logs and stdout spans to logOut.
func run(ctx context.Context, cfg *AppConfig, out, logOut io.Writer) error {
	failfast.NotNil(cfg, "cfg")
	logger := newLogger(cfg.Log, logOut)

	traceCfg := cfg.Tracing
	if !traceCfg.Enabled {
		traceCfg.Exporter = "none"
	}
	tp, err := tracing.NewProvider(traceCfg, logOut)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	roundMetrics := metrics.NewRoundMetrics(registry)

	poolCfg := concurrency.DefaultRoundPoolConfig()
	poolCfg.Name = cfg.Pool.Name
	poolCfg.Workers = cfg.Pool.Workers
	poolCfg.StallThreshold = cfg.Pool.StallThreshold
	poolCfg.Logger = concurrency.NewSlogLogger(logger.With("pool", cfg.Pool.Name))
	poolCfg.Observer = concurrency.Observers(roundMetrics, tracing.NewObserver(tp))

	pool, err := concurrency.NewRoundPool(poolCfg)
	if err != nil {
		return err
	}
	if err := roundMetrics.TrackPool(cfg.Pool.Name, pool); err != nil {
		pool.Shutdown()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	var srv *metrics.Server
	var ln net.Listener
	if cfg.Metrics.Enabled {
		ln, err = net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			pool.Shutdown()
			return fmt.Errorf("failed to listen on %s: %w", cfg.Metrics.Addr, err)
		}
		srv = metrics.NewServer(registry, map[string]concurrency.RoundPool{cfg.Pool.Name: pool})
		logger.Info("serving metrics", "addr", ln.Addr().String())
		g.Go(func() error {
			return srv.Serve(ln)
		})
	}

	g.Go(func() error {
		defer func() {
			if err := pool.Shutdown(); err != nil && !errors.Is(err, concurrency.ErrPoolShutdown) {
				logger.Error("pool shutdown failed", "error", err)
			}
			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Warn("metrics server shutdown failed", "error", err)
				}
				// Serve may not have registered the listener yet
				ln.Close()
			}
		}()

		if err := runRounds(gctx, pool, out); err != nil {
			return err
		}
		stats := pool.Stats()
		logger.Info("rounds finished",
			"completed", stats.RoundsCompleted,
			"failed", stats.RoundsFailed,
			"stalls", stats.Stalls)

		if srv != nil && cfg.Metrics.Hold {
			logger.Info("holding until interrupted")
			<-gctx.Done()
		}
		return nil
	})

	return g.Wait()
}

// runRounds drives the three demo rounds: a typed payload, a bare closure,
// and a two-phase round synchronised by a Barrier.
func runRounds(ctx context.Context, pool concurrency.RoundPool, out io.Writer) error {
	w := &syncWriter{w: out}

	param := sample{X: 3, B: 1.5, F: 2.25}
	err := concurrency.Dispatch(pool, func(id concurrency.WorkerID, p sample) {
		for i := 0; i < 2; i++ {
			w.printf("worker %d: x=%d b=%g f=%g (%d)\n", id, p.X, p.B, p.F, i)
			time.Sleep(10 * time.Millisecond)
		}
	}, param)
	if err != nil {
		return fmt.Errorf("typed round: %w", err)
	}

	err = pool.RunContext(ctx, concurrency.NewNamedRound("greet", func(_ context.Context, id concurrency.WorkerID) error {
		w.printf("worker %d: hello\n", id)
		return nil
	}))
	if err != nil {
		return fmt.Errorf("closure round: %w", err)
	}

	partial := make([]int, pool.Workers())
	barrier := concurrency.NewBarrier(pool.Workers())
	err = pool.RunContext(ctx, concurrency.NewNamedRound("phased", func(_ context.Context, id concurrency.WorkerID) error {
		partial[id] = (int(id) + 1) * param.X
		barrier.Await()

		if id == 0 {
			total := 0
			for _, v := range partial {
				total += v
			}
			w.printf("phased total: %d\n", total)
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("phased round: %w", err)
	}
	return nil
}

// syncWriter serialises writes from concurrent workers so lines do not interleave
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}
