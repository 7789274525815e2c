// Command bench runs a synthetic Zipf workload against memorycache, ristretto
// or golang-lru and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/IvanBrykalov/memorycache/cache"
	"github.com/IvanBrykalov/memorycache/config"
	"github.com/IvanBrykalov/memorycache/log/zaplog"
	pmet "github.com/IvanBrykalov/memorycache/metrics/prom"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "bench:", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "synthetic read/write workload for in-memory caches",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "impl", Value: "memorycache", Usage: "cache under test: memorycache | ristretto | lru"},
			&cli.StringFlag{Name: "config", Usage: "memorycache YAML/JSON config file"},
			&cli.IntFlag{Name: "size-limit", Value: 100_000, Usage: "capacity in entries (0 = unbounded, memorycache only)"},
			&cli.IntFlag{Name: "shards", Usage: "memorycache shards (0 = auto)"},
			&cli.DurationFlag{Name: "ttl", Usage: "per-entry TTL (0 = none)"},

			&cli.IntFlag{Name: "workers", Value: 2 * runtime.GOMAXPROCS(0), Usage: "number of worker goroutines"},
			&cli.DurationFlag{Name: "duration", Value: 10 * time.Second, Usage: "benchmark duration"},
			&cli.IntFlag{Name: "reads", Value: 80, Usage: "read percentage [0..100]"},

			&cli.IntFlag{Name: "keys", Value: 1_000_000, Usage: "keyspace size"},
			&cli.FloatFlag{Name: "zipf-s", Value: 1.1, Usage: "Zipf s > 1 (skew)"},
			&cli.FloatFlag{Name: "zipf-v", Value: 1.0, Usage: "Zipf v >= 1"},
			&cli.IntFlag{Name: "seed", Usage: "random seed (0 = time based)"},
			&cli.IntFlag{Name: "preload", Usage: "preload entries (0 = size-limit/2)"},

			&cli.StringFlag{Name: "pprof", Usage: "serve pprof at addr (e.g. :6060)"},
			&cli.StringFlag{Name: "http", Usage: "serve Prometheus metrics at addr (e.g. :8080)"},
			&cli.StringFlag{Name: "log-file", Usage: "write logs to a rotated file instead of stderr"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug | info | warn | error"},
		},
		Action: run,
	}
}

func newLogger(file, level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	ws := zapcore.Lock(os.Stderr)
	if file != "" {
		ws = zapcore.AddSync(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
			Compress:   true,
		})
	}
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return zap.New(zapcore.NewCore(enc, ws, lvl)), nil
}

// serve runs srv until ctx is done.
func serve(ctx context.Context, log *zap.Logger, name string, srv *http.Server) {
	go func() {
		log.Info("serving", zap.String("endpoint", name), zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", zap.String("endpoint", name), zap.Error(err))
		}
	}()
	context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	})
}

func buildDriver(cmd *cli.Command, log *zap.Logger, reg prometheus.Registerer) (driver, error) {
	limit := int64(cmd.Int("size-limit"))
	ttl := cmd.Duration("ttl")

	switch impl := cmd.String("impl"); impl {
	case "memorycache":
		opt := cache.Options[string, string]{
			Metrics: pmet.New(reg, "memorycache", "bench", nil),
			Logger:  zaplog.New(log.Named("cache")),
		}
		if path := cmd.String("config"); path != "" {
			cfg, err := config.Load(path)
			if err != nil {
				return nil, err
			}
			if opt, err = config.Apply(cfg, opt); err != nil {
				return nil, err
			}
		}
		// Explicit flags win over the config file.
		if cmd.IsSet("size-limit") || cmd.String("config") == "" {
			opt.SizeLimit = limit
		}
		if cmd.IsSet("shards") || cmd.String("config") == "" {
			opt.Shards = cmd.Int("shards")
		}
		return newMemDriver(opt, ttl)
	case "ristretto":
		return newRistrettoDriver(limit, ttl)
	case "lru":
		return newLRUDriver(limit, ttl)
	default:
		return nil, fmt.Errorf("unknown impl %q (use memorycache, ristretto or lru)", impl)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	log, err := newLogger(cmd.String("log-file"), cmd.String("log-level"))
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	srvCtx, stopServers := context.WithCancel(ctx)
	defer stopServers()

	if addr := cmd.String("pprof"); addr != "" {
		serve(srvCtx, log, "pprof", &http.Server{Addr: addr, Handler: http.DefaultServeMux, ReadHeaderTimeout: 5 * time.Second})
	}

	reg := prometheus.NewRegistry()
	if addr := cmd.String("http"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		serve(srvCtx, log, "metrics", &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second})
	}

	d, err := buildDriver(cmd, log, reg)
	if err != nil {
		return err
	}
	defer d.Close()

	keys := cmd.Int("keys")
	if keys < 2 {
		return fmt.Errorf("--keys must be at least 2")
	}
	zipfS, zipfV := cmd.Float("zipf-s"), cmd.Float("zipf-v")
	if zipfS <= 1 || zipfV < 1 {
		return fmt.Errorf("zipf parameters need s > 1 and v >= 1")
	}
	seed := int64(cmd.Int("seed"))
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	workers := max(cmd.Int("workers"), 1)
	readPct := cmd.Int("reads")

	// ---- Preload half capacity to get a realistic hit-rate ----
	preload := cmd.Int("preload")
	if preload == 0 {
		preload = cmd.Int("size-limit") / 2
	}
	for i := 0; i < preload; i++ {
		d.Set(ctx, "k:"+strconv.Itoa(i), "v"+strconv.Itoa(i))
	}
	log.Debug("preloaded", zap.Int("entries", preload))

	// ---- Load generation ----
	var reads, writes, hits, total atomic.Uint64
	runCtx, cancel := context.WithTimeout(ctx, cmd.Duration("duration"))
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			// rand.Rand is not goroutine-safe: one per worker.
			r := rand.New(rand.NewSource(seed + int64(id)*9973))
			zipf := rand.NewZipf(r, zipfS, zipfV, uint64(keys-1))
			key := func() string { return "k:" + strconv.FormatUint(zipf.Uint64(), 10) }

			for runCtx.Err() == nil {
				total.Add(1)
				if int(r.Int31n(100)) < readPct {
					reads.Add(1)
					if d.Get(ctx, key()) {
						hits.Add(1)
					}
					continue
				}
				writes.Add(1)
				d.Set(ctx, key(), "v"+strconv.Itoa(r.Int()))
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	ops, readsN, hitsN := total.Load(), reads.Load(), hits.Load()
	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}
	log.Info("done",
		zap.String("impl", cmd.String("impl")),
		zap.Duration("elapsed", elapsed),
		zap.Uint64("ops", ops),
		zap.Float64("ops_per_sec", float64(ops)/elapsed.Seconds()),
		zap.Float64("hit_rate_pct", hitRate),
	)

	fmt.Printf("impl=%s size-limit=%d workers=%d keys=%d dur=%v seed=%d\n",
		cmd.String("impl"), cmd.Int("size-limit"), workers, keys, elapsed, seed)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writes.Load())
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", hitsN, readsN-hitsN, hitRate)
	fmt.Printf("len=%d\n", d.Len())
	return nil
}
