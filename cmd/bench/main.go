// Command bench runs a synthetic workload against the cache and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/lrucache/cache"
	pmet "github.com/IvanBrykalov/lrucache/metrics/prom"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	// ---- Flags ----
	var (
		maxWeight = flag.Int64("max", 100_000, "max total weight")
		weigher   = flag.String("weigher", "unit", "weight function: unit | bytes")
		shards    = flag.Int("shards", 0, "number of shards (0=auto)")
		maxAge    = flag.Duration("ttl", 0, "entry max age (0 = no TTL)")
		stale     = flag.Bool("stale", false, "return expired values once")
		verbose   = flag.Bool("v", false, "debug logging from the cache")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")
		valSize  = flag.Int("valsize", 64, "max value size in bytes")

		keys    = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		preload = flag.Int("preload", 0, "preload entries (0 = max/2)")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "lru", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Build cache ----
	opt := cache.Options[string, string]{
		MaxWeight: *maxWeight,
		MaxAge:    *maxAge,
		Stale:     *stale,
		Metrics:   metrics,
	}
	switch *weigher {
	case "unit":
		// nil => every entry weighs 1
	case "bytes":
		opt.Weigher = func(v string) int64 { return int64(len(v)) }
	default:
		log.Fatalf("unknown weigher: %q (use unit or bytes)", *weigher)
	}
	if *verbose {
		opt.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	c := cache.NewSharded[string, string](opt, *shards)

	valueSize := max(*valSize, 1)
	value := func(r *rand.Rand) string {
		b := make([]byte, 1+r.Intn(valueSize))
		for i := range b {
			b[i] = 'a' + byte(r.Intn(26))
		}
		return string(b)
	}

	// ---- Preload half capacity to get a realistic hit-rate ----
	pl := *preload
	if pl == 0 {
		pl = int(min(*maxWeight/2, int64(*keys)))
	}
	pr := rand.New(rand.NewSource(*seed))
	for i := 0; i < pl; i++ {
		c.Set("k:"+strconv.Itoa(i), value(pr))
	}

	// ---- Snapshot flags for goroutines ----
	readPctVal := *readPct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	workersN := max(*workers, 1)

	// ---- Load generation ----
	var reads, writes, rejected, total uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workersN; w++ {
		id := w
		g.Go(func() error {
			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, *zipfS, *zipfV, keysMax)

			keyByZipf := func() string {
				return "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
			}

			for {
				select {
				case <-gctx.Done():
					return nil
				default:
				}

				atomic.AddUint64(&total, 1)
				if int(localR.Int31n(100)) < readPctVal {
					atomic.AddUint64(&reads, 1)
					c.Get(keyByZipf())
				} else {
					atomic.AddUint64(&writes, 1)
					if !c.Set(keyByZipf(), value(localR)) {
						atomic.AddUint64(&rejected, 1)
					}
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("workers: %v", err)
	}
	elapsed := time.Since(start)

	// ---- Report ----
	ops := atomic.LoadUint64(&total)
	readsN := atomic.LoadUint64(&reads)
	writesN := atomic.LoadUint64(&writes)
	st := c.Stats()

	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(st.Hits) / float64(readsN) * 100
	}

	fmt.Printf("weigher=%s max=%d shards=%d workers=%d keys=%d ttl=%v dur=%v seed=%d\n",
		*weigher, *maxWeight, c.Shards(), workersN, *keys, *maxAge, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d  rejected=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writesN, atomic.LoadUint64(&rejected))
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", st.Hits, st.Misses, hitRate)
	fmt.Printf("Len()=%d  Weight()=%d\n", c.Len(), c.Weight())
}
