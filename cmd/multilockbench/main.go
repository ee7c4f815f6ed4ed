// Command multilockbench reproduces the steady-state throughput
// measurement of original_source/main.cpp: N worker goroutines repeatedly
// run one MultiLock(reads, writes)/Unlock cycle followed by two
// GlobalReadLock/Unlock cycles, using per-worker random resource IDs. It
// is a diagnostic reproduction of the original benchmark, not part of the
// MultiLock core (spec.md §6).
package main

import (
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/Kubiyak/bloomfilter-lock/metrics"
	"github.com/Kubiyak/bloomfilter-lock/multilock"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	workers := pflag.IntP("workers", "w", defaultWorkers(), "number of worker goroutines")
	iterations := pflag.IntP("iterations", "n", 500000, "lock cycles per worker")
	hashCount := pflag.Int("hash-count", 4, "fingerprint hash positions per key")
	metricsAddr := pflag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
	pflag.Parse()

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if *metricsAddr != "" {
		recorder = metrics.NewPrometheusRecorder()
		go serveMetrics(*metricsAddr)
	}

	lock := multilock.New(
		multilock.WithHashCount(*hashCount),
		multilock.WithRecorder(recorder),
	)
	defer lock.Close()

	start := make(chan struct{})
	var g errgroup.Group
	for i := 0; i < *workers; i++ {
		seed := time.Now().UnixNano() + int64(i)
		g.Go(func() error {
			return runWorker(lock, seed, *iterations, start)
		})
	}

	fmt.Fprintf(os.Stderr, "starting %d workers, %d cycles each\n", *workers, *iterations)
	timeStart := time.Now()
	close(start)

	if err := g.Wait(); err != nil {
		fmt.Fprintln(os.Stderr, "worker error:", err)
		os.Exit(1)
	}

	elapsed := time.Since(timeStart)
	totalCycles := int64(*workers) * int64(*iterations) * 3
	fmt.Fprintf(os.Stderr, "time for %d lock cycles: %s (%.0f cycles/sec)\n",
		totalCycles, elapsed, float64(totalCycles)/elapsed.Seconds())
}

// runWorker repeats the same loop as original_source/main.cpp's
// task::operator(): one combined read+write MultiLock/Unlock cycle, then
// two GlobalReadLock/Unlock cycles, using resource IDs OR-ed with 0x01 to
// keep them non-zero per spec.md §3's reserved-key-zero precondition.
func runWorker(lock *multilock.MultiLock, seed int64, iterations int, start <-chan struct{}) error {
	r := rand.New(rand.NewSource(seed))
	readKey := multilock.Key(uint32(r.Int31()) | 0x01)
	writeKey := multilock.Key(uint32(r.Int31()) | 0x01)

	<-start

	for i := 0; i < iterations; i++ {
		if err := lock.Multilock([]multilock.Key{readKey}, []multilock.Key{writeKey}); err != nil {
			return err
		}
		if err := lock.Unlock(); err != nil {
			return err
		}

		if err := lock.GlobalReadLock(); err != nil {
			return err
		}
		if err := lock.Unlock(); err != nil {
			return err
		}

		if err := lock.GlobalReadLock(); err != nil {
			return err
		}
		if err := lock.Unlock(); err != nil {
			return err
		}
	}
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	_ = srv.ListenAndServe()
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n > 2 {
		return n - 1
	}
	return n
}
