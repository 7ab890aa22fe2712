// Command ignis-bench is a minimal load-generation harness for
// exercising a running ignis-server instance. Benchmarking the engine
// itself is out of scope (see SPEC_FULL.md §1); this is ambient
// CLI tooling only, in the spirit of the teacher's cmd/healthcheck and
// cmd/audit utilities.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

func main() {
	target := flag.String("url", "http://localhost:6000/healthz", "URL to hammer")
	concurrency := flag.Int("c", 10, "concurrent workers")
	duration := flag.Duration("d", 5*time.Second, "how long to run")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	var total, failed int64
	deadline := time.Now().Add(*duration)

	var wg sync.WaitGroup
	client := &http.Client{Timeout: 5 * time.Second}

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(deadline) {
				resp, err := client.Get(*target)
				atomic.AddInt64(&total, 1)
				if err != nil {
					atomic.AddInt64(&failed, 1)
					continue
				}
				resp.Body.Close()
				if resp.StatusCode >= 500 {
					atomic.AddInt64(&failed, 1)
				}
			}
		}()
	}
	wg.Wait()

	logger.Info("bench complete",
		slog.Int64("requests", atomic.LoadInt64(&total)),
		slog.Int64("failed", atomic.LoadInt64(&failed)),
	)
	fmt.Printf("%d requests, %d failed, %.0f req/sec\n", total, failed, float64(total)/duration.Seconds())
}
