// Command ignis-healthcheck probes a running server's /healthz endpoint
// and exits non-zero on failure, adapted from kari/api/cmd/healthcheck's
// tight-timeout liveness-probe shape (suited to a container HEALTHCHECK
// directive) minus its gRPC-agent-specific status check.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"
)

func main() {
	url := flag.String("url", "http://localhost:6000/healthz", "health endpoint to probe")
	timeout := flag.Duration("timeout", 2*time.Second, "request timeout")
	flag.Parse()

	client := http.Client{Timeout: *timeout}

	resp, err := client.Get(*url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "healthcheck failed: received status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	os.Exit(0)
}
