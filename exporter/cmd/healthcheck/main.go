package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aasm-exporter/aasm/exporter/internal/config"
)

const probeTimeout = 2 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the exporter config file")
	flag.Parse()

	os.Exit(run(*configPath))
}

// run resolves the exporter's address the same way the exporter does (file,
// then AASM_* environment) and probes its /status endpoint.
func run(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "healthcheck:", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	return check(ctx, &http.Client{Timeout: probeTimeout}, statusURL(cfg.Exporter))
}

// statusURL points at /status on the exporter's bind address. Wildcard binds
// are probed over loopback since the check runs in the same container.
func statusURL(e config.ExporterConfig) string {
	host := e.ListenAddress
	switch host {
	case "", "0.0.0.0":
		host = "127.0.0.1"
	case "::", "[::]":
		host = "::1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(e.Port)) + "/status"
}

// check returns 0 when url answers 200, 1 otherwise.
func check(ctx context.Context, client *http.Client, url string) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 1
	}

	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "healthcheck:", err)
		return 1
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "healthcheck: %s returned %d\n", url, resp.StatusCode)
		return 1
	}
	return 0
}
