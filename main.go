package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/fdwnet/coordinator/internal/config"
	"github.com/fdwnet/coordinator/internal/coordinator"
	"github.com/fdwnet/coordinator/internal/monitoring"
	"github.com/fdwnet/coordinator/internal/version"
)

var (
	host     = flag.String("host", "0.0.0.0", "bind host for the HTTP and UDP listeners")
	httpPort = flag.Int("http-port", 8080, "HTTP/WebSocket dashboard port")
	udpPort  = flag.Int("udp-port", 9999, "UDP telemetry/alert port")
	logLevel = flag.String("log-level", "info", "log verbosity: debug, info, warn, or error")
)

func main() {
	flag.Parse()

	if !validLogLevel(*logLevel) {
		log.Fatalf("invalid -log-level %q: want debug, info, warn, or error", *logLevel)
	}
	log.Printf("fdw-coordinator %s starting: host=%s http-port=%d udp-port=%d log-level=%s",
		version.String(), *host, *httpPort, *udpPort, *logLevel)

	coord, err := coordinator.New(coordinator.Options{
		Host:    *host,
		UDPPort: *udpPort,
		Config:  config.Default(),
		Seed:    uint64(time.Now().UnixNano()),
		Version: version.String(),
	})
	if err != nil {
		log.Fatalf("failed to bind UDP socket: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		coord.Run(ctx)
	}()

	server := &http.Server{
		Addr:    net.JoinHostPort(*host, strconv.Itoa(*httpPort)),
		Handler: coord.ServeMux(),
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}

	<-done
	log.Println("graceful shutdown complete")
}

func validLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

