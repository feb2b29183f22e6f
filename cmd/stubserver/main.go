// Command stubserver is a local stand-in for auscoutd. It keeps submitted
// fingerprints in memory and answers queries by frame voting, which is
// enough to exercise the client end to end.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/himanishpuri/AudioScout/internal/stubserver"
	"github.com/himanishpuri/AudioScout/pkg/logger"
)

var (
	endpoint string
	verbose  bool
)

func init() {
	flag.StringVar(&endpoint, "listen", getEnvOrDefault("AUSCOUT_STUB_ENDPOINT", "tcp://127.0.0.1:4005"), "ZeroMQ endpoint to bind")
	flag.BoolVar(&verbose, "v", false, "Debug logging")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()

	log := logger.GetLogger().With("stub")
	if verbose {
		log.SetLevel(logger.DEBUG)
	}

	srv, err := stubserver.Listen(endpoint, stubserver.NewIndex(), log)
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("Listening on %s", srv.Endpoint())
	if err := srv.Serve(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	log.Infof("Shutting down with %d tracks indexed", srv.Index().Len())
}
