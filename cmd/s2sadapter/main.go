// Command s2sadapter is the consumer process: it snapshots the latest world
// state from the daemon's shared-memory segment and forwards context deltas
// into an external speech/AI session.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/bpriyal/s2sGeoAdapter/internal/adapter"
	"github.com/bpriyal/s2sGeoAdapter/internal/config"
	"github.com/bpriyal/s2sGeoAdapter/internal/shm"
	"github.com/bpriyal/s2sGeoAdapter/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to YAML config file")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// openReader retries opening the segment until the grace window expires; the
// daemon may still be starting up.
func openReader(ctx context.Context, path string, grace time.Duration) (*shm.Reader, error) {
	deadline := time.Now().Add(grace)
	for {
		r, err := shm.NewReader(path)
		if err == nil {
			return r, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("location service not running: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("s2sadapter %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	log.Printf("s2sadapter %s starting, segment %s", version.Version, cfg.SegmentPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader, err := openReader(ctx, cfg.SegmentPath, adapter.DefaultGraceWindow)
	if err != nil {
		log.Fatalf("failed to open shared memory segment: %v", err)
	}
	defer reader.Close()

	session := adapter.NewLogSession()
	defer session.Close()
	log.Printf("session %s opened", session.ID())

	loop := adapter.NewLoop(reader, session, adapter.LoopOptions{
		PollInterval: cfg.GetPollInterval(),
	})
	if err := loop.WaitForProducer(ctx); err != nil {
		log.Fatalf("%v", err)
	}
	log.Printf("location service is alive, active plugin %q", reader.ActivePlugin())

	if err := loop.Run(ctx); err != nil && err != context.Canceled {
		log.Printf("context loop: %v", err)
	}
	log.Printf("forwarded %d context updates, shutting down", loop.Forwarded())
}
