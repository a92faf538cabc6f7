// Command geodaemon is the location daemon: it owns the shared-memory
// segment, fuses positioning samples, refreshes environmental context on
// cell transitions and publishes the result for adapter processes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bpriyal/s2sGeoAdapter/api"
	"github.com/bpriyal/s2sGeoAdapter/internal/config"
	"github.com/bpriyal/s2sGeoAdapter/internal/daemon"
	"github.com/bpriyal/s2sGeoAdapter/internal/geostore"
	"github.com/bpriyal/s2sGeoAdapter/internal/provider"
	"github.com/bpriyal/s2sGeoAdapter/internal/sensor"
	"github.com/bpriyal/s2sGeoAdapter/internal/shm"
	"github.com/bpriyal/s2sGeoAdapter/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to YAML config file")
	listen      = flag.String("listen", "", "Listen address (overrides config)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("geodaemon %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	log.Printf("geodaemon %s starting, segment %s", version.Version, cfg.SegmentPath)

	// The segment must outlive every publish; its removal is the last
	// deferred call to run.
	writer, err := shm.NewWriter(cfg.SegmentPath)
	if err != nil {
		log.Fatalf("failed to create shared memory segment: %v", err)
	}
	defer writer.Close()

	registry := provider.NewRegistry(writer)
	registry.Register(provider.CyclingName, func() provider.ContextProvider {
		return provider.NewCyclingProvider()
	})
	registry.Register(provider.DatingName, func() provider.ContextProvider {
		return provider.NewDatingProvider()
	})
	registry.Register(provider.DeliveryName, func() provider.ContextProvider {
		return provider.NewDeliveryProvider()
	})
	for _, name := range registry.Providers() {
		if blob := cfg.ProviderConfig(name); blob != nil {
			registry.SetConfig(name, blob)
		}
	}
	dispatcher := provider.NewDispatcher(registry, writer)

	if cfg.DefaultPlugin != "" {
		if !registry.Activate(cfg.DefaultPlugin) {
			log.Printf("default plugin %q unavailable, starting without context", cfg.DefaultPlugin)
		}
	}

	var source sensor.Source
	switch cfg.Sensor.Mode {
	case "nmea":
		source, err = sensor.OpenSerialSource(cfg.Sensor.Device, cfg.Sensor.Baud)
		if err != nil {
			log.Fatalf("failed to open GPS receiver: %v", err)
		}
	default:
		source = sensor.NewSimSource()
	}
	defer source.Close()

	var recorder daemon.Recorder
	var fixes api.FixLister
	if cfg.Store.Enabled {
		store, err := geostore.NewStore(cfg.Store.Path)
		if err != nil {
			log.Fatalf("failed to open ride store: %v", err)
		}
		defer store.Close()
		log.Printf("ride store enabled, ride %s", store.RideID())
		recorder = store
		fixes = store
	}

	svc := daemon.NewService(source, writer, registry, daemon.Options{
		TickInterval: cfg.GetTickInterval(),
		CellLevel:    cfg.CellLevel,
		EnablePDR:    cfg.EnablePDR,
		Recorder:     recorder,
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// service loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := svc.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("service loop: %v", err)
		}
		log.Print("service loop terminated")
	}()

	// HTTP API goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		apiMux := api.NewServer(svc, dispatcher, registry, fixes).ServeMux()
		mux.Handle("/api/", http.StripPrefix("/api", apiMux))

		server := &http.Server{
			Addr:    cfg.Listen,
			Handler: mux,
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("failed to start server: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("graceful shutdown complete")
}
