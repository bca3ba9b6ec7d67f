package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/helion-os/helion/internal/infrastructure/config"
	"github.com/helion-os/helion/internal/server"
)

func main() {
	port := flag.String("port", "", "HTTP port (overrides PORT)")
	manifest := flag.String("manifest", "", "boot manifest path (overrides MANIFEST_PATH)")
	dev := flag.Bool("dev", false, "development mode: colored logs, debug level")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *manifest != "" {
		cfg.Manifest.Path = *manifest
	}
	if *dev {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		if err := srv.Close(); err != nil {
			log.Printf("error during shutdown: %v", err)
		}
	case err := <-errChan:
		log.Fatalf("server error: %v", err)
	}
}
