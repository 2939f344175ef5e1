// Loopback Server
//
// This server serves the harness page and loops every call back to the
// caller through a media pipeline. Open the page in a browser and click
// "Start Call" to see and hear yourself through the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/thesyncim/loopback/cmd/loopback-server/server"
	"github.com/thesyncim/loopback/pkg/loopback/media"
)

func main() {
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	backend, err := media.NewFactory(media.DefaultConfig())
	if err != nil {
		log.Fatalf("Failed to create media backend: %v", err)
	}

	cfg := server.DefaultConfig()
	cfg.Addr = *addr
	srv, err := server.NewServer(cfg, backend)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	listenAddr, err := srv.Start()
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	fmt.Printf(`
Loopback Server
===============
1. Open %s in Chrome
2. Click "Start Call"
3. Your camera and microphone play back in the page

`, srv.LocalURL())
	log.Printf("Listening on %s", listenAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received %v, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Shutdown: %v", err)
	}
}
