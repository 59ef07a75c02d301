// mcp-devops is the chat backend for the devops assistant: it fronts the
// model providers and the Prometheus MCP tool registry behind a streaming
// chat API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sdace9719/mcp-devops/config"
	"github.com/sdace9719/mcp-devops/server"
	"github.com/sdace9719/mcp-devops/tools/registry"
)

func main() {
	configFlag := flag.String("config", "", "Path to an optional YAML config file")
	addrFlag := flag.String("addr", "", "Listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}
	if *addrFlag != "" {
		cfg.ListenAddr = *addrFlag
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %+v\n", err)
		os.Exit(1)
	}

	client := registry.NewMCPClient(cfg.MCPURL, cfg.ListToolsTimeout(), cfg.CallToolTimeout())
	cache := registry.NewCache(client, cfg.AllowedTools)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(cfg, cache, client).Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("listening on %s (registry: %s)", cfg.ListenAddr, cfg.MCPURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
