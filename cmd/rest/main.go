package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/maisumh/aisearch-openai-rag-audio/internal/bootstrap"
	"github.com/maisumh/aisearch-openai-rag-audio/internal/config"
	"github.com/maisumh/aisearch-openai-rag-audio/internal/server"
	"github.com/maisumh/aisearch-openai-rag-audio/internal/tracer"
)

const shutdownGracePeriod = 15 * time.Second

func main() {
	// 0. Initialize Tracer
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] Invalid configuration: %v", err)
	}

	// 2. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(cfg)

	// 3. Initialize Server
	srv := server.New(cfg, container)

	color.Green("VoiceRAG gateway starting on port %s (deployment: %s)", cfg.App.Port, cfg.Realtime.Deployment)

	// 4. Run Server
	go func() {
		if err := srv.Run(); err != nil {
			log.Printf("Server stopped: %v", err)
		}
	}()

	// 5. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	color.Yellow("Shutdown signal received, draining sessions...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()

	if err := container.Manager.Shutdown(ctx); err != nil {
		log.Printf("[WARN] Session drain incomplete: %v", err)
	}
	if err := srv.Shutdown(); err != nil {
		log.Printf("[WARN] Server shutdown: %v", err)
	}
	container.Close()

	color.Green("Gateway stopped")
}
