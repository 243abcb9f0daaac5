package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/valentinpelus/posturewatch/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize application
	application, err := app.New(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	application.LogStartupInfo()

	if err := application.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Printf("Stopped")
}
