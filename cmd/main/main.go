package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/BartekS5/flowmigrate/internal/cli"
	"github.com/BartekS5/flowmigrate/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	logLevel := logger.INFO
	if os.Getenv("LOG_LEVEL") == "DEBUG" {
		logLevel = logger.DEBUG
	}
	if err := logger.InitLogger("flowmigrate.log", logLevel); err != nil {
		log.Printf("Could not open log file, logging to console only: %v", err)
	}
	defer logger.Close()

	// Ctrl-C cancels the run; the engine finishes and journals the
	// in-flight batch before stopping.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
