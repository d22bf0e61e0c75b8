// Package main is the production entry point for the Mantra session player.
//
// Build:
//
//	go build -o build/mantra ./cmd
//
// Run:
//
//	MANTRA_BUNDLE_DIR=./bundles ./build/mantra -session morning
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tejashwikalptaru/mantra/internal/app"
)

func main() {
	session := flag.String("session", "", "session id to load on start")
	autoplay := flag.Bool("play", false, "start playback after loading -session")
	mockAudio := flag.Bool("mock", false, "use the silent in-memory player")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println(app.GetVersionInfo().FullString())
		return
	}

	config := app.LoadFromEnv(app.DefaultConfig())
	if *mockAudio {
		config.UseMockAudio = true
	}

	application, err := app.NewApplication(config)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ensure a graceful shutdown
	defer func() {
		if err := application.Shutdown(); err != nil {
			fmt.Fprintf(os.Stderr, "Shutdown error: %v\n", err)
		}
	}()

	if *session != "" {
		if err := application.LoadSession(ctx, *session); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load session %q: %v\n", *session, err)
		} else if *autoplay {
			if err := application.Engine().Play(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to start playback: %v\n", err)
			}
		}
	}

	// Blocks until quit, end of input or a signal
	if err := application.Run(ctx, os.Stdin, os.Stdout); err != nil {
		log.Printf("Application error: %v", err)
	}
}
