// supportwidget - client-side session core for an embeddable support chat.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/jeranaias/supportwidget/internal/api"
	"github.com/jeranaias/supportwidget/internal/config"
	"github.com/jeranaias/supportwidget/internal/storage"
	"github.com/jeranaias/supportwidget/internal/widget"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		cfg = config.Default()
	}
	config.SetGlobal(cfg)

	log := newLogger(cfg)

	if len(os.Args) > 1 && (os.Args[1] == "version" || os.Args[1] == "--version") {
		fmt.Printf("supportwidget %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	kv, err := openStore(cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to open session storage")
		os.Exit(1)
	}
	defer kv.Close()

	client := api.NewClient(cfg.Service.BaseURL).
		WithTimeout(cfg.ServiceTimeout()).
		WithMaxRetries(cfg.Service.MaxRetries).
		WithLogger(log)
	if !client.IsConfigured() {
		fmt.Fprintln(os.Stderr, "No chat service configured. Set service.base_url in ~/.supportwidget/config.toml")
		fmt.Fprintln(os.Stderr, "or export SUPPORTWIDGET_BASE_URL.")
		os.Exit(1)
	}

	store := storage.NewSessionStore(kv, cfg.Session.WelcomeMessage, log).
		WithTTL(cfg.SessionTTL())

	w := widget.New(client, store, widget.Options{
		PollInterval:    cfg.PollInterval(),
		FallbackMessage: cfg.Session.FallbackMessage,
		Logger:          log,
	})
	defer w.Close()

	// Apply the safe settings to the running widget when the config file
	// changes on disk. Service endpoint and storage backend changes still
	// require a restart.
	watcher, err := config.NewWatcher(log, func(c *config.Config) {
		w.SetPollInterval(c.PollInterval())
		w.SetFallbackMessage(c.Session.FallbackMessage)
	})
	if err == nil {
		if err := watcher.Watch(); err != nil {
			log.Debug().Err(err).Msg("config watch unavailable")
		}
		defer watcher.Close()
	}

	runLoop(w, log)
}

// newLogger builds the zerolog root logger from configuration.
func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Logging.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.Logging.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	} else {
		log = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return log.Level(level)
}

// openStore selects the configured persistence backend.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch strings.ToLower(cfg.Storage.Backend) {
	case "sqlite":
		return storage.NewSQLiteStore(cfg.Storage.Path)
	default:
		if cfg.Storage.Path != "" {
			return storage.NewFileStoreWithDir(cfg.Storage.Path)
		}
		return storage.NewFileStore()
	}
}

// runLoop is a minimal interactive front end for exercising the widget from
// a terminal. The widget core itself is presentation-agnostic.
func runLoop(w *widget.Widget, log zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		w.Close()
		os.Exit(0)
	}()

	fmt.Println("supportwidget - type a message, or /open /close /reset /quit")
	w.SetOpen(true)

	shown := printNewMessages(w, 0)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "/quit", "/exit":
			return
		case "/open":
			w.SetOpen(true)
			shown = printNewMessages(w, shown)
			continue
		case "/close":
			w.SetOpen(false)
			continue
		case "/reset":
			err := w.Reset(func() bool {
				fmt.Print("Start a new conversation? This clears the history. [y/N] ")
				if !scanner.Scan() {
					return false
				}
				answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
				return answer == "y" || answer == "yes"
			})
			if err != nil {
				fmt.Println("Reset cancelled.")
				continue
			}
			shown = printNewMessages(w, 0)
			continue
		case "":
			continue
		}

		w.Send(context.Background(), line)
		if msg := w.LastError(); msg != "" {
			fmt.Fprintf(os.Stderr, "! %s\n", msg)
			w.DismissError()
		}
		shown = printNewMessages(w, shown)

		if w.Completed() {
			fmt.Println("Conversation completed. Use /reset to start a new one.")
		}
	}
}

// printNewMessages prints messages appended since the last call and returns
// the new high-water mark.
func printNewMessages(w *widget.Widget, shown int) int {
	msgs := w.Messages()
	for _, m := range msgs[shown:] {
		fmt.Printf("[%s] %s\n", m.Sender.DisplayName(), m.Text)
	}
	return len(msgs)
}
