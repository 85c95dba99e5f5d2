package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"shelf/internal/core"
	"shelf/internal/notify"
	"shelf/internal/server"
	"shelf/internal/storage"
)

func Run(ctx context.Context) error {
	cfg, err := core.Load(os.Args[1:], os.LookupEnv)
	if err != nil {
		return err
	}

	handler, err := core.NewLogHandler(os.Stdout, cfg.Log)
	if err != nil {
		return err
	}

	slog.SetDefault(slog.New(handler))

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, closeStore, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Backend, err)
	}

	defer func() {
		if err := closeStore(); err != nil {
			slog.Error("Failed to close storage", "err", err)
		}
	}()

	notifier := notify.NewNotifier(cfg.Notify.QueueSize, cfg.Notify.Timeout, sinks(cfg)...)

	srv, err := server.NewServer(cfg, server.WithStore(store), server.WithPublisher(notifier))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 20 * time.Second,
		// Uploads and downloads may be large; only the headers are bounded.
		IdleTimeout: 120 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
	}

	slog.Info("Starting Shelf HTTP server", "listen", ln.Addr().String(), "storage", cfg.Storage.Backend)
	return serve(ctx, httpServer, ln, notifier, cfg.ShutdownTimeout)
}

// serve runs the HTTP server and the notifier until ctx is cancelled. The
// notifier outlives the server so events published by in-flight requests
// are still delivered during shutdown.
func serve(ctx context.Context, httpServer *http.Server, ln net.Listener, notifier *notify.Notifier, shutdownTimeout time.Duration) error {
	notifyCtx, stopNotifier := context.WithCancel(context.Background())
	defer stopNotifier()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		defer stopNotifier()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		return notifier.Run(notifyCtx)
	})

	eg.Go(func() error {
		err := httpServer.Serve(ln)
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	slog.Info("Shelf Started")
	return eg.Wait()
}

func sinks(cfg core.Config) []notify.Sink {
	var out []notify.Sink
	if cfg.Notify.TelegramToken != "" {
		out = append(out, &notify.TelegramSink{
			Token:  cfg.Notify.TelegramToken,
			ChatID: cfg.Notify.TelegramChatID,
			Prefix: cfg.Title,
		})
	}
	if cfg.Notify.WebhookURL != "" {
		out = append(out, &notify.WebhookSink{URL: cfg.Notify.WebhookURL})
	}
	return out
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx); err != nil {
		slog.Error("Shelf exited with error", "error", err)
		os.Exit(1)
	}
}
