package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/papershelf/internal/handlers"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start web server for the literature library",
		Long: `Starts the Papershelf web interface and JSON API.

Upload a PDF with your LLM API key as a Bearer token and the paper is analyzed,
its figures are extracted, and the result is stored in the library directory.`,
		Example: `  # Start server on the configured port (default 5000)
  papershelf serve

  # Start server on custom port with another library
  papershelf serve --port 3000 --library ./papers`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}

			service, err := newService(cfg)
			if err != nil {
				return err
			}
			handler := handlers.New(service,
				handlers.WithStaticDir(cfg.StaticDir),
				handlers.WithMaxUpload(cfg.MaxUploadBytes()),
			)

			addr := ":" + strconv.Itoa(cfg.Port)
			server := &http.Server{
				Addr:              addr,
				Handler:           handler.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Papershelf available", "addr", addr, "url", "http://localhost"+addr, "library", cfg.LibraryDir, "provider", cfg.Analysis.Provider, "model", cfg.Analysis.Model)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				// Give in-flight requests 5 seconds to finish
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 5000, "Port to listen on (overrides config)")

	return cmd
}
