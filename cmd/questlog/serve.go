package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"questlog/internal/api"
	"questlog/internal/auth"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP/JSON API server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if err := cfg.RequireAuth(); err != nil {
		return err
	}

	env, err := openEnvironment(ctx)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	defer env.Close(ctx)

	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	srv := api.NewServer(env.campaign, auth.NewService(env.db, tokens, env.logger), env.logger, api.Limits{
		MaxBodyBytes:  cfg.HTTP.MaxBodyBytes,
		MaxImageBytes: cfg.HTTP.MaxImageBytes,
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		env.logger.Info("HTTP API server starting", "addr", cfg.HTTP.ListenAddr)
		if listenErr := httpSrv.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serve: HTTP server: %w", listenErr)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		env.logger.Info("shutting down")
	case startErr := <-errCh:
		return startErr
	}

	const shutdownTimeout = 10 * time.Second
	if err := api.Shutdown(httpSrv, shutdownTimeout); err != nil {
		return fmt.Errorf("serve: graceful shutdown: %w", err)
	}
	return <-errCh
}
