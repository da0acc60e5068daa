package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/linkaudit/clickaudit"
)

const (
	mcpOff   = "off"
	mcpHTTP  = "http"
	mcpStdio = "stdio"
)

func newServeCmd() *cobra.Command {
	var (
		addr    string
		mcpMode string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, optionally with MCP tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch mcpMode {
			case mcpOff, mcpHTTP, mcpStdio:
			default:
				return fmt.Errorf("--mcp: unknown mode %q (off, http, stdio)", mcpMode)
			}
			svc, cfg, logger, err := openService()
			if err != nil {
				return err
			}
			defer svc.Close()
			if addr != "" {
				cfg.ListenAddr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if mcpMode == mcpStdio {
				logger.Info("linkaudit: mcp stdio")
				return newMCPServer(svc).Run(ctx, &mcp.StdioTransport{})
			}
			return serveHTTP(ctx, svc, cfg.ListenAddr, mcpMode == mcpHTTP, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8000)")
	cmd.Flags().StringVar(&mcpMode, "mcp", mcpOff, "MCP transport: off, http (mounted at /mcp) or stdio")
	return cmd
}

func newMCPServer(svc *clickaudit.Service) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "linkaudit", Version: clickaudit.Version}, nil)
	svc.RegisterMCP(srv)
	return srv
}

func serveHTTP(ctx context.Context, svc *clickaudit.Service, addr string, withMCP bool, logger *slog.Logger) error {
	mux := http.NewServeMux()
	if withMCP {
		srv := newMCPServer(svc)
		mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))
	}
	mux.Handle("/", svc.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("linkaudit: listening", "addr", addr, "mcp", withMCP)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("linkaudit: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
