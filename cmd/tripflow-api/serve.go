// README: serve command; runs the HTTP API and the MCP tool surface until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	httptransport "tripflow/internal/http"
	"tripflow/internal/mcp"
)

const mcpBasePath = "/mcp"

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and MCP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides http.addr)")
}

func serve(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}()

	addr := a.cfg.HTTP.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	gin.SetMode(gin.ReleaseMode)
	mcpServer := mcp.NewServer(a.planner, a.registry)
	deps := httptransport.RouterDeps{
		Planner:  a.planner,
		Registry: a.registry,
		Timeout:  a.cfg.Flow.Timeout,
		Logger:   a.logger,
		MCP:      mcpServer.Handler(mcpBasePath),
	}
	if a.usage != nil {
		deps.Usage = a.usage
	}
	router := httptransport.NewRouter(deps)
	a.logger.Info("flows registered", "flows", a.registry.List())

	return httptransport.NewServer(addr, router, a.logger).Run(ctx)
}

