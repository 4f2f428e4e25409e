package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/modernity/internal/mcpserver"
)

var serveHTTP string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the flow as an MCP tool",
	Long: `Expose the flow to MCP clients as the analyze_request tool.

By default the server speaks MCP over stdin/stdout, so it can be registered
as a local server in any MCP client. With --http it serves the streamable
HTTP transport instead:

  modernity serve --http :8080

Logs always go to stderr (and --log-file).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := buildServices(ctx, serviceOptions{})
		if err != nil {
			return err
		}
		defer svc.Close()

		srv, err := mcpserver.New(mcpserver.Config{
			Runner:  svc.engine,
			Rubrics: svc.rubrics,
			Logger:  svc.logger.Named("mcpserver"),
		})
		if err != nil {
			return err
		}

		if serveHTTP != "" {
			return srv.RunHTTP(ctx, serveHTTP)
		}
		svc.logger.Info("serving MCP over stdio")
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHTTP, "http", "", "Serve streamable HTTP on this address instead of stdio")
}
