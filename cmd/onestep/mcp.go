package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/aretw0/onestep/internal/cli"
	"github.com/aretw0/onestep/internal/logging"
	"github.com/aretw0/onestep/pkg/adapters/mcp"
)

var (
	mcpTransport string
	mcpPort      int
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the engine to MCP clients through the invoke_step, get_checkpoint and
list_steps tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output.
- sse: Uses Server-Sent Events over HTTP.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Stdout carries JSON-RPC, so every log goes to stderr.
		log.SetOutput(cmd.ErrOrStderr())
		logger := logging.New(logging.Level(globals.Debug))

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		eng, backend, err := cli.NewEngine(sigCtx, globals, logger)
		if err != nil {
			return err
		}
		defer backend.Close()

		srv := mcp.NewServer(eng, logger)
		switch mcpTransport {
		case "stdio":
			logger.Info("Starting onestep MCP Server (Stdio)")
			return srv.ServeStdio()
		case "sse":
			addr := fmt.Sprintf(":%d", mcpPort)
			err := srv.ServeSSE(sigCtx, addr, fmt.Sprintf("http://localhost:%d", mcpPort))
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("MCP Server stopped gracefully", slog.String("addr", addr))
			return nil
		default:
			return usageError{fmt.Errorf("unknown transport: %s. Supported: stdio, sse", mcpTransport)}
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpTransport, "transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().IntVar(&mcpPort, "port", 8081, "Port to listen on (only for SSE)")
}
