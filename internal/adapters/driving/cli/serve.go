package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/fabric-cli/internal/adapters/driving/mcp"
	"github.com/custodia-labs/fabric-cli/internal/logger"
	"github.com/custodia-labs/fabric-cli/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start a Model Context Protocol server exposing the fabric tools
(list_fabrics, start_build, build_status, ask_fabric) to AI assistants.

By default the server speaks over stdio. Use --http to serve the streamable
HTTP transport instead; logs are then written as JSON.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveHTTP        string
	serveOTLP        string
	serveSampleRatio float64
)

// mcpServer is the subset of *mcp.Server the command drives.
type mcpServer interface {
	Run(ctx context.Context) error
	RunHTTP(ctx context.Context, addr string) error
}

var newMCPServer = func(ports *mcp.Ports) (mcpServer, error) {
	return mcp.NewServer(ports)
}

func init() {
	serveCmd.Flags().StringVar(&serveHTTP, "http", "", "serve streamable HTTP on this address instead of stdio")
	serveCmd.Flags().StringVar(&serveOTLP, "otlp", "", "export traces and metrics to this OTLP gRPC endpoint")
	serveCmd.Flags().Float64Var(&serveSampleRatio, "sample-ratio", 1.0, "fraction of traces to sample")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if fabricService == nil || buildOrchestrator == nil || responder == nil {
		return errors.New("services not configured")
	}
	ctx := cmd.Context()

	if serveHTTP != "" {
		logger.SetFormat(logger.FormatJSON)
	}

	if serveOTLP != "" {
		shutdown, err := telemetry.InitTracer(ctx, "fabric", version, serveOTLP, serveSampleRatio)
		if err != nil {
			return fmt.Errorf("failed to start tracing: %w", err)
		}
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("tracer shutdown: %v", err)
			}
		}()

		shutdownMeter, err := telemetry.InitMeter(ctx, "fabric", version, serveOTLP)
		if err != nil {
			return fmt.Errorf("failed to start metrics: %w", err)
		}
		defer func() {
			if err := shutdownMeter(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("meter shutdown: %v", err)
			}
		}()
	}

	server, err := newMCPServer(&mcp.Ports{
		Fabrics:   fabricService,
		Builds:    buildOrchestrator,
		Responder: responder,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	if scheduler != nil {
		go func() {
			if err := scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("scheduler: %v", err)
			}
		}()
		defer func() {
			if err := scheduler.Stop(); err != nil {
				logger.Warn("scheduler stop: %v", err)
			}
		}()
	}

	if serveHTTP != "" {
		logger.Info("MCP server listening on %s", serveHTTP)
		err = server.RunHTTP(ctx, serveHTTP)
	} else {
		err = server.Run(ctx)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
