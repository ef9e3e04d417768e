package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/fabric-cli/internal/adapters/driving/tui"
	"github.com/custodia-labs/fabric-cli/internal/core/domain"
)

var buildCmd = &cobra.Command{
	Use:   "build <fabric-id>",
	Short: "Build a fabric",
	Long: `Run the build pipeline for a fabric: ingest documents, chunk them,
embed the chunks into the vector index and mark the fabric ready.

The command stays attached until the build ends, printing each stage as it
starts. Use --wait to print only the result or --watch for a live view.`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

var statusCmd = &cobra.Command{
	Use:   "status <fabric-id>",
	Short: "Show the build status of a fabric",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var (
	buildWait  bool
	buildWatch bool
	statusJSON bool

	// pollInterval is how often build progress is sampled.
	pollInterval = 500 * time.Millisecond

	// isTerminal reports whether the writer is an interactive terminal.
	isTerminal = func(w io.Writer) bool {
		f, ok := w.(*os.File)
		return ok && term.IsTerminal(int(f.Fd()))
	}
)

func init() {
	buildCmd.Flags().BoolVar(&buildWait, "wait", false, "wait quietly and print the result")
	buildCmd.Flags().BoolVar(&buildWatch, "watch", false, "show a live progress view")
	buildCmd.MarkFlagsMutuallyExclusive("wait", "watch")

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print JSON")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(statusCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	if err := requireBuilds(); err != nil {
		return err
	}
	ctx := cmd.Context()
	fabricID := args[0]

	ticket, err := buildOrchestrator.StartBuild(ctx, fabricID)
	if err != nil {
		return fmt.Errorf("failed to start build: %w", err)
	}
	cmd.Printf("Build started for %s (estimated %s)\n", ticket.FabricID, ticket.EstimatedWindow)

	var fabric *domain.Fabric
	switch {
	case buildWatch && isTerminal(cmd.OutOrStdout()):
		fabric, err = tui.Run(ctx, &tui.Ports{Builds: buildOrchestrator}, fabricID, cmd.InOrStdin(), cmd.OutOrStdout())
		if errors.Is(err, tui.ErrCancelled) {
			return errors.New("build cancelled")
		}
	case buildWait:
		fabric, err = buildOrchestrator.Wait(ctx, fabricID)
	default:
		fabric, err = followBuild(ctx, cmd, fabricID)
	}
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}

	return reportBuild(cmd, fabric)
}

// followBuild prints a line for each stage the build enters until it stops.
func followBuild(ctx context.Context, cmd *cobra.Command, fabricID string) (*domain.Fabric, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var last domain.FabricStatus
	for {
		fabric, err := buildOrchestrator.Status(ctx, fabricID)
		if err != nil {
			return nil, err
		}
		if fabric.Status != last && fabric.Status.IsBuilding() {
			cmd.Printf("  [%d/5] %s\n", fabric.Status.Stage(), stageLabel(fabric.Status))
		}
		last = fabric.Status
		if !buildOrchestrator.Running(fabricID) && !fabric.Status.IsBuilding() {
			return fabric, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func reportBuild(cmd *cobra.Command, fabric *domain.Fabric) error {
	if fabric.Status == domain.FabricStatusError {
		if fabric.Error == nil {
			return errors.New("build failed")
		}
		if fabric.Error.Hint != "" {
			return fmt.Errorf("build failed: %s (hint: %s)", fabric.Error.Message, fabric.Error.Hint)
		}
		return fmt.Errorf("build failed: %s", fabric.Error.Message)
	}

	cmd.Printf("Fabric %s is %s: %d documents, %d chunks\n",
		fabric.ID, fabric.Status, fabric.DocumentsCount, fabric.ChunksCount)
	if fabric.DegradedChunks > 0 {
		cmd.Printf("Warning: %d chunks were stored without embeddings and will not match queries.\n",
			fabric.DegradedChunks)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := requireBuilds(); err != nil {
		return err
	}

	fabric, err := buildOrchestrator.Status(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	if statusJSON {
		return writeJSON(cmd.OutOrStdout(), statusView{
			ID:             fabric.ID,
			Status:         string(fabric.Status),
			Stage:          fabric.Status.Stage(),
			Running:        buildOrchestrator.Running(fabric.ID),
			DocumentsCount: fabric.DocumentsCount,
			ChunksCount:    fabric.ChunksCount,
			DegradedChunks: fabric.DegradedChunks,
			Error:          newErrorView(fabric.Error),
		})
	}

	cmd.Printf("%s: %s", fabric.ID, fabric.Status)
	if stage := fabric.Status.Stage(); fabric.Status.IsBuilding() {
		cmd.Printf(" (stage %d/5)", stage)
	}
	cmd.Println()
	cmd.Printf("  Documents: %d\n", fabric.DocumentsCount)
	cmd.Printf("  Chunks:    %d\n", fabric.ChunksCount)
	if fabric.Error != nil {
		cmd.Printf("  Error:     %s\n", fabric.Error.Message)
		if fabric.Error.Hint != "" {
			cmd.Printf("  Hint:      %s\n", fabric.Error.Hint)
		}
	}
	return nil
}

type statusView struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	Stage          int        `json:"stage"`
	Running        bool       `json:"running"`
	DocumentsCount int        `json:"documents_count"`
	ChunksCount    int        `json:"chunks_count"`
	DegradedChunks int        `json:"degraded_chunks,omitempty"`
	Error          *errorView `json:"error,omitempty"`
}

func stageLabel(s domain.FabricStatus) string {
	switch s {
	case domain.FabricStatusIngesting:
		return "Ingesting documents"
	case domain.FabricStatusChunking:
		return "Chunking"
	case domain.FabricStatusVectorizing:
		return "Embedding and indexing"
	case domain.FabricStatusGraphBuilding:
		return "Building graph"
	default:
		return string(s)
	}
}
