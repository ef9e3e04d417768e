package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/logger"
)

var watchCmd = &cobra.Command{
	Use:   "watch <fabric-id>",
	Short: "Rebuild a fabric when its source changes",
	Long: `Watch the fabric's document source and start a build after changes
settle. Only sources that report changes (upload directories) can be watched.
Stop with Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

var watchDebounce time.Duration

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 2*time.Second, "quiet period before rebuilding")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := requireFabrics(); err != nil {
		return err
	}
	if err := requireBuilds(); err != nil {
		return err
	}
	if sourceFactory == nil {
		return errors.New("source factory not configured")
	}
	ctx := cmd.Context()

	fabric, err := fabricService.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get fabric: %w", err)
	}

	source, err := sourceFactory.Create(fabric.Source)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	watchable, ok := source.(driven.WatchableSource)
	if !ok {
		return fmt.Errorf("%w: %s sources cannot be watched", domain.ErrInvalidInput, sourceLabel(fabric.Source.Kind))
	}
	defer func() {
		if cerr := watchable.Close(); cerr != nil {
			logger.Warn("close watcher: %v", cerr)
		}
	}()

	changes, err := watchable.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch source: %w", err)
	}

	cmd.Printf("Watching %s for changes (Ctrl+C to stop)\n", fabric.Name)
	err = watchLoop(ctx, cmd, fabric.ID, changes, watchDebounce)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchLoop starts a build once no change has arrived for debounce. Changes
// seen while a build is running trigger one more build after it ends.
func watchLoop(ctx context.Context, cmd *cobra.Command, fabricID string,
	changes <-chan domain.SourceChange, debounce time.Duration) error {
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case change, ok := <-changes:
			if !ok {
				return nil
			}
			logger.Debug("source %s: %s", change.Type, change.URI)
			timer.Reset(debounce)

		case <-timer.C:
			if buildOrchestrator.Running(fabricID) {
				timer.Reset(debounce)
				continue
			}
			_, err := buildOrchestrator.StartBuild(ctx, fabricID)
			switch {
			case errors.Is(err, domain.ErrBuildInProgress):
				timer.Reset(debounce)
				continue
			case err != nil:
				return fmt.Errorf("failed to start build: %w", err)
			}
			cmd.Printf("Change detected, rebuilding %s\n", fabricID)

			fabric, err := buildOrchestrator.Wait(ctx, fabricID)
			if err != nil {
				return err
			}
			if rerr := reportBuild(cmd, fabric); rerr != nil {
				cmd.PrintErrln(rerr)
			}
		}
	}
}
