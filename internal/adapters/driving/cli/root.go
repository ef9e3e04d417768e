// Package cli provides the fabric command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driving"
	"github.com/custodia-labs/fabric-cli/internal/logger"
)

// version is set at build time.
var version = "dev"

// ProviderChecker pings the providers behind model names.
type ProviderChecker interface {
	CheckEmbedding(ctx context.Context, model string) ([]string, error)
	CheckChat(ctx context.Context, model string) (string, error)
}

// Services are the ports the commands call.
type Services struct {
	Fabrics   driving.FabricService
	Builds    driving.BuildOrchestrator
	Responder driving.Responder
	Settings  driving.SettingsService
	Checker   ProviderChecker
	Sources   driven.SourceFactory

	// Scheduler is optional and only started by serve.
	Scheduler driving.Scheduler

	// Origins is optional.
	Origins KeySourcer
}

// Options are the global flag values handed to the bootstrap function.
type Options struct {
	ConfigDir string
	Verbose   bool
}

// Bootstrap wires services for a command run. The returned cleanup runs
// after the command finishes.
type Bootstrap func(ctx context.Context, opts Options) (*Services, func(), error)

var (
	fabricService     driving.FabricService
	buildOrchestrator driving.BuildOrchestrator
	responder         driving.Responder
	settingsService   driving.SettingsService
	providerChecker   ProviderChecker
	sourceFactory     driven.SourceFactory
	scheduler         driving.Scheduler

	bootstrap Bootstrap
	cleanup   func()

	configDir string
	verbose   bool
)

// annotationNoServices marks commands that run without wiring services.
const annotationNoServices = "fabric/no-services"

var rootCmd = &cobra.Command{
	Use:   "fabric",
	Short: "Build and query knowledge fabrics",
	Long: `fabric ingests documents from ServiceNow, SharePoint or local uploads,
chunks and embeds them into a vector index, and answers questions with
citations back to the source documents.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupServices,
	PersistentPostRun: func(*cobra.Command, []string) {
		if cleanup != nil {
			cleanup()
			cleanup = nil
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print debug logs to stderr")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.fabric)")
}

// SetServices installs services directly, bypassing Bootstrap.
func SetServices(s *Services) {
	fabricService = s.Fabrics
	buildOrchestrator = s.Builds
	responder = s.Responder
	settingsService = s.Settings
	providerChecker = s.Checker
	sourceFactory = s.Sources
	scheduler = s.Scheduler
	keySourcer = s.Origins
}

// SetVersion sets the version reported by `fabric version`.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command. boot is called once before any command
// that needs services.
func Execute(ctx context.Context, boot Bootstrap) error {
	bootstrap = boot
	defer func() {
		if cleanup != nil {
			cleanup()
			cleanup = nil
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func setupServices(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if bootstrap == nil || !needsServices(cmd) {
		return nil
	}

	services, done, err := bootstrap(cmd.Context(), Options{ConfigDir: configDir, Verbose: verbose})
	if err != nil {
		return fmt.Errorf("initialise: %w", err)
	}
	SetServices(services)
	cleanup = done
	return nil
}

func needsServices(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationNoServices] == "true" {
			return false
		}
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return false
		}
	}
	return true
}

func requireFabrics() error {
	if fabricService == nil {
		return errors.New("fabric service not configured")
	}
	return nil
}

func requireBuilds() error {
	if buildOrchestrator == nil {
		return errors.New("build orchestrator not configured")
	}
	return nil
}
