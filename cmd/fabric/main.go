// Command fabric builds knowledge fabrics from document sources and answers
// questions against them.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/custodia-labs/fabric-cli/internal/adapters/driven/ai"
	"github.com/custodia-labs/fabric-cli/internal/adapters/driven/config/file"
	"github.com/custodia-labs/fabric-cli/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/fabric-cli/internal/adapters/driven/storage/sqlite"
	memvec "github.com/custodia-labs/fabric-cli/internal/adapters/driven/vector/memory"
	"github.com/custodia-labs/fabric-cli/internal/adapters/driven/vector/qdrant"
	"github.com/custodia-labs/fabric-cli/internal/adapters/driving/cli"
	"github.com/custodia-labs/fabric-cli/internal/connectors"
	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/core/services"
	"github.com/custodia-labs/fabric-cli/internal/logger"
	"github.com/custodia-labs/fabric-cli/internal/normalisers"
	"github.com/custodia-labs/fabric-cli/internal/postprocessors/chunker"
)

// version is set at build time via -ldflags.
var version = "dev"

// shutdownTimeout bounds how long in-flight builds get to stop on exit.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetVersion(version)
	if err := cli.Execute(ctx, bootstrap); err != nil {
		return 1
	}
	return 0
}

// bootstrap wires the adapters and services for one command run.
func bootstrap(ctx context.Context, opts cli.Options) (*cli.Services, func(), error) {
	if err := file.LoadDotEnv(); err != nil {
		return nil, nil, err
	}

	configDir := opts.ConfigDir
	if configDir == "" {
		dir, err := file.DefaultDir()
		if err != nil {
			return nil, nil, err
		}
		configDir = dir
	}

	configStore, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, nil, err
	}
	envStore := file.NewEnvStore(configStore)

	settingsService := services.NewSettingsService(envStore)
	settings, err := settingsService.Get()
	if err != nil {
		return nil, nil, fmt.Errorf("load settings: %w", err)
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	dataDir := filepath.Join(configDir, "data")
	store, closeStore, err := openFabricStore(settings.Storage, dataDir)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, closeStore)

	index, closeIndex, err := openVectorIndex(settings, dataDir)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, closeIndex)

	providers := ai.NewFactory(settings.AI, ai.DefaultGuardConfig())
	closers = append(closers, providers.Close)

	httpClient := &http.Client{Timeout: 60 * time.Second}
	sources := connectors.NewFactory(*settings, normalisers.Default(), httpClient)

	pipeline := settings.Pipeline
	builds := services.NewBuildOrchestrator(
		store, sources,
		chunker.New(chunker.WithChunkSize(pipeline.ChunkSize), chunker.WithOverlap(pipeline.ChunkOverlap)),
		providers, index, pipeline,
	)
	// Builds run in-process, so stopping the command cancels them.
	closers = append(closers, func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := builds.Shutdown(sctx); err != nil {
			logger.Warn("build shutdown: %v", err)
		}
	})

	fabrics := services.NewFabricService(store, index, providers, builds, pipeline)
	retriever := services.NewRetriever(store, providers, index, pipeline.TopK)
	responder := services.NewResponder(store, retriever, providers, pipeline)

	prompts, err := file.NewPromptStore(filepath.Join(configDir, "prompts"))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	responder.SetPromptStore(prompts)

	logger.Debug("config dir %s, storage %s, vector %s", configDir, settings.Storage, settings.Vector)

	return &cli.Services{
		Scheduler: services.NewScheduler(store, builds, pipeline.RefreshInterval),
		Fabrics:   fabrics,
		Builds:    builds,
		Responder: responder,
		Settings:  settingsService,
		Checker:   providers,
		Sources:   sources,
		Origins:   envStore,
	}, cleanup, nil
}

func openFabricStore(backend domain.StorageBackend, dataDir string) (driven.FabricStore, func(), error) {
	if backend == domain.StorageBackendMemory {
		return memory.NewFabricStore(), func() {}, nil
	}

	db, err := sqlite.NewStore(dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open fabric store: %w", err)
	}
	logger.Debug("fabric store at %s", db.Path())
	return db.FabricStore(), func() {
		if err := db.Close(); err != nil {
			logger.Warn("close fabric store: %v", err)
		}
	}, nil
}

func openVectorIndex(settings *domain.AppSettings, dataDir string) (driven.VectorIndex, func(), error) {
	if settings.Vector != domain.VectorBackendQdrant {
		index, err := memvec.Open(filepath.Join(dataDir, "vectors"))
		if err != nil {
			return nil, nil, err
		}
		return index, func() {
			if err := index.Close(); err != nil {
				logger.Warn("save vector snapshot: %v", err)
			}
		}, nil
	}

	index, err := qdrant.New(qdrant.Config{Addr: settings.QdrantAddr, APIKey: settings.QdrantAPIKey})
	if err != nil {
		return nil, nil, fmt.Errorf("connect qdrant: %w", err)
	}
	return index, func() {
		if err := index.Close(); err != nil {
			logger.Warn("close qdrant: %v", err)
		}
	}, nil
}
