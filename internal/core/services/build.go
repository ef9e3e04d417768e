package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driving"
	"github.com/custodia-labs/fabric-cli/internal/logger"
	"github.com/custodia-labs/fabric-cli/internal/telemetry"
)

// Ensure BuildOrchestrator implements the interface.
var _ driving.BuildOrchestrator = (*BuildOrchestrator)(nil)

// errSkipWrite aborts a store update without writing.
var errSkipWrite = errors.New("skip write")

// finalWriteTimeout bounds the terminal state write after a build ends.
const finalWriteTimeout = 10 * time.Second

// buildRun tracks one in-flight build.
type buildRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// BuildOrchestrator runs the fabric build pipeline:
// ingesting, chunking, vectorizing, graph building, then ready or error.
// At most one build runs per fabric.
type BuildOrchestrator struct {
	store      driven.FabricStore
	sources    driven.SourceFactory
	chunker    driven.Chunker
	resolver   driven.EmbeddingResolver
	index      driven.VectorIndex
	batchSize  int
	heartbeat  time.Duration
	staleAfter time.Duration
	now        func() time.Time

	mu       sync.Mutex
	inFlight map[string]*buildRun
	busy     map[string]bool
	closed   bool
	wg       sync.WaitGroup
}

// NewBuildOrchestrator creates a build orchestrator.
func NewBuildOrchestrator(
	store driven.FabricStore,
	sources driven.SourceFactory,
	chunker driven.Chunker,
	resolver driven.EmbeddingResolver,
	index driven.VectorIndex,
	settings domain.PipelineSettings,
) *BuildOrchestrator {
	defaults := domain.DefaultPipelineSettings()
	if settings.BatchSize <= 0 {
		settings.BatchSize = defaults.BatchSize
	}
	if settings.Heartbeat <= 0 {
		settings.Heartbeat = defaults.Heartbeat
	}
	return &BuildOrchestrator{
		store:      store,
		sources:    sources,
		chunker:    chunker,
		resolver:   resolver,
		index:      index,
		batchSize:  settings.BatchSize,
		heartbeat:  settings.Heartbeat,
		staleAfter: domain.BuildStaleAfter(settings.Heartbeat),
		now:        time.Now,
		inFlight:   make(map[string]*buildRun),
		busy:       make(map[string]bool),
	}
}

// StartBuild moves the fabric to ingesting and runs the pipeline in the
// background. The build outlives ctx; only Shutdown cancels it.
//
// The stored status is the lease shared between processes: a building
// status refreshed within the stale window belongs to a live build elsewhere
// and is refused. An older one was left by a crashed process and is taken over.
func (o *BuildOrchestrator) StartBuild(ctx context.Context, fabricID string) (*domain.BuildTicket, error) {
	o.mu.Lock()
	switch {
	case o.closed:
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: orchestrator is shutting down", domain.ErrConflict)
	case o.inFlight[fabricID] != nil:
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrBuildInProgress, fabricID)
	case o.busy[fabricID]:
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrFabricBusy, fabricID)
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := &buildRun{cancel: cancel, done: make(chan struct{})}
	o.inFlight[fabricID] = run
	o.wg.Add(1)
	o.mu.Unlock()

	fabric, err := o.store.Update(ctx, fabricID, func(f *domain.Fabric) error {
		if f.BuildLeaseHeld(o.now(), o.staleAfter) {
			return fmt.Errorf("%w: %s is %s in another process", domain.ErrBuildInProgress, f.ID, f.Status)
		}
		if f.Status.IsBuilding() {
			logger.Warn("fabric %s was left in %s since %s, restarting build",
				f.ID, f.Status, f.UpdatedAt.Format(time.RFC3339))
		}
		f.Status = domain.FabricStatusIngesting
		f.Error = nil
		f.DocumentsCount = 0
		f.ChunksCount = 0
		f.DegradedChunks = 0
		f.GraphNodes = 0
		f.GraphEdges = 0
		return nil
	})
	if err != nil {
		o.finish(fabricID, run)
		cancel()
		return nil, fmt.Errorf("start build: %w", err)
	}
	o.recordStage(ctx, domain.FabricStatusIngesting)

	go func() {
		defer o.finish(fabricID, run)
		defer cancel()
		o.run(runCtx, fabric)
	}()

	logger.Info("build started for fabric %s", fabricID)
	return &domain.BuildTicket{
		FabricID:        fabricID,
		Status:          domain.FabricStatusIngesting,
		EstimatedWindow: domain.EstimatedBuildWindow(fabric.Source.Kind),
	}, nil
}

func (o *BuildOrchestrator) finish(fabricID string, run *buildRun) {
	o.mu.Lock()
	if o.inFlight[fabricID] == run {
		delete(o.inFlight, fabricID)
	}
	o.mu.Unlock()
	close(run.done)
	o.wg.Done()
}

// Status returns the current fabric record.
func (o *BuildOrchestrator) Status(ctx context.Context, fabricID string) (*domain.Fabric, error) {
	return o.store.Get(ctx, fabricID)
}

// Wait blocks until the fabric has no build in flight.
func (o *BuildOrchestrator) Wait(ctx context.Context, fabricID string) (*domain.Fabric, error) {
	o.mu.Lock()
	run := o.inFlight[fabricID]
	o.mu.Unlock()

	if run != nil {
		select {
		case <-run.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return o.store.Get(ctx, fabricID)
}

// Running reports whether a build is in flight for the fabric.
func (o *BuildOrchestrator) Running(fabricID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight[fabricID] != nil
}

// Acquire reserves the fabric for an exclusive operation such as delete.
// It fails while a build is in flight or another holder has the fabric.
func (o *BuildOrchestrator) Acquire(fabricID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight[fabricID] != nil {
		return fmt.Errorf("%w: %s", domain.ErrBuildInProgress, fabricID)
	}
	if o.busy[fabricID] {
		return fmt.Errorf("%w: %s", domain.ErrFabricBusy, fabricID)
	}
	o.busy[fabricID] = true
	return nil
}

// Release ends a reservation taken by Acquire.
func (o *BuildOrchestrator) Release(fabricID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.busy, fabricID)
}

// Shutdown cancels in-flight builds and waits for them to record their
// final state.
func (o *BuildOrchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	for id, run := range o.inFlight {
		logger.Debug("cancelling build for fabric %s", id)
		run.cancel()
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run executes the pipeline and records the terminal state.
func (o *BuildOrchestrator) run(ctx context.Context, fabric *domain.Fabric) {
	ctx, span := telemetry.Tracer().Start(ctx, "fabric.build",
		trace.WithAttributes(attribute.String("fabric.id", fabric.ID)))
	defer span.End()

	start := time.Now()
	stop := o.startHeartbeat(ctx, fabric.ID)
	err := o.pipeline(ctx, fabric)
	stop()
	if err == nil {
		logger.Info("build for fabric %s ready in %s", fabric.ID, time.Since(start).Round(time.Millisecond))
		return
	}

	if errors.Is(err, context.Canceled) {
		err = fmt.Errorf("build cancelled: %w", err)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	buildErr := domain.NewBuildError(err)
	logger.Error("build for fabric %s failed: %v", fabric.ID, buildErr)

	// The terminal write must land even if the build was cancelled.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer cancel()
	if _, werr := o.store.Update(writeCtx, fabric.ID, func(f *domain.Fabric) error {
		f.Status = domain.FabricStatusError
		f.Error = buildErr
		return nil
	}); werr != nil {
		logger.Error("record build failure for fabric %s: %v", fabric.ID, werr)
	}
	o.recordStage(writeCtx, domain.FabricStatusError)
}

func (o *BuildOrchestrator) pipeline(ctx context.Context, fabric *domain.Fabric) error {
	if err := domain.ValidateChunking(fabric.ChunkSize, fabric.ChunkOverlap); err != nil {
		return err
	}

	logger.Section("Ingesting " + fabric.ID)
	docs, err := o.ingest(ctx, fabric)
	if err != nil {
		return err
	}

	logger.Section("Chunking " + fabric.ID)
	if err := o.advance(ctx, fabric.ID, domain.FabricStatusChunking, func(f *domain.Fabric) {
		f.DocumentsCount = len(docs)
	}); err != nil {
		return err
	}
	chunks, err := o.chunker.Chunk(docs, fabric.ChunkSize, fabric.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("chunk documents: %w", err)
	}
	logger.Debug("%d documents produced %d chunks", len(docs), len(chunks))

	logger.Section("Vectorizing " + fabric.ID)
	if err := o.advance(ctx, fabric.ID, domain.FabricStatusVectorizing, nil); err != nil {
		return err
	}
	degraded, err := o.vectorize(ctx, fabric, chunks)
	if err != nil {
		return err
	}

	logger.Section("Building graph " + fabric.ID)
	if err := o.advance(ctx, fabric.ID, domain.FabricStatusGraphBuilding, func(f *domain.Fabric) {
		f.ChunksCount = len(chunks)
		f.DegradedChunks = degraded
	}); err != nil {
		return err
	}

	return o.advance(ctx, fabric.ID, domain.FabricStatusReady, func(f *domain.Fabric) {
		now := time.Now()
		f.GraphNodes = 0
		f.GraphEdges = 0
		f.BuiltAt = &now
		f.Error = nil
	})
}

// ingest fetches documents from the fabric's source. Fabrics without a
// configured source get a single placeholder document.
func (o *BuildOrchestrator) ingest(ctx context.Context, fabric *domain.Fabric) ([]domain.SourceDocument, error) {
	cfg := fabric.Source
	if cfg.Kind == domain.SourceKindNone || !cfg.Enabled {
		logger.Debug("fabric %s has no source configured, using placeholder content", fabric.ID)
		return []domain.SourceDocument{domain.PlaceholderDocument(fabric.ID)}, nil
	}

	source, err := o.sources.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s source: %w", cfg.Kind, err)
	}

	docs, err := source.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if domain.Classify(err) == domain.ErrorKindUnclassified {
			err = fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, err)
		}
		return nil, fmt.Errorf("fetch %s documents: %w", cfg.Kind, err)
	}

	if len(docs) == 0 {
		if cfg.IsExplicit() {
			return nil, fmt.Errorf("%w: %s source returned no documents", domain.ErrSourceUnavailable, cfg.Kind)
		}
		return []domain.SourceDocument{domain.PlaceholderDocument(fabric.ID)}, nil
	}
	telemetry.Default().SourceDocuments.Add(ctx, int64(len(docs)),
		metric.WithAttributes(attribute.String("source", string(cfg.Kind))))
	logger.Info("fetched %d documents from %s", len(docs), cfg.Kind)
	return docs, nil
}

// vectorize embeds and stores every chunk, returning the number stored
// with a zero vector.
func (o *BuildOrchestrator) vectorize(ctx context.Context, fabric *domain.Fabric, chunks []domain.Chunk) (int, error) {
	providers, err := o.resolver.Resolve(fabric.EmbeddingModel)
	if err != nil {
		return 0, fmt.Errorf("resolve embedding model %q: %w", fabric.EmbeddingModel, err)
	}
	chain, err := NewEmbeddingChain(providers)
	if err != nil {
		return 0, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, degraded, err := chain.EmbedChunks(ctx, texts, o.batchSize)
	if err != nil {
		return 0, err
	}

	collection := fabric.Collection()
	if err := o.index.CreateCollection(ctx, fabric.ID, collection, chain.Dimensions()); err != nil {
		return 0, fmt.Errorf("create collection %s: %w", collection, err)
	}

	for start := 0; start < len(chunks); start += o.batchSize {
		end := min(start+o.batchSize, len(chunks))
		req := driven.AddRequest{
			IDs:       make([]string, 0, end-start),
			Texts:     texts[start:end],
			Vectors:   vectors[start:end],
			Metadatas: make([]map[string]any, 0, end-start),
		}
		for _, c := range chunks[start:end] {
			req.IDs = append(req.IDs, c.ID)
			req.Metadatas = append(req.Metadatas, c.Metadata)
		}
		if err := o.index.Add(ctx, collection, req); err != nil {
			return 0, fmt.Errorf("store chunks %d-%d: %w", start, end, err)
		}
		logger.Debug("stored chunks %d-%d of %d", start, end, len(chunks))
	}

	if degraded > 0 {
		logger.Warn("fabric %s: %d of %d chunks stored with zero vectors", fabric.ID, degraded, len(chunks))
	}
	return degraded, nil
}

// startHeartbeat refreshes UpdatedAt for the whole pipeline. It keeps the
// build lease fresh and lets observers tell a slow build from a stalled one.
func (o *BuildOrchestrator) startHeartbeat(ctx context.Context, fabricID string) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(o.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, err := o.store.Update(ctx, fabricID, func(f *domain.Fabric) error {
					if !f.Status.IsBuilding() {
						return errSkipWrite
					}
					return nil
				})
				if err != nil && !errors.Is(err, errSkipWrite) && ctx.Err() == nil {
					logger.Debug("heartbeat for fabric %s: %v", fabricID, err)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// advance persists a stage transition before any work in that stage starts.
func (o *BuildOrchestrator) advance(
	ctx context.Context,
	fabricID string,
	status domain.FabricStatus,
	mutate func(*domain.Fabric),
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := o.store.Update(ctx, fabricID, func(f *domain.Fabric) error {
		f.Status = status
		if mutate != nil {
			mutate(f)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("advance to %s: %w", status, err)
	}
	o.recordStage(ctx, status)
	logger.Debug("fabric %s -> %s", fabricID, status)
	return nil
}

func (o *BuildOrchestrator) recordStage(ctx context.Context, status domain.FabricStatus) {
	telemetry.Default().BuildStages.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", status.String())))
}
