package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fabric-cli/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/fabric-cli/internal/adapters/driven/storage/sqlite"
	vectormem "github.com/custodia-labs/fabric-cli/internal/adapters/driven/vector/memory"
	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driving"
	"github.com/custodia-labs/fabric-cli/internal/postprocessors/chunker"
)

// --- Mock implementations ---

// buildMockSource implements driven.DocumentSource for testing.
type buildMockSource struct {
	kind  domain.SourceKind
	docs  []domain.SourceDocument
	err   error
	block chan struct{}
}

func (m *buildMockSource) Kind() domain.SourceKind { return m.kind }

func (m *buildMockSource) Fetch(ctx context.Context) ([]domain.SourceDocument, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.docs, m.err
}

// buildMockSourceFactory implements driven.SourceFactory for testing.
type buildMockSourceFactory struct {
	source driven.DocumentSource
	err    error

	mu      sync.Mutex
	configs []domain.SourceConfig
}

func (m *buildMockSourceFactory) Create(cfg domain.SourceConfig) (driven.DocumentSource, error) {
	m.mu.Lock()
	m.configs = append(m.configs, cfg)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.source, nil
}

func (m *buildMockSourceFactory) created() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.configs)
}

// buildBlockingEmbedder holds EmbedBatch until release is closed.
type buildBlockingEmbedder struct {
	*chainMockProvider
	release chan struct{}
}

func (m *buildBlockingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	select {
	case <-m.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return m.chainMockProvider.EmbedBatch(ctx, texts)
}

// buildRecordingStore records the status written by every update.
type buildRecordingStore struct {
	*memory.FabricStore

	mu       sync.Mutex
	statuses []domain.FabricStatus
}

func (s *buildRecordingStore) Update(
	ctx context.Context,
	id string,
	mutate func(*domain.Fabric) error,
) (*domain.Fabric, error) {
	f, err := s.FabricStore.Update(ctx, id, mutate)
	if err == nil {
		s.mu.Lock()
		if n := len(s.statuses); n == 0 || s.statuses[n-1] != f.Status {
			s.statuses = append(s.statuses, f.Status)
		}
		s.mu.Unlock()
	}
	return f, err
}

func (s *buildRecordingStore) history() []domain.FabricStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.FabricStatus(nil), s.statuses...)
}

// --- Fixture ---

type buildFixture struct {
	store        *buildRecordingStore
	index        *vectormem.Index
	factory      *buildMockSourceFactory
	orchestrator *BuildOrchestrator
}

func newBuildFixture(t *testing.T, source driven.DocumentSource, providers ...driven.EmbeddingService) *buildFixture {
	t.Helper()
	if len(providers) == 0 {
		providers = []driven.EmbeddingService{newChainMock("text-embedding-3-small", 8)}
	}
	fx := &buildFixture{
		store:   &buildRecordingStore{FabricStore: memory.NewFabricStore()},
		index:   vectormem.NewIndex(),
		factory: &buildMockSourceFactory{source: source},
	}
	fx.orchestrator = NewBuildOrchestrator(
		fx.store,
		fx.factory,
		chunker.New(),
		&chainMockResolver{providers: providers},
		fx.index,
		domain.PipelineSettings{BatchSize: 2, Heartbeat: 10 * time.Millisecond},
	)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = fx.orchestrator.Shutdown(ctx)
	})
	return fx
}

func (fx *buildFixture) createFabric(t *testing.T, id string, source domain.SourceConfig) *domain.Fabric {
	t.Helper()
	f := &domain.Fabric{
		ID:             id,
		Name:           "Fabric " + id,
		Status:         domain.FabricStatusDraft,
		Source:         source,
		ChunkSize:      10,
		ChunkOverlap:   4,
		EmbeddingModel: "text-embedding-3-small",
		ChatModel:      "gpt-4",
	}
	require.NoError(t, fx.store.Create(context.Background(), f))
	return f
}

func (fx *buildFixture) buildAndWait(t *testing.T, id string) *domain.Fabric {
	t.Helper()
	ticket, err := fx.orchestrator.StartBuild(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.FabricStatusIngesting, ticket.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f, err := fx.orchestrator.Wait(ctx, id)
	require.NoError(t, err)
	return f
}

func serviceNowSource() domain.SourceConfig {
	return domain.SourceConfig{
		Kind:    domain.SourceKindServiceNow,
		Enabled: true,
		Options: map[string]string{"instance": "dev1234"},
	}
}

func serviceNowDocs() []domain.SourceDocument {
	return []domain.SourceDocument{
		{
			ID:      "incident-INC001",
			Content: strings.Repeat("printer offline on floor three ", 5),
			Source:  "servicenow",
			Metadata: map[string]any{
				"number": "INC001", "sys_id": "abc", "table": "incident",
				"short_description": "Printer offline",
			},
		},
		{
			ID:       "kb-KB002",
			Content:  "reset the VPN token from the self service portal",
			Source:   "servicenow",
			Metadata: map[string]any{"number": "KB002", "table": "kb_knowledge"},
		},
	}
}

// --- Tests ---

func TestBuildOrchestrator_BuildsToReady(t *testing.T) {
	fx := newBuildFixture(t, &buildMockSource{kind: domain.SourceKindServiceNow, docs: serviceNowDocs()})
	fx.createFabric(t, "f1", serviceNowSource())

	f := fx.buildAndWait(t, "f1")

	assert.Equal(t, domain.FabricStatusReady, f.Status)
	assert.Nil(t, f.Error)
	assert.Equal(t, 2, f.DocumentsCount)
	// 25 words in windows of 10 stepping by 6 -> 4 chunks, plus 1 for the short doc.
	assert.Equal(t, 5, f.ChunksCount)
	assert.Equal(t, 0, f.DegradedChunks)
	assert.Equal(t, 0, f.GraphNodes)
	assert.Equal(t, 0, f.GraphEdges)
	require.NotNil(t, f.BuiltAt)

	info, err := fx.index.GetCollection(context.Background(), f.Collection())
	require.NoError(t, err)
	assert.Equal(t, 8, info.Dimension)
	assert.Equal(t, 5, info.Count)
	assert.Equal(t, "f1", info.FabricID)

	assert.Equal(t, []domain.FabricStatus{
		domain.FabricStatusIngesting,
		domain.FabricStatusChunking,
		domain.FabricStatusVectorizing,
		domain.FabricStatusGraphBuilding,
		domain.FabricStatusReady,
	}, fx.store.history())
	assert.False(t, fx.orchestrator.Running("f1"))
}

func TestBuildOrchestrator_NoSourceUsesPlaceholder(t *testing.T) {
	fx := newBuildFixture(t, &buildMockSource{})
	fx.createFabric(t, "f1", domain.SourceConfig{})

	f := fx.buildAndWait(t, "f1")

	assert.Equal(t, domain.FabricStatusReady, f.Status)
	assert.Equal(t, 1, f.DocumentsCount)
	assert.Equal(t, 1, f.ChunksCount)
	assert.Equal(t, 0, fx.factory.created())

	results, err := fx.index.Query(context.Background(), f.Collection(), newChainMock("q", 8).vector("x"), 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, domain.PlaceholderContent, results[0].Text)
}

func TestBuildOrchestrator_DisabledSourceUsesPlaceholder(t *testing.T) {
	fx := newBuildFixture(t, &buildMockSource{})
	cfg := serviceNowSource()
	cfg.Enabled = false
	fx.createFabric(t, "f1", cfg)

	f := fx.buildAndWait(t, "f1")

	assert.Equal(t, domain.FabricStatusReady, f.Status)
	assert.Equal(t, 1, f.DocumentsCount)
	assert.Equal(t, 0, fx.factory.created())
}

func TestBuildOrchestrator_ExplicitSourceEmptyFails(t *testing.T) {
	fx := newBuildFixture(t, &buildMockSource{kind: domain.SourceKindServiceNow})
	fx.createFabric(t, "f1", serviceNowSource())

	f := fx.buildAndWait(t, "f1")

	assert.Equal(t, domain.FabricStatusError, f.Status)
	require.NotNil(t, f.Error)
	assert.Equal(t, domain.ErrorKindSourceUnavailable, f.Error.Kind)
	assert.Contains(t, f.Error.Message, "returned no documents")
	assert.NotEmpty(t, f.Error.Hint)
	assert.Equal(t, 1, fx.factory.created())
}

func TestBuildOrchestrator_DemoSourceEmptyUsesPlaceholder(t *testing.T) {
	fx := newBuildFixture(t, &buildMockSource{kind: domain.SourceKindDemo})
	fx.createFabric(t, "f1", domain.SourceConfig{Kind: domain.SourceKindDemo, Enabled: true})

	f := fx.buildAndWait(t, "f1")

	assert.Equal(t, domain.FabricStatusReady, f.Status)
	assert.Equal(t, 1, f.DocumentsCount)
}

func TestBuildOrchestrator_SourceFetchErrorIsSourceUnavailable(t *testing.T) {
	fx := newBuildFixture(t, &buildMockSource{err: errors.New("401 unauthorized")})
	fx.createFabric(t, "f1", serviceNowSource())

	f := fx.buildAndWait(t, "f1")

	assert.Equal(t, domain.FabricStatusError, f.Status)
	require.NotNil(t, f.Error)
	assert.Equal(t, domain.ErrorKindSourceUnavailable, f.Error.Kind)
	assert.Contains(t, f.Error.Message, "401 unauthorized")
}

func TestBuildOrchestrator_UnknownSourceKindIsConfigurationError(t *testing.T) {
	fx := newBuildFixture(t, nil)
	fx.factory.err = errors.Join(domain.ErrConfiguration, errors.New("unknown source kind"))
	fx.createFabric(t, "f1", serviceNowSource())

	f := fx.buildAndWait(t, "f1")

	assert.Equal(t, domain.FabricStatusError, f.Status)
	assert.Equal(t, domain.ErrorKindConfiguration, f.Error.Kind)
}

func TestBuildOrchestrator_InvalidChunkingFails(t *testing.T) {
	fx := newBuildFixture(t, &buildMockSource{})
	fabric := fx.createFabric(t, "f1", domain.SourceConfig{})
	_, err := fx.store.Update(context.Background(), fabric.ID, func(f *domain.Fabric) error {
		f.ChunkOverlap = f.ChunkSize
		return nil
	})
	require.NoError(t, err)

	f := fx.buildAndWait(t, "f1")

	assert.Equal(t, domain.FabricStatusError, f.Status)
	assert.Equal(t, domain.ErrorKindConfiguration, f.Error.Kind)
}

func TestBuildOrchestrator_ResolveErrorFails(t *testing.T) {
	fx := newBuildFixture(t, &buildMockSource{})
	fx.orchestrator.resolver = &chainMockResolver{err: errors.Join(domain.ErrConfiguration, errors.New("unknown model"))}
	fx.createFabric(t, "f1", domain.SourceConfig{})

	f := fx.buildAndWait(t, "f1")

	assert.Equal(t, domain.FabricStatusError, f.Status)
	assert.Equal(t, domain.ErrorKindConfiguration, f.Error.Kind)
	assert.Equal(t, domain.FabricStatusVectorizing, fx.store.history()[2])
}

func TestBuildOrchestrator_DegradedChunks(t *testing.T) {
	provider := newChainMock("text-embedding-3-small", 8)
	provider.failTexts = map[string]error{
		"reset the VPN token from the self service portal": errors.New("content filtered"),
	}
	fx := newBuildFixture(t, &buildMockSource{docs: serviceNowDocs()}, provider)
	fx.createFabric(t, "f1", serviceNowSource())

	f := fx.buildAndWait(t, "f1")

	assert.Equal(t, domain.FabricStatusReady, f.Status)
	assert.Equal(t, 5, f.ChunksCount)
	assert.Equal(t, 1, f.DegradedChunks)
}

func TestBuildOrchestrator_RebuildClearsError(t *testing.T) {
	source := &buildMockSource{kind: domain.SourceKindServiceNow}
	fx := newBuildFixture(t, source)
	fx.createFabric(t, "f1", serviceNowSource())

	f := fx.buildAndWait(t, "f1")
	require.Equal(t, domain.FabricStatusError, f.Status)

	source.docs = serviceNowDocs()
	f = fx.buildAndWait(t, "f1")
	assert.Equal(t, domain.FabricStatusReady, f.Status)
	assert.Nil(t, f.Error)
}

func TestBuildOrchestrator_SecondBuildRejectedWhileInFlight(t *testing.T) {
	source := &buildMockSource{docs: serviceNowDocs(), block: make(chan struct{})}
	fx := newBuildFixture(t, source)
	fx.createFabric(t, "f1", serviceNowSource())

	_, err := fx.orchestrator.StartBuild(context.Background(), "f1")
	require.NoError(t, err)
	assert.True(t, fx.orchestrator.Running("f1"))

	_, err = fx.orchestrator.StartBuild(context.Background(), "f1")
	assert.ErrorIs(t, err, domain.ErrBuildInProgress)

	status, err := fx.orchestrator.Status(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, domain.FabricStatusIngesting, status.Status)

	close(source.block)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f, err := fx.orchestrator.Wait(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, domain.FabricStatusReady, f.Status)
}

func TestBuildOrchestrator_StartBuild_NotFound(t *testing.T) {
	fx := newBuildFixture(t, &buildMockSource{})

	_, err := fx.orchestrator.StartBuild(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, fx.orchestrator.Running("missing"))
}

func TestBuildOrchestrator_AcquireBlocksBuild(t *testing.T) {
	fx := newBuildFixture(t, &buildMockSource{})
	fx.createFabric(t, "f1", domain.SourceConfig{})

	require.NoError(t, fx.orchestrator.Acquire("f1"))
	assert.ErrorIs(t, fx.orchestrator.Acquire("f1"), domain.ErrFabricBusy)

	_, err := fx.orchestrator.StartBuild(context.Background(), "f1")
	assert.ErrorIs(t, err, domain.ErrFabricBusy)

	fx.orchestrator.Release("f1")
	f := fx.buildAndWait(t, "f1")
	assert.Equal(t, domain.FabricStatusReady, f.Status)
}

func TestBuildOrchestrator_AcquireFailsDuringBuild(t *testing.T) {
	source := &buildMockSource{block: make(chan struct{})}
	fx := newBuildFixture(t, source)
	fx.createFabric(t, "f1", serviceNowSource())

	_, err := fx.orchestrator.StartBuild(context.Background(), "f1")
	require.NoError(t, err)

	assert.ErrorIs(t, fx.orchestrator.Acquire("f1"), domain.ErrBuildInProgress)
	close(source.block)
}

func TestBuildOrchestrator_BuildOutlivesRequestContext(t *testing.T) {
	source := &buildMockSource{docs: serviceNowDocs(), block: make(chan struct{})}
	fx := newBuildFixture(t, source)
	fx.createFabric(t, "f1", serviceNowSource())

	reqCtx, cancelReq := context.WithCancel(context.Background())
	_, err := fx.orchestrator.StartBuild(reqCtx, "f1")
	require.NoError(t, err)
	cancelReq()

	close(source.block)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f, err := fx.orchestrator.Wait(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, domain.FabricStatusReady, f.Status)
}

func TestBuildOrchestrator_ShutdownCancelsBuild(t *testing.T) {
	source := &buildMockSource{block: make(chan struct{})}
	fx := newBuildFixture(t, source)
	fx.createFabric(t, "f1", serviceNowSource())

	_, err := fx.orchestrator.StartBuild(context.Background(), "f1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, fx.orchestrator.Shutdown(ctx))

	f, err := fx.store.Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, domain.FabricStatusError, f.Status)
	require.NotNil(t, f.Error)
	assert.Contains(t, f.Error.Message, "build cancelled")

	_, err = fx.orchestrator.StartBuild(ctx, "f1")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestBuildOrchestrator_HeartbeatWhileVectorizing(t *testing.T) {
	embedder := &buildBlockingEmbedder{
		chainMockProvider: newChainMock("text-embedding-3-small", 8),
		release:           make(chan struct{}),
	}
	fx := newBuildFixture(t, &buildMockSource{docs: serviceNowDocs()}, embedder)
	fx.createFabric(t, "f1", serviceNowSource())

	_, err := fx.orchestrator.StartBuild(context.Background(), "f1")
	require.NoError(t, err)

	var vectorizingRev int64
	require.Eventually(t, func() bool {
		f, err := fx.store.Get(context.Background(), "f1")
		if err != nil || f.Status != domain.FabricStatusVectorizing {
			return false
		}
		vectorizingRev = f.Revision
		return true
	}, 5*time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		f, err := fx.store.Get(context.Background(), "f1")
		return err == nil && f.Status == domain.FabricStatusVectorizing && f.Revision > vectorizingRev+1
	}, 5*time.Second, 5*time.Millisecond)

	close(embedder.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f, err := fx.orchestrator.Wait(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, domain.FabricStatusReady, f.Status)
}

func TestBuildOrchestrator_WaitWithoutBuildReturnsRecord(t *testing.T) {
	fx := newBuildFixture(t, &buildMockSource{})
	fx.createFabric(t, "f1", domain.SourceConfig{})

	f, err := fx.orchestrator.Wait(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, domain.FabricStatusDraft, f.Status)
}

func TestBuildOrchestrator_ConcurrentFabricsBuildIndependently(t *testing.T) {
	fx := newBuildFixture(t, &buildMockSource{docs: serviceNowDocs()})
	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		fx.createFabric(t, id, serviceNowSource())
	}

	for _, id := range ids {
		_, err := fx.orchestrator.StartBuild(context.Background(), id)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, id := range ids {
		f, err := fx.orchestrator.Wait(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.FabricStatusReady, f.Status, id)
		_, err = fx.index.GetCollection(ctx, f.Collection())
		assert.NoError(t, err)
	}
}

func TestBuildOrchestrator_HeartbeatWhileIngesting(t *testing.T) {
	source := &buildMockSource{docs: serviceNowDocs(), block: make(chan struct{})}
	fx := newBuildFixture(t, source)
	fx.createFabric(t, "f1", serviceNowSource())

	started, err := fx.orchestrator.StartBuild(context.Background(), "f1")
	require.NoError(t, err)
	require.NotNil(t, started)
	first, err := fx.store.Get(context.Background(), "f1")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		f, err := fx.store.Get(context.Background(), "f1")
		return err == nil && f.Status == domain.FabricStatusIngesting && f.Revision > first.Revision+1
	}, 5*time.Second, 5*time.Millisecond)

	close(source.block)
}

func TestBuildOrchestrator_SecondProcessRejectedWhileLeaseFresh(t *testing.T) {
	dir := t.TempDir()
	openStore := func() driven.FabricStore {
		st, err := sqlite.NewStore(dir)
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		return st.FabricStore()
	}
	storeA, storeB := openStore(), openStore()

	require.NoError(t, storeA.Create(context.Background(), &domain.Fabric{
		ID:             "f1",
		Name:           "Shared",
		Status:         domain.FabricStatusDraft,
		Source:         serviceNowSource(),
		ChunkSize:      10,
		ChunkOverlap:   4,
		EmbeddingModel: "text-embedding-3-small",
	}))

	source := &buildMockSource{docs: serviceNowDocs(), block: make(chan struct{})}
	newOrchestrator := func(store driven.FabricStore) *BuildOrchestrator {
		o := NewBuildOrchestrator(
			store,
			&buildMockSourceFactory{source: source},
			chunker.New(),
			&chainMockResolver{providers: []driven.EmbeddingService{newChainMock("text-embedding-3-small", 8)}},
			vectormem.NewIndex(),
			domain.PipelineSettings{BatchSize: 2, Heartbeat: 50 * time.Millisecond},
		)
		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = o.Shutdown(ctx)
		})
		return o
	}
	first, second := newOrchestrator(storeA), newOrchestrator(storeB)

	_, err := first.StartBuild(context.Background(), "f1")
	require.NoError(t, err)

	// Outlast the stale window; the heartbeat must keep the lease alive.
	time.Sleep(200 * time.Millisecond)
	_, err = second.StartBuild(context.Background(), "f1")
	assert.ErrorIs(t, err, domain.ErrBuildInProgress)
	assert.False(t, second.Running("f1"))

	close(source.block)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	f, err := first.Wait(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, domain.FabricStatusReady, f.Status)
}

func TestBuildOrchestrator_StaleBuildingStatusIsTakenOver(t *testing.T) {
	fx := newBuildFixture(t, &buildMockSource{docs: serviceNowDocs()})
	fx.createFabric(t, "f1", serviceNowSource())
	_, err := fx.store.Update(context.Background(), "f1", func(f *domain.Fabric) error {
		f.Status = domain.FabricStatusVectorizing
		return nil
	})
	require.NoError(t, err)

	_, err = fx.orchestrator.StartBuild(context.Background(), "f1")
	assert.ErrorIs(t, err, domain.ErrBuildInProgress)

	fx.orchestrator.now = func() time.Time { return time.Now().Add(time.Hour) }
	f := fx.buildAndWait(t, "f1")
	assert.Equal(t, domain.FabricStatusReady, f.Status)
}

func retrieveAll(t *testing.T, fx *buildFixture, id string) *driving.RetrievalResult {
	t.Helper()
	f, err := fx.store.Get(context.Background(), id)
	require.NoError(t, err)
	retriever := NewRetriever(fx.store, &chainMockResolver{providers: []driven.EmbeddingService{
		newChainMock("text-embedding-3-small", 8),
	}}, fx.index, f.ChunksCount)
	result, err := retriever.Retrieve(context.Background(), id, "password reset", f.ChunksCount)
	require.NoError(t, err)
	return result
}

func citationIDs(citations []domain.SourceCitation) []string {
	ids := make([]string, 0, len(citations))
	for _, c := range citations {
		ids = append(ids, c.ID)
	}
	sort.Strings(ids)
	return ids
}

func TestBuildOrchestrator_BuildThenRetrieveCitesChunkDocuments(t *testing.T) {
	docs := append(serviceNowDocs(), domain.SourceDocument{
		ID:       "runbook.md",
		Content:  "restart the mail relay before escalating",
		Source:   "upload",
		Metadata: map[string]any{"file_name": "runbook.md"},
	})
	fx := newBuildFixture(t, &buildMockSource{kind: domain.SourceKindServiceNow, docs: docs})
	fx.createFabric(t, "f1", serviceNowSource())
	require.Equal(t, domain.FabricStatusReady, fx.buildAndWait(t, "f1").Status)

	result := retrieveAll(t, fx, "f1")

	docIDs := make(map[string]bool)
	for _, c := range result.Context {
		docIDs[domain.MetaString(c.Metadata, domain.MetaDocID)] = true
	}
	require.Len(t, result.Citations, len(docIDs))
	for _, c := range result.Citations {
		assert.True(t, docIDs[c.ID], "citation %s has no chunk with that doc_id", c.ID)
	}
	assert.Contains(t, citationIDs(result.Citations), "runbook.md")

	firstIDs := citationIDs(result.Citations)
	require.Equal(t, domain.FabricStatusReady, fx.buildAndWait(t, "f1").Status)
	assert.Equal(t, firstIDs, citationIDs(retrieveAll(t, fx, "f1").Citations))
}

func TestBuildOrchestrator_CollectionDimensionFollowsModelWhenHeadUnavailable(t *testing.T) {
	head := newChainMock("text-embedding-3-small", 8)
	head.embedErr = fmt.Errorf("%w: openai has no API key", driven.ErrTransient)
	local := newChainMock("all-minilm", 4)

	fx := newBuildFixture(t, &buildMockSource{docs: serviceNowDocs()}, head, local)
	fx.createFabric(t, "f1", serviceNowSource())

	f := fx.buildAndWait(t, "f1")
	require.Equal(t, domain.FabricStatusReady, f.Status)
	assert.Equal(t, f.ChunksCount, f.DegradedChunks)

	info, err := fx.index.GetCollection(context.Background(), f.Collection())
	require.NoError(t, err)
	assert.Equal(t, 8, info.Dimension)
}
