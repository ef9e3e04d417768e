package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driving"
)

type mockFabricService struct {
	fabrics   map[string]*domain.Fabric
	created   *driving.FabricSpec
	deleted   []string
	createErr error
	deleteErr error
}

func newMockFabricService(fabrics ...*domain.Fabric) *mockFabricService {
	m := &mockFabricService{fabrics: make(map[string]*domain.Fabric)}
	for _, f := range fabrics {
		m.fabrics[f.ID] = f
	}
	return m
}

func (m *mockFabricService) Create(_ context.Context, spec driving.FabricSpec) (*domain.Fabric, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created = &spec
	return &domain.Fabric{ID: "new-id", Name: spec.Name, Status: domain.FabricStatusDraft}, nil
}

func (m *mockFabricService) Get(_ context.Context, id string) (*domain.Fabric, error) {
	f, ok := m.fabrics[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return f, nil
}

func (m *mockFabricService) List(_ context.Context) ([]*domain.Fabric, error) {
	out := make([]*domain.Fabric, 0, len(m.fabrics))
	for _, f := range m.fabrics {
		out = append(out, f)
	}
	return out, nil
}

func (m *mockFabricService) Update(_ context.Context, id string, _ driving.FabricSpec) (*domain.Fabric, error) {
	return m.Get(context.Background(), id)
}

func (m *mockFabricService) Delete(_ context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, id)
	return nil
}

// mockBuildOrchestrator replays statuses: each Status call advances one
// step until the last, which is then repeated.
type mockBuildOrchestrator struct {
	mu       sync.Mutex
	statuses []*domain.Fabric
	calls    int
	started  []string
	startErr error
	waitErr  error
	running  bool
}

func (m *mockBuildOrchestrator) StartBuild(_ context.Context, id string) (*domain.BuildTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		err := m.startErr
		m.startErr = nil
		return nil, err
	}
	m.started = append(m.started, id)
	return &domain.BuildTicket{FabricID: id, Status: domain.FabricStatusIngesting, EstimatedWindow: "1-3 minutes"}, nil
}

func (m *mockBuildOrchestrator) Status(_ context.Context, _ string) (*domain.Fabric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.statuses) == 0 {
		return nil, domain.ErrNotFound
	}
	i := m.calls
	if i >= len(m.statuses) {
		i = len(m.statuses) - 1
	}
	m.calls++
	return m.statuses[i], nil
}

func (m *mockBuildOrchestrator) Wait(_ context.Context, _ string) (*domain.Fabric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.waitErr != nil {
		return nil, m.waitErr
	}
	return m.statuses[len(m.statuses)-1], nil
}

func (m *mockBuildOrchestrator) Running(_ string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *mockBuildOrchestrator) Shutdown(_ context.Context) error { return nil }

func (m *mockBuildOrchestrator) startedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.started...)
}

type mockResponder struct {
	answer   *domain.Answer
	err      error
	fabricID string
	query    string
	hasDL    bool
}

func (m *mockResponder) Answer(ctx context.Context, fabricID, query string, _ []domain.ConversationTurn) (*domain.Answer, error) {
	m.fabricID = fabricID
	m.query = query
	_, m.hasDL = ctx.Deadline()
	if m.err != nil {
		return nil, m.err
	}
	return m.answer, nil
}

type mockSettingsService struct {
	settings domain.AppSettings
	set      map[string]string
	setErr   error
}

func newMockSettingsService() *mockSettingsService {
	return &mockSettingsService{settings: domain.DefaultAppSettings(), set: make(map[string]string)}
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Set(key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.set[key] = value
	return nil
}

func (m *mockSettingsService) Keys() []string {
	return []string{"pipeline.chunk_size", "vector.backend"}
}

func (m *mockSettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

type mockChecker struct {
	embedLines []string
	embedErr   error
	chatLine   string
	chatErr    error
}

func (m *mockChecker) CheckEmbedding(_ context.Context, _ string) ([]string, error) {
	return m.embedLines, m.embedErr
}

func (m *mockChecker) CheckChat(_ context.Context, _ string) (string, error) {
	return m.chatLine, m.chatErr
}

type mockKeySourcer map[string]string

func (m mockKeySourcer) Source(key string) string { return m[key] }

type mockSourceFactory struct {
	source driven.DocumentSource
	err    error
}

func (m *mockSourceFactory) Create(_ domain.SourceConfig) (driven.DocumentSource, error) {
	return m.source, m.err
}

type mockDocumentSource struct{}

func (mockDocumentSource) Kind() domain.SourceKind { return domain.SourceKindDemo }

func (mockDocumentSource) Fetch(_ context.Context) ([]domain.SourceDocument, error) { return nil, nil }

type mockWatchableSource struct {
	mockDocumentSource
	changes chan domain.SourceChange
	closed  bool
}

func (m *mockWatchableSource) Watch(_ context.Context) (<-chan domain.SourceChange, error) {
	return m.changes, nil
}

func (m *mockWatchableSource) Close() error {
	m.closed = true
	return nil
}

func readyFabric(id string) *domain.Fabric {
	built := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &domain.Fabric{
		ID:             id,
		Name:           "ops",
		Status:         domain.FabricStatusReady,
		Source:         domain.SourceConfig{Kind: domain.SourceKindServiceNow, Enabled: true},
		ChunkSize:      512,
		ChunkOverlap:   64,
		EmbeddingModel: domain.DefaultEmbeddingModel,
		ChatModel:      domain.DefaultChatModel,
		DocumentsCount: 3,
		ChunksCount:    12,
		BuiltAt:        &built,
	}
}

// runCLI executes rootCmd with args against svc and returns its output.
func runCLI(t *testing.T, svc *Services, args ...string) (string, error) {
	t.Helper()

	SetServices(svc)
	resetFlags(rootCmd)
	origPoll := pollInterval
	pollInterval = time.Millisecond
	t.Cleanup(func() {
		SetServices(&Services{})
		resetFlags(rootCmd)
		pollInterval = origPoll
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
