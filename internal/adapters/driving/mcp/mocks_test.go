package mcp

import (
	"context"
	"time"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driving"
)

// mockFabricService implements driving.FabricService.
type mockFabricService struct {
	fabrics []*domain.Fabric
	err     error
}

func (m *mockFabricService) Create(_ context.Context, _ driving.FabricSpec) (*domain.Fabric, error) {
	return nil, m.err
}

func (m *mockFabricService) Get(_ context.Context, id string) (*domain.Fabric, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, f := range m.fabrics {
		if f.ID == id {
			return f, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockFabricService) List(_ context.Context) ([]*domain.Fabric, error) {
	return m.fabrics, m.err
}

func (m *mockFabricService) Update(_ context.Context, _ string, _ driving.FabricSpec) (*domain.Fabric, error) {
	return nil, m.err
}

func (m *mockFabricService) Delete(_ context.Context, _ string) error {
	return m.err
}

// mockBuildOrchestrator implements driving.BuildOrchestrator.
type mockBuildOrchestrator struct {
	ticket  *domain.BuildTicket
	fabric  *domain.Fabric
	running map[string]bool
	err     error
	started []string
}

func (m *mockBuildOrchestrator) StartBuild(_ context.Context, id string) (*domain.BuildTicket, error) {
	m.started = append(m.started, id)
	return m.ticket, m.err
}

func (m *mockBuildOrchestrator) Status(_ context.Context, _ string) (*domain.Fabric, error) {
	return m.fabric, m.err
}

func (m *mockBuildOrchestrator) Wait(_ context.Context, _ string) (*domain.Fabric, error) {
	return m.fabric, m.err
}

func (m *mockBuildOrchestrator) Running(id string) bool {
	return m.running[id]
}

func (m *mockBuildOrchestrator) Shutdown(context.Context) error {
	return nil
}

// mockResponder implements driving.Responder.
type mockResponder struct {
	answer  *domain.Answer
	err     error
	history []domain.ConversationTurn
	query   string
}

func (m *mockResponder) Answer(
	_ context.Context,
	_, query string,
	history []domain.ConversationTurn,
) (*domain.Answer, error) {
	m.query = query
	m.history = history
	return m.answer, m.err
}

func testFabrics() []*domain.Fabric {
	built := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []*domain.Fabric{
		{
			ID: "f-ready", Name: "IT Ops", Status: domain.FabricStatusReady,
			Source:         domain.SourceConfig{Kind: domain.SourceKindServiceNow, Enabled: true},
			EmbeddingModel: "text-embedding-3-large", ChatModel: "gpt-4",
			DocumentsCount: 12, ChunksCount: 40, BuiltAt: &built,
		},
		{
			ID: "f-broken", Name: "Policies", Status: domain.FabricStatusError,
			Error: &domain.BuildError{
				Kind:    domain.ErrorKindSourceUnavailable,
				Message: "source unavailable: 401",
				Hint:    "check SharePoint credentials",
			},
		},
	}
}

func newTestServer(fabrics *mockFabricService, builds *mockBuildOrchestrator, responder *mockResponder) *Server {
	if fabrics == nil {
		fabrics = &mockFabricService{}
	}
	if builds == nil {
		builds = &mockBuildOrchestrator{}
	}
	if responder == nil {
		responder = &mockResponder{}
	}
	s, err := NewServer(&Ports{Fabrics: fabrics, Builds: builds, Responder: responder})
	if err != nil {
		panic(err)
	}
	return s
}
