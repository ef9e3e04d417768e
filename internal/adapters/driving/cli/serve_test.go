package cli

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/fabric-cli/internal/adapters/driving/mcp"
)

type mockMCPServer struct {
	ranStdio bool
	httpAddr string
	err      error
}

func (m *mockMCPServer) Run(context.Context) error {
	m.ranStdio = true
	return m.err
}

func (m *mockMCPServer) RunHTTP(_ context.Context, addr string) error {
	m.httpAddr = addr
	return m.err
}

func withMockMCP(t *testing.T, server *mockMCPServer) *mcp.Ports {
	t.Helper()
	var got mcp.Ports
	orig := newMCPServer
	newMCPServer = func(ports *mcp.Ports) (mcpServer, error) {
		got = *ports
		return server, nil
	}
	t.Cleanup(func() { newMCPServer = orig })
	return &got
}

func serveServices() *Services {
	return &Services{
		Fabrics:   newMockFabricService(),
		Builds:    &mockBuildOrchestrator{},
		Responder: &mockResponder{},
	}
}

func TestServeCmd_Stdio(t *testing.T) {
	server := &mockMCPServer{}
	ports := withMockMCP(t, server)

	_, err := runCLI(t, serveServices(), "serve")

	require.NoError(t, err)
	assert.True(t, server.ranStdio)
	assert.Empty(t, server.httpAddr)
	assert.NoError(t, ports.Validate())
}

func TestServeCmd_HTTP(t *testing.T) {
	server := &mockMCPServer{}
	withMockMCP(t, server)

	_, err := runCLI(t, serveServices(), "serve", "--http", "127.0.0.1:8811")

	require.NoError(t, err)
	assert.False(t, server.ranStdio)
	assert.Equal(t, "127.0.0.1:8811", server.httpAddr)
}

func TestServeCmd_Errors(t *testing.T) {
	server := &mockMCPServer{err: context.Canceled}
	withMockMCP(t, server)
	_, err := runCLI(t, serveServices(), "serve")
	assert.NoError(t, err)

	server.err = errors.New("listen: address in use")
	_, err = runCLI(t, serveServices(), "serve")
	assert.EqualError(t, err, "listen: address in use")
}

type mockScheduler struct {
	started chan struct{}
	stopped bool
}

func (m *mockScheduler) Start(context.Context) error {
	close(m.started)
	return nil
}

func (m *mockScheduler) Stop() error {
	m.stopped = true
	return nil
}

func TestServeCmd_StartsScheduler(t *testing.T) {
	withMockMCP(t, &mockMCPServer{})
	sched := &mockScheduler{started: make(chan struct{})}
	svc := serveServices()
	svc.Scheduler = sched

	_, err := runCLI(t, svc, "serve")

	require.NoError(t, err)
	<-sched.started
	assert.True(t, sched.stopped)
}
