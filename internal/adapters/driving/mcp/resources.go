package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
)

const uriScheme = "fabric://"

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "fabrics",
		Name:        "fabrics",
		Description: "All fabrics with their build status",
		MIMEType:    "application/json",
	}, s.handleFabricsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "fabrics/{fabricId}",
		Name:        "fabric",
		Description: "A single fabric record",
		MIMEType:    "application/json",
	}, s.handleFabricResource)
}

func (s *Server) handleFabricsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	fabrics, err := s.ports.Fabrics.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing fabrics: %w", err)
	}

	out := make([]FabricOutput, len(fabrics))
	for i, f := range fabrics {
		out[i] = s.fabricOutput(f)
	}
	return jsonResource(req.Params.URI, out)
}

func (s *Server) handleFabricResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	id := extractFabricID(req.Params.URI)
	if id == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	f, err := s.ports.Fabrics.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting fabric: %w", err)
	}
	return jsonResource(req.Params.URI, s.fabricOutput(f))
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractFabricID returns the id from fabric://fabrics/{id}, or "".
func extractFabricID(uri string) string {
	const prefix = uriScheme + "fabrics/"
	id, ok := strings.CutPrefix(uri, prefix)
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
