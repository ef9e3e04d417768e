package mcp

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
)

// FabricOutput is the JSON view of a fabric record.
type FabricOutput struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Status         string     `json:"status"`
	Stage          int        `json:"stage"`
	Building       bool       `json:"building"`
	SourceKind     string     `json:"source_kind,omitempty"`
	EmbeddingModel string     `json:"embedding_model"`
	ChatModel      string     `json:"chat_model"`
	DocumentsCount int        `json:"documents_count"`
	ChunksCount    int        `json:"chunks_count"`
	DegradedChunks int        `json:"degraded_chunks,omitempty"`
	Error          string     `json:"error,omitempty"`
	ErrorKind      string     `json:"error_kind,omitempty"`
	Hint           string     `json:"hint,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
	BuiltAt        *time.Time `json:"built_at,omitempty"`
}

// ListFabricsInput is the input schema for list_fabrics.
type ListFabricsInput struct {
	Status string `json:"status,omitempty" jsonschema:"only return fabrics in this status, e.g. ready"`
}

// ListFabricsOutput is the output schema for list_fabrics.
type ListFabricsOutput struct {
	Fabrics []FabricOutput `json:"fabrics"`
	Count   int            `json:"count"`
}

// FabricIDInput identifies a fabric.
type FabricIDInput struct {
	FabricID string `json:"fabric_id" jsonschema:"the fabric id"`
}

// StartBuildOutput is the output schema for start_build.
type StartBuildOutput struct {
	FabricID        string `json:"fabric_id"`
	Status          string `json:"status"`
	EstimatedWindow string `json:"estimated_window"`
}

// AskInput is the input schema for ask_fabric.
type AskInput struct {
	FabricID string     `json:"fabric_id" jsonschema:"the fabric to query"`
	Question string     `json:"question" jsonschema:"the question to answer"`
	History  []TurnArgs `json:"history,omitempty" jsonschema:"earlier user and assistant turns, oldest first"`
}

// TurnArgs is one prior conversation turn.
type TurnArgs struct {
	Role    string `json:"role" jsonschema:"user or assistant"`
	Content string `json:"content"`
}

// AskOutput is the output schema for ask_fabric.
type AskOutput struct {
	Answer      string           `json:"answer"`
	Model       string           `json:"model,omitempty"`
	ContextUsed int              `json:"context_used"`
	Citations   []CitationOutput `json:"citations"`
}

// CitationOutput is a cited source document.
type CitationOutput struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
	Link    string `json:"link,omitempty"`
	Table   string `json:"table,omitempty"`
	SysID   string `json:"sys_id,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_fabrics",
		Description: "List knowledge fabrics and their build status",
	}, s.handleListFabrics)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "start_build",
		Description: "Start building a fabric in the background; poll build_status for progress",
	}, s.handleStartBuild)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "build_status",
		Description: "Report a fabric's build stage, counts and any error",
	}, s.handleBuildStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask_fabric",
		Description: "Answer a question from a ready fabric's documents, with citations",
	}, s.handleAsk)
}

func (s *Server) handleListFabrics(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListFabricsInput,
) (*mcp.CallToolResult, ListFabricsOutput, error) {
	fabrics, err := s.ports.Fabrics.List(ctx)
	if err != nil {
		return nil, ListFabricsOutput{}, toolError(err)
	}

	out := ListFabricsOutput{Fabrics: make([]FabricOutput, 0, len(fabrics))}
	for _, f := range fabrics {
		if input.Status != "" && string(f.Status) != input.Status {
			continue
		}
		out.Fabrics = append(out.Fabrics, s.fabricOutput(f))
	}
	out.Count = len(out.Fabrics)
	return nil, out, nil
}

func (s *Server) handleStartBuild(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input FabricIDInput,
) (*mcp.CallToolResult, StartBuildOutput, error) {
	ticket, err := s.ports.Builds.StartBuild(ctx, input.FabricID)
	if err != nil {
		return nil, StartBuildOutput{}, toolError(err)
	}
	return nil, StartBuildOutput{
		FabricID:        ticket.FabricID,
		Status:          string(ticket.Status),
		EstimatedWindow: ticket.EstimatedWindow,
	}, nil
}

func (s *Server) handleBuildStatus(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input FabricIDInput,
) (*mcp.CallToolResult, FabricOutput, error) {
	f, err := s.ports.Builds.Status(ctx, input.FabricID)
	if err != nil {
		return nil, FabricOutput{}, toolError(err)
	}
	return nil, s.fabricOutput(f), nil
}

func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	history := make([]domain.ConversationTurn, len(input.History))
	for i, turn := range input.History {
		history[i] = domain.ConversationTurn{Role: turn.Role, Content: turn.Content}
	}

	answer, err := s.ports.Responder.Answer(ctx, input.FabricID, input.Question, history)
	if err != nil {
		return nil, AskOutput{}, toolError(err)
	}

	out := AskOutput{
		Answer:      answer.Text,
		Model:       answer.Model,
		ContextUsed: answer.ContextUsed,
		Citations:   make([]CitationOutput, len(answer.Citations)),
	}
	for i, c := range answer.Citations {
		out.Citations[i] = CitationOutput{
			ID:      c.ID,
			Title:   c.Title,
			Snippet: c.Snippet,
			Link:    c.Link,
			Table:   c.Table,
			SysID:   c.SysID,
		}
	}
	return nil, out, nil
}

func (s *Server) fabricOutput(f *domain.Fabric) FabricOutput {
	out := FabricOutput{
		ID:             f.ID,
		Name:           f.Name,
		Description:    f.Description,
		Status:         string(f.Status),
		Stage:          f.Status.Stage(),
		Building:       s.ports.Builds.Running(f.ID),
		SourceKind:     string(f.Source.Kind),
		EmbeddingModel: f.EmbeddingModel,
		ChatModel:      f.ChatModel,
		DocumentsCount: f.DocumentsCount,
		ChunksCount:    f.ChunksCount,
		DegradedChunks: f.DegradedChunks,
		UpdatedAt:      f.UpdatedAt,
		BuiltAt:        f.BuiltAt,
	}
	if f.Error != nil {
		out.Error = f.Error.Message
		out.ErrorKind = string(f.Error.Kind)
		out.Hint = f.Error.Hint
	}
	return out
}
