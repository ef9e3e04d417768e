package domain

import (
	"fmt"
	"strings"
	"time"
)

// FabricStatus is a stage of the fabric build state machine.
type FabricStatus string

// Build stages, in order. Error is reachable from any non-terminal stage.
const (
	FabricStatusDraft         FabricStatus = "draft"
	FabricStatusIngesting     FabricStatus = "ingesting"
	FabricStatusChunking      FabricStatus = "chunking"
	FabricStatusVectorizing   FabricStatus = "vectorizing"
	FabricStatusGraphBuilding FabricStatus = "graph_building"
	FabricStatusReady         FabricStatus = "ready"
	FabricStatusError         FabricStatus = "error"
)

var stageOrder = map[FabricStatus]int{
	FabricStatusDraft:         0,
	FabricStatusIngesting:     1,
	FabricStatusChunking:      2,
	FabricStatusVectorizing:   3,
	FabricStatusGraphBuilding: 4,
	FabricStatusReady:         5,
}

// IsValid returns true if the status is recognised.
func (s FabricStatus) IsValid() bool {
	if s == FabricStatusError {
		return true
	}
	_, ok := stageOrder[s]
	return ok
}

// IsTerminal returns true for the end states of a build attempt.
func (s FabricStatus) IsTerminal() bool {
	return s == FabricStatusReady || s == FabricStatusError
}

// IsBuilding returns true while a pipeline stage is running.
func (s FabricStatus) IsBuilding() bool {
	switch s {
	case FabricStatusIngesting, FabricStatusChunking, FabricStatusVectorizing, FabricStatusGraphBuilding:
		return true
	default:
		return false
	}
}

// Stage returns the ordinal of the status in the pipeline, or -1 for Error.
func (s FabricStatus) Stage() int {
	if n, ok := stageOrder[s]; ok {
		return n
	}
	return -1
}

// String returns the string representation.
func (s FabricStatus) String() string {
	return string(s)
}

// SourceKind identifies where a fabric's documents come from.
type SourceKind string

// Available source kinds. An empty kind means no source is configured.
const (
	SourceKindNone       SourceKind = ""
	SourceKindUpload     SourceKind = "upload"
	SourceKindServiceNow SourceKind = "servicenow"
	SourceKindSharePoint SourceKind = "sharepoint"
	SourceKindDemo       SourceKind = "demo"
)

// IsValid returns true if the source kind is recognised.
func (k SourceKind) IsValid() bool {
	switch k {
	case SourceKindNone, SourceKindUpload, SourceKindServiceNow, SourceKindSharePoint, SourceKindDemo:
		return true
	default:
		return false
	}
}

// SourceConfig describes the document source of a fabric.
type SourceConfig struct {
	// Kind selects the DocumentSource implementation.
	Kind SourceKind

	// Enabled marks an explicitly configured source. Enabled sources that
	// return no documents fail the build instead of using a placeholder.
	Enabled bool

	// Options holds kind-specific settings (instance_url, tables, path, ...).
	Options map[string]string
}

// IsExplicit returns true when the source was configured by the user and
// must therefore produce documents.
func (c SourceConfig) IsExplicit() bool {
	return c.Enabled && c.Kind != SourceKindNone && c.Kind != SourceKindDemo
}

// Option returns a trimmed option value, or def when unset.
func (c SourceConfig) Option(key, def string) string {
	if v := strings.TrimSpace(c.Options[key]); v != "" {
		return v
	}
	return def
}

// Fabric is a named, independently built knowledge base tied to one vector
// collection and one document source configuration.
type Fabric struct {
	ID          string
	Name        string
	Description string

	// Status is the current stage of the build state machine.
	Status FabricStatus

	Source SourceConfig

	ChunkSize      int
	ChunkOverlap   int
	EmbeddingModel string
	ChatModel      string
	CollectionName string

	DocumentsCount int
	ChunksCount    int

	// DegradedChunks counts chunks stored with a zero vector after every
	// embedding provider failed for them.
	DegradedChunks int

	// GraphNodes and GraphEdges are reserved and always zero.
	GraphNodes int
	GraphEdges int

	// Error is set only while Status is FabricStatusError.
	Error *BuildError

	CreatedAt time.Time
	UpdatedAt time.Time
	BuiltAt   *time.Time

	// Revision increases on every write and guards compare-and-swap updates.
	Revision int64
}

// DefaultCollectionName returns the collection name used when none is configured.
func DefaultCollectionName(fabricID string) string {
	return "fabric-" + fabricID
}

// Collection returns the configured collection name or the derived default.
func (f *Fabric) Collection() string {
	if f.CollectionName != "" {
		return f.CollectionName
	}
	return DefaultCollectionName(f.ID)
}

// BuildStaleAfter is how long a building status may go without a heartbeat
// before the build is considered abandoned by a crashed process.
func BuildStaleAfter(heartbeat time.Duration) time.Duration {
	if heartbeat <= 0 {
		heartbeat = DefaultPipelineSettings().Heartbeat
	}
	return 3 * heartbeat
}

// BuildLeaseHeld reports whether some process still owns the fabric's
// build: the status is a building stage refreshed within staleAfter.
func (f *Fabric) BuildLeaseHeld(now time.Time, staleAfter time.Duration) bool {
	return f.Status.IsBuilding() && now.Sub(f.UpdatedAt) < staleAfter
}

// Clone returns a deep copy of the fabric.
func (f *Fabric) Clone() *Fabric {
	if f == nil {
		return nil
	}
	c := *f
	if f.Source.Options != nil {
		c.Source.Options = make(map[string]string, len(f.Source.Options))
		for k, v := range f.Source.Options {
			c.Source.Options[k] = v
		}
	}
	if f.Error != nil {
		e := *f.Error
		c.Error = &e
	}
	if f.BuiltAt != nil {
		t := *f.BuiltAt
		c.BuiltAt = &t
	}
	return &c
}

// BuildTicket is returned when a build is accepted.
type BuildTicket struct {
	FabricID string

	// Status is the state the pipeline starts in.
	Status FabricStatus

	// EstimatedWindow is a human-readable completion estimate.
	EstimatedWindow string
}

// EstimatedBuildWindow returns the completion estimate for a source kind.
func EstimatedBuildWindow(kind SourceKind) string {
	if kind == SourceKindServiceNow {
		return "2-5 minutes"
	}
	return "1-3 minutes"
}

// ValidateChunking checks that chunk parameters advance the word window on
// every step: size > 0 and 0 <= overlap < size.
func ValidateChunking(chunkSize, chunkOverlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrConfiguration, chunkSize)
	}
	if chunkOverlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", ErrConfiguration, chunkOverlap)
	}
	if chunkOverlap >= chunkSize {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d",
			ErrConfiguration, chunkOverlap, chunkSize)
	}
	return nil
}
