package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/fabric-cli/internal/adapters/driven/config/file"
	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driving"
)

var fabricCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a fabric",
	Long: `Create a fabric in the draft state. A fabric is a named knowledge base
built from one document source.

The configuration comes from flags or from a YAML manifest (-f, or -f - for
stdin). Flags given alongside a manifest override its values.`,
	Example: `  fabric create --name ops --source servicenow --option tables=incident,kb_knowledge
  fabric create -f ops.yaml`,
	Args: cobra.NoArgs,
	RunE: runFabricCreate,
}

var fabricListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List fabrics",
	Args:    cobra.NoArgs,
	RunE:    runFabricList,
}

var fabricGetCmd = &cobra.Command{
	Use:   "get <fabric-id>",
	Short: "Show a fabric",
	Args:  cobra.ExactArgs(1),
	RunE:  runFabricGet,
}

var fabricDeleteCmd = &cobra.Command{
	Use:     "delete <fabric-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a fabric and its vector collection",
	Args:    cobra.ExactArgs(1),
	RunE:    runFabricDelete,
}

var (
	createManifest    string
	createName        string
	createDescription string
	createSource      string
	createOptions     []string
	createChunkSize   int
	createOverlap     int
	createModel       string
	createChatModel   string
	createCollection  string

	fabricJSON bool
)

func init() {
	f := fabricCreateCmd.Flags()
	f.StringVarP(&createManifest, "file", "f", "", "YAML manifest to read (- for stdin)")
	f.StringVar(&createName, "name", "", "fabric name")
	f.StringVar(&createDescription, "description", "", "fabric description")
	f.StringVar(&createSource, "source", "", "source kind: upload, servicenow, sharepoint or demo")
	f.StringArrayVar(&createOptions, "option", nil, "source option as key=value (repeatable)")
	f.IntVar(&createChunkSize, "chunk-size", 0, "words per chunk (default from settings)")
	f.IntVar(&createOverlap, "overlap", 0, "words shared between chunks (default from settings)")
	f.StringVar(&createModel, "model", "", "embedding model")
	f.StringVar(&createChatModel, "chat-model", "", "chat model")
	f.StringVar(&createCollection, "collection", "", "vector collection name")

	fabricListCmd.Flags().BoolVar(&fabricJSON, "json", false, "print JSON")
	fabricGetCmd.Flags().BoolVar(&fabricJSON, "json", false, "print JSON")

	rootCmd.AddCommand(fabricCreateCmd)
	rootCmd.AddCommand(fabricListCmd)
	rootCmd.AddCommand(fabricGetCmd)
	rootCmd.AddCommand(fabricDeleteCmd)
}

func runFabricCreate(cmd *cobra.Command, _ []string) error {
	if err := requireFabrics(); err != nil {
		return err
	}

	spec, err := createSpec(cmd)
	if err != nil {
		return err
	}

	fabric, err := fabricService.Create(cmd.Context(), spec)
	if err != nil {
		return fmt.Errorf("failed to create fabric: %w", err)
	}

	cmd.Printf("Created fabric %s (%s)\n", fabric.Name, fabric.ID)
	cmd.Printf("Run 'fabric build %s' to build it.\n", fabric.ID)
	return nil
}

// createSpec merges the manifest, if any, with the flags that were set.
func createSpec(cmd *cobra.Command) (driving.FabricSpec, error) {
	var spec driving.FabricSpec
	if createManifest != "" {
		loaded, err := file.LoadManifest(createManifest, cmd.InOrStdin())
		if err != nil {
			return spec, err
		}
		spec = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("name") {
		spec.Name = createName
	}
	if flags.Changed("description") {
		spec.Description = createDescription
	}
	if flags.Changed("chunk-size") {
		spec.ChunkSize = createChunkSize
	}
	if flags.Changed("overlap") {
		spec.ChunkOverlap = createOverlap
	}
	if flags.Changed("model") {
		spec.EmbeddingModel = createModel
	}
	if flags.Changed("chat-model") {
		spec.ChatModel = createChatModel
	}
	if flags.Changed("collection") {
		spec.CollectionName = createCollection
	}

	if flags.Changed("source") {
		kind := domain.SourceKind(strings.ToLower(strings.TrimSpace(createSource)))
		if !kind.IsValid() {
			return spec, fmt.Errorf("%w: unknown source kind %q", domain.ErrInvalidInput, createSource)
		}
		spec.Source.Kind = kind
		spec.Source.Enabled = kind != domain.SourceKindNone
	}
	if len(createOptions) > 0 {
		opts, err := parseOptions(createOptions)
		if err != nil {
			return spec, err
		}
		if spec.Source.Options == nil {
			spec.Source.Options = make(map[string]string, len(opts))
		}
		for k, v := range opts {
			spec.Source.Options[k] = v
		}
	}

	if strings.TrimSpace(spec.Name) == "" {
		return spec, fmt.Errorf("%w: a fabric name is required (--name or manifest)", domain.ErrInvalidInput)
	}
	return spec, nil
}

func parseOptions(pairs []string) (map[string]string, error) {
	opts := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: option %q must be key=value", domain.ErrInvalidInput, pair)
		}
		opts[key] = strings.TrimSpace(value)
	}
	return opts, nil
}

func runFabricList(cmd *cobra.Command, _ []string) error {
	if err := requireFabrics(); err != nil {
		return err
	}

	fabrics, err := fabricService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list fabrics: %w", err)
	}

	if fabricJSON {
		views := make([]fabricView, 0, len(fabrics))
		for _, f := range fabrics {
			views = append(views, newFabricView(f))
		}
		return writeJSON(cmd.OutOrStdout(), views)
	}

	if len(fabrics) == 0 {
		cmd.Println("No fabrics. Create one with 'fabric create'.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tSOURCE\tDOCS\tCHUNKS")
	for _, f := range fabrics {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			f.ID, f.Name, f.Status, sourceLabel(f.Source.Kind), f.DocumentsCount, f.ChunksCount)
	}
	return w.Flush()
}

func runFabricGet(cmd *cobra.Command, args []string) error {
	if err := requireFabrics(); err != nil {
		return err
	}

	fabric, err := fabricService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get fabric: %w", err)
	}

	if fabricJSON {
		return writeJSON(cmd.OutOrStdout(), newFabricView(fabric))
	}
	printFabric(cmd, fabric)
	return nil
}

func runFabricDelete(cmd *cobra.Command, args []string) error {
	if err := requireFabrics(); err != nil {
		return err
	}

	if err := fabricService.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete fabric: %w", err)
	}
	cmd.Printf("Deleted fabric %s\n", args[0])
	return nil
}

func printFabric(cmd *cobra.Command, f *domain.Fabric) {
	cmd.Printf("Fabric: %s\n", f.Name)
	cmd.Printf("  ID:          %s\n", f.ID)
	if f.Description != "" {
		cmd.Printf("  Description: %s\n", f.Description)
	}
	cmd.Printf("  Status:      %s\n", f.Status)
	cmd.Printf("  Source:      %s\n", sourceLabel(f.Source.Kind))
	cmd.Printf("  Chunking:    %d words, %d overlap\n", f.ChunkSize, f.ChunkOverlap)
	cmd.Printf("  Embedding:   %s\n", f.EmbeddingModel)
	cmd.Printf("  Chat:        %s\n", f.ChatModel)
	cmd.Printf("  Collection:  %s\n", f.Collection())
	cmd.Printf("  Documents:   %d\n", f.DocumentsCount)
	cmd.Printf("  Chunks:      %d\n", f.ChunksCount)
	if f.DegradedChunks > 0 {
		cmd.Printf("  Degraded:    %d chunks stored without embeddings\n", f.DegradedChunks)
	}
	if f.BuiltAt != nil {
		cmd.Printf("  Built:       %s\n", f.BuiltAt.Local().Format(time.RFC1123))
	}
	if f.Error != nil {
		cmd.Printf("  Error:       %s\n", f.Error.Message)
		if f.Error.Hint != "" {
			cmd.Printf("  Hint:        %s\n", f.Error.Hint)
		}
	}
}

func sourceLabel(kind domain.SourceKind) string {
	if kind == domain.SourceKindNone {
		return "none"
	}
	return string(kind)
}

// fabricView is the JSON shape of a fabric.
type fabricView struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	Status         string     `json:"status"`
	Source         string     `json:"source"`
	ChunkSize      int        `json:"chunk_size"`
	ChunkOverlap   int        `json:"chunk_overlap"`
	EmbeddingModel string     `json:"embedding_model"`
	ChatModel      string     `json:"chat_model"`
	Collection     string     `json:"collection"`
	DocumentsCount int        `json:"documents_count"`
	ChunksCount    int        `json:"chunks_count"`
	DegradedChunks int        `json:"degraded_chunks,omitempty"`
	Error          *errorView `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	BuiltAt        *time.Time `json:"built_at,omitempty"`
}

func newFabricView(f *domain.Fabric) fabricView {
	return fabricView{
		ID:             f.ID,
		Name:           f.Name,
		Description:    f.Description,
		Status:         string(f.Status),
		Source:         sourceLabel(f.Source.Kind),
		ChunkSize:      f.ChunkSize,
		ChunkOverlap:   f.ChunkOverlap,
		EmbeddingModel: f.EmbeddingModel,
		ChatModel:      f.ChatModel,
		Collection:     f.Collection(),
		DocumentsCount: f.DocumentsCount,
		ChunksCount:    f.ChunksCount,
		DegradedChunks: f.DegradedChunks,
		Error:          newErrorView(f.Error),
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
		BuiltAt:        f.BuiltAt,
	}
}

type errorView struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

func newErrorView(e *domain.BuildError) *errorView {
	if e == nil {
		return nil
	}
	return &errorView{Kind: string(e.Kind), Message: e.Message, Hint: e.Hint}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
