package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and change provider credentials, pipeline defaults and backends.

Settings live in config.toml under the config directory. Environment
variables (and a .env file) override the file.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a setting",
	Example: `  fabric settings set pipeline.chunk_size 256
  fabric settings set vector.backend qdrant`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List recognised setting keys",
	Args:  cobra.NoArgs,
	RunE:  runSettingsKeys,
}

var settingsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the default providers are reachable",
	Args:  cobra.NoArgs,
	RunE:  runSettingsCheck,
}

// KeySourcer reports where a setting value came from: an environment
// variable name, "file", or "" when unset.
type KeySourcer interface {
	Source(key string) string
}

var keySourcer KeySourcer

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsKeysCmd)
	settingsCmd.AddCommand(settingsCheckCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	s, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("[Providers]")
	showSecret(cmd, "OpenAI API Key", "embedding.openai_api_key", s.AI.OpenAIAPIKey)
	showValue(cmd, "OpenAI Base URL", "embedding.openai_base_url", s.AI.OpenAIBaseURL)
	showValue(cmd, "Azure Endpoint", "embedding.azure_endpoint", s.AI.AzureEndpoint)
	showSecret(cmd, "Azure API Key", "embedding.azure_api_key", s.AI.AzureAPIKey)
	showValue(cmd, "Azure API Version", "embedding.azure_api_version", s.AI.AzureAPIVersion)
	showValue(cmd, "Ollama URL", "embedding.ollama_url", s.AI.OllamaURL)
	showValue(cmd, "Local Model", "embedding.local_model", s.AI.LocalModel())
	showSecret(cmd, "Anthropic API Key", "llm.anthropic_api_key", s.AI.AnthropicAPIKey)
	cmd.Println()

	cmd.Println("[Pipeline]")
	p := s.Pipeline
	showValue(cmd, "Chunk Size", "pipeline.chunk_size", fmt.Sprint(p.ChunkSize))
	showValue(cmd, "Chunk Overlap", "pipeline.chunk_overlap", fmt.Sprint(p.ChunkOverlap))
	showValue(cmd, "Embedding Model", "pipeline.embedding_model", p.EmbeddingModel)
	showValue(cmd, "Chat Model", "pipeline.chat_model", p.ChatModel)
	showValue(cmd, "Top K", "pipeline.top_k", fmt.Sprint(p.TopK))
	showValue(cmd, "Batch Size", "pipeline.batch_size", fmt.Sprint(p.BatchSize))
	showValue(cmd, "Temperature", "pipeline.temperature", fmt.Sprint(p.Temperature))
	showValue(cmd, "Max Tokens", "pipeline.max_tokens", fmt.Sprint(p.MaxTokens))
	if p.RefreshInterval > 0 {
		showValue(cmd, "Refresh Interval", "pipeline.refresh_interval", p.RefreshInterval.String())
	}
	cmd.Println()

	cmd.Println("[Storage]")
	showValue(cmd, "Fabric Store", "storage.backend", string(s.Storage))
	showValue(cmd, "Vector Index", "vector.backend", string(s.Vector))
	if s.Vector == domain.VectorBackendQdrant {
		showValue(cmd, "Qdrant Address", "vector.qdrant_addr", s.QdrantAddr)
		showSecret(cmd, "Qdrant API Key", "vector.qdrant_api_key", s.QdrantAPIKey)
	}
	cmd.Println()

	cmd.Println("[ServiceNow]")
	showValue(cmd, "Instance", "servicenow.instance", s.ServiceNow.Instance)
	showValue(cmd, "Username", "servicenow.username", s.ServiceNow.Username)
	showSecret(cmd, "Password", "servicenow.password", s.ServiceNow.Password)
	showValue(cmd, "Tables", "servicenow.tables", strings.Join(s.ServiceNow.Tables, ", "))
	cmd.Println()

	cmd.Println("[SharePoint]")
	showValue(cmd, "Tenant ID", "sharepoint.tenant_id", s.SharePoint.TenantID)
	showValue(cmd, "Client ID", "sharepoint.client_id", s.SharePoint.ClientID)
	showSecret(cmd, "Client Secret", "sharepoint.client_secret", s.SharePoint.ClientSecret)
	showValue(cmd, "Site ID", "sharepoint.site_id", s.SharePoint.SiteID)

	if !s.AI.HasOpenAI() && !s.AI.HasAzure() {
		cmd.Println()
		cmd.Println("Note: no hosted embedding provider is configured; builds will use the local model.")
	}
	return nil
}

func showValue(cmd *cobra.Command, label, key, value string) {
	if value == "" {
		value = "(not set)"
	}
	cmd.Printf("  %-18s %s%s\n", label+":", value, origin(key))
}

func showSecret(cmd *cobra.Command, label, key, value string) {
	if value != "" {
		value = maskAPIKey(value)
	}
	showValue(cmd, label, key, value)
}

func origin(key string) string {
	if keySourcer == nil {
		return ""
	}
	switch src := keySourcer.Source(key); src {
	case "", "file":
		return ""
	default:
		return " (from " + src + ")"
	}
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	key, value := strings.TrimSpace(args[0]), args[1]
	if err := settingsService.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	shown := value
	if isSecretKey(key) {
		shown = maskAPIKey(value)
	}
	cmd.Printf("Set %s = %s\n", key, shown)
	if src := origin(key); src != "" {
		cmd.Printf("Note: the environment overrides this value%s.\n", src)
	}
	return nil
}

func runSettingsKeys(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	for _, key := range settingsService.Keys() {
		cmd.Println(key)
	}
	return nil
}

func runSettingsCheck(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	if providerChecker == nil {
		return errors.New("provider checks not available")
	}
	ctx := cmd.Context()

	s, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Printf("Embedding chain for %s:\n", s.Pipeline.EmbeddingModel)
	lines, err := providerChecker.CheckEmbedding(ctx, s.Pipeline.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("embedding: %w", withHint(err))
	}
	for _, line := range lines {
		cmd.Printf("  %s\n", line)
	}

	cmd.Printf("Chat provider for %s:\n", s.Pipeline.ChatModel)
	line, err := providerChecker.CheckChat(ctx, s.Pipeline.ChatModel)
	if err != nil {
		return fmt.Errorf("chat: %w", withHint(err))
	}
	cmd.Printf("  %s\n", line)
	return nil
}

func isSecretKey(key string) bool {
	return strings.HasSuffix(key, "api_key") ||
		strings.HasSuffix(key, "password") ||
		strings.HasSuffix(key, "secret")
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
