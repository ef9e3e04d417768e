package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/fabric-cli/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
)

var _ driven.ConfigStore = (*EnvStore)(nil)

// EnvBindings maps environment variables to the config keys they override.
//
//nolint:gosec // G101: variable names, not credentials.
var EnvBindings = map[string]string{
	"OPENAI_API_KEY":           "embedding.openai_api_key",
	"OPENAI_BASE_URL":          "embedding.openai_base_url",
	"AZURE_OPENAI_ENDPOINT":    "embedding.azure_endpoint",
	"AZURE_OPENAI_API_KEY":     "embedding.azure_api_key",
	"AZURE_OPENAI_API_VERSION": "embedding.azure_api_version",
	"OLLAMA_HOST":              "embedding.ollama_url",
	"ANTHROPIC_API_KEY":        "llm.anthropic_api_key",
	"QDRANT_ADDR":              "vector.qdrant_addr",
	"QDRANT_API_KEY":           "vector.qdrant_api_key",
	"FABRIC_VECTOR_BACKEND":    "vector.backend",
	"FABRIC_STORAGE_BACKEND":   "storage.backend",
	"SERVICENOW_INSTANCE":      "servicenow.instance",
	"SERVICENOW_USERNAME":      "servicenow.username",
	"SERVICENOW_PASSWORD":      "servicenow.password",
	"SERVICENOW_TABLES":        "servicenow.tables",
	"SHAREPOINT_TENANT_ID":     "sharepoint.tenant_id",
	"SHAREPOINT_CLIENT_ID":     "sharepoint.client_id",
	"SHAREPOINT_CLIENT_SECRET": "sharepoint.client_secret",
	"SHAREPOINT_SITE_ID":       "sharepoint.site_id",
}

// LoadDotEnv loads variables from the given .env files without replacing
// variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// EnvStore layers environment variables over a ConfigStore. Reads prefer a
// non-empty bound variable. Writes go to the underlying store.
type EnvStore struct {
	driven.ConfigStore
	lookup func(string) (string, bool)
	byKey  map[string]string
}

// NewEnvStore wraps base with the process environment.
func NewEnvStore(base driven.ConfigStore) *EnvStore {
	return newEnvStore(base, os.LookupEnv)
}

func newEnvStore(base driven.ConfigStore, lookup func(string) (string, bool)) *EnvStore {
	byKey := make(map[string]string, len(EnvBindings))
	for env, key := range EnvBindings {
		byKey[key] = env
	}
	return &EnvStore{ConfigStore: base, lookup: lookup, byKey: byKey}
}

// Source reports where key's value comes from: the environment variable
// name, "file", or "" when unset.
func (s *EnvStore) Source(key string) string {
	if _, ok := s.env(key); ok {
		return s.byKey[key]
	}
	if _, ok := s.ConfigStore.Get(key); ok {
		return "file"
	}
	return ""
}

func (s *EnvStore) env(key string) (string, bool) {
	name, ok := s.byKey[key]
	if !ok {
		return "", false
	}
	v, ok := s.lookup(name)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return "", false
	}
	if name == "OLLAMA_HOST" && !strings.Contains(v, "://") {
		v = "http://" + v
	}
	return v, true
}

// Get returns the environment override for key, else the stored value.
func (s *EnvStore) Get(key string) (any, bool) {
	if v, ok := s.env(key); ok {
		return v, true
	}
	return s.ConfigStore.Get(key)
}

// GetString implements driven.ConfigStore.
func (s *EnvStore) GetString(key string) string {
	if v, ok := s.env(key); ok {
		return v
	}
	return s.ConfigStore.GetString(key)
}

// GetInt implements driven.ConfigStore.
func (s *EnvStore) GetInt(key string) int {
	if _, ok := s.env(key); ok {
		return s.scratch(key).GetInt(key)
	}
	return s.ConfigStore.GetInt(key)
}

// GetFloat implements driven.ConfigStore.
func (s *EnvStore) GetFloat(key string) float64 {
	if _, ok := s.env(key); ok {
		return s.scratch(key).GetFloat(key)
	}
	return s.ConfigStore.GetFloat(key)
}

// GetBool implements driven.ConfigStore.
func (s *EnvStore) GetBool(key string) bool {
	if _, ok := s.env(key); ok {
		return s.scratch(key).GetBool(key)
	}
	return s.ConfigStore.GetBool(key)
}

// GetDuration implements driven.ConfigStore.
func (s *EnvStore) GetDuration(key string) time.Duration {
	if _, ok := s.env(key); ok {
		return s.scratch(key).GetDuration(key)
	}
	return s.ConfigStore.GetDuration(key)
}

// GetStringSlice splits comma separated overrides.
func (s *EnvStore) GetStringSlice(key string) []string {
	if _, ok := s.env(key); ok {
		return s.scratch(key).GetStringSlice(key)
	}
	return s.ConfigStore.GetStringSlice(key)
}

// Keys includes keys that are only set through the environment.
func (s *EnvStore) Keys() []string {
	seen := make(map[string]bool)
	keys := s.ConfigStore.Keys()
	for _, k := range keys {
		seen[k] = true
	}
	for key := range s.byKey {
		if _, ok := s.env(key); ok && !seen[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// scratch wraps a single env override in a store so the typed getters
// share one conversion path.
func (s *EnvStore) scratch(key string) *memory.ConfigStore {
	v, _ := s.env(key)
	return memory.NewConfigStoreFrom(map[string]any{key: v})
}
