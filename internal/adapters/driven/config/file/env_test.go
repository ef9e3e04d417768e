package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envLookup(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func newTestEnvStore(t *testing.T, vars map[string]string) (*EnvStore, *ConfigStore) {
	t.Helper()
	base, _ := newTestConfigStore(t)
	return newEnvStore(base, envLookup(vars)), base
}

func TestEnvStore_EnvOverridesFile(t *testing.T) {
	store, base := newTestEnvStore(t, map[string]string{
		"OPENAI_API_KEY": "sk-env",
		"QDRANT_ADDR":    "",
	})
	require.NoError(t, base.Set("embedding.openai_api_key", "sk-file"))
	require.NoError(t, base.Set("vector.qdrant_addr", "file:6334"))

	assert.Equal(t, "sk-env", store.GetString("embedding.openai_api_key"))
	assert.Equal(t, "file:6334", store.GetString("vector.qdrant_addr"), "empty variables are ignored")

	v, ok := store.Get("embedding.openai_api_key")
	assert.True(t, ok)
	assert.Equal(t, "sk-env", v)

	assert.Equal(t, "OPENAI_API_KEY", store.Source("embedding.openai_api_key"))
	assert.Equal(t, "file", store.Source("vector.qdrant_addr"))
	assert.Equal(t, "", store.Source("llm.anthropic_api_key"))
}

func TestEnvStore_OllamaHostGetsScheme(t *testing.T) {
	store, _ := newTestEnvStore(t, map[string]string{"OLLAMA_HOST": "gpu-box:11434"})
	assert.Equal(t, "http://gpu-box:11434", store.GetString("embedding.ollama_url"))

	store, _ = newTestEnvStore(t, map[string]string{"OLLAMA_HOST": "https://ollama.internal"})
	assert.Equal(t, "https://ollama.internal", store.GetString("embedding.ollama_url"))
}

func TestEnvStore_TypedOverrides(t *testing.T) {
	store, base := newTestEnvStore(t, map[string]string{
		"SERVICENOW_TABLES": "incident, problem",
	})
	require.NoError(t, base.Set("servicenow.tables", []string{"kb_knowledge"}))
	require.NoError(t, base.Set("pipeline.top_k", 9))
	require.NoError(t, base.Set("pipeline.temperature", 0.3))
	require.NoError(t, base.Set("pipeline.heartbeat", "10s"))

	assert.Equal(t, []string{"incident", "problem"}, store.GetStringSlice("servicenow.tables"))
	assert.Equal(t, 9, store.GetInt("pipeline.top_k"))
	assert.InDelta(t, 0.3, store.GetFloat("pipeline.temperature"), 1e-9)
	assert.Equal(t, 10*time.Second, store.GetDuration("pipeline.heartbeat"))
	assert.False(t, store.GetBool("pipeline.top_k"))
}

func TestEnvStore_SetWritesThrough(t *testing.T) {
	store, base := newTestEnvStore(t, map[string]string{"ANTHROPIC_API_KEY": "env"})

	require.NoError(t, store.Set("llm.anthropic_api_key", "file"))
	assert.Equal(t, "file", base.GetString("llm.anthropic_api_key"))
	assert.Equal(t, "env", store.GetString("llm.anthropic_api_key"))
}

func TestEnvStore_KeysIncludeEnvOnly(t *testing.T) {
	store, base := newTestEnvStore(t, map[string]string{
		"SHAREPOINT_SITE_ID": "site-1",
		"OPENAI_API_KEY":     "sk",
	})
	require.NoError(t, base.Set("embedding.openai_api_key", "sk-file"))
	require.NoError(t, base.Set("pipeline.top_k", 5))

	assert.Equal(t, []string{
		"embedding.openai_api_key",
		"pipeline.top_k",
		"sharepoint.site_id",
	}, store.Keys())
}

func TestEnvBindings_Unique(t *testing.T) {
	seen := make(map[string]string)
	for env, key := range EnvBindings {
		prev, dup := seen[key]
		assert.False(t, dup, "%s and %s both bind %s", prev, env, key)
		seen[key] = env
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("FABRIC_TEST_A=from-file\nFABRIC_TEST_B=from-file\n"), 0o600))

	t.Setenv("FABRIC_TEST_B", "already-set")
	t.Cleanup(func() { _ = os.Unsetenv("FABRIC_TEST_A") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("FABRIC_TEST_A"))
	assert.Equal(t, "already-set", os.Getenv("FABRIC_TEST_B"))
}

func TestLoadDotEnv_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("KEY='unterminated\n"), 0o600))

	assert.Error(t, LoadDotEnv(path))
}
