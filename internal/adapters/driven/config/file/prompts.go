package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/fabric-cli/internal/core/domain"
	"github.com/custodia-labs/fabric-cli/internal/core/ports/driven"
)

var _ driven.PromptStore = (*PromptStore)(nil)

// promptExt is the file extension of prompt files.
const promptExt = ".txt"

// defaultPrompts seeds the prompt directory and backs any prompt whose file
// is missing or unreadable.
var defaultPrompts = map[string]string{
	driven.PromptAnswerSystem: domain.DefaultAnswerSystemPrompt,
}

const promptsReadme = `# Fabric prompts

Prompts used when answering questions against a fabric.

- answer_system.txt: system prompt sent with every ask request

Edit a file to change how answers are written. Delete it to restore the
built-in default on the next run. A running server picks up edits after
a restart.
`

// PromptStore reads prompts from user-editable files under a directory.
// Nothing touches disk until the first Load.
type PromptStore struct {
	dir string

	once    sync.Once
	seedErr error

	mu    sync.RWMutex
	cache map[string]string
}

// NewPromptStore creates a prompt store rooted at dir.
// An empty dir means ~/.fabric/prompts.
func NewPromptStore(dir string) (*PromptStore, error) {
	if dir == "" {
		root, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(root, "prompts")
	}
	return &PromptStore{dir: dir, cache: make(map[string]string)}, nil
}

// Dir returns the prompt directory.
func (s *PromptStore) Dir() string {
	return s.dir
}

// Load returns the named prompt. Blank files and read failures fall back to
// the built-in default when one exists.
func (s *PromptStore) Load(name string) (string, error) {
	s.once.Do(s.seed)

	s.mu.RLock()
	cached, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	fallback, hasDefault := defaultPrompts[name]
	if s.seedErr != nil {
		if hasDefault {
			return fallback, nil
		}
		return "", fmt.Errorf("prompt directory: %w", s.seedErr)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name+promptExt))
	prompt := strings.TrimSpace(string(data))
	switch {
	case err != nil && !hasDefault:
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	case err != nil || prompt == "":
		prompt = fallback
	}

	s.mu.Lock()
	if existing, ok := s.cache[name]; ok {
		prompt = existing
	} else {
		s.cache[name] = prompt
	}
	s.mu.Unlock()
	return prompt, nil
}

// Reload drops cached prompts so edits are read on the next Load.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// seed creates the directory and writes any missing default files.
func (s *PromptStore) seed() {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		s.seedErr = err
		return
	}
	files := map[string]string{"README.md": promptsReadme}
	for name, content := range defaultPrompts {
		files[name+promptExt] = content + "\n"
	}
	for name, content := range files {
		path := filepath.Join(s.dir, name)
		if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			s.seedErr = fmt.Errorf("write %s: %w", name, err)
			return
		}
	}
}
