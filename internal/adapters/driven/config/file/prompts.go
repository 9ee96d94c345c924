package file

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/custodia-labs/finrag/internal/core/ports/driven"
)

var _ driven.PromptStore = (*PromptStore)(nil)

//go:embed defaults
var defaults embed.FS

// PromptStore serves answer templates from <dir>/<name>.txt. The directory
// is seeded from the built-in templates on the first Load.
type PromptStore struct {
	dir string

	seed    sync.Once
	seedErr error

	mu    sync.RWMutex
	cache map[string]string
}

// DefaultPrompt returns the built-in template for name.
func DefaultPrompt(name string) (string, bool) {
	raw, err := defaults.ReadFile("defaults/" + name + ".txt")
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(raw)), true
}

// NewPromptStore returns a store over dir, ~/.finrag/prompts when empty.
// Nothing touches the disk until Load.
func NewPromptStore(dir string) (*PromptStore, error) {
	if dir == "" {
		root, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(root, "prompts")
	}
	return &PromptStore{dir: dir, cache: map[string]string{}}, nil
}

// Load returns the template for name. A file that is missing, unreadable, or
// whose format verbs differ from the built-in template is replaced by the
// built-in one.
func (s *PromptStore) Load(name string) (string, error) {
	def, known := DefaultPrompt(name)

	s.seed.Do(func() { s.seedErr = s.seedDir() })
	if s.seedErr != nil {
		if known {
			return def, nil
		}
		return "", fmt.Errorf("prompt %q: %w", name, s.seedErr)
	}

	s.mu.RLock()
	cached, ok := s.cache[name]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	raw, err := os.ReadFile(filepath.Join(s.dir, name+".txt"))
	var prompt string
	switch {
	case err != nil && !known:
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	case err != nil:
		return def, nil
	default:
		prompt = strings.TrimSpace(string(raw))
	}
	if known && !slices.Equal(verbs(prompt), verbs(def)) {
		prompt = def
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.cache[name]; ok {
		return cached, nil
	}
	s.cache[name] = prompt
	return prompt, nil
}

// Reload drops cached templates so the next Load reads the files again.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	clear(s.cache)
	s.mu.Unlock()
}

func (s *PromptStore) Dir() string { return s.dir }

// seedDir copies every built-in file the directory does not have yet.
// Existing files are left as the user edited them.
func (s *PromptStore) seedDir() error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create prompt directory: %w", err)
	}
	entries, err := defaults.ReadDir("defaults")
	if err != nil {
		return err
	}
	for _, e := range entries {
		dst := filepath.Join(s.dir, e.Name())
		if _, err := os.Stat(dst); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		raw, err := defaults.ReadFile("defaults/" + e.Name())
		if err != nil {
			return err
		}
		if err := os.WriteFile(dst, raw, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", e.Name(), err)
		}
	}
	return nil
}

var verbPattern = regexp.MustCompile(`%[sdvq]`)

// verbs lists the format verbs of tmpl in order.
func verbs(tmpl string) []string {
	return verbPattern.FindAllString(tmpl, -1)
}
