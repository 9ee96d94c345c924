package file

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/finrag/internal/core/ports/driven"
)

var _ driven.ConfigStore = (*ConfigStore)(nil)

// EnvPrefix prefixes environment overrides: FINRAG_LLM_API_KEY overrides
// "llm.api_key".
const EnvPrefix = "FINRAG_"

const configFile = "config.toml"

// ConfigStore keeps settings in <dir>/config.toml under [section] tables and
// addresses them by dotted key. Environment overrides win on read and are
// never written back.
type ConfigStore struct {
	mu     sync.RWMutex
	path   string
	values map[string]any
	lookup func(string) (string, bool)
}

// DefaultDir returns ~/.finrag.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".finrag"), nil
}

// NewConfigStore opens the config in dir, DefaultDir when empty, creating
// the directory. A missing file is an empty config.
func NewConfigStore(dir string) (*ConfigStore, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	s := &ConfigStore{
		path:   filepath.Join(dir, configFile),
		values: map[string]any{},
		lookup: os.LookupEnv,
	}
	if err := s.Load(); err != nil {
		return nil, fmt.Errorf("load %s: %w", s.path, err)
	}
	return s, nil
}

// LoadDotEnv exports the variables in each existing .env file. Variables
// already in the environment keep their value.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

// EnvKey returns the environment variable that overrides key.
func EnvKey(key string) string {
	return EnvPrefix + strings.ToUpper(envKeyReplacer.Replace(key))
}

func (s *ConfigStore) Get(key string) (any, bool) {
	if s.lookup != nil {
		if v, ok := s.lookup(EnvKey(key)); ok && v != "" {
			return v, true
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *ConfigStore) GetString(key string) string {
	v, _ := s.Get(key)
	str, _ := v.(string)
	return str
}

// GetInt truncates floats and parses strings from the environment.
func (s *ConfigStore) GetInt(key string) int {
	v, _ := s.Get(key)
	if str, ok := v.(string); ok {
		n, _ := strconv.Atoi(strings.TrimSpace(str))
		return n
	}
	return int(number(v))
}

func (s *ConfigStore) GetFloat(key string) float64 {
	v, _ := s.Get(key)
	if str, ok := v.(string); ok {
		f, _ := strconv.ParseFloat(strings.TrimSpace(str), 64)
		return f
	}
	return number(v)
}

func (s *ConfigStore) GetBool(key string) bool {
	v, _ := s.Get(key)
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(strings.TrimSpace(b))
		return parsed
	}
	return false
}

// GetStringSlice reads a TOML array or, from the environment, a
// comma-separated list.
func (s *ConfigStore) GetStringSlice(key string) []string {
	v, ok := s.Get(key)
	if !ok {
		return nil
	}
	var out []string
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out = make([]string, 0, len(list))
		for _, item := range list {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
	case string:
		for _, part := range strings.Split(list, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// number widens the numeric types go-toml decodes into.
func number(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case float64:
		return n
	case float32:
		return float64(n)
	}
	return 0
}

// Set stores value and rewrites the file.
func (s *ConfigStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.write()
}

func (s *ConfigStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write()
}

// write replaces the file through a rename so readers never see a partial
// document. Callers hold mu.
func (s *ConfigStore) write() error {
	doc, err := toml.Marshal(tables(s.values))
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, doc, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *ConfigStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.values = map[string]any{}
		return nil
	}
	if err != nil {
		return err
	}

	var doc map[string]any
	if err := toml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	s.values = map[string]any{}
	flatten("", doc, s.values)
	return nil
}

func (s *ConfigStore) Path() string { return s.path }

// flatten copies doc into dst with dotted keys: {"a": {"b": 1}} becomes "a.b".
func flatten(prefix string, doc, dst map[string]any) {
	for k, v := range doc {
		if prefix != "" {
			k = prefix + "." + k
		}
		if table, ok := v.(map[string]any); ok {
			flatten(k, table, dst)
			continue
		}
		dst[k] = v
	}
}

// tables turns dotted keys back into nested tables.
func tables(flat map[string]any) map[string]any {
	root := map[string]any{}
	for key, v := range maps.All(flat) {
		path := strings.Split(key, ".")
		node := root
		for _, name := range path[:len(path)-1] {
			next, ok := node[name].(map[string]any)
			if !ok {
				next = map[string]any{}
				node[name] = next
			}
			node = next
		}
		node[path[len(path)-1]] = v
	}
	return root
}
