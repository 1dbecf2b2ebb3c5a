package mcpregistry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/sandboxed-sh/openagent/internal/logging"
)

// configStore is the whole-file-JSON-persisted registry of server configs,
// independent of runtime connection state.
type configStore struct {
	mu      sync.RWMutex
	configs map[uuid.UUID]ServerConfig
	path    string
}

func newConfigStore(workingDir string) *configStore {
	s := &configStore{
		configs: make(map[uuid.UUID]ServerConfig),
		path:    filepath.Join(workingDir, ".sandboxed-sh", "mcp_servers.json"),
	}
	if err := s.load(); err != nil {
		logging.Error(logging.CompMCP, "failed to load mcp_servers.json, starting empty: %v", err)
		s.configs = make(map[uuid.UUID]ServerConfig)
	}
	return s
}

func (s *configStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var list []ServerConfig
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("corrupted mcp_servers.json: %w", err)
	}
	for _, c := range list {
		s.configs[c.ID] = c
	}
	return nil
}

func (s *configStore) save() error {
	list := make([]ServerConfig, 0, len(s.configs))
	for _, c := range s.configs {
		list = append(list, c)
	}

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal mcp configs: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write mcp configs tmp file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func (s *configStore) list() []ServerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ServerConfig, 0, len(s.configs))
	for _, c := range s.configs {
		out = append(out, c)
	}
	return out
}

func (s *configStore) get(id uuid.UUID) (ServerConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[id]
	return c, ok
}

func (s *configStore) add(c ServerConfig) (ServerConfig, error) {
	s.mu.Lock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	s.configs[c.ID] = c
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return c, err
	}
	return c, nil
}

func (s *configStore) remove(id uuid.UUID) error {
	s.mu.Lock()
	delete(s.configs, id)
	s.mu.Unlock()
	return s.persist()
}

func (s *configStore) update(id uuid.UUID, mutate func(*ServerConfig)) (ServerConfig, error) {
	s.mu.Lock()
	c, ok := s.configs[id]
	if !ok {
		s.mu.Unlock()
		return ServerConfig{}, fmt.Errorf("mcp server %s not found", id)
	}
	mutate(&c)
	s.configs[id] = c
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return c, err
	}
	return c, nil
}

func (s *configStore) enable(id uuid.UUID) (ServerConfig, error) {
	return s.update(id, func(c *ServerConfig) { c.Enabled = true })
}

func (s *configStore) disable(id uuid.UUID) (ServerConfig, error) {
	return s.update(id, func(c *ServerConfig) { c.Enabled = false })
}

func (s *configStore) persist() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.save()
}
