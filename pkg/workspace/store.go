package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/sandboxed-sh/openagent/internal/logging"
)

// Store is the reader-writer-locked, whole-file-JSON-persisted registry of
// workspaces.
type Store struct {
	mu         sync.RWMutex
	workspaces map[uuid.UUID]*Workspace

	workingDir   string
	storagePath  string
	containerDir string
}

// NewStore loads (or initializes) the workspace store rooted at
// workingDir, ensures the default host workspace exists, and adopts any
// container directories on disk that are not referenced by a loaded record.
func NewStore(workingDir string) (*Store, error) {
	s := &Store{
		workspaces:   make(map[uuid.UUID]*Workspace),
		workingDir:   workingDir,
		storagePath:  filepath.Join(workingDir, ".sandboxed-sh", "workspaces.json"),
		containerDir: filepath.Join(workingDir, ".sandboxed-sh", "containers"),
	}

	if err := s.load(); err != nil {
		logging.Error(logging.CompWorkspace, "failed to load workspaces.json, starting empty: %v", err)
		s.workspaces = make(map[uuid.UUID]*Workspace)
	}

	s.ensureDefault()
	s.adoptOrphans()

	if err := s.save(); err != nil {
		logging.Error(logging.CompWorkspace, "failed to persist workspaces after startup reconciliation: %v", err)
	}

	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.storagePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var list []*Workspace
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("corrupted workspaces.json: %w", err)
	}

	for _, w := range list {
		s.workspaces[w.ID] = w
	}
	return nil
}

func (s *Store) ensureDefault() {
	if _, ok := s.workspaces[DefaultWorkspaceID]; ok {
		// The default workspace always permits every library skill.
		s.workspaces[DefaultWorkspaceID].Skills = nil
		return
	}
	s.workspaces[DefaultWorkspaceID] = NewDefaultWorkspace(s.workingDir)
}

// adoptOrphans scans .sandboxed-sh/containers/ for directories not
// referenced by any loaded workspace record and registers each as a
// container workspace.
func (s *Store) adoptOrphans() {
	entries, err := os.ReadDir(s.containerDir)
	if err != nil {
		return
	}

	known := make(map[string]bool)
	for _, w := range s.workspaces {
		known[w.Path] = true
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(s.containerDir, entry.Name())
		if known[path] {
			continue
		}

		status := StatusPending
		if hasRootfsShape(path) {
			status = StatusReady
		}

		w := &Workspace{
			ID:     uuid.New(),
			Name:   entry.Name(),
			Kind:   KindContainer,
			Path:   path,
			Status: status,
			Env:    map[string]string{},
		}
		s.workspaces[w.ID] = w
		logging.Info(logging.CompWorkspace, "adopted orphan container workspace %s at %s (status=%s)", w.Name, w.Path, w.Status)
	}
}

// hasRootfsShape checks the minimal shape a ready rootfs must have:
// etc/ plus bin/ or usr/.
func hasRootfsShape(path string) bool {
	if _, err := os.Stat(filepath.Join(path, "etc")); err != nil {
		return false
	}
	if _, err := os.Stat(filepath.Join(path, "bin")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(path, "usr")); err == nil {
		return true
	}
	return false
}

func (s *Store) save() error {
	list := make([]*Workspace, 0, len(s.workspaces))
	for _, w := range s.workspaces {
		list = append(list, w)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID.String() < list[j].ID.String() })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal workspaces: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.storagePath), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp := s.storagePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write workspaces tmp file: %w", err)
	}
	return os.Rename(tmp, s.storagePath)
}

// List returns every workspace, in no particular order.
func (s *Store) List() []*Workspace {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Workspace, 0, len(s.workspaces))
	for _, w := range s.workspaces {
		out = append(out, w)
	}
	return out
}

// Get returns the workspace with the given ID, or false if absent.
func (s *Store) Get(id uuid.UUID) (*Workspace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workspaces[id]
	return w, ok
}

// GetDefault returns the canonical default host workspace.
func (s *Store) GetDefault() *Workspace {
	w, _ := s.Get(DefaultWorkspaceID)
	return w
}

// Add registers a new workspace and persists the store.
func (s *Store) Add(w *Workspace) (uuid.UUID, error) {
	if err := ValidateName(w.Name); err != nil {
		return uuid.Nil, err
	}

	s.mu.Lock()
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	s.workspaces[w.ID] = w
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		logging.Error(logging.CompWorkspace, "failed to persist after add: %v", err)
	}
	return w.ID, nil
}

// Update replaces the workspace with the same ID and persists the store.
// Returns false if the ID is not registered.
func (s *Store) Update(w *Workspace) bool {
	s.mu.Lock()
	_, ok := s.workspaces[w.ID]
	if ok {
		s.workspaces[w.ID] = w
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	if err := s.persist(); err != nil {
		logging.Error(logging.CompWorkspace, "failed to persist after update: %v", err)
	}
	return true
}

// Delete removes a workspace. The default workspace can never be deleted
// and this always returns false for it.
func (s *Store) Delete(id uuid.UUID) bool {
	if id == DefaultWorkspaceID {
		return false
	}

	s.mu.Lock()
	_, ok := s.workspaces[id]
	if ok {
		delete(s.workspaces, id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	if err := s.persist(); err != nil {
		logging.Error(logging.CompWorkspace, "failed to persist after delete: %v", err)
	}
	return true
}

func (s *Store) persist() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.save()
}

// ResolveWorkspacePath runs the store's path-safety contract against this
// workspace's root (or against contextRoot, when supplied).
func (s *Store) ResolveWorkspacePath(w *Workspace, path, contextRoot string) (string, error) {
	root := w.Path
	if contextRoot != "" {
		root = contextRoot
	}
	return ResolvePath(root, path)
}
