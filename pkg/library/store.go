package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sandboxed-sh/openagent/internal/logging"
)

// Store is the git-backed library rooted at {working_dir}/.openagent/library.
// It keeps an in-memory name index (kind+name -> relative path) alongside
// the on-disk files, rebuilt from disk at startup and kept in sync on
// every mutating call.
type Store struct {
	mu   sync.RWMutex
	root string
	repo *gitRepo

	index map[string]string // "{kind}/{name}" -> RelPath
}

// Open loads (or initializes) the library store at workingDir, creating
// the git working copy if it does not already exist.
func Open(ctx context.Context, workingDir string) (*Store, error) {
	root := filepath.Join(workingDir, ".openagent", "library")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create library root: %w", err)
	}

	repo := newGitRepo(root)
	if !repo.IsRepo() {
		if err := repo.Init(ctx); err != nil {
			return nil, err
		}
	}

	s := &Store{root: root, repo: repo, index: map[string]string{}}
	s.reindex()
	return s, nil
}

func indexKey(kind Kind, name string) string {
	return string(kind) + "/" + name
}

// reindex walks every kind's subdirectory and rebuilds the in-memory
// name index from what is actually on disk.
func (s *Store) reindex() {
	for _, kind := range allKinds {
		dir := filepath.Join(s.root, kind.subdir())
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			name := strings.TrimSuffix(e.Name(), ".md")
			var relPath string
			if kind == KindSkill {
				if !e.IsDir() {
					continue
				}
				relPath = filepath.Join(kind.subdir(), e.Name(), "SKILL.md")
				name = e.Name()
			} else {
				if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
					continue
				}
				relPath = filepath.Join(kind.subdir(), e.Name())
			}
			s.index[indexKey(kind, name)] = relPath
		}
	}
}

var allKinds = []Kind{
	KindSkill, KindCommand, KindAgent, KindRule,
	KindWorkspaceTemplate, KindMCPDefinition, KindPlugin, KindInitScript,
}

// List returns every entity of the given kind.
func (s *Store) List(kind Kind) ([]Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for key := range s.index {
		if strings.HasPrefix(key, string(kind)+"/") {
			names = append(names, strings.TrimPrefix(key, string(kind)+"/"))
		}
	}
	sort.Strings(names)

	out := make([]Entity, 0, len(names))
	for _, name := range names {
		e, err := s.getLocked(kind, name)
		if err != nil {
			logging.Warn(logging.CompLibrary, "skipping unreadable library entity %s/%s: %v", kind, name, err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Get reads one entity by kind and name.
func (s *Store) Get(kind Kind, name string) (Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(kind, name)
}

func (s *Store) getLocked(kind Kind, name string) (Entity, error) {
	relPath, ok := s.index[indexKey(kind, name)]
	if !ok {
		return Entity{}, fmt.Errorf("library entity %s/%s not found", kind, name)
	}

	data, err := os.ReadFile(filepath.Join(s.root, relPath))
	if err != nil {
		return Entity{}, fmt.Errorf("read %s: %w", relPath, err)
	}

	parsed := parseFrontmatter(string(data))
	e := Entity{
		Kind:        kind,
		Name:        name,
		Description: stringField(parsed.Fields, "description"),
		Source:      stringField(parsed.Fields, "source"),
		Frontmatter: parsed.Fields,
		Body:        parsed.Body,
		RelPath:     relPath,
	}

	if kind == KindSkill {
		e.Files = s.readSkillFiles(filepath.Dir(filepath.Join(s.root, relPath)))
	}

	return e, nil
}

func (s *Store) readSkillFiles(dir string) map[string][]byte {
	files := map[string][]byte{}
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		if rel == "SKILL.md" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err == nil {
			files[rel] = data
		}
		return nil
	})
	return files
}

// Put creates or overwrites an entity's document (and, for skills, its
// auxiliary files), updating the name index.
func (s *Store) Put(e Entity) error {
	if e.Name == "" {
		return fmt.Errorf("entity name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var relPath string
	var dir string
	if e.Kind == KindSkill {
		dir = filepath.Join(s.root, e.Kind.subdir(), e.Name)
		relPath = filepath.Join(e.Kind.subdir(), e.Name, "SKILL.md")
	} else {
		dir = filepath.Join(s.root, e.Kind.subdir())
		relPath = filepath.Join(e.Kind.subdir(), e.Kind.fileName(e.Name))
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create entity dir: %w", err)
	}

	doc := renderDocument(e)
	if err := os.WriteFile(filepath.Join(s.root, relPath), []byte(doc), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", relPath, err)
	}

	for name, data := range e.Files {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, data, 0o644); err != nil {
			return fmt.Errorf("write skill file %s: %w", name, err)
		}
	}

	s.index[indexKey(e.Kind, e.Name)] = relPath
	return nil
}

// Delete removes an entity and drops it from the index.
func (s *Store) Delete(kind Kind, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	relPath, ok := s.index[indexKey(kind, name)]
	if !ok {
		return fmt.Errorf("library entity %s/%s not found", kind, name)
	}

	target := filepath.Join(s.root, relPath)
	if kind == KindSkill {
		target = filepath.Dir(target)
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("delete %s: %w", relPath, err)
	}

	delete(s.index, indexKey(kind, name))
	return nil
}

// Rename atomically renames an entity. When dryRun is true, no filesystem
// changes are made; the report still describes what would change.
func (s *Store) Rename(kind Kind, oldName, newName string, dryRun bool) (RenameReport, error) {
	if newName == "" {
		return RenameReport{}, fmt.Errorf("new name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	oldKey := indexKey(kind, oldName)
	relPath, ok := s.index[oldKey]
	if !ok {
		return RenameReport{}, fmt.Errorf("library entity %s/%s not found", kind, oldName)
	}
	if _, exists := s.index[indexKey(kind, newName)]; exists {
		return RenameReport{}, fmt.Errorf("entity %s/%s already exists", kind, newName)
	}

	report := RenameReport{OldName: oldName, NewName: newName}

	if kind == KindSkill {
		oldDir := filepath.Join(s.root, kind.subdir(), oldName)
		newDir := filepath.Join(s.root, kind.subdir(), newName)
		newRel := filepath.Join(kind.subdir(), newName, "SKILL.md")

		filepath.WalkDir(oldDir, func(path string, d os.DirEntry, err error) error {
			if err == nil && !d.IsDir() {
				rel, _ := filepath.Rel(s.root, path)
				report.ChangedFiles = append(report.ChangedFiles, rel)
			}
			return nil
		})
		report.ChangedFiles = append(report.ChangedFiles, newRel)

		if !dryRun {
			if err := os.Rename(oldDir, newDir); err != nil {
				return RenameReport{}, fmt.Errorf("rename skill dir: %w", err)
			}
			if err := renameFrontmatterField(newDir, "SKILL.md", newName); err != nil {
				return RenameReport{}, err
			}
			delete(s.index, oldKey)
			s.index[indexKey(kind, newName)] = newRel
		}
		return report, nil
	}

	newRel := filepath.Join(kind.subdir(), kind.fileName(newName))
	report.ChangedFiles = []string{relPath, newRel}

	if !dryRun {
		oldPath := filepath.Join(s.root, relPath)
		newPath := filepath.Join(s.root, newRel)
		if err := os.Rename(oldPath, newPath); err != nil {
			return RenameReport{}, fmt.Errorf("rename entity file: %w", err)
		}
		if err := renameFrontmatterField(filepath.Dir(newPath), filepath.Base(newPath), newName); err != nil {
			return RenameReport{}, err
		}
		delete(s.index, oldKey)
		s.index[indexKey(kind, newName)] = newRel
	}

	return report, nil
}

// renameFrontmatterField rewrites the `name:` frontmatter field in the
// entity document at dir/file to newName, after an on-disk rename.
func renameFrontmatterField(dir, file, newName string) error {
	path := filepath.Join(dir, file)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	parsed := parseFrontmatter(string(data))
	parsed.Fields["name"] = newName

	entity := Entity{Frontmatter: parsed.Fields, Body: parsed.Body}
	return os.WriteFile(path, []byte(renderDocument(entity)), 0o644)
}

// renderDocument serialises an entity's frontmatter map and body back
// into a `---`-delimited document, in a stable key order that always
// surfaces name/description/source first.
func renderDocument(e Entity) string {
	fields := map[string]interface{}{}
	for k, v := range e.Frontmatter {
		fields[k] = v
	}
	if e.Name != "" {
		fields["name"] = e.Name
	}
	if e.Description != "" {
		fields["description"] = e.Description
	}
	if e.Source != "" {
		fields["source"] = e.Source
	}

	var b strings.Builder
	b.WriteString("---\n")
	for _, key := range orderedKeys(fields) {
		fmt.Fprintf(&b, "%s: %s\n", key, frontmatterValueString(fields[key]))
	}
	b.WriteString("---\n\n")
	b.WriteString(e.Body)
	if !strings.HasSuffix(e.Body, "\n") {
		b.WriteString("\n")
	}
	return b.String()
}

func orderedKeys(fields map[string]interface{}) []string {
	priority := []string{"name", "description", "source"}
	seen := map[string]bool{}
	var keys []string
	for _, k := range priority {
		if _, ok := fields[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range fields {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func frontmatterValueString(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	if strings.ContainsAny(s, ":#{}[]&*!|>'\"%@`") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// Status, Sync, Commit, Push expose the four git-level operations the
// library store is backed by.

func (s *Store) Status(ctx context.Context) (GitStatus, error) {
	return s.repo.Status(ctx)
}

func (s *Store) Sync(ctx context.Context) (SyncResult, error) {
	return s.repo.Sync(ctx)
}

func (s *Store) Commit(ctx context.Context, message, authorName, authorEmail string) (string, error) {
	return s.repo.Commit(ctx, message, authorName, authorEmail)
}

func (s *Store) Push(ctx context.Context) error {
	return s.repo.Push(ctx)
}

// Root returns the library's working-copy root directory.
func (s *Store) Root() string {
	return s.root
}
