package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ImportRequest describes a remote skill source to pull into the library.
type ImportRequest struct {
	RepoURL  string
	Ref      string // branch or tag to clone, empty for the default branch
	Subpath  string // optional directory within the repo holding SKILL.md
	AsName   string // target name in the library; defaults to the subpath/repo basename
}

// ImportSkill shallow-clones RepoURL to a scratch directory, descends into
// Subpath if given, requires a SKILL.md at that location, and copies the
// result into the library under AsName, rejecting a name collision. The
// stored entity's source field is stamped with the repo and commit SHA it
// came from.
func ImportSkill(ctx context.Context, s *Store, req ImportRequest) (Entity, error) {
	if req.RepoURL == "" {
		return Entity{}, fmt.Errorf("repo URL is required")
	}

	scratch, err := os.MkdirTemp("", "openagent-skill-import-*")
	if err != nil {
		return Entity{}, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	clonePath := filepath.Join(scratch, "repo")
	if err := shallowClone(ctx, req.RepoURL, req.Ref, clonePath); err != nil {
		return Entity{}, err
	}

	sha, err := cloneHeadSHA(ctx, clonePath)
	if err != nil {
		return Entity{}, err
	}

	srcDir := clonePath
	if req.Subpath != "" {
		srcDir = filepath.Join(clonePath, req.Subpath)
	}

	skillDoc := filepath.Join(srcDir, "SKILL.md")
	if _, err := os.Stat(skillDoc); err != nil {
		return Entity{}, fmt.Errorf("no SKILL.md found at %s in %s: %w", req.Subpath, req.RepoURL, err)
	}

	name := req.AsName
	if name == "" {
		name = filepath.Base(req.Subpath)
		if name == "." || name == "/" {
			name = strings.TrimSuffix(filepath.Base(req.RepoURL), ".git")
		}
	}

	if _, err := s.Get(KindSkill, name); err == nil {
		return Entity{}, fmt.Errorf("library already has a skill named %q", name)
	}

	data, err := os.ReadFile(skillDoc)
	if err != nil {
		return Entity{}, fmt.Errorf("read SKILL.md: %w", err)
	}
	parsed := parseFrontmatter(string(data))

	files, err := collectSkillFiles(srcDir)
	if err != nil {
		return Entity{}, err
	}

	entity := Entity{
		Kind:        KindSkill,
		Name:        name,
		Description: stringField(parsed.Fields, "description"),
		Source:      fmt.Sprintf("%s@%s", repoIdentifier(req.RepoURL, req.Subpath), sha),
		Frontmatter: parsed.Fields,
		Body:        parsed.Body,
		Files:       files,
	}

	if err := s.Put(entity); err != nil {
		return Entity{}, err
	}
	return entity, nil
}

func repoIdentifier(repoURL, subpath string) string {
	id := strings.TrimSuffix(repoURL, ".git")
	if subpath != "" {
		id = id + "/" + subpath
	}
	return id
}

func collectSkillFiles(srcDir string) (map[string][]byte, error) {
	files := map[string][]byte{}
	err := filepath.WalkDir(srcDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(srcDir, path)
		if relErr != nil {
			return relErr
		}
		if rel == "SKILL.md" || strings.HasPrefix(rel, ".git"+string(filepath.Separator)) {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		files[rel] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect skill files: %w", err)
	}
	return files, nil
}
