package library

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// gitRepo wraps the library's working copy in the same subprocess-shelling
// idiom as the teacher's clone helper: every operation is a single `git`
// invocation run with CombinedOutput, errors wrap the trimmed output.
type gitRepo struct {
	dir        string
	sshKeyPath string
}

func newGitRepo(dir string) *gitRepo {
	return &gitRepo{dir: dir}
}

func (g *gitRepo) buildEnv() []string {
	env := os.Environ()
	if g.sshKeyPath != "" {
		env = append(env, "GIT_SSH_COMMAND=ssh -i "+g.sshKeyPath+" -o StrictHostKeyChecking=no")
	}
	return env
}

func (g *gitRepo) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.dir
	cmd.Env = g.buildEnv()

	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s failed: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return string(out), nil
}

// IsRepo reports whether dir already holds a .git directory.
func (g *gitRepo) IsRepo() bool {
	_, err := os.Stat(g.dir + "/.git")
	return err == nil
}

// Init creates a fresh repository at dir, for a library with no remote.
func (g *gitRepo) Init(ctx context.Context) error {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return fmt.Errorf("create library dir: %w", err)
	}
	_, err := g.run(ctx, "init")
	return err
}

// Status parses `git status --porcelain=v2 --branch`.
func (g *gitRepo) Status(ctx context.Context) (GitStatus, error) {
	out, err := g.run(ctx, "status", "--porcelain=v2", "--branch")
	if err != nil {
		return GitStatus{}, err
	}

	var status GitStatus
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "# branch.head "):
			status.Branch = strings.TrimPrefix(line, "# branch.head ")
		case strings.HasPrefix(line, "# branch.ab "):
			parts := strings.Fields(line)
			if len(parts) >= 4 {
				status.Ahead, _ = strconv.Atoi(strings.TrimPrefix(parts[2], "+"))
				status.Behind, _ = strconv.Atoi(strings.TrimPrefix(parts[3], "-"))
			}
		case strings.HasPrefix(line, "? "):
			status.Untracked = append(status.Untracked, strings.TrimPrefix(line, "? "))
		case len(line) > 2 && (line[0] == '1' || line[0] == '2') && line[1] == ' ':
			fields := strings.Fields(line)
			if len(fields) < 9 {
				continue
			}
			xy := fields[1]
			path := fields[len(fields)-1]
			if xy[0] != '.' {
				status.Staged = append(status.Staged, path)
			}
			if xy[1] != '.' {
				status.Modified = append(status.Modified, path)
			}
		}
	}

	status.Clean = len(status.Staged) == 0 && len(status.Modified) == 0 && len(status.Untracked) == 0
	return status, nil
}

// Sync fetches and fast-forwards the current branch, then re-fetches so
// the local view of remote-tracking refs is current even when the
// fast-forward itself was a no-op (already up to date).
func (g *gitRepo) Sync(ctx context.Context) (SyncResult, error) {
	out, err := g.run(ctx, "pull", "--ff-only")
	if err != nil {
		return SyncResult{}, err
	}

	if _, err := g.run(ctx, "fetch"); err != nil {
		return SyncResult{}, err
	}

	return SyncResult{
		Pulled:      !strings.Contains(out, "Already up to date"),
		FastForward: true,
		Output:      strings.TrimSpace(out),
	}, nil
}

// Commit stages everything and commits with the given author identity.
func (g *gitRepo) Commit(ctx context.Context, message, authorName, authorEmail string) (string, error) {
	if message == "" {
		return "", fmt.Errorf("commit message is required")
	}

	if _, err := g.run(ctx, "add", "-A"); err != nil {
		return "", err
	}

	args := []string{"commit", "-m", message}
	if authorName != "" {
		args = append(args, "--author", fmt.Sprintf("%s <%s>", authorName, authorEmail))
	}
	if _, err := g.run(ctx, args...); err != nil {
		return "", err
	}

	hash, err := g.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(hash), nil
}

// Push pushes the current branch to its upstream.
func (g *gitRepo) Push(ctx context.Context) error {
	_, err := g.run(ctx, "push")
	return err
}

// HeadSHA returns the current HEAD commit hash.
func (g *gitRepo) HeadSHA(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// shallowClone clones url at depth 1 into targetPath, optionally pinning a
// ref after clone (mirrors the teacher cloner's clone-then-checkout order).
func shallowClone(ctx context.Context, url, ref, targetPath string) error {
	if err := os.MkdirAll(targetPath, 0o755); err != nil {
		return fmt.Errorf("create clone target: %w", err)
	}

	args := []string{"clone", "--depth", "1"}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, url, targetPath)

	cmd := exec.CommandContext(ctx, "git", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git clone failed: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

func cloneHeadSHA(ctx context.Context, clonePath string) (string, error) {
	repo := newGitRepo(clonePath)
	return repo.HeadSHA(ctx)
}
