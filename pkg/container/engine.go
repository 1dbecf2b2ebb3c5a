package container

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sandboxed-sh/openagent/internal/logging"
)

// Adapter is the container engine's public surface: everything a
// workspace needs to bootstrap, run commands inside, and tear down its
// backing rootfs.
type Adapter interface {
	Create(ctx context.Context, path string, distro Distro, cfg Config) error
	Exec(ctx context.Context, path string, cfg Config, command []string) (*ExecResult, error)
	Destroy(ctx context.Context, path string) error
}

// ExecResult is the captured outcome of a command run through the
// adapter.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// HostAllowFallback mirrors the Rust allow_container_fallback default:
// true off Linux, false on Linux unless explicitly overridden.
func HostAllowFallback(envOverride string) bool {
	switch envOverride {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return runtime.GOOS != "linux"
}

// NspawnAdapter is the Adapter backed by systemd-nspawn, falling back to
// direct host execution when nspawn is unavailable and fallback is
// permitted.
type NspawnAdapter struct {
	engine        *Engine
	allowFallback bool
}

// NewNspawnAdapter builds an Adapter rooted at workingDir.
func NewNspawnAdapter(workingDir string, allowFallback bool) *NspawnAdapter {
	return &NspawnAdapter{
		engine:        NewEngine(workingDir, allowFallback),
		allowFallback: allowFallback,
	}
}

func (a *NspawnAdapter) Create(ctx context.Context, path string, distro Distro, cfg Config) error {
	if !NspawnAvailable() {
		if !a.allowFallback {
			return wrapErr("create", fmt.Errorf("systemd-nspawn not available and container fallback is disabled"))
		}
		logging.Info(logging.CompContainer, "systemd-nspawn unavailable, creating fallback skeleton at %s", path)
		return EnsureFallbackSkeleton(path)
	}
	return a.engine.CreateRootfs(path, distro)
}

func (a *NspawnAdapter) Exec(ctx context.Context, path string, cfg Config, command []string) (*ExecResult, error) {
	var stdout, stderr bytes.Buffer
	req := ExecRequest{
		Path:    path,
		Command: command,
		Env:     cfg.Env,
		Config:  cfg,
		Stdout:  &stdout,
		Stderr:  &stderr,
	}

	if NspawnAvailable() {
		machineName := strings.TrimSpace(filepath.Base(path))
		if leader, err := machineLeader(ctx, machineName); err == nil && leader != "" {
			req.Dir = "."
			err := ExecInRunning(ctx, machineName, req)
			result := &ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
			if err != nil {
				result.ExitCode = exitCodeOf(err)
				return result, err
			}
			return result, nil
		}

		err := ExecEphemeral(ctx, req)
		result := &ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
		if err != nil {
			result.ExitCode = exitCodeOf(err)
			return result, err
		}
		return result, nil
	}

	if !a.allowFallback {
		return nil, wrapErr("exec", fmt.Errorf("systemd-nspawn not available and container fallback is disabled"))
	}

	req.Dir = path
	err := ExecHostFallback(ctx, req)
	result := &ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = exitCodeOf(err)
		return result, err
	}
	return result, nil
}

func (a *NspawnAdapter) Destroy(ctx context.Context, path string) error {
	return Destroy(path)
}

func exitCodeOf(err error) int {
	type exitCoder interface{ ExitCode() int }
	if e, ok := err.(exitCoder); ok {
		return e.ExitCode()
	}

	var cErr *Error
	if as(err, &cErr) {
		if e, ok := cErr.Err.(exitCoder); ok {
			return e.ExitCode()
		}
	}
	return -1
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// RootfsCacheDir returns the directory holding cached rootfs tarballs for
// workingDir.
func RootfsCacheDir(workingDir string) string {
	return filepath.Join(workingDir, ".sandboxed-sh", "cache")
}

// ContainersDir returns the directory holding per-workspace container
// roots for workingDir.
func ContainersDir(workingDir string) string {
	return filepath.Join(workingDir, ".sandboxed-sh", "containers")
}

// PrepareContainerPath allocates (but does not bootstrap) a fresh
// container root directory under workingDir's container tree.
func PrepareContainerPath(workingDir, name string) (string, error) {
	dir := filepath.Join(ContainersDir(workingDir), name)
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", wrapErr("prepare container path", err)
	}
	return dir, nil
}
