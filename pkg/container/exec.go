package container

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/sandboxed-sh/openagent/internal/logging"
)

// ExecRequest describes a single command to run inside (or against) a
// container rootfs.
type ExecRequest struct {
	Path    string
	Command []string
	Dir     string
	Env     map[string]string
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	Config  Config
}

// ExecEphemeral runs req.Command inside a fresh, ephemeral systemd-nspawn
// instance rooted at req.Path. The instance is torn down automatically
// when the command exits.
func ExecEphemeral(ctx context.Context, req ExecRequest) error {
	args := buildNspawnArgs(req)
	cmd := exec.CommandContext(ctx, "systemd-nspawn", args...)
	cmd.Stdin = req.Stdin
	cmd.Stdout = req.Stdout
	cmd.Stderr = req.Stderr

	logging.Debug(logging.CompContainer, "systemd-nspawn %s", strings.Join(args, " "))

	if err := cmd.Run(); err != nil {
		return wrapErr("exec in container", err)
	}
	return nil
}

func buildNspawnArgs(req ExecRequest) []string {
	args := []string{"-D", req.Path, "--quiet", "--timezone=off"}

	switch req.Config.NetworkMode {
	case NetworkHost:
		args = append(args, "--network-veth=no")
	case NetworkPrivate:
		args = append(args, "--private-network", "--network-veth")
	case NetworkNone:
		args = append(args, "--private-network")
	}

	if shouldBindResolvConf(req.Config.NetworkMode) {
		args = append(args, "--bind-ro=/etc/resolv.conf")
	}

	if req.Config.Ephemeral {
		args = append(args, "--ephemeral")
	}

	for _, cap := range req.Config.Capabilities {
		args = append(args, "--capability="+cap)
	}

	for _, bind := range req.Config.Binds {
		args = append(args, "--bind="+bind)
	}

	if req.Config.BindX11 {
		args = append(args, "--bind-ro=/tmp/.X11-unix")
		display := req.Config.Display
		if display == "" {
			display = ":0"
		}
		args = append(args, "--setenv=DISPLAY="+display)
	}

	for k, v := range req.Env {
		args = append(args, fmt.Sprintf("--setenv=%s=%s", k, v))
	}

	if len(req.Command) > 0 {
		args = append(args, "--")
		args = append(args, req.Command...)
	}

	return args
}

func shouldBindResolvConf(mode NetworkMode) bool {
	return mode == NetworkHost
}

// ExecInRunning runs a command inside an already-running container via
// machinectl's leader PID, entering its namespaces with nsenter and
// running the command through a login shell. It is used for workspace
// commands issued against a long-lived container rather than one-shot
// ephemeral invocations.
func ExecInRunning(ctx context.Context, machineName string, req ExecRequest) error {
	leader, err := machineLeader(ctx, machineName)
	if err != nil {
		return wrapErr("locate running container", err)
	}
	if len(req.Command) == 0 {
		return wrapErr("exec in running container", fmt.Errorf("empty command"))
	}

	shellCmd := buildShellCommand(req.Dir, req.Command[0], req.Command[1:])
	args := []string{"--target", leader, "--mount", "--uts", "--ipc", "--net", "--pid", "/bin/sh", "-lc", shellCmd}

	cmd := exec.CommandContext(ctx, "nsenter", args...)
	cmd.Stdin = req.Stdin
	cmd.Stdout = req.Stdout
	cmd.Stderr = req.Stderr
	cmd.Env = mergedEnv(req.Env)

	if err := cmd.Run(); err != nil {
		return wrapErr("exec in running container", err)
	}
	return nil
}

// shellEscape wraps value in single quotes, escaping any embedded single
// quote, so it can be placed unmodified in a POSIX shell command line.
func shellEscape(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

// buildShellCommand renders "cd {dir} && exec {program} {args...}" with
// every component shell-escaped, for use as the argument to `sh -lc`. An
// empty dir defaults to ".".
func buildShellCommand(dir, program string, args []string) string {
	if dir == "" {
		dir = "."
	}
	var b strings.Builder
	b.WriteString("cd ")
	b.WriteString(shellEscape(dir))
	b.WriteString(" && exec ")
	b.WriteString(shellEscape(program))
	for _, arg := range args {
		b.WriteByte(' ')
		b.WriteString(shellEscape(arg))
	}
	return b.String()
}

// mergedEnv returns the host's inherited environment plus req.Env,
// matching the original's tokio::process::Command::envs semantics of
// adding to rather than replacing the inherited set.
func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

func machineLeader(ctx context.Context, machineName string) (string, error) {
	cmd := exec.CommandContext(ctx, "machinectl", "show", machineName, "-p", "Leader")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}

	line := strings.TrimSpace(string(out))
	parts := strings.SplitN(line, "=", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", fmt.Errorf("could not determine leader pid for %s", machineName)
	}
	return parts[1], nil
}

// ExecHostFallback runs req.Command directly on the host, honoring
// req.Dir and req.Env, for use when container execution is unavailable
// and container fallback mode is allowed.
func ExecHostFallback(ctx context.Context, req ExecRequest) error {
	if len(req.Command) == 0 {
		return wrapErr("host fallback exec", fmt.Errorf("empty command"))
	}

	cmd := exec.CommandContext(ctx, req.Command[0], req.Command[1:]...)
	cmd.Dir = req.Dir
	cmd.Stdin = req.Stdin
	cmd.Stdout = req.Stdout
	cmd.Stderr = req.Stderr

	cmd.Env = os.Environ()
	for k, v := range req.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	if err := cmd.Run(); err != nil {
		return wrapErr("host fallback exec", err)
	}
	return nil
}
