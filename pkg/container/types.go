// Package container implements the container engine adapter: rootfs
// bootstrap and caching, distro detection, and process execution inside
// systemd-nspawn containers (or a degraded host-fallback mode).
package container

import "fmt"

// Distro is a supported container base image tag.
type Distro string

const (
	DistroUbuntuNoble    Distro = "ubuntu-noble"
	DistroUbuntuJammy    Distro = "ubuntu-jammy"
	DistroDebianBookworm Distro = "debian-bookworm"
	DistroArchLinux      Distro = "arch-linux"

	DefaultDistro = DistroUbuntuNoble
)

// ParseDistro maps an API/user-supplied distro tag to a known Distro.
func ParseDistro(value string) (Distro, bool) {
	switch value {
	case "ubuntu-noble", "noble":
		return DistroUbuntuNoble, true
	case "ubuntu-jammy", "jammy":
		return DistroUbuntuJammy, true
	case "debian-bookworm", "bookworm":
		return DistroDebianBookworm, true
	case "arch-linux", "archlinux", "arch":
		return DistroArchLinux, true
	default:
		return "", false
	}
}

// SupportedDistros lists every accepted distro tag.
func SupportedDistros() []string {
	return []string{
		string(DistroUbuntuNoble),
		string(DistroUbuntuJammy),
		string(DistroDebianBookworm),
		string(DistroArchLinux),
	}
}

// Codename is the debootstrap suite name (or arch tag) for a distro.
func (d Distro) Codename() string {
	switch d {
	case DistroUbuntuNoble:
		return "noble"
	case DistroUbuntuJammy:
		return "jammy"
	case DistroDebianBookworm:
		return "bookworm"
	case DistroArchLinux:
		return "arch-linux"
	default:
		return string(d)
	}
}

// MirrorURL is the default package mirror for a distro.
func (d Distro) MirrorURL() string {
	switch d {
	case DistroUbuntuNoble, DistroUbuntuJammy:
		return "http://archive.ubuntu.com/ubuntu"
	case DistroDebianBookworm:
		return "http://deb.debian.org/debian"
	case DistroArchLinux:
		return "https://geo.mirror.pkgbuild.com/"
	default:
		return ""
	}
}

// NetworkMode selects the nspawn networking strategy.
type NetworkMode string

const (
	NetworkHost    NetworkMode = "host"
	NetworkPrivate NetworkMode = "private"
	NetworkNone    NetworkMode = "none"
)

// Config is the per-invocation nspawn execution configuration.
type Config struct {
	BindX11      bool
	Display      string
	NetworkMode  NetworkMode
	Ephemeral    bool
	Env          map[string]string
	Binds        []string
	Capabilities []string
}

// DefaultConfig returns the nspawn config baseline: host networking, no
// extras.
func DefaultConfig() Config {
	return Config{
		NetworkMode: NetworkHost,
		Env:         map[string]string{},
	}
}

// TailscaleEnabled reports whether env carries non-empty Tailscale
// credentials.
func TailscaleEnabled(env map[string]string) bool {
	for k, v := range env {
		if (k == "TS_AUTHKEY" || k == "TS_EXIT_NODE") && trimmedNonEmpty(v) {
			return true
		}
	}
	return false
}

// ApplyTailscale mutates cfg into Tailscale-enabled networking when env
// carries Tailscale credentials: private networking, CAP_NET_ADMIN, and a
// /dev/net/tun bind when present on the host.
func ApplyTailscale(cfg *Config, env map[string]string, tunDevicePresent bool) {
	if !TailscaleEnabled(env) {
		return
	}
	cfg.NetworkMode = NetworkPrivate
	if !containsString(cfg.Capabilities, "CAP_NET_ADMIN") {
		cfg.Capabilities = append(cfg.Capabilities, "CAP_NET_ADMIN")
	}
	if tunDevicePresent && !containsString(cfg.Binds, "/dev/net/tun") {
		cfg.Binds = append(cfg.Binds, "/dev/net/tun")
	}
}

// TailscaleExtraArgs returns the extra nspawn CLI args Tailscale mode
// requires, for callers building the invocation directly.
func TailscaleExtraArgs(env map[string]string, tunDevicePresent bool) []string {
	if !TailscaleEnabled(env) {
		return nil
	}
	args := []string{"--network-veth", "--capability=CAP_NET_ADMIN"}
	if tunDevicePresent {
		args = append(args, "--bind=/dev/net/tun")
	}
	return args
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func trimmedNonEmpty(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' {
			return true
		}
	}
	return false
}

// Error distinguishes the container engine's failure modes, matching the
// structured-error propagation policy the rest of the host uses.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("container: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
