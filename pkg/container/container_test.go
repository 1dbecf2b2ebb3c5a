package container

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDistro(t *testing.T) {
	cases := map[string]Distro{
		"ubuntu-noble":   DistroUbuntuNoble,
		"noble":          DistroUbuntuNoble,
		"jammy":          DistroUbuntuJammy,
		"bookworm":       DistroDebianBookworm,
		"arch":           DistroArchLinux,
		"archlinux":      DistroArchLinux,
		"debian-bookworm": DistroDebianBookworm,
	}
	for input, want := range cases {
		got, ok := ParseDistro(input)
		require.True(t, ok, input)
		assert.Equal(t, want, got)
	}

	_, ok := ParseDistro("windows-xp")
	assert.False(t, ok)
}

func TestDistroCodenameAndMirror(t *testing.T) {
	assert.Equal(t, "noble", DistroUbuntuNoble.Codename())
	assert.Equal(t, "bookworm", DistroDebianBookworm.Codename())
	assert.Equal(t, "arch-linux", DistroArchLinux.Codename())
	assert.Contains(t, DistroUbuntuNoble.MirrorURL(), "ubuntu.com")
	assert.Contains(t, DistroDebianBookworm.MirrorURL(), "debian.org")
	assert.Contains(t, DistroArchLinux.MirrorURL(), "pkgbuild.com")
}

func TestTailscaleEnabled(t *testing.T) {
	assert.False(t, TailscaleEnabled(map[string]string{}))
	assert.False(t, TailscaleEnabled(map[string]string{"TS_AUTHKEY": "  "}))
	assert.True(t, TailscaleEnabled(map[string]string{"TS_AUTHKEY": "tskey-abc"}))
	assert.True(t, TailscaleEnabled(map[string]string{"TS_EXIT_NODE": "100.1.2.3"}))
}

func TestApplyTailscaleMutatesConfig(t *testing.T) {
	cfg := DefaultConfig()
	ApplyTailscale(&cfg, map[string]string{"TS_AUTHKEY": "tskey-abc"}, true)

	assert.Equal(t, NetworkPrivate, cfg.NetworkMode)
	assert.Contains(t, cfg.Capabilities, "CAP_NET_ADMIN")
	assert.Contains(t, cfg.Binds, "/dev/net/tun")
}

func TestApplyTailscaleNoOpWithoutCredentials(t *testing.T) {
	cfg := DefaultConfig()
	ApplyTailscale(&cfg, map[string]string{}, true)
	assert.Equal(t, NetworkHost, cfg.NetworkMode)
	assert.Empty(t, cfg.Capabilities)
}

func TestTailscaleExtraArgs(t *testing.T) {
	args := TailscaleExtraArgs(map[string]string{"TS_AUTHKEY": "x"}, true)
	assert.Contains(t, args, "--network-veth")
	assert.Contains(t, args, "--capability=CAP_NET_ADMIN")
	assert.Contains(t, args, "--bind=/dev/net/tun")

	assert.Empty(t, TailscaleExtraArgs(nil, true))
}

func TestBuildNspawnArgsIncludesCoreFlags(t *testing.T) {
	req := ExecRequest{
		Path:    "/var/lib/containers/ws1",
		Command: []string{"echo", "hi"},
		Config:  DefaultConfig(),
	}
	args := buildNspawnArgs(req)

	assert.Equal(t, "-D", args[0])
	assert.Equal(t, req.Path, args[1])
	assert.Contains(t, args, "--quiet")
	assert.Contains(t, args, "--timezone=off")
	assert.Contains(t, args, "--bind-ro=/etc/resolv.conf")
	assert.Contains(t, args, "--")
	assert.Contains(t, args, "echo")
}

func TestBuildNspawnArgsX11(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BindX11 = true
	cfg.Display = ":1"
	req := ExecRequest{Path: "/c", Config: cfg}
	args := buildNspawnArgs(req)

	assert.Contains(t, args, "--bind-ro=/tmp/.X11-unix")
	assert.Contains(t, args, "--setenv=DISPLAY=:1")
}

func TestHasRootfsShape(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, HasRootfsShape(dir))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "etc"), 0o755))
	assert.False(t, HasRootfsShape(dir))

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "usr"), 0o755))
	assert.True(t, HasRootfsShape(dir))
}

func TestDetectDistroFromOSRelease(t *testing.T) {
	dir := t.TempDir()
	etc := filepath.Join(dir, "etc")
	require.NoError(t, os.MkdirAll(etc, 0o755))
	content := "NAME=\"Ubuntu\"\nID=ubuntu\nVERSION_CODENAME=noble\n"
	require.NoError(t, os.WriteFile(filepath.Join(etc, "os-release"), []byte(content), 0o644))

	distro, ok := DetectDistro(dir)
	require.True(t, ok)
	assert.Equal(t, DistroUbuntuNoble, distro)
}

func TestDetectDistroMissingFile(t *testing.T) {
	_, ok := DetectDistro(t.TempDir())
	assert.False(t, ok)
}

func TestEnsureFallbackSkeleton(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureFallbackSkeleton(dir))
	for _, d := range []string{"bin", "usr", "etc", "var", "root", "tmp"} {
		assert.DirExists(t, filepath.Join(dir, d))
	}
}

func TestHostAllowFallbackRespectsOverride(t *testing.T) {
	assert.True(t, HostAllowFallback("true"))
	assert.False(t, HostAllowFallback("false"))
}

func TestRootfsCacheAndContainerPaths(t *testing.T) {
	assert.Equal(t, filepath.Join("/work", ".sandboxed-sh", "cache"), RootfsCacheDir("/work"))
	assert.Equal(t, filepath.Join("/work", ".sandboxed-sh", "containers"), ContainersDir("/work"))
}

func TestEngineCachePath(t *testing.T) {
	e := NewEngine("/work", true)
	assert.Equal(t, filepath.Join("/work", ".sandboxed-sh", "cache", "rootfs-noble.tar"), e.cachePath(DistroUbuntuNoble))
}
