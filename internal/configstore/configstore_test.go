package configstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	return s
}

func TestNewCreatesListDataDir(t *testing.T) {
	dir := t.TempDir()
	_, err := New(dir)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, listDataDirName))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCredentialLineRoundTrips(t *testing.T) {
	s := newTestStore(t)

	line, err := s.ReadCredentialLine()
	require.NoError(t, err)
	assert.Empty(t, line)

	require.NoError(t, s.WriteCredentialLine("admin deadbeef cafebabe"))
	line, err = s.ReadCredentialLine()
	require.NoError(t, err)
	assert.Equal(t, "admin deadbeef cafebabe", line)
}

func TestThreadsRoundTrips(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.Threads()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetThreads(8))
	n, ok, err := s.Threads()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 8, n)
}

func TestUpstreamIPRoundTrips(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.UpstreamIP()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetUpstreamIP("1.1.1.1"))
	ip, ok, err := s.UpstreamIP()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1.1.1.1", ip)
}

func TestCredentialUpstreamAndThreadsCoexistInDataFile(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.WriteCredentialLine("admin deadbeef cafebabe"))
	require.NoError(t, s.SetThreads(4))
	require.NoError(t, s.SetUpstreamIP("8.8.8.8"))

	line, err := s.ReadCredentialLine()
	require.NoError(t, err)
	assert.Equal(t, "admin deadbeef cafebabe", line)

	n, ok, err := s.Threads()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, n)

	ip, ok, err := s.UpstreamIP()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "8.8.8.8", ip)
}

func TestLocalOverridesEmptyWhenFileMissing(t *testing.T) {
	s := newTestStore(t)

	overrides, err := s.LocalOverrides()
	require.NoError(t, err)
	assert.Empty(t, overrides)
}

func TestAddAndRemoveLocalEntry(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AddLocalEntry("10.0.0.5", "nas.home", "home-nas"))
	require.NoError(t, s.AddLocalEntry("10.0.0.6", "router.home", "home-router"))

	overrides, err := s.LocalOverrides()
	require.NoError(t, err)
	require.Len(t, overrides, 2)
	assert.Equal(t, "10.0.0.5", overrides[0].IP)
	assert.Equal(t, "nas.home", overrides[0].Domain)
	assert.Equal(t, "home-nas", overrides[0].Name)

	removed, err := s.RemoveLocalEntry("nas.home")
	require.NoError(t, err)
	assert.True(t, removed)

	overrides, err = s.LocalOverrides()
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, "router.home", overrides[0].Domain)
}

func TestRemoveLocalEntryReportsNotFound(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddLocalEntry("10.0.0.5", "nas.home", "home-nas"))

	removed, err := s.RemoveLocalEntry("nonexistent.home")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestAddListAndBlocklistManifest(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AddAdlist("https://example.com/blocklists/ads.txt"))
	require.NoError(t, s.AddAdlist("https://example.com/blocklists/trackers.txt"))

	manifest, err := s.BlocklistManifest()
	require.NoError(t, err)
	require.Len(t, manifest, 2)
	assert.Equal(t, "ads.txt", manifest[0].Path)
	assert.True(t, manifest[0].Enabled)
	assert.Equal(t, "trackers.txt", manifest[1].Path)
}

func TestEnableDisableAdlistIsLiteralNotToggled(t *testing.T) {
	s := newTestStore(t)
	url := "https://example.com/blocklists/ads.txt"
	require.NoError(t, s.AddAdlist(url))

	found, err := s.DisableAdlist(url)
	require.NoError(t, err)
	assert.True(t, found)

	manifest, err := s.BlocklistManifest()
	require.NoError(t, err)
	require.Len(t, manifest, 1)
	assert.False(t, manifest[0].Enabled)

	found, err = s.DisableAdlist(url)
	require.NoError(t, err)
	assert.True(t, found)

	manifest, err = s.BlocklistManifest()
	require.NoError(t, err)
	assert.False(t, manifest[0].Enabled, "disabling twice must stay disabled, never toggle back")

	found, err = s.EnableAdlist(url)
	require.NoError(t, err)
	assert.True(t, found)

	manifest, err = s.BlocklistManifest()
	require.NoError(t, err)
	assert.True(t, manifest[0].Enabled)
}

func TestEnableAdlistReportsNotFound(t *testing.T) {
	s := newTestStore(t)
	found, err := s.EnableAdlist("https://example.com/blocklists/missing.txt")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRemoveAdlistDeletesManifestEntryAndBody(t *testing.T) {
	s := newTestStore(t)
	url := "https://example.com/blocklists/ads.txt"
	require.NoError(t, s.AddAdlist(url))

	bodyPath := filepath.Join(s.root, listDataDirName, "ads.txt")
	require.NoError(t, os.WriteFile(bodyPath, []byte("ads.example.com\n"), 0o644))

	removed, err := s.RemoveAdlist(url)
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = os.Stat(bodyPath)
	assert.True(t, os.IsNotExist(err))

	manifest, err := s.BlocklistManifest()
	require.NoError(t, err)
	assert.Empty(t, manifest)
}

func TestOpenBlocklistFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.root, listDataDirName, "ads.txt"), []byte("ads.example.com\n"), 0o644))

	f, err := s.OpenBlocklistFile("ads.txt")
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 64)
	n, _ := f.Read(buf)
	assert.Equal(t, "ads.example.com\n", string(buf[:n]))
}

func TestRotateServerLogTruncatesToMostRecentLines(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.AppendServerLog("line"))
	}

	require.NoError(t, s.RotateServerLog(3))

	out, err := s.TerminalOutput()
	require.NoError(t, err)
	assert.Equal(t, "line\nline\nline", out)
}

func TestRotateServerLogNoopWhenUnderLimit(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AppendServerLog("only line"))

	require.NoError(t, s.RotateServerLog(500))

	out, err := s.TerminalOutput()
	require.NoError(t, err)
	assert.Equal(t, "only line", out)
}

func TestParseThreadsArg(t *testing.T) {
	n, err := parseThreadsArg(" 6 ")
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	_, err = parseThreadsArg("not-a-number")
	assert.Error(t, err)
}
