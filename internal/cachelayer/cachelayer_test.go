package cachelayer

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidDomain(t *testing.T) {
	assert.True(t, isValidDomain("example.com"))
	assert.True(t, isValidDomain("a.b.c"))
	assert.False(t, isValidDomain(""))
	assert.False(t, isValidDomain(strings.Repeat("a", 254)))
	assert.False(t, isValidDomain(strings.Repeat("a", 64)+".com"))
	assert.False(t, isValidDomain("-example.com"))
	assert.False(t, isValidDomain("example-.com"))
	assert.False(t, isValidDomain("exa_mple.com"))
}

func TestNormalizeStripsSchemeAndPathAndDot(t *testing.T) {
	assert.Equal(t, "example.com", normalize("https://Example.COM./path/to/thing"))
	assert.Equal(t, "example.com", normalize("example.com."))
	assert.Equal(t, "example.com", normalize("EXAMPLE.COM"))
}

func TestAddPositiveRejectsDuplicateInsert(t *testing.T) {
	c := New()
	assert.Equal(t, AddedNew, c.AddPositive("example.com", "1.2.3.4", 100))
	assert.Equal(t, AlreadyPresent, c.AddPositive("example.com", "9.9.9.9", 200))

	ip, ok := c.GetPositive("example.com")
	require.True(t, ok)
	assert.Equal(t, "1.2.3.4", ip)
}

func TestAddPositiveRejectsInvalidInput(t *testing.T) {
	c := New()
	assert.Equal(t, Invalid, c.AddPositive("", "1.2.3.4", 0))
	assert.Equal(t, Invalid, c.AddPositive("example.com", "not-an-ip", 0))
}

func TestAddBlockIncrementsBlocklistDomainsOnlyOnNewInsert(t *testing.T) {
	c := New()
	assert.Equal(t, AddedNew, c.AddBlock("ads.example.com", "0.0.0.0"))
	assert.Equal(t, uint32(1), c.BlocklistDomains())

	assert.Equal(t, AlreadyPresent, c.AddBlock("ads.example.com", "0.0.0.0"))
	assert.Equal(t, uint32(1), c.BlocklistDomains())

	ip, ok := c.GetBlock("ads.example.com")
	require.True(t, ok)
	assert.Equal(t, "0.0.0.0", ip)
}

func TestWipeBlocklistResetsCounter(t *testing.T) {
	c := New()
	c.AddBlock("a.com", "0.0.0.0")
	c.AddBlock("b.com", "0.0.0.0")
	require.Equal(t, uint32(2), c.BlocklistDomains())

	c.WipeBlocklist()
	assert.Equal(t, uint32(0), c.BlocklistDomains())
	_, ok := c.GetBlock("a.com")
	assert.False(t, ok)
}

func TestRemovePositive(t *testing.T) {
	c := New()
	c.AddPositive("example.com", "1.2.3.4", 0)
	assert.True(t, c.RemovePositive("example.com"))
	_, ok := c.GetPositive("example.com")
	assert.False(t, ok)
	assert.False(t, c.RemovePositive("example.com"))
}

func TestSweepRemovesExpiredPositiveEntries(t *testing.T) {
	c := New()
	now := time.Now()
	c.AddPositive("fresh.com", "1.2.3.4", uint32(now.Add(time.Hour).Unix()))
	c.AddPositive("stale.com", "1.2.3.5", uint32(now.Add(-time.Hour).Unix()))

	removed := c.Sweep(now)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.PositiveSize())

	_, ok := c.GetPositive("fresh.com")
	assert.True(t, ok)
	_, ok = c.GetPositive("stale.com")
	assert.False(t, ok)
}

type fakeOverridesSource struct {
	overrides []LocalOverride
	err       error
}

func (f fakeOverridesSource) LocalOverrides() ([]LocalOverride, error) {
	return f.overrides, f.err
}

func TestReloadLocalOverridesReplacesExistingEntryAndNeverExpires(t *testing.T) {
	c := New()
	c.AddPositive("router.lan", "10.0.0.99", uint32(time.Now().Add(time.Hour).Unix()))

	src := fakeOverridesSource{overrides: []LocalOverride{
		{IP: "192.168.1.1", Domain: "router.lan"},
		{IP: "not-an-ip", Domain: "bad.lan"},
	}}
	require.NoError(t, c.ReloadLocalOverrides(src))

	ip, ok := c.GetPositive("router.lan")
	require.True(t, ok)
	assert.Equal(t, "192.168.1.1", ip)

	_, ok = c.GetPositive("bad.lan")
	assert.False(t, ok)

	assert.Equal(t, uint32(0), c.BlocklistDomains())
}

type fakeBlocklistSource struct {
	manifest []BlocklistManifestEntry
	files    map[string]string
}

func (f fakeBlocklistSource) BlocklistManifest() ([]BlocklistManifestEntry, error) {
	return f.manifest, nil
}

func (f fakeBlocklistSource) OpenBlocklistFile(path string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.files[path])), nil
}

func TestLoadBlocklistsSkipsDisabledFilesAndRepairsSwappedColumns(t *testing.T) {
	c := New()
	src := fakeBlocklistSource{
		manifest: []BlocklistManifestEntry{
			{Path: "enabled.txt", Enabled: true},
			{Path: "disabled.txt", Enabled: false},
		},
		files: map[string]string{
			"enabled.txt":  "# comment\n0.0.0.0 ads.example.com\nbare.example.com\ntracker.example.com 0.0.0.0\n",
			"disabled.txt": "0.0.0.0 should-not-load.com\n",
		},
	}

	require.NoError(t, c.LoadBlocklists(src))

	assert.Equal(t, uint32(3), c.BlocklistDomains())
	for _, domain := range []string{"ads.example.com", "bare.example.com", "tracker.example.com"} {
		_, ok := c.GetBlock(domain)
		assert.Truef(t, ok, "expected %s to be blocked", domain)
	}
	_, ok := c.GetBlock("should-not-load.com")
	assert.False(t, ok)
}

func TestParseHostsLine(t *testing.T) {
	domain, ip, ok := parseHostsLine("0.0.0.0 example.com")
	require.True(t, ok)
	assert.Equal(t, "example.com", domain)
	assert.Equal(t, "0.0.0.0", ip)

	domain, ip, ok = parseHostsLine("example.com 0.0.0.0")
	require.True(t, ok)
	assert.Equal(t, "example.com", domain)
	assert.Equal(t, "0.0.0.0", ip)

	domain, ip, ok = parseHostsLine("example.com")
	require.True(t, ok)
	assert.Equal(t, "example.com", domain)
	assert.Equal(t, "0.0.0.0", ip)

	_, _, ok = parseHostsLine("a b c")
	assert.False(t, ok)
}
