// Package cachelayer wraps the two KeyedMap instances that back the
// resolver — the positive cache and the blocklist — and enforces the
// domain/IP validation and load rules the worker and control plane rely
// on.
package cachelayer

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jroosing/dnsden/internal/keyedmap"
)

// LocalOverride is one entry from the local-overrides collaborator file.
type LocalOverride struct {
	IP     string
	Domain string
	Name   string
}

// LocalOverridesSource is the minimal interface CacheLayer needs from the
// ConfigStore collaborator to reload local DNS overrides.
type LocalOverridesSource interface {
	LocalOverrides() ([]LocalOverride, error)
}

// BlocklistManifestEntry names one blocklist file and whether it is
// currently enabled.
type BlocklistManifestEntry struct {
	Path    string
	Enabled bool
}

// BlocklistSource is the minimal interface CacheLayer needs from the
// ConfigStore collaborator to bulk-load blocklists.
type BlocklistSource interface {
	BlocklistManifest() ([]BlocklistManifestEntry, error)
	OpenBlocklistFile(path string) (io.ReadCloser, error)
}

// AddOutcome reports what AddPositive / AddBlock actually did.
type AddOutcome int

const (
	// AddedNew means a brand-new record was inserted.
	AddedNew AddOutcome = iota
	// AlreadyPresent means the key already existed: AddPositive leaves
	// the entry untouched, AddBlock overwrites its IP in place.
	AlreadyPresent
	// Invalid means the domain or IP failed validation.
	Invalid
)

// CacheLayer owns the positive cache and blocklist KeyedMaps and the
// blocklistDomains counter that tracks the blocklist's size.
type CacheLayer struct {
	positive *keyedmap.KeyedMap
	blocklist *keyedmap.KeyedMap

	blocklistDomains uint32
}

// New creates a CacheLayer with both maps at the default initial
// capacity.
func New() *CacheLayer {
	return &CacheLayer{
		positive:  keyedmap.New(keyedmap.DefaultInitialCapacity),
		blocklist: keyedmap.New(keyedmap.DefaultInitialCapacity),
	}
}

// isValidDomain checks 1-253 total characters, labels of 1-63 characters
// in [A-Za-z0-9-], no label starting or ending with '-'.
func isValidDomain(s string) bool {
	if len(s) == 0 || len(s) > 253 {
		return false
	}
	labels := strings.Split(s, ".")
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			alnum := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
			if !alnum && c != '-' {
				return false
			}
		}
	}
	return true
}

// isValidIPv4 checks that s parses as a dotted-quad IPv4 address.
func isValidIPv4(s string) bool {
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Is4()
}

// normalize strips a leading scheme, truncates at the first path
// separator, strips one trailing dot, and lowercases the result.
func normalize(input string) string {
	s := input
	if idx := strings.Index(s, "://"); idx >= 0 {
		s = s[idx+3:]
	}
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimSuffix(s, ".")
	return strings.ToLower(s)
}

// AddPositive inserts (url, ip, expiresAt) into the positive cache unless
// an entry for url already exists, in which case it is a no-op and
// AlreadyPresent is returned — the positive cache never refreshes an
// existing TTL on a repeat upstream answer.
func (c *CacheLayer) AddPositive(url, ip string, expiresAt uint32) AddOutcome {
	url = normalize(url)
	if !isValidDomain(url) || !isValidIPv4(ip) {
		return Invalid
	}
	if _, ok := c.positive.Get(url); ok {
		return AlreadyPresent
	}
	c.positive.Put(keyedmap.Record{URL: url, IP: ip, ExpiresAt: expiresAt})
	return AddedNew
}

// AddBlock inserts a never-expiring blocklist entry, incrementing
// blocklistDomains only when the insert produced a brand-new node.
func (c *CacheLayer) AddBlock(url, ip string) AddOutcome {
	url = normalize(url)
	if !isValidDomain(url) || !isValidIPv4(ip) {
		return Invalid
	}
	res := c.blocklist.Put(keyedmap.Record{URL: url, IP: ip, ExpiresAt: 0})
	if res == keyedmap.PutAdded {
		atomic.AddUint32(&c.blocklistDomains, 1)
		return AddedNew
	}
	return AlreadyPresent
}

// GetPositive returns the cached IP for url, if present.
func (c *CacheLayer) GetPositive(url string) (string, bool) {
	rec, ok := c.positive.Get(normalize(url))
	if !ok {
		return "", false
	}
	return rec.IP, true
}

// GetBlock returns the sink IP for url, if the blocklist contains it.
func (c *CacheLayer) GetBlock(url string) (string, bool) {
	rec, ok := c.blocklist.Get(normalize(url))
	if !ok {
		return "", false
	}
	return rec.IP, true
}

// RemovePositive removes url from the positive cache, if present.
func (c *CacheLayer) RemovePositive(url string) bool {
	return c.positive.Remove(normalize(url))
}

// WipeBlocklist clears the blocklist and resets blocklistDomains to 0.
func (c *CacheLayer) WipeBlocklist() {
	c.blocklist.Wipe()
	atomic.StoreUint32(&c.blocklistDomains, 0)
}

// Sweep delegates to the positive cache's Sweep and returns the removed
// count; callers update inCacheCount from PositiveSize() afterward.
func (c *CacheLayer) Sweep(now time.Time) int {
	return c.positive.Sweep(now)
}

// PositiveSize and BlocklistDomains expose the counts the control plane
// and sweeper report.
func (c *CacheLayer) PositiveSize() int       { return c.positive.Size() }
func (c *CacheLayer) BlocklistDomains() uint32 { return atomic.LoadUint32(&c.blocklistDomains) }

// ReloadLocalOverrides reads every (ip, domain) pair from src, removes any
// existing positive-cache entry for that domain, and reinserts it with
// expiresAt=0 (never expires). Invalid entries are skipped. This does NOT
// touch blocklistDomains — local overrides are not blocklist entries.
func (c *CacheLayer) ReloadLocalOverrides(src LocalOverridesSource) error {
	overrides, err := src.LocalOverrides()
	if err != nil {
		return fmt.Errorf("cachelayer: reading local overrides: %w", err)
	}
	for _, o := range overrides {
		domain := normalize(o.Domain)
		if !isValidDomain(domain) || !isValidIPv4(o.IP) {
			continue
		}
		c.positive.Remove(domain)
		c.positive.Put(keyedmap.Record{URL: domain, IP: o.IP, ExpiresAt: 0})
	}
	return nil
}

// LoadBlocklists iterates every enabled file named in src's manifest,
// parses it in hosts(5) style, and calls AddBlock for each valid entry.
func (c *CacheLayer) LoadBlocklists(src BlocklistSource) error {
	manifest, err := src.BlocklistManifest()
	if err != nil {
		return fmt.Errorf("cachelayer: reading blocklist manifest: %w", err)
	}
	for _, entry := range manifest {
		if !entry.Enabled {
			continue
		}
		if err := c.loadBlocklistFile(src, entry.Path); err != nil {
			return err
		}
	}
	return nil
}

func (c *CacheLayer) loadBlocklistFile(src BlocklistSource, path string) error {
	f, err := src.OpenBlocklistFile(path)
	if err != nil {
		return fmt.Errorf("cachelayer: opening blocklist %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		domain, ip, ok := parseHostsLine(line)
		if !ok {
			continue
		}
		c.AddBlock(domain, ip)
	}
	return nil
}

// parseHostsLine parses one hosts(5)-style line: one or two
// whitespace-separated tokens. A single token is treated as a bare
// domain defaulting to sink IP 0.0.0.0. Two tokens in IP/domain order
// that are actually swapped (domain first, IP second) are repaired.
func parseHostsLine(line string) (domain, ip string, ok bool) {
	fields := strings.Fields(line)
	switch len(fields) {
	case 1:
		return fields[0], "0.0.0.0", true
	case 2:
		a, b := fields[0], fields[1]
		if isValidIPv4(a) {
			return b, a, true
		}
		if isValidIPv4(b) {
			return a, b, true
		}
		return "", "", false
	default:
		return "", "", false
	}
}
