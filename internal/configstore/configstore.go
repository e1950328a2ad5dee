// Package configstore implements flat-file persistence for every
// collaborator artifact that must survive a restart: the blocklist
// manifest, local DNS overrides, the credential/threads/upstream data
// file, the curated blocklist bodies, and the rotating server log. Every
// mutation is written to a sibling temp file and renamed into place so a
// reader never observes a half-written file.
package configstore

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jroosing/dnsden/internal/cachelayer"
)

const (
	listsFileName      = "lists.txt"
	localDNSFileName   = "localDNS.txt"
	dataFileName       = "data.txt"
	serverLogFileName  = "server_logs.txt"
	listDataDirName    = "listdata"
	tempFileSuffix     = ".tmp"
)

// Store is rooted at a data directory laid out the way the collaborator
// expects: <root>/lists.txt, <root>/localDNS.txt, <root>/data.txt,
// <root>/listdata/*, <root>/server_logs.txt.
type Store struct {
	root string
}

// New returns a Store rooted at dir. The directory and its listdata/
// subdirectory are created if they do not already exist.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, listDataDirName), 0o755); err != nil {
		return nil, fmt.Errorf("configstore: creating data directory: %w", err)
	}
	return &Store{root: dir}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.root, name)
}

// writeFileAtomic writes content to a sibling "<name>.tmp" file, fsyncs
// it, then renames it over name — a read of name never observes a
// partially written file, even if the process is killed mid-write.
func writeFileAtomic(path string, content []byte) error {
	tmp := path + tempFileSuffix
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("configstore: opening temp file %s: %w", tmp, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("configstore: writing temp file %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("configstore: syncing temp file %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("configstore: closing temp file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("configstore: renaming %s over %s: %w", tmp, path, err)
	}
	return nil
}

// readLines reads a file as a slice of lines, stripping trailing
// newlines. A missing file returns an empty slice, not an error, so a
// freshly initialized data directory boots cleanly.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("configstore: opening %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("configstore: reading %s: %w", path, err)
	}
	return lines, nil
}

func writeLinesAtomic(path string, lines []string) error {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return writeFileAtomic(path, []byte(b.String()))
}

// ReadCredentialLine returns line 1 of data.txt, or "" if the file does
// not yet exist or has no first line — satisfies credentials.Store.
func (s *Store) ReadCredentialLine() (string, error) {
	lines, err := readLines(s.path(dataFileName))
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", nil
	}
	return lines[0], nil
}

// WriteCredentialLine overwrites line 1 of data.txt, preserving lines 2
// and 3 (THREADS/UPSTREAM) if present — satisfies credentials.Store.
func (s *Store) WriteCredentialLine(line string) error {
	lines, err := readLines(s.path(dataFileName))
	if err != nil {
		return err
	}
	out := make([]string, 3)
	copy(out, lines)
	out[0] = line
	return writeLinesAtomic(s.path(dataFileName), trimTrailingEmpty(out))
}

// Threads returns the THREADS value from data.txt line 2, or (0, false)
// if unset.
func (s *Store) Threads() (int, bool, error) {
	lines, err := readLines(s.path(dataFileName))
	if err != nil {
		return 0, false, err
	}
	if len(lines) < 2 {
		return 0, false, nil
	}
	var n int
	if _, err := fmt.Sscanf(lines[1], "THREADS %d", &n); err != nil {
		return 0, false, nil
	}
	return n, true, nil
}

// SetThreads persists THREADS <n> to data.txt line 2.
func (s *Store) SetThreads(n int) error {
	lines, err := readLines(s.path(dataFileName))
	if err != nil {
		return err
	}
	out := make([]string, 3)
	copy(out, lines)
	out[1] = fmt.Sprintf("THREADS %d", n)
	return writeLinesAtomic(s.path(dataFileName), trimTrailingEmpty(out))
}

// UpstreamIP returns the UPSTREAM value from data.txt line 3, or ("", false)
// if unset.
func (s *Store) UpstreamIP() (string, bool, error) {
	lines, err := readLines(s.path(dataFileName))
	if err != nil {
		return "", false, err
	}
	if len(lines) < 3 {
		return "", false, nil
	}
	var ip string
	if _, err := fmt.Sscanf(lines[2], "UPSTREAM %s", &ip); err != nil {
		return "", false, nil
	}
	return ip, true, nil
}

// SetUpstreamIP persists UPSTREAM <ip> to data.txt line 3.
func (s *Store) SetUpstreamIP(ip string) error {
	lines, err := readLines(s.path(dataFileName))
	if err != nil {
		return err
	}
	out := make([]string, 3)
	copy(out, lines)
	out[2] = fmt.Sprintf("UPSTREAM %s", ip)
	return writeLinesAtomic(s.path(dataFileName), trimTrailingEmpty(out))
}

func trimTrailingEmpty(lines []string) []string {
	end := len(lines)
	for end > 0 && lines[end-1] == "" {
		end--
	}
	return lines[:end]
}

// LocalOverrides reads every "<ip> <domain> [<name>]" entry from
// localDNS.txt — satisfies cachelayer.LocalOverridesSource.
func (s *Store) LocalOverrides() ([]cachelayer.LocalOverride, error) {
	lines, err := readLines(s.path(localDNSFileName))
	if err != nil {
		return nil, err
	}
	var out []cachelayer.LocalOverride
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		entry := cachelayer.LocalOverride{IP: fields[0], Domain: fields[1]}
		if len(fields) >= 3 {
			entry.Name = strings.Join(fields[2:], " ")
		}
		out = append(out, entry)
	}
	return out, nil
}

// AddLocalEntry appends a new local override and rewrites the file
// atomically.
func (s *Store) AddLocalEntry(ip, domain, name string) error {
	lines, err := readLines(s.path(localDNSFileName))
	if err != nil {
		return err
	}
	entry := fmt.Sprintf("%s %s %s", ip, domain, name)
	lines = append(lines, entry)
	return writeLinesAtomic(s.path(localDNSFileName), lines)
}

// RemoveLocalEntry removes every line referencing url and rewrites the
// file atomically. It reports whether any line was removed.
func (s *Store) RemoveLocalEntry(url string) (bool, error) {
	lines, err := readLines(s.path(localDNSFileName))
	if err != nil {
		return false, err
	}
	var kept []string
	removed := false
	for _, line := range lines {
		if strings.Contains(line, url) {
			removed = true
			continue
		}
		kept = append(kept, line)
	}
	if !removed {
		return false, nil
	}
	return true, writeLinesAtomic(s.path(localDNSFileName), kept)
}

// adlistEntry is one parsed lists.txt row.
type adlistEntry struct {
	URL     string
	Enabled bool
}

func parseAdlistLine(line string) (adlistEntry, bool) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return adlistEntry{}, false
	}
	return adlistEntry{URL: fields[0], Enabled: fields[1] == "enabled"}, true
}

func (e adlistEntry) String() string {
	status := "disabled"
	if e.Enabled {
		status = "enabled"
	}
	return fmt.Sprintf("%s %s", e.URL, status)
}

func (s *Store) readAdlists() ([]adlistEntry, error) {
	lines, err := readLines(s.path(listsFileName))
	if err != nil {
		return nil, err
	}
	var entries []adlistEntry
	for _, line := range lines {
		if e, ok := parseAdlistLine(line); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (s *Store) writeAdlists(entries []adlistEntry) error {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return writeLinesAtomic(s.path(listsFileName), lines)
}

// BlocklistManifest returns every configured blocklist and its enabled
// state — satisfies cachelayer.BlocklistSource.
func (s *Store) BlocklistManifest() ([]cachelayer.BlocklistManifestEntry, error) {
	entries, err := s.readAdlists()
	if err != nil {
		return nil, err
	}
	out := make([]cachelayer.BlocklistManifestEntry, len(entries))
	for i, e := range entries {
		out[i] = cachelayer.BlocklistManifestEntry{Path: blocklistFileName(e.URL), Enabled: e.Enabled}
	}
	return out, nil
}

// OpenBlocklistFile opens a curated blocklist body under listdata/ —
// satisfies cachelayer.BlocklistSource.
func (s *Store) OpenBlocklistFile(name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.root, listDataDirName, name))
}

// blocklistFileName derives the on-disk filename for a blocklist URL:
// its final path segment.
func blocklistFileName(url string) string {
	if idx := strings.LastIndexByte(url, '/'); idx >= 0 && idx+1 < len(url) {
		return url[idx+1:]
	}
	return url
}

// AddAdlist appends a new blocklist URL, enabled by default.
func (s *Store) AddAdlist(url string) error {
	entries, err := s.readAdlists()
	if err != nil {
		return err
	}
	entries = append(entries, adlistEntry{URL: url, Enabled: true})
	return s.writeAdlists(entries)
}

// RemoveAdlist removes url from the manifest and deletes its curated
// body file, if present. It reports whether the URL was found.
func (s *Store) RemoveAdlist(url string) (bool, error) {
	entries, err := s.readAdlists()
	if err != nil {
		return false, err
	}
	var kept []adlistEntry
	found := false
	for _, e := range entries {
		if e.URL == url {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return false, nil
	}
	if err := s.writeAdlists(kept); err != nil {
		return false, err
	}
	os.Remove(filepath.Join(s.root, listDataDirName, blocklistFileName(url)))
	return true, nil
}

// setAdlistEnabled sets url's enabled state literally (not the inverted
// toggle the collaborator's own implementation has): enabled means
// enabled, regardless of the entry's current state. It reports whether
// url was found.
func (s *Store) setAdlistEnabled(url string, enabled bool) (bool, error) {
	entries, err := s.readAdlists()
	if err != nil {
		return false, err
	}
	found := false
	for i, e := range entries {
		if e.URL == url {
			entries[i].Enabled = enabled
			found = true
		}
	}
	if !found {
		return false, nil
	}
	return true, s.writeAdlists(entries)
}

// EnableAdlist and DisableAdlist set literal enable/disable state.
func (s *Store) EnableAdlist(url string) (bool, error)  { return s.setAdlistEnabled(url, true) }
func (s *Store) DisableAdlist(url string) (bool, error) { return s.setAdlistEnabled(url, false) }

// RotateServerLog truncates server_logs.txt to its most recent maxLines
// lines — satisfies sweeper.LogRotator.
func (s *Store) RotateServerLog(maxLines int) error {
	lines, err := readLines(s.path(serverLogFileName))
	if err != nil {
		return err
	}
	if len(lines) <= maxLines {
		return nil
	}
	return writeLinesAtomic(s.path(serverLogFileName), lines[len(lines)-maxLines:])
}

// AppendServerLog appends one line to server_logs.txt.
func (s *Store) AppendServerLog(line string) error {
	f, err := os.OpenFile(s.path(serverLogFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("configstore: opening server log: %w", err)
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

// TerminalOutput returns the full current contents of server_logs.txt.
func (s *Store) TerminalOutput() (string, error) {
	lines, err := readLines(s.path(serverLogFileName))
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// parseThreadsArg parses a thread count from text, ignoring surrounding
// whitespace.
func parseThreadsArg(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("configstore: invalid thread count %q: %w", s, err)
	}
	return n, nil
}
