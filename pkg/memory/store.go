// Package memory provides the file-backed store of long-lived agent
// documents: the bible, identity, scratchpad, knowledge index, and live
// state snapshot that feed the context builder.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Fallback strings returned when a document is missing. The loop must keep
// running on a half-initialized drive, so reads degrade instead of failing.
const (
	FallbackBible      = "(bible not found - operating on base instructions only)"
	FallbackIdentity   = "(identity not found)"
	FallbackScratchpad = "(scratchpad empty)"
	FallbackState      = "(no state snapshot)"
)

// identityStaleAfter is how old identity.md may get before the store
// surfaces a health finding about it.
const identityStaleAfter = 30 * 24 * time.Hour

// StoreConfig configures a Store.
type StoreConfig struct {
	// DriveRoot holds the agent's documents (bible.md, identity.md,
	// scratchpad.md, knowledge/, state.json).
	DriveRoot string
	// RepoRoot is the working repository checked for version consistency.
	RepoRoot string
	Logger   zerolog.Logger
	// Now overrides the clock for staleness checks. Nil means time.Now.
	Now func() time.Time
}

// Store reads agent documents from disk with a cache invalidated by an
// fsnotify watcher.
type Store struct {
	driveRoot string
	repoRoot  string
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	cache   map[string]string
	watcher *FileWatcher
}

// NewStore creates a store over the given drive root and starts watching it
// for changes. A missing drive root is not an error; reads fall back.
func NewStore(cfg StoreConfig) (*Store, error) {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Store{
		driveRoot: cfg.DriveRoot,
		repoRoot:  cfg.RepoRoot,
		logger:    cfg.Logger,
		now:       now,
		cache:     make(map[string]string),
	}

	if _, err := os.Stat(cfg.DriveRoot); err == nil {
		watcher, err := NewFileWatcher(cfg.Logger, s.invalidate)
		if err != nil {
			return nil, fmt.Errorf("start memory watcher: %w", err)
		}
		if err := watcher.Watch(cfg.DriveRoot); err != nil {
			watcher.Stop()
			return nil, fmt.Errorf("watch drive root: %w", err)
		}
		s.watcher = watcher
	}

	return s, nil
}

// Close stops the file watcher.
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Stop()
	}
	return nil
}

func (s *Store) invalidate() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
	s.logger.Debug().Msg("Memory cache invalidated")
}

// read returns the file's contents, cached, or fallback when unreadable.
func (s *Store) read(name, fallback string) string {
	s.mu.Lock()
	if cached, ok := s.cache[name]; ok {
		s.mu.Unlock()
		return cached
	}
	s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.driveRoot, name))
	if err != nil {
		return fallback
	}

	content := strings.TrimRight(string(data), "\n")
	s.mu.Lock()
	s.cache[name] = content
	s.mu.Unlock()
	return content
}

// Bible returns the long-lived reference document.
func (s *Store) Bible() string {
	return s.read("bible.md", FallbackBible)
}

// Identity returns the agent identity document.
func (s *Store) Identity() string {
	return s.read("identity.md", FallbackIdentity)
}

// Scratchpad returns the working scratchpad.
func (s *Store) Scratchpad() string {
	return s.read("scratchpad.md", FallbackScratchpad)
}

// StateSnapshot returns the live state snapshot, pretty-printed when it is
// valid JSON.
func (s *Store) StateSnapshot() string {
	raw := s.read("state.json", FallbackState)
	if raw == FallbackState {
		return raw
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return raw
	}
	pretty, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return raw
	}
	return string(pretty)
}

// KnowledgeSummaries returns one line per knowledge document: its name and
// first heading or sentence. Empty when the knowledge directory is missing.
func (s *Store) KnowledgeSummaries() string {
	dir := filepath.Join(s.driveRoot, "knowledge")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	names := []string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		summary := firstLine(filepath.Join(dir, name))
		fmt.Fprintf(&b, "- %s: %s\n", strings.TrimSuffix(name, ".md"), summary)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Knowledge returns the full content of one knowledge document.
func (s *Store) Knowledge(name string) (string, error) {
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid knowledge name: %s", name)
	}
	data, err := os.ReadFile(filepath.Join(s.driveRoot, "knowledge", name+".md"))
	if err != nil {
		return "", fmt.Errorf("knowledge %q not found", name)
	}
	return string(data), nil
}

// HealthFindings checks store invariants and returns human-readable warnings:
// a stale identity document and a VERSION/README version mismatch.
// An empty slice means nothing to report.
func (s *Store) HealthFindings() []string {
	findings := []string{}

	if info, err := os.Stat(filepath.Join(s.driveRoot, "identity.md")); err == nil {
		age := s.now().Sub(info.ModTime())
		if age > identityStaleAfter {
			findings = append(findings,
				fmt.Sprintf("identity.md has not been updated in %d days", int(age.Hours()/24)))
		}
	}

	if mismatch := s.versionMismatch(); mismatch != "" {
		findings = append(findings, mismatch)
	}

	return findings
}

// versionMismatch compares the VERSION file against the README version
// header. Returns a finding string, or empty when consistent or unknown.
func (s *Store) versionMismatch() string {
	if s.repoRoot == "" {
		return ""
	}

	versionData, err := os.ReadFile(filepath.Join(s.repoRoot, "VERSION"))
	if err != nil {
		return ""
	}
	version := strings.TrimSpace(string(versionData))

	readme, err := os.ReadFile(filepath.Join(s.repoRoot, "README.md"))
	if err != nil {
		return ""
	}

	readmeVersion := ""
	for _, line := range strings.Split(string(readme), "\n") {
		if strings.HasPrefix(line, "**Version:**") {
			readmeVersion = strings.TrimSpace(strings.TrimPrefix(line, "**Version:**"))
			break
		}
	}
	if readmeVersion == "" {
		return ""
	}

	if version != readmeVersion {
		return fmt.Sprintf("version mismatch: VERSION=%s but README says %s", version, readmeVersion)
	}
	return ""
}

func firstLine(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "(unreadable)"
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line != "" {
			if len(line) > 120 {
				line = line[:120] + "..."
			}
			return line
		}
	}
	return "(empty)"
}
