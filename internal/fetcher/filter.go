// Package fetcher wraps outbound HTTP with domain filtering, per-domain
// rate limiting, 429/503 backoff, and a disk response cache.
package fetcher

import (
	"bufio"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Policy is the default decision when neither list matches.
type Policy string

const (
	PolicyAllow Policy = "allow"
	PolicyDeny  Policy = "deny"
)

// DomainFilter decides which domains may be fetched. Deny entries win over
// allow entries. Entries are exact hostnames or left wildcards
// ("*.example.com"). List files are reloaded at most every ReloadInterval;
// an fsnotify watcher marks the filter dirty so edits take effect at the
// next check.
type DomainFilter struct {
	mu sync.Mutex

	allowFile string
	denyFile  string
	policy    Policy
	interval  time.Duration

	allow []string
	deny  []string

	lastReload time.Time
	dirty      bool

	watcher *fsnotify.Watcher
}

// NewDomainFilter creates a filter over the two list files. Missing files
// are treated as empty lists.
func NewDomainFilter(allowFile, denyFile string, policy Policy, reloadInterval time.Duration) *DomainFilter {
	f := &DomainFilter{
		allowFile: allowFile,
		denyFile:  denyFile,
		policy:    policy,
		interval:  reloadInterval,
		dirty:     true,
	}

	if w, err := fsnotify.NewWatcher(); err == nil {
		f.watcher = w
		for _, file := range []string{allowFile, denyFile} {
			if file != "" {
				_ = w.Add(file)
			}
		}
		go f.watch()
	} else {
		slog.Debug("domain filter watcher unavailable, relying on interval reload", "error", err)
	}

	return f
}

func (f *DomainFilter) watch() {
	for {
		select {
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				f.mu.Lock()
				f.dirty = true
				f.mu.Unlock()
			}
		case _, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the file watcher.
func (f *DomainFilter) Close() error {
	if f.watcher != nil {
		return f.watcher.Close()
	}
	return nil
}

// Allowed reports whether the domain passes the filter.
func (f *DomainFilter) Allowed(domain string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.maybeReload()

	candidate := normalizeDomain(domain)
	if matchAny(f.deny, candidate) {
		return false
	}
	if matchAny(f.allow, candidate) {
		return true
	}
	if len(f.allow) == 0 && len(f.deny) == 0 {
		return f.policy == PolicyAllow
	}
	// A non-empty allow list means everything else is denied; a deny-only
	// configuration admits anything not denied.
	if len(f.allow) > 0 {
		return false
	}
	return true
}

// maybeReload reloads the list files, throttled to once per interval.
// Without a watcher every interval triggers a reload; with one, only
// intervals where a file changed do. Caller holds the lock.
func (f *DomainFilter) maybeReload() {
	if !f.lastReload.IsZero() {
		if time.Since(f.lastReload) < f.interval {
			return
		}
		if f.watcher != nil && !f.dirty {
			return
		}
	}
	f.allow = readDomainList(f.allowFile)
	f.deny = readDomainList(f.denyFile)
	f.lastReload = time.Now()
	f.dirty = false
}

// normalizeDomain lowercases and strips a leading www. prefix.
func normalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	return strings.TrimPrefix(d, "www.")
}

// matchAny checks a candidate against exact and *.suffix entries.
func matchAny(entries []string, candidate string) bool {
	for _, entry := range entries {
		if wild, ok := strings.CutPrefix(entry, "*."); ok {
			if candidate == wild || strings.HasSuffix(candidate, "."+wild) {
				return true
			}
			continue
		}
		if candidate == entry {
			return true
		}
	}
	return false
}

// readDomainList parses a newline-delimited domain file. Comment lines
// (#...) and blank lines are ignored. A missing file yields an empty list.
func readDomainList(path string) []string {
	if path == "" {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	var entries []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, normalizeDomain(line))
	}
	return entries
}
