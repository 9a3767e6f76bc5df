package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/soocke/guard-overlay-go/assets"
)

// Rules is the persisted keyword configuration.
type Rules struct {
	Badwords  []string `json:"badwords"`
	Whitelist []string `json:"whitelist"`
}

// DefaultRules is written on first run.
func DefaultRules() Rules {
	var r Rules
	if err := json.Unmarshal(assets.DefaultRulesJSON, &r); err != nil {
		return Rules{Badwords: []string{}, Whitelist: []string{}}
	}
	return r
}

// ruleSet is an immutable compiled snapshot.
type ruleSet struct {
	raw       Rules
	whitelist []term
	badwords  []term
}

type term struct {
	word       string
	normalized string
}

func compile(r Rules) *ruleSet {
	rs := &ruleSet{raw: Rules{
		Badwords:  append([]string{}, r.Badwords...),
		Whitelist: append([]string{}, r.Whitelist...),
	}}
	rs.whitelist = compileTerms(r.Whitelist)
	rs.badwords = compileTerms(r.Badwords)
	return rs
}

// compileTerms skips entries that normalize to nothing; an empty term would match every text.
func compileTerms(words []string) []term {
	out := make([]term, 0, len(words))
	for _, w := range words {
		n := Normalize(w)
		if n == "" {
			continue
		}
		out = append(out, term{word: w, normalized: n})
	}
	return out
}

// RuleStore owns the current rule snapshot and its file. Readers always see a
// complete snapshot; writers swap the pointer.
type RuleStore struct {
	path    string
	logger  *slog.Logger
	current atomic.Pointer[ruleSet]
	writeMu sync.Mutex
}

// NewRuleStore returns a store holding the default rules until Load is called.
// An empty path keeps rules in memory only.
func NewRuleStore(path string, logger *slog.Logger) *RuleStore {
	s := &RuleStore{path: path, logger: logger}
	s.current.Store(compile(DefaultRules()))
	return s
}

// Load reads the rules file, creating it with DefaultRules when absent.
// A malformed file leaves empty rules in place and returns the error.
func (s *RuleStore) Load() (Rules, error) {
	if s.path == "" {
		return s.Snapshot(), nil
	}
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		def := DefaultRules()
		if err := s.Replace(def); err != nil {
			return def, err
		}
		if s.logger != nil {
			s.logger.Info("rules created with defaults", "path", s.path)
		}
		return def, nil
	}
	if err != nil {
		return s.Snapshot(), fmt.Errorf("read rules: %w", err)
	}
	var r Rules
	if err := json.Unmarshal(raw, &r); err != nil {
		s.current.Store(compile(Rules{}))
		return Rules{}, fmt.Errorf("decode rules %s: %w", s.path, err)
	}
	s.current.Store(compile(r))
	return r, nil
}

// Snapshot returns a copy of the current rules.
func (s *RuleStore) Snapshot() Rules {
	rs := s.current.Load()
	return Rules{
		Badwords:  append([]string{}, rs.raw.Badwords...),
		Whitelist: append([]string{}, rs.raw.Whitelist...),
	}
}

func (s *RuleStore) snapshot() *ruleSet { return s.current.Load() }

// Replace swaps the active rules and persists them.
func (s *RuleStore) Replace(r Rules) error {
	if r.Badwords == nil {
		r.Badwords = []string{}
	}
	if r.Whitelist == nil {
		r.Whitelist = []string{}
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.current.Store(compile(r))
	if s.path == "" {
		return nil
	}
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write rules: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Watch reloads the rules file on external edits until ctx is done.
func (s *RuleStore) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory: editors and Replace swap the file by rename.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		_ = w.Close()
		return err
	}
	go func() {
		defer w.Close()
		name := filepath.Clean(s.path)
		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != name || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)) {
					continue
				}
				debounce = time.After(100 * time.Millisecond)
			case <-debounce:
				debounce = nil
				s.reload()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				if s.logger != nil {
					s.logger.Warn("rules watcher", "error", err)
				}
			}
		}
	}()
	return nil
}

func (s *RuleStore) reload() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var r Rules
	if err := json.Unmarshal(raw, &r); err != nil {
		if s.logger != nil {
			s.logger.Warn("rules reload skipped", "path", s.path, "error", err)
		}
		return
	}
	s.current.Store(compile(r))
	if s.logger != nil {
		s.logger.Info("rules reloaded", "badwords", len(r.Badwords), "whitelist", len(r.Whitelist))
	}
}
