package classify

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeModel struct {
	verdict ModelVerdict
	err     error
	calls   int
}

func (m *fakeModel) Name() string { return "fake" }
func (m *fakeModel) Judge(context.Context, string) (ModelVerdict, error) {
	m.calls++
	return m.verdict, m.err
}

func newStore(t *testing.T, r Rules) *RuleStore {
	t.Helper()
	s := NewRuleStore("", nil)
	if err := s.Replace(r); err != nil {
		t.Fatalf("replace: %v", err)
	}
	return s
}

func TestNormalize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Hello, World!", "helloworld"},
		{"금 칙 어!!", "금칙어"},
		{"  욕설?  game_1 ", "욕설game_1"},
		{"ㅋㅋ 😀", "ㅋㅋ"},
		{"Привет, МИР!", "приветмир"},
		{"日本語・テキスト", "日本語テキスト"},
		{"🔥 !!", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Fatalf("Normalize(%q): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestClassifier_JamoBlocklistTerm(t *testing.T) {
	c := NewClassifier(newStore(t, Rules{Badwords: []string{"ㅅㅂ"}}), nil, 0.9, nil)
	if j := c.Judge(context.Background(), "ㅅ ㅂ!!"); j.Verdict != Harmful {
		t.Fatalf("expected HARMFUL for spaced jamo, got %+v", j)
	}
}

func TestClassifier_WhitelistPrecedence(t *testing.T) {
	c := NewClassifier(newStore(t, Rules{Badwords: []string{"욕설"}, Whitelist: []string{"게임"}}), nil, 0.9, nil)
	j := c.Judge(context.Background(), "게임 중 욕설 금지")
	if j.Verdict != Safe || j.Reason != "게임" || j.Source != SourceWhitelist {
		t.Fatalf("expected whitelist SAFE, got %+v", j)
	}
}

func TestClassifier_BlocklistMatchAfterNormalization(t *testing.T) {
	c := NewClassifier(newStore(t, Rules{Badwords: []string{"금칙어"}}), nil, 0.8, nil)
	j := c.Judge(context.Background(), "금 칙 어, 테스트")
	if !j.Harmful() || j.Reason != "금칙어" || j.Confidence != 0.8 {
		t.Fatalf("expected HARMFUL via blocklist, got %+v", j)
	}
	if j.Text != "금 칙 어, 테스트" {
		t.Fatalf("expected source text preserved, got %q", j.Text)
	}
}

func TestClassifier_ModelFallbacks(t *testing.T) {
	store := newStore(t, Rules{Badwords: []string{"bad"}})
	t.Run("no model defaults safe", func(t *testing.T) {
		j := NewClassifier(store, nil, 0.9, nil).Judge(context.Background(), "neutral text")
		if j.Verdict != Safe || j.Source != SourceDefault {
			t.Fatalf("expected default SAFE, got %+v", j)
		}
	})
	t.Run("model harmful", func(t *testing.T) {
		m := &fakeModel{verdict: ModelVerdict{Harmful: true, Confidence: 0.3, Label: "insult"}}
		j := NewClassifier(store, m, 0.9, nil).Judge(context.Background(), "neutral text")
		if !j.Harmful() || j.Source != SourceModel || j.Confidence != 0.3 {
			t.Fatalf("expected model HARMFUL, got %+v", j)
		}
	})
	t.Run("model error defaults safe", func(t *testing.T) {
		m := &fakeModel{err: errors.New("offline")}
		j := NewClassifier(store, m, 0.9, nil).Judge(context.Background(), "neutral text")
		if j.Verdict != Safe || m.calls != 1 {
			t.Fatalf("expected SAFE after model error, got %+v", j)
		}
	})
	t.Run("rule hit skips model", func(t *testing.T) {
		m := &fakeModel{}
		j := NewClassifier(store, m, 0.9, nil).Judge(context.Background(), "so bad")
		if !j.Harmful() || m.calls != 0 {
			t.Fatalf("expected blocklist without model call, got %+v calls=%d", j, m.calls)
		}
	})
}

func TestClassifier_EmptyTermsIgnored(t *testing.T) {
	c := NewClassifier(newStore(t, Rules{Badwords: []string{"", "!!"}, Whitelist: []string{" "}}), nil, 0.9, nil)
	if j := c.Judge(context.Background(), "anything"); j.Verdict != Safe || j.Source != SourceDefault {
		t.Fatalf("empty terms must not match, got %+v", j)
	}
}

func TestRuleStore_CreatesDefaultsOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	s := NewRuleStore(path, nil)
	r, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(r.Badwords) != 3 || r.Badwords[0] != "욕설" || len(r.Whitelist) != 3 || r.Whitelist[2] != "가드" {
		t.Fatalf("unexpected defaults %+v", r)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("defaults not persisted: %v", err)
	}
	var onDisk Rules
	if err := json.Unmarshal(raw, &onDisk); err != nil || len(onDisk.Badwords) != 3 {
		t.Fatalf("bad persisted rules %s (%v)", raw, err)
	}
}

func TestRuleStore_SnapshotIsolation(t *testing.T) {
	s := newStore(t, Rules{Badwords: []string{"a"}})
	snap := s.Snapshot()
	snap.Badwords[0] = "mutated"
	if got := s.Snapshot().Badwords[0]; got != "a" {
		t.Fatalf("snapshot aliasing store state: %q", got)
	}
}

func TestRuleStore_ConcurrentReplaceSeesWholeSnapshots(t *testing.T) {
	s := newStore(t, Rules{Badwords: []string{"x1"}, Whitelist: []string{"y1"}})
	c := NewClassifier(s, nil, 0.9, nil)
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				_ = s.Replace(Rules{Badwords: []string{"x2"}, Whitelist: []string{"y2"}})
			} else {
				_ = s.Replace(Rules{Badwords: []string{"x1"}, Whitelist: []string{"y1"}})
			}
		}
	}()
	for i := 0; i < 2000; i++ {
		// Text matches blocklist of one generation and whitelist of the same
		// generation; a torn read would surface as HARMFUL.
		if j := c.Judge(context.Background(), "x1 y1"); j.Harmful() {
			t.Fatalf("torn snapshot: %+v", j)
		}
	}
	close(stop)
	wg.Wait()
}

func TestRuleStore_WatchReloadsExternalEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	s := NewRuleStore(path, nil)
	if _, err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Watch(ctx); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := os.WriteFile(path, []byte(`{"badwords":["새단어"],"whitelist":[]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r := s.Snapshot(); len(r.Badwords) == 1 && r.Badwords[0] == "새단어" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("rules not reloaded: %+v", s.Snapshot())
}

func TestParseModelVerdict(t *testing.T) {
	v, err := ParseModelVerdict("```json\n{\"harmful\":true,\"confidence\":1.7,\"label\":\"hate\"}\n```")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !v.Harmful || v.Confidence != 1 || v.Label != "hate" {
		t.Fatalf("unexpected verdict %+v", v)
	}
	if _, err := ParseModelVerdict(""); err == nil {
		t.Fatalf("expected error for empty reply")
	}
}
