package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/soocke/guard-overlay-go/domain/classify"
)

func TestLog_OnlyHarmfulRecorded(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	ok, err := l.Append("screen", classify.Judgment{Verdict: classify.Safe, Text: "fine"})
	if ok || err != nil {
		t.Fatalf("expected SAFE ignored, got %v %v", ok, err)
	}
	ok, err = l.Append("screen", classify.Judgment{Verdict: classify.Harmful, Text: "금칙어 테스트", Reason: "금칙어", Source: classify.SourceBlocklist})
	if !ok || err != nil {
		t.Fatalf("expected HARMFUL appended, got %v %v", ok, err)
	}
	sc := bufio.NewScanner(&buf)
	var recs []Record
	for sc.Scan() {
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		recs = append(recs, r)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	r := recs[0]
	if r.Judgment != "HARMFUL" || r.Text != "금칙어 테스트" || r.Reason != "금칙어" || r.Timestamp != "2024-05-01T12:00:00Z" || r.ID == "" {
		t.Fatalf("unexpected record %+v", r)
	}
	if l.Written() != 1 {
		t.Fatalf("expected written=1, got %d", l.Written())
	}
}

func TestOpen_AppendsAcrossSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "events.jsonl")
	for i := 0; i < 2; i++ {
		l, err := Open(path)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if _, err := l.Append("audio", classify.Judgment{Verdict: classify.Harmful, Text: "x"}); err != nil {
			t.Fatalf("append: %v", err)
		}
		if err := l.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n := bytes.Count(raw, []byte("\n")); n != 2 {
		t.Fatalf("expected 2 lines, got %d", n)
	}
}

func TestNilLogIsNoop(t *testing.T) {
	var l *Log
	if ok, err := l.Append("screen", classify.Judgment{Verdict: classify.Harmful}); ok || err != nil {
		t.Fatalf("nil log should ignore appends")
	}
	if err := l.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
