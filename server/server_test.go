package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soocke/guard-overlay-go/domain/classify"
	"github.com/soocke/guard-overlay-go/domain/moderation"
	"github.com/soocke/guard-overlay-go/domain/ocr"
	"github.com/soocke/guard-overlay-go/domain/pipeline"
	"github.com/soocke/guard-overlay-go/domain/speech"
)

func newRules(t *testing.T, bad ...string) *classify.RuleStore {
	t.Helper()
	store := classify.NewRuleStore(filepath.Join(t.TempDir(), "rules.json"), nil)
	if err := store.Replace(classify.Rules{Badwords: bad, Whitelist: []string{}}); err != nil {
		t.Fatalf("rules: %v", err)
	}
	return store
}

func TestHealthAndStatus(t *testing.T) {
	s := New(Options{}, Deps{Status: func() Status {
		return Status{Streams: []StreamStatus{StreamStatusFrom(pipeline.Stats{Stream: "screen", Stage: "idle", Cycles: 3})}}
	}})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %v %v", resp, err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer resp.Body.Close()
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(st.Streams) != 1 || st.Streams[0].Cycles != 3 || st.Uptime == "" {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestMissingBackendsAnswer503(t *testing.T) {
	srv := httptest.NewServer(New(Options{}, Deps{}).Handler())
	defer srv.Close()
	for _, path := range []string{"/status", "/rules", "/ws/moderation", "/ws/audio"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, resp.StatusCode)
		}
	}
}

func TestRulesGetAndPut(t *testing.T) {
	store := newRules(t, "old")
	srv := httptest.NewServer(New(Options{}, Deps{Rules: store}).Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/rules", strings.NewReader(`{"badwords":["new"],"whitelist":["ok"]}`))
	resp, err := http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("put: %v %v", resp, err)
	}
	resp.Body.Close()
	if r := store.Snapshot(); len(r.Badwords) != 1 || r.Badwords[0] != "new" {
		t.Fatalf("rules not replaced: %+v", r)
	}

	resp, err = http.Get(srv.URL + "/rules")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var got classify.Rules
	_ = json.NewDecoder(resp.Body).Decode(&got)
	resp.Body.Close()
	if len(got.Whitelist) != 1 || got.Whitelist[0] != "ok" {
		t.Fatalf("unexpected rules %+v", got)
	}

	req, _ = http.NewRequest(http.MethodPut, srv.URL+"/rules", strings.NewReader(`{"badwords":`))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("bad put: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestRateLimit(t *testing.T) {
	srv := httptest.NewServer(New(Options{RatePerSecond: 1}, Deps{}).Handler())
	defer srv.Close()
	limited := false
	for i := 0; i < 5; i++ {
		resp, err := http.Get(srv.URL + "/healthz")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Fatalf("expected a 429 after the burst")
	}
}

func wsURL(base, path string) string { return "ws" + strings.TrimPrefix(base, "http") + path }

func TestModerationEndpointServesRemoteClient(t *testing.T) {
	agg := moderation.NewAggregator(classify.NewClassifier(newRules(t, "금칙어"), nil, 0.9, nil), nil, 0, nil)
	srv := httptest.NewServer(New(Options{}, Deps{Moderator: agg}).Handler())
	defer srv.Close()

	client := moderation.NewRemoteClient(wsURL(srv.URL, "/ws/moderation"), moderation.RemoteOptions{InitialBackoff: 10 * time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for !client.Connected() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	v, err := client.Moderate(ctx, []ocr.Line{{Text: "안녕"}, {Text: "금칙어 테스트"}})
	if err != nil {
		t.Fatalf("moderate: %v", err)
	}
	if len(v.Indices) != 1 || v.Indices[0] != 1 || v.Score != 0.9 {
		t.Fatalf("unexpected verdict %+v", v)
	}
}

func TestModerationEndpointRejectsUnknownType(t *testing.T) {
	agg := moderation.NewAggregator(nil, nil, 0, nil)
	srv := httptest.NewServer(New(Options{}, Deps{Moderator: agg}).Handler())
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL, "/ws/moderation"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.WriteJSON(moderation.Envelope{Type: "bogus", ID: "1"})
	var reply moderation.Envelope
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	if reply.Type != moderation.EventError || reply.ID != "1" || reply.Error == "" {
		t.Fatalf("unexpected reply %+v", reply)
	}
}

type fakeIngress struct {
	mu      sync.Mutex
	chunks  []speech.Chunk
	flushes int
	subs    []func(pipeline.Transcript)
}

func (f *fakeIngress) Push(c speech.Chunk) {
	f.mu.Lock()
	f.chunks = append(f.chunks, c)
	f.mu.Unlock()
}

func (f *fakeIngress) Flush() {
	f.mu.Lock()
	f.flushes++
	subs := make([]func(pipeline.Transcript), len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()
	score := 0.8
	for _, fn := range subs {
		fn(pipeline.Transcript{Text: "hello", Score: &score})
	}
}

func (f *fakeIngress) Subscribe(fn func(pipeline.Transcript)) func() {
	f.mu.Lock()
	f.subs = append(f.subs, fn)
	f.mu.Unlock()
	return func() {}
}

func TestAudioIngress(t *testing.T) {
	in := &fakeIngress{}
	srv := httptest.NewServer(New(Options{}, Deps{Audio: in}).Handler())
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL, "/ws/audio"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"audio_chunk","blob":[1,2,3],"ts":1000}`))
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"audio_chunk","blob":"BAU=","ts":2000}`))
	_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"flush"}`))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg OverlayMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read overlay: %v", err)
	}
	if msg.Type != MsgOverlay || msg.Text != "hello" || msg.Toxicity == nil || *msg.Toxicity != 0.8 {
		t.Fatalf("unexpected overlay %+v", msg)
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.chunks) != 2 || in.flushes != 1 {
		t.Fatalf("expected 2 chunks and 1 flush, got %d/%d", len(in.chunks), in.flushes)
	}
	if string(in.chunks[1].Data) != "\x04\x05" || in.chunks[0].Timestamp.UnixMilli() != 1000 {
		t.Fatalf("unexpected chunk decoding %+v", in.chunks)
	}
}

func TestDecodeBlob(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{`"aGk="`, "hi", false},
		{`[104,105]`, "hi", false},
		{`[300]`, "", true},
		{`{}`, "", true},
		{``, "", false},
	}
	for _, tt := range tests {
		got, err := DecodeBlob(json.RawMessage(tt.in))
		if (err != nil) != tt.wantErr || string(got) != tt.want {
			t.Fatalf("DecodeBlob(%s): expected %q err=%v, got %q %v", tt.in, tt.want, tt.wantErr, got, err)
		}
	}
}
