package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soocke/guard-overlay-go/domain/moderation"
	"github.com/soocke/guard-overlay-go/domain/pipeline"
	"github.com/soocke/guard-overlay-go/domain/speech"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Audio ingress message types.
const (
	MsgAudioChunk = "audio_chunk"
	MsgFlush      = "flush"
	MsgOverlay    = "overlay"
)

// AudioMessage is an inbound audio control or data frame. Blob is either a
// base64 string or an array of byte values.
type AudioMessage struct {
	Type string          `json:"type"`
	Blob json.RawMessage `json:"blob,omitempty"`
	TS   int64           `json:"ts,omitempty"`
}

// OverlayMessage carries one transcript back to the audio client.
type OverlayMessage struct {
	Type     string   `json:"type"`
	Text     string   `json:"text"`
	Partial  bool     `json:"partial"`
	Toxicity *float64 `json:"toxicity"`
}

var errBadBlob = errors.New("blob must be a base64 string or a byte array")

// DecodeBlob accepts both encodings of AudioMessage.Blob.
func DecodeBlob(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return base64.StdEncoding.DecodeString(s)
	case '[':
		var vals []int
		if err := json.Unmarshal(raw, &vals); err != nil {
			return nil, err
		}
		out := make([]byte, len(vals))
		for i, v := range vals {
			if v < 0 || v > 255 {
				return nil, errBadBlob
			}
			out[i] = byte(v)
		}
		return out, nil
	}
	return nil, errBadBlob
}

// handleModeration answers ocr_lines requests with tox_lines verdicts from
// the local aggregator.
func (s *Server) handleModeration(w http.ResponseWriter, r *http.Request) {
	if s.deps.Moderator == nil {
		http.Error(w, "moderation unavailable", http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("moderation upgrade", "error", err)
		}
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	ctx := r.Context()
	for {
		var env moderation.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && s.logger != nil {
				s.logger.Debug("moderation read", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		reply := moderation.Envelope{Type: moderation.EventError, ID: env.ID}
		if env.Type == moderation.EventOCRLines {
			res := s.deps.Moderator.Aggregate(ctx, moderation.FromWire(env.Lines))
			reply = moderation.Envelope{Type: moderation.EventToxLines, ID: env.ID, Indices: res.Flagged, Score: res.ScoreValue()}
		} else {
			reply.Error = "unsupported message type " + env.Type
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

// handleAudio feeds remote audio into the audio stream and pushes transcripts back.
func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if s.deps.Audio == nil {
		http.Error(w, "audio ingress unavailable", http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("audio upgrade", "error", err)
		}
		return
	}
	send := make(chan OverlayMessage, 64)
	done := make(chan struct{})
	cancel := s.deps.Audio.Subscribe(func(t pipeline.Transcript) {
		msg := OverlayMessage{Type: MsgOverlay, Text: t.Text, Partial: t.Partial, Toxicity: t.Score}
		select {
		case send <- msg:
		case <-done:
		default:
			// slow client: drop rather than stall the pipeline
		}
	})
	go s.audioWriter(conn, send, done)
	defer func() {
		cancel()
		close(done)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		var msg AudioMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		switch msg.Type {
		case MsgAudioChunk:
			data, err := DecodeBlob(msg.Blob)
			if err != nil {
				if s.logger != nil {
					s.logger.Debug("audio chunk rejected", "error", err)
				}
				continue
			}
			ts := time.Now()
			if msg.TS > 0 {
				ts = time.UnixMilli(msg.TS)
			}
			s.deps.Audio.Push(speech.Chunk{Data: data, Timestamp: ts})
		case MsgFlush:
			s.deps.Audio.Flush()
		}
	}
}

func (s *Server) audioWriter(conn *websocket.Conn, send <-chan OverlayMessage, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case msg := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}
