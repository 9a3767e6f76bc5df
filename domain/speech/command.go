package speech

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// CommandRecognizer pipes the audio buffer into an external transcriber and
// reads its stdout. Each output line is either plain text or a JSON event such
// as {"text":"...","final":true}.
type CommandRecognizer struct {
	Command string
	Args    []string
	Logger  *slog.Logger
}

func NewCommandRecognizer(command string, args []string, logger *slog.Logger) *CommandRecognizer {
	return &CommandRecognizer{Command: strings.TrimSpace(command), Args: args, Logger: logger}
}

func (r *CommandRecognizer) Transcribe(ctx context.Context, audio []byte) (Fragment, error) {
	if len(audio) == 0 {
		return Fragment{Final: true}, nil
	}
	if r.Command == "" {
		return Fragment{}, fmt.Errorf("speech: no transcriber command configured")
	}
	cmd := exec.CommandContext(ctx, r.Command, r.Args...)
	cmd.Stdin = bytes.NewReader(audio)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return Fragment{}, fmt.Errorf("speech: %s: %w: %s", r.Command, err, strings.TrimSpace(stderr.String()))
	}
	return ReadFragments(&stdout), nil
}

// ReadFragments merges transcriber output. Final texts are joined; when none
// arrive the last partial is returned with Final unset.
func ReadFragments(rd io.Reader) Fragment {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	var finals []string
	var partial string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fr, ok := parseLine(line)
		if !ok {
			continue
		}
		if fr.Final {
			finals = append(finals, fr.Text)
			partial = ""
		} else {
			partial = fr.Text
		}
	}
	if len(finals) > 0 {
		return Fragment{Text: strings.Join(finals, " "), Final: true}
	}
	if partial != "" {
		return Fragment{Text: partial}
	}
	return Fragment{Final: true}
}

type transcriptEvent struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	Transcript string `json:"transcript"`
	Final      *bool  `json:"final"`
	Partial    *bool  `json:"partial"`
}

func parseLine(line string) (Fragment, bool) {
	if strings.HasPrefix(line, "{") {
		var evt transcriptEvent
		if err := json.Unmarshal([]byte(line), &evt); err == nil {
			text := strings.TrimSpace(evt.Text)
			if text == "" {
				text = strings.TrimSpace(evt.Transcript)
			}
			if text == "" {
				return Fragment{}, false
			}
			final := true
			if evt.Final != nil {
				final = *evt.Final
			}
			if evt.Partial != nil && *evt.Partial {
				final = false
			}
			if strings.Contains(strings.ToLower(evt.Type), "partial") {
				final = false
			}
			return Fragment{Text: text, Final: final}, true
		}
	}
	return Fragment{Text: line, Final: true}, true
}

// CommandSource reads raw audio from a capture process' stdout (for example
// `parec --raw` or an ffmpeg loopback) in fixed-size chunks.
type CommandSource struct {
	Command   string
	Args      []string
	ChunkSize int
	Logger    *slog.Logger
}

func NewCommandSource(command string, args []string, chunkSize int, logger *slog.Logger) *CommandSource {
	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}
	return &CommandSource{Command: strings.TrimSpace(command), Args: args, ChunkSize: chunkSize, Logger: logger}
}

func (s *CommandSource) Name() string {
	if s.Command == "" {
		return "command"
	}
	return s.Command
}

func (s *CommandSource) Start(ctx context.Context) (<-chan Chunk, error) {
	if s.Command == "" {
		return nil, fmt.Errorf("speech: no audio capture command configured")
	}
	cmd := exec.CommandContext(ctx, s.Command, s.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	out := make(chan Chunk, 32)
	go func() {
		defer close(out)
		s.readChunks(ctx, stdout, out)
		if err := cmd.Wait(); err != nil && ctx.Err() == nil && s.Logger != nil {
			s.Logger.Warn("audio capture exited", "command", s.Command, "error", err)
		}
	}()
	return out, nil
}

func (s *CommandSource) readChunks(ctx context.Context, r io.Reader, out chan<- Chunk) {
	for {
		buf := make([]byte, s.ChunkSize)
		n, err := io.ReadAtLeast(r, buf, 1)
		if n > 0 {
			select {
			case out <- Chunk{Data: buf[:n], Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
	}
}
