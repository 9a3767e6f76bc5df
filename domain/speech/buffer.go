package speech

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultQuietWindow = 2500 * time.Millisecond
	DefaultMaxBytes    = 10 * 1024 * 1024
)

// Buffer coalesces audio chunks into one recognition unit. Every Append
// restarts the quiet timer; when it fires, the chunks are concatenated in
// timestamp order and handed to the flush callback. A batch that grows past
// maxBytes is discarded whole when its window closes.
type Buffer struct {
	mu       sync.Mutex
	chunks   []Chunk
	size     int
	overflow bool
	timer    *time.Timer
	gen      uint64
	stopped  bool

	quiet   time.Duration
	max     int
	onFlush func([]byte)
	logger  *slog.Logger

	flushes   atomic.Uint64
	overflows atomic.Uint64
}

// NewBuffer constructs a buffer. onFlush runs on the timer goroutine (or the
// caller's goroutine for explicit flushes) without the buffer lock held.
func NewBuffer(quiet time.Duration, maxBytes int, onFlush func([]byte), logger *slog.Logger) *Buffer {
	if quiet <= 0 {
		quiet = DefaultQuietWindow
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Buffer{quiet: quiet, max: maxBytes, onFlush: onFlush, logger: logger}
}

// Append adds a chunk and restarts the quiet window.
func (b *Buffer) Append(c Chunk) {
	if len(c.Data) == 0 {
		return
	}
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.size += len(c.Data)
	if b.size > b.max {
		// The window keeps running so the rest of the burst lands in the
		// same discarded batch.
		b.overflow = true
		b.chunks = nil
	} else {
		b.chunks = append(b.chunks, c)
	}
	b.armLocked()
	b.mu.Unlock()
}

// Flush cancels the pending timer and flushes immediately.
func (b *Buffer) Flush() {
	b.mu.Lock()
	b.disarmLocked()
	data, dropped := b.takeLocked()
	b.mu.Unlock()
	b.deliver(data, dropped)
}

// Stop cancels the timer and drops pending audio. Later appends are ignored.
func (b *Buffer) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.reset()
	b.mu.Unlock()
}

// Discard drops pending audio and cancels the timer; the buffer stays usable.
func (b *Buffer) Discard() {
	b.mu.Lock()
	b.reset()
	b.mu.Unlock()
}

// Pending reports the buffered byte count.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *Buffer) Flushes() uint64   { return b.flushes.Load() }
func (b *Buffer) Overflows() uint64 { return b.overflows.Load() }

func (b *Buffer) armLocked() {
	b.disarmLocked()
	gen := b.gen
	b.timer = time.AfterFunc(b.quiet, func() { b.fire(gen) })
}

// disarmLocked stops the timer and invalidates any callback already in flight.
func (b *Buffer) disarmLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
}

func (b *Buffer) fire(gen uint64) {
	b.mu.Lock()
	if gen != b.gen || b.stopped {
		b.mu.Unlock()
		return
	}
	b.timer = nil
	data, dropped := b.takeLocked()
	b.mu.Unlock()
	b.deliver(data, dropped)
}

// takeLocked empties the buffer. For an overflowed batch it returns no data
// and the byte count that was thrown away.
func (b *Buffer) takeLocked() ([]byte, int) {
	if b.overflow {
		dropped := b.size
		b.chunks = nil
		b.size = 0
		b.overflow = false
		return nil, dropped
	}
	if len(b.chunks) == 0 {
		return nil, 0
	}
	sort.SliceStable(b.chunks, func(i, j int) bool {
		return b.chunks[i].Timestamp.Before(b.chunks[j].Timestamp)
	})
	out := make([]byte, 0, b.size)
	for _, c := range b.chunks {
		out = append(out, c.Data...)
	}
	b.chunks = nil
	b.size = 0
	return out, 0
}

func (b *Buffer) reset() {
	b.disarmLocked()
	b.chunks = nil
	b.size = 0
	b.overflow = false
}

func (b *Buffer) deliver(data []byte, dropped int) {
	if dropped > 0 {
		b.overflows.Add(1)
		if b.logger != nil {
			b.logger.Warn("audio buffer overflow, batch discarded", "bytes", dropped, "max_bytes", b.max)
		}
		return
	}
	if len(data) == 0 || b.onFlush == nil {
		return
	}
	b.flushes.Add(1)
	b.onFlush(data)
}
