package speech

import (
	"context"
	"time"
)

// Chunk is a slice of raw audio with its capture timestamp.
type Chunk struct {
	Data      []byte
	Timestamp time.Time
}

// Fragment is one transcript result. Partial fragments may be superseded;
// a final fragment closes its buffer window.
type Fragment struct {
	Text  string
	Final bool
}

// Recognizer converts an accumulated audio buffer into a transcript fragment.
type Recognizer interface {
	Transcribe(ctx context.Context, audio []byte) (Fragment, error)
}

// Source delivers audio chunks until ctx is cancelled or the device closes.
type Source interface {
	Name() string
	Start(ctx context.Context) (<-chan Chunk, error)
}

// Stub transcribes nothing.
type Stub struct{}

func (Stub) Transcribe(context.Context, []byte) (Fragment, error) {
	return Fragment{Final: true}, nil
}
