package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/soocke/guard-overlay-go/domain/capture"
)

const (
	DefaultErrorCooldown = 2 * time.Second
	DefaultMaskHold      = 5 * time.Second
)

// FaultCode groups stage failures by what the operator can do about them.
type FaultCode int

const (
	FaultGeneric FaultCode = iota
	FaultPermissionDenied
	FaultNotFound
	FaultAborted
	FaultNotReadable
)

func (c FaultCode) String() string {
	switch c {
	case FaultPermissionDenied:
		return "PERMISSION_DENIED"
	case FaultNotFound:
		return "NOT_FOUND"
	case FaultAborted:
		return "ABORTED"
	case FaultNotReadable:
		return "NOT_READABLE"
	default:
		return "GENERIC"
	}
}

// Fault is a classified stage failure.
type Fault struct {
	Code    FaultCode
	Message string
	At      time.Time
	Attempt int
	RetryIn time.Duration
}

func NewFault(err error) Fault {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Fault{Code: ClassifyFault(err), Message: msg, At: time.Now()}
}

// ClassifyFault maps an error onto a FaultCode.
func ClassifyFault(err error) FaultCode {
	if err == nil {
		return FaultGeneric
	}
	switch {
	case errors.Is(err, os.ErrPermission):
		return FaultPermissionDenied
	case errors.Is(err, os.ErrNotExist), errors.Is(err, exec.ErrNotFound), errors.Is(err, capture.ErrNoDisplay):
		return FaultNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return FaultAborted
	case errors.Is(err, io.ErrUnexpectedEOF):
		return FaultNotReadable
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission denied"), strings.Contains(msg, "access is denied"):
		return FaultPermissionDenied
	case strings.Contains(msg, "not found"), strings.Contains(msg, "no such"):
		return FaultNotFound
	case strings.Contains(msg, "aborted"):
		return FaultAborted
	case strings.Contains(msg, "not readable"), strings.Contains(msg, "device busy"), strings.Contains(msg, "in use"):
		return FaultNotReadable
	}
	return FaultGeneric
}

var backoffTable = []time.Duration{time.Second, 3 * time.Second, 7 * time.Second}

// BackoffFor returns the retry delay for the given consecutive-fault index.
func BackoffFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(backoffTable) {
		return backoffTable[len(backoffTable)-1]
	}
	return backoffTable[attempt]
}
