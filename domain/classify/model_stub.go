//go:build !onnx

package classify

import (
	"context"
	"errors"
	"log/slog"
)

// ErrONNXUnavailable is returned when the binary was built without the onnx tag.
var ErrONNXUnavailable = errors.New("onnx judge: built without the 'onnx' build tag")

// ONNXJudge is a placeholder so callers compile without onnxruntime.
type ONNXJudge struct{}

// NewONNXJudge always fails in builds without the onnx tag.
func NewONNXJudge(string, int, float64, *slog.Logger) (*ONNXJudge, error) {
	return nil, ErrONNXUnavailable
}

func (*ONNXJudge) Name() string { return "onnx" }

func (*ONNXJudge) Judge(context.Context, string) (ModelVerdict, error) {
	return ModelVerdict{}, ErrONNXUnavailable
}

func (*ONNXJudge) Close() error { return nil }
