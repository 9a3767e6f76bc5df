//go:build onnx

package classify

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXJudge runs a character-level toxicity classifier. The model takes an
// int64 [1, maxLen] tensor of Unicode code points and returns [1, 2] logits
// ordered (safe, harmful).
type ONNXJudge struct {
	mu         sync.Mutex
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	maxLen     int
	threshold  float64
	logger     *slog.Logger
}

// NewONNXJudge loads the model. Requires build tag 'onnx'.
func NewONNXJudge(modelPath string, maxLen int, threshold float64, logger *slog.Logger) (*ONNXJudge, error) {
	if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("onnx environment: %w", err)
		}
	}
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx model io %s: %w", modelPath, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("onnx model %s declares no inputs or outputs", modelPath)
	}
	sess, err := ort.NewDynamicAdvancedSession(modelPath, []string{inputs[0].Name}, []string{outputs[0].Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("onnx session: %w", err)
	}
	if maxLen <= 0 {
		maxLen = 128
	}
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.5
	}
	if logger != nil {
		logger.Info("onnx judge ready", "model", modelPath, "input", inputs[0].Name, "output", outputs[0].Name)
	}
	return &ONNXJudge{session: sess, inputName: inputs[0].Name, outputName: outputs[0].Name, maxLen: maxLen, threshold: threshold, logger: logger}, nil
}

func (j *ONNXJudge) Name() string { return "onnx" }

func (j *ONNXJudge) Judge(ctx context.Context, text string) (ModelVerdict, error) {
	if err := ctx.Err(); err != nil {
		return ModelVerdict{}, err
	}
	ids := encodeCodepoints(text, j.maxLen)
	input, err := ort.NewTensor(ort.NewShape(1, int64(j.maxLen)), ids)
	if err != nil {
		return ModelVerdict{}, fmt.Errorf("onnx input tensor: %w", err)
	}
	defer input.Destroy()

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.session == nil {
		return ModelVerdict{}, fmt.Errorf("onnx judge closed")
	}
	outputs := []ort.Value{nil}
	if err := j.session.Run([]ort.Value{input}, outputs); err != nil {
		return ModelVerdict{}, fmt.Errorf("onnx run: %w", err)
	}
	defer outputs[0].Destroy()
	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return ModelVerdict{}, fmt.Errorf("onnx: unexpected output type (want float32 tensor)")
	}
	data := out.GetData()
	if len(data) < 2 {
		return ModelVerdict{}, fmt.Errorf("onnx: expected 2 logits, got %d", len(data))
	}
	p := softmaxHarmful(float64(data[0]), float64(data[1]))
	return ModelVerdict{Harmful: p >= j.threshold, Confidence: p, Label: "onnx"}, nil
}

// Close releases the session and the runtime environment.
func (j *ONNXJudge) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.session != nil {
		j.session.Destroy()
		j.session = nil
	}
	return ort.DestroyEnvironment()
}

func encodeCodepoints(text string, maxLen int) []int64 {
	ids := make([]int64, maxLen)
	i := 0
	for _, r := range Normalize(text) {
		if i >= maxLen {
			break
		}
		ids[i] = int64(r)
		i++
	}
	return ids
}

func softmaxHarmful(safe, harmful float64) float64 {
	m := math.Max(safe, harmful)
	es, eh := math.Exp(safe-m), math.Exp(harmful-m)
	return eh / (es + eh)
}
