package ocr

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/soocke/guard-overlay-go/domain/capture"
)

// Tesseract runs the tesseract CLI and parses its TSV output.
type Tesseract struct {
	Path      string
	Languages string
	Logger    *slog.Logger
}

func NewTesseract(path, languages string, logger *slog.Logger) *Tesseract {
	if strings.TrimSpace(path) == "" {
		path = "tesseract"
	}
	return &Tesseract{Path: path, Languages: languages, Logger: logger}
}

func (t *Tesseract) Recognize(ctx context.Context, res *capture.CaptureResult) ([]Line, error) {
	if emptyCapture(res) {
		return []Line{}, nil
	}
	var in bytes.Buffer
	if err := imaging.Encode(&in, res.Image, imaging.PNG); err != nil {
		return nil, fmt.Errorf("tesseract: encode frame: %w", err)
	}
	args := []string{"stdin", "stdout"}
	if t.Languages != "" {
		args = append(args, "-l", t.Languages)
	}
	args = append(args, "tsv")
	cmd := exec.CommandContext(ctx, t.Path, args...)
	cmd.Stdin = &in
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	words, err := ParseTSV(&out)
	if err != nil {
		return nil, err
	}
	lines := ClampLines(GroupWords(words), res.Image.Bounds())
	if t.Logger != nil {
		t.Logger.Debug("ocr lines", "backend", "tesseract", "words", len(words), "lines", len(lines))
	}
	return lines, nil
}

// ParseTSV reads tesseract TSV output and returns word-level entries.
// Columns: level page block par line word left top width height conf text.
func ParseTSV(r io.Reader) ([]Word, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	words := []Word{}
	header := true
	for scanner.Scan() {
		line := scanner.Text()
		if header {
			header = false
			if strings.HasPrefix(line, "level") {
				continue
			}
		}
		cols := strings.SplitN(line, "\t", 12)
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		nums := make([]int, 4)
		ok := true
		for i := range nums {
			n, err := strconv.Atoi(cols[6+i])
			if err != nil {
				ok = false
				break
			}
			nums[i] = n
		}
		if !ok {
			continue
		}
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		words = append(words, Word{
			Text:       text,
			Box:        image.Rect(nums[0], nums[1], nums[0]+nums[2], nums[1]+nums[3]),
			Confidence: conf / 100,
			Key:        cols[1] + "/" + cols[2] + "/" + cols[3] + "/" + cols[4],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("tesseract: read tsv: %w", err)
	}
	return words, nil
}
