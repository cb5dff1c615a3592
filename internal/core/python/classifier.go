package python

import (
	"audio-tagging/internal/core/types"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

var ErrNoOutput = errors.New("python classifier produced no output")

// scriptOutput is the last line the script prints on stdout.
type scriptOutput struct {
	Labels         []string  `json:"labels"`
	ClipwiseOutput []float32 `json:"clipwise_output"`
	Error          string    `json:"error,omitempty"`
}

// ScriptClassifier runs the PANNs inference script once per file. Each call is
// a fresh interpreter, so a crash or OOM in the model only fails that file.
type ScriptClassifier struct {
	executable string
	script     string
	topK       int
}

func NewScriptClassifier(executable, script string, topK int) (*ScriptClassifier, error) {
	if executable == "" {
		return nil, fmt.Errorf("python executable is required")
	}
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("error locating python script: %w", err)
	}
	return &ScriptClassifier{executable: executable, script: script, topK: topK}, nil
}

func Args(script string, cfg types.ClassifierConfig) []string {
	args := []string{
		script,
		"--sample_rate", strconv.Itoa(cfg.SampleRate),
		"--window_size", strconv.Itoa(cfg.WindowSize),
		"--hop_size", strconv.Itoa(cfg.HopSize),
		"--mel_bins", strconv.Itoa(cfg.MelBins),
		"--fmin", strconv.Itoa(cfg.FMin),
		"--fmax", strconv.Itoa(cfg.FMax),
		"--model_type", cfg.ModelType,
		"--checkpoint_path", cfg.CheckpointPath,
		"--audio_path", cfg.AudioPath,
	}
	if cfg.UseAccelerator {
		args = append(args, "--cuda")
	}
	return args
}

func (c *ScriptClassifier) Classify(ctx context.Context, cfg types.ClassifierConfig) (types.Prediction, error) {
	cmd := exec.CommandContext(ctx, c.executable, Args(c.script, cfg)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return types.Prediction{}, ctx.Err()
		}
		return types.Prediction{}, fmt.Errorf("python classifier failed: %w: %s", err, lastLine(stderr.String()))
	}

	return ParseOutput(stdout.Bytes(), c.topK)
}

// ParseOutput decodes the JSON object on the last non-empty line of out.
// Anything printed before it (warnings, progress) is ignored.
func ParseOutput(out []byte, topK int) (types.Prediction, error) {
	line := lastLine(string(out))
	if line == "" {
		return types.Prediction{}, ErrNoOutput
	}

	var parsed scriptOutput
	if err := json.Unmarshal([]byte(line), &parsed); err != nil {
		return types.Prediction{}, fmt.Errorf("error parsing python classifier output: %w", err)
	}
	if parsed.Error != "" {
		return types.Prediction{}, errors.New(parsed.Error)
	}

	tags, err := types.TopTags(parsed.Labels, parsed.ClipwiseOutput, topK)
	if err != nil {
		return types.Prediction{}, err
	}
	return types.Prediction{Tags: tags, Labels: parsed.Labels}, nil
}

func (c *ScriptClassifier) Release() {}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
