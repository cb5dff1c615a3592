package types

import (
	"fmt"
	"sort"
	"strings"
)

// ClassifierConfig carries the sampling and model parameters for a single
// classification call. A batch holds one of these as a read-only template and
// derives a per-file copy with WithAudioPath.
type ClassifierConfig struct {
	SampleRate     int    `yaml:"sample_rate" json:"sample_rate"`
	WindowSize     int    `yaml:"window_size" json:"window_size"`
	HopSize        int    `yaml:"hop_size" json:"hop_size"`
	MelBins        int    `yaml:"mel_bins" json:"mel_bins"`
	FMin           int    `yaml:"fmin" json:"fmin"`
	FMax           int    `yaml:"fmax" json:"fmax"`
	ModelType      string `yaml:"model_type" json:"model_type"`
	CheckpointPath string `yaml:"checkpoint_path" json:"checkpoint_path"`
	AudioPath      string `yaml:"audio_path" json:"audio_path"`
	UseAccelerator bool   `yaml:"use_accelerator" json:"use_accelerator"`
}

func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		SampleRate:     32000,
		WindowSize:     1024,
		HopSize:        320,
		MelBins:        64,
		FMin:           50,
		FMax:           14000,
		ModelType:      "Cnn14",
		CheckpointPath: "files/Cnn14_mAP=0.431.pth",
		UseAccelerator: false,
	}
}

// WithAudioPath returns a copy of the config targeting path. The receiver is
// left untouched.
func (c ClassifierConfig) WithAudioPath(path string) ClassifierConfig {
	c.AudioPath = path
	return c
}

func (c ClassifierConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.WindowSize <= 0 || c.HopSize <= 0 {
		return fmt.Errorf("window_size and hop_size must be positive, got %d/%d", c.WindowSize, c.HopSize)
	}
	if c.MelBins <= 0 {
		return fmt.Errorf("mel_bins must be positive, got %d", c.MelBins)
	}
	if c.FMin < 0 || c.FMax <= c.FMin {
		return fmt.Errorf("invalid frequency range fmin=%d fmax=%d", c.FMin, c.FMax)
	}
	if c.ModelType == "" {
		return fmt.Errorf("model_type is required")
	}
	return nil
}

type Tag struct {
	Label       string  `json:"label"`
	Probability float32 `json:"probability"`
}

type Prediction struct {
	Tags   []Tag    `json:"tags"`
	Labels []string `json:"labels,omitempty"`
}

// TopTags sorts scores by descending probability and keeps the first k
// (k <= 0 keeps everything). labels[i] names scores[i].
func TopTags(labels []string, scores []float32, k int) ([]Tag, error) {
	if len(labels) != len(scores) {
		return nil, fmt.Errorf("label count %d does not match score count %d", len(labels), len(scores))
	}

	tags := make([]Tag, len(scores))
	for i, score := range scores {
		tags[i] = Tag{Label: labels[i], Probability: score}
	}

	sort.SliceStable(tags, func(i, j int) bool {
		return tags[i].Probability > tags[j].Probability
	})

	if k > 0 && len(tags) > k {
		tags = tags[:k]
	}
	return tags, nil
}

// Summary is the serialized form stored in the Result column of the log.
func (p Prediction) Summary() string {
	parts := make([]string, 0, len(p.Tags))
	for _, tag := range p.Tags {
		parts = append(parts, fmt.Sprintf("%s:%.3f", tag.Label, tag.Probability))
	}
	return strings.Join(parts, "; ")
}

// Top returns the highest probability tag, or false if there are no tags.
func (p Prediction) Top() (Tag, bool) {
	if len(p.Tags) == 0 {
		return Tag{}, false
	}
	best := p.Tags[0]
	for _, tag := range p.Tags[1:] {
		if tag.Probability > best.Probability {
			best = tag
		}
	}
	return best, true
}

// ParseSummary is the inverse of Summary. Labels may contain ':' and ',' so
// the probability is taken after the last ':'.
func ParseSummary(summary string) ([]Tag, error) {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil, nil
	}

	var tags []Tag
	for _, part := range strings.Split(summary, "; ") {
		idx := strings.LastIndex(part, ":")
		if idx < 0 {
			return nil, fmt.Errorf("malformed tag %q", part)
		}
		var prob float32
		if _, err := fmt.Sscanf(part[idx+1:], "%g", &prob); err != nil {
			return nil, fmt.Errorf("malformed probability in tag %q: %w", part, err)
		}
		tags = append(tags, Tag{Label: part[:idx], Probability: prob})
	}
	return tags, nil
}
