package core

import (
	"audio-tagging/internal/core/audio"
	"audio-tagging/internal/core/types"
	"context"
	"fmt"
	"math"
)

const silenceThresholdDb = -50.0

// EnergyClassifier is a model-free baseline. It only decodes the file and
// reports whether it is silent, which makes it useful for dry runs and for
// validating a corpus before running the real model.
type EnergyClassifier struct{}

func NewEnergyClassifier() *EnergyClassifier {
	return &EnergyClassifier{}
}

func (c *EnergyClassifier) Classify(ctx context.Context, cfg types.ClassifierConfig) (types.Prediction, error) {
	clip, err := audio.DecodeFile(cfg.AudioPath)
	if err != nil {
		return types.Prediction{}, fmt.Errorf("%w: %w", ErrInvalidAudio, err)
	}

	samples := audio.Resample(clip.Samples, clip.SampleRate, cfg.SampleRate)

	rms := audio.RMS(samples)
	db := -120.0
	if rms > 0 {
		db = 20 * math.Log10(rms)
	}

	// map [-120dB, 0dB] onto [0, 1]
	loudness := float32(max(0, min(1, (db+120)/120)))

	labels := []string{"Sound", "Silence"}
	scores := []float32{loudness, 1 - loudness}
	if db < silenceThresholdDb {
		scores[0], scores[1] = min(loudness, 0.5), max(1-loudness, 0.5)
	}

	tags, err := types.TopTags(labels, scores, 0)
	if err != nil {
		return types.Prediction{}, err
	}
	return types.Prediction{Tags: tags, Labels: labels}, nil
}

func (c *EnergyClassifier) Release() {}
