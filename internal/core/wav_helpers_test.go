package core

import (
	"audio-tagging/internal/core/audio"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeTone writes 0.2s of a loud square wave.
func writeTone(t *testing.T, dir, name string) string {
	path := filepath.Join(dir, name)
	samples := make([]float32, 3200)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 0.25
		} else {
			samples[i] = -0.25
		}
	}
	require.NoError(t, audio.WriteFile(path, samples, 16000))
	return path
}

func writeSilence(path string) error {
	return audio.WriteFile(path, make([]float32, 3200), 16000)
}
