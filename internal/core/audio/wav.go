package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var ErrInvalidWav = errors.New("invalid wav file")

const wavFormatPCM = 1

// Clip is mono audio normalized to [-1, 1].
type Clip struct {
	Samples    []float32
	SampleRate int
}

func (c Clip) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(len(c.Samples)) / float64(c.SampleRate) * float64(time.Second))
}

func DecodeFile(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("error opening %s: %w", path, err)
	}
	defer f.Close()

	clip, err := Decode(f)
	if err != nil {
		return Clip{}, fmt.Errorf("error decoding %s: %w", path, err)
	}
	return clip, nil
}

// Decode reads a PCM wav stream and down-mixes it to mono.
func Decode(r io.ReadSeeker) (Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Clip{}, fmt.Errorf("%w: missing or corrupt RIFF/WAVE header", ErrInvalidWav)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return Clip{}, fmt.Errorf("%w: unsupported wav audio format %d", ErrInvalidWav, dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("%w: %w", ErrInvalidWav, err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return Clip{}, fmt.Errorf("%w: missing format information", ErrInvalidWav)
	}
	if len(buf.Data) == 0 {
		return Clip{}, fmt.Errorf("%w: no samples", ErrInvalidWav)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(dec.BitDepth)
	}

	return Clip{
		Samples:    downmix(buf.Data, buf.Format.NumChannels, bitDepth),
		SampleRate: buf.Format.SampleRate,
	}, nil
}

func downmix(data []int, channels, bitDepth int) []float32 {
	scale := float32(math.Pow(2, float64(bitDepth-1)))
	frames := len(data) / channels
	out := make([]float32, frames)

	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			v := data[i*channels+c]
			if bitDepth == 8 {
				// 8 bit wav is unsigned
				v -= 128
			}
			sum += float32(v) / scale
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts samples between rates with linear interpolation.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || len(samples) == 0 {
		return samples
	}

	n := int(int64(len(samples)) * int64(to) / int64(from))
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	ratio := float64(from) / float64(to)
	last := len(samples) - 1

	for i := range out {
		pos := float64(i) * ratio
		lo := int(pos)
		if lo >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(lo))
		out[i] = samples[lo]*(1-frac) + samples[lo+1]*frac
	}
	return out
}

func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// WriteFile encodes mono samples as 16 bit PCM.
func WriteFile(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	defer f.Close()

	data := make([]int, len(samples))
	for i, s := range samples {
		s = max(-1, min(1, s))
		data[i] = int(s * math.MaxInt16)
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("error writing samples to %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("error finalizing %s: %w", path, err)
	}
	return nil
}
