package audio

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// Clip is interleaved float32 PCM in [-1.0, 1.0].
type Clip struct {
	SampleRate uint32
	Channels   uint32
	Samples    []float32
}

// Duration returns the playing time of the clip.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	frames := len(c.Samples) / int(c.Channels)
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// LoadClip decodes a PCM WAV file.
func LoadClip(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open clip: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("audio: %s is not a valid WAV file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: decode WAV: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: %s has no usable format", path)
	}

	scale, offset, err := pcmScale(int(dec.BitDepth))
	if err != nil {
		return nil, err
	}
	samples := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		samples[i] = float32(s-offset) / scale
	}

	return &Clip{
		SampleRate: uint32(buf.Format.SampleRate),
		Channels:   uint32(buf.Format.NumChannels),
		Samples:    samples,
	}, nil
}

// pcmScale returns the divisor and zero offset for integer PCM of depth
// bits. 8-bit WAV is unsigned.
func pcmScale(depth int) (float32, int, error) {
	switch depth {
	case 8:
		return 128, 128, nil
	case 16:
		return 32768, 0, nil
	case 24:
		return 8388608, 0, nil
	case 32:
		return 2147483648, 0, nil
	default:
		return 0, 0, fmt.Errorf("audio: unsupported bit depth %d", depth)
	}
}

// Tone builds the built-in chime: one sine note per frequency, each lasting
// note, with a short fade at both ends to avoid clicks.
func Tone(sampleRate uint32, note time.Duration, freqs ...float64) *Clip {
	perNote := int(float64(sampleRate) * note.Seconds())
	fade := perNote / 10
	samples := make([]float32, 0, perNote*len(freqs))

	for _, freq := range freqs {
		for i := 0; i < perNote; i++ {
			gain := 0.4
			if fade > 0 {
				switch {
				case i < fade:
					gain *= float64(i) / float64(fade)
				case i >= perNote-fade:
					gain *= float64(perNote-1-i) / float64(fade)
				}
			}
			v := gain * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
			samples = append(samples, float32(v))
		}
	}

	return &Clip{SampleRate: sampleRate, Channels: 1, Samples: samples}
}

// DefaultChime is the tone played when no chime file is configured.
func DefaultChime() *Clip {
	return Tone(44100, 120*time.Millisecond, 880, 1318.5)
}
