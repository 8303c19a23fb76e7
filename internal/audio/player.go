package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// Player plays clips on the default output device. Call Close() when done.
type Player struct {
	ctx *malgo.AllocatedContext

	// mu serialises playback; one clip plays at a time.
	mu sync.Mutex
}

// NewPlayer creates a player backed by a fresh audio context.
func NewPlayer() (*Player, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}
	return &Player{ctx: ctx}, nil
}

// Play plays clip and blocks until it finishes or ctx is done.
func (p *Player) Play(ctx context.Context, clip *Clip) error {
	if clip == nil || len(clip.Samples) == 0 {
		return nil
	}
	if clip.Channels == 0 || clip.SampleRate == 0 {
		return fmt.Errorf("audio: clip has no format")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	src := newFeed(float32ToBytes(clip.Samples), int(clip.Channels)*4)

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceCfg.Playback.Format = malgo.FormatF32
	deviceCfg.Playback.Channels = clip.Channels
	deviceCfg.SampleRate = clip.SampleRate

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			src.fill(pOutput, frameCount)
		},
	}

	device, err := malgo.InitDevice(p.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		return fmt.Errorf("initializing playback device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("starting playback device: %w", err)
	}

	select {
	case <-src.done:
		slog.Debug("[AUDIO] Clip played", "duration", clip.Duration())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases all audio resources.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx != nil {
		if err := p.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninitializing audio context: %w", err)
		}
		p.ctx.Free()
		p.ctx = nil
	}
	return nil
}

// feed hands out PCM bytes to the device callback and closes done once
// the device has asked for more than there is.
type feed struct {
	mu         sync.Mutex
	pcm        []byte
	pos        int
	frameBytes int
	done       chan struct{}
	once       sync.Once
}

func newFeed(pcm []byte, frameBytes int) *feed {
	return &feed{pcm: pcm, frameBytes: frameBytes, done: make(chan struct{})}
}

// fill copies up to frameCount frames into out and zeroes the remainder.
func (f *feed) fill(out []byte, frameCount uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()

	want := int(frameCount) * f.frameBytes
	if want > len(out) {
		want = len(out)
	}
	n := copy(out[:want], f.pcm[f.pos:])
	f.pos += n
	for i := n; i < want; i++ {
		out[i] = 0
	}
	if f.pos >= len(f.pcm) {
		f.once.Do(func() { close(f.done) })
	}
}

// float32ToBytes converts a float32 slice to little-endian bytes.
func float32ToBytes(samples []float32) []byte {
	data := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(s))
	}
	return data
}
