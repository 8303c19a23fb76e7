// Package status turns connection outcomes into things a user notices:
// status lines, log records and a chime.
package status

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/a2dp-autoconnect/internal/audio"
	"github.com/chaz8081/a2dp-autoconnect/internal/bt"
)

// FailureLine is printed for every failed attempt.
const FailureLine = "FAIL to Connected device!"

// Line renders the status line for o.
func Line(o bt.Outcome) string {
	if o.OK() {
		return fmt.Sprintf("Connected device :%s ; %s", o.Device.Name, o.Device.Address)
	}
	return FailureLine
}

// Printer writes one status line per outcome. Details are logged by the
// session.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) Notify(o bt.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, Line(o))
}

// Player plays a clip to completion.
type Player interface {
	Play(ctx context.Context, clip *audio.Clip) error
}

// Chime plays a clip after each successful connection. Playback runs in
// the background; Close waits for it.
type Chime struct {
	player Player
	clip   *audio.Clip
	slack  time.Duration

	wg sync.WaitGroup
}

// NewChime creates a Chime playing clip through player.
func NewChime(player Player, clip *audio.Clip) *Chime {
	return &Chime{player: player, clip: clip, slack: 2 * time.Second}
}

func (c *Chime) Notify(o bt.Outcome) {
	if !o.OK() || c.clip == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.clip.Duration()+c.slack)
		defer cancel()
		if err := c.player.Play(ctx, c.clip); err != nil {
			slog.Warn("[AUDIO] Chime failed", "error", err)
		}
	}()
}

// Close waits for chimes still playing.
func (c *Chime) Close() {
	c.wg.Wait()
}

// Multi delivers each outcome to every sink in order.
type Multi []bt.Sink

func (m Multi) Notify(o bt.Outcome) {
	for _, s := range m {
		s.Notify(o)
	}
}

// Waiter buffers outcomes for a consumer goroutine. Notify never blocks;
// outcomes arriving while the buffer is full are logged and dropped.
type Waiter struct {
	ch chan bt.Outcome
}

// NewWaiter creates a Waiter buffering up to size outcomes.
func NewWaiter(size int) *Waiter {
	if size < 1 {
		size = 1
	}
	return &Waiter{ch: make(chan bt.Outcome, size)}
}

func (w *Waiter) Notify(o bt.Outcome) {
	select {
	case w.ch <- o:
	default:
		slog.Warn("[BT] Outcome dropped, consumer busy", "attempt", o.AttemptID)
	}
}

// Outcomes returns the buffered outcomes.
func (w *Waiter) Outcomes() <-chan bt.Outcome {
	return w.ch
}

// Wait returns the outcome of attempt id, discarding outcomes of other
// attempts, or ctx's error.
func (w *Waiter) Wait(ctx context.Context, id string) (bt.Outcome, error) {
	for {
		select {
		case o := <-w.ch:
			if o.AttemptID == id {
				return o, nil
			}
		case <-ctx.Done():
			return bt.Outcome{}, ctx.Err()
		}
	}
}

var (
	_ bt.Sink = (*Printer)(nil)
	_ bt.Sink = (*Chime)(nil)
	_ bt.Sink = Multi(nil)
	_ bt.Sink = (*Waiter)(nil)
	_ Player  = (*audio.Player)(nil)
)
