package status

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/a2dp-autoconnect/internal/audio"
	"github.com/chaz8081/a2dp-autoconnect/internal/bt"
)

var (
	headphones = bt.Device{Address: "AA:BB:CC:DD:EE:FF", Name: "Headphones"}
	success    = bt.Outcome{AttemptID: "a1", Device: headphones, Result: bt.Success}
	failure    = bt.Outcome{
		AttemptID: "a2",
		Device:    headphones,
		Result:    bt.Failure,
		Kind:      bt.KindProfileConnectFailure,
		Err:       errors.New("refused"),
	}
)

func TestLine(t *testing.T) {
	tests := []struct {
		name string
		o    bt.Outcome
		want string
	}{
		{"success", success, "Connected device :Headphones ; AA:BB:CC:DD:EE:FF"},
		{"success without name", bt.Outcome{Device: bt.Device{Address: "11:22:33:44:55:66"}}, "Connected device : ; 11:22:33:44:55:66"},
		{"failure", failure, "FAIL to Connected device!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Line(tt.o); got != tt.want {
				t.Errorf("Line() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Notify(success)
	p.Notify(failure)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q, want 2", lines)
	}
	if lines[0] != Line(success) || lines[1] != FailureLine {
		t.Errorf("lines = %q", lines)
	}
}

type mockPlayer struct {
	mu     sync.Mutex
	played []*audio.Clip
	err    error
	delay  time.Duration
}

func (p *mockPlayer) Play(ctx context.Context, clip *audio.Clip) error {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, clip)
	return p.err
}

func (p *mockPlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.played)
}

func TestChimePlaysOnSuccessOnly(t *testing.T) {
	player := &mockPlayer{delay: 10 * time.Millisecond}
	clip := audio.Tone(1000, 10*time.Millisecond, 440)
	c := NewChime(player, clip)

	c.Notify(failure)
	c.Notify(success)
	c.Close()

	if n := player.count(); n != 1 {
		t.Fatalf("plays = %d, want 1", n)
	}
	if player.played[0] != clip {
		t.Error("played a different clip")
	}
}

func TestChimeErrorIsNotFatal(t *testing.T) {
	player := &mockPlayer{err: errors.New("no output device")}
	c := NewChime(player, audio.DefaultChime())
	c.Notify(success)
	c.Close()
	if n := player.count(); n != 1 {
		t.Errorf("plays = %d, want 1", n)
	}
}

func TestChimeWithoutClip(t *testing.T) {
	player := &mockPlayer{}
	c := NewChime(player, nil)
	c.Notify(success)
	c.Close()
	if n := player.count(); n != 0 {
		t.Errorf("plays = %d, want 0", n)
	}
}

func TestMultiFansOutInOrder(t *testing.T) {
	var order []string
	m := Multi{
		bt.SinkFunc(func(o bt.Outcome) { order = append(order, "first:"+o.AttemptID) }),
		bt.SinkFunc(func(o bt.Outcome) { order = append(order, "second:"+o.AttemptID) }),
	}
	m.Notify(success)

	want := []string{"first:a1", "second:a1"}
	if len(order) != len(want) || order[0] != want[0] || order[1] != want[1] {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestWaiterWaitSkipsOtherAttempts(t *testing.T) {
	w := NewWaiter(4)
	w.Notify(failure)
	w.Notify(success)

	got, err := w.Wait(context.Background(), "a1")
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if got.AttemptID != "a1" || !got.OK() {
		t.Errorf("Wait() = %+v, want success for a1", got)
	}
}

func TestWaiterWaitContext(t *testing.T) {
	w := NewWaiter(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := w.Wait(ctx, "missing"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want deadline exceeded", err)
	}
}

func TestWaiterNotifyNeverBlocks(t *testing.T) {
	w := NewWaiter(0)
	done := make(chan struct{})
	go func() {
		w.Notify(success)
		w.Notify(failure)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full buffer")
	}
	if o := <-w.Outcomes(); o.AttemptID != "a1" {
		t.Errorf("buffered outcome = %q, want a1", o.AttemptID)
	}
}
