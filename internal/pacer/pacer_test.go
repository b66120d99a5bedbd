package pacer_test

import (
	"sync"
	"testing"
	"time"

	"github.com/voxbridge/realtime-bridge/internal/pacer"
)

// TestS1Greeting mirrors spec scenario S1: a synthetic 4800-byte agent audio
// delta at 24kHz must pace out as 5 frames of 960 bytes each, 20ms apart.
func TestS1Greeting(t *testing.T) {
	var mu sync.Mutex
	var frames [][]byte

	p := pacer.New(24000, func(frame []byte) {
		mu.Lock()
		defer mu.Unlock()
		cp := make([]byte, len(frame))
		copy(cp, frame)
		frames = append(frames, cp)
	})
	defer p.Close()

	delta := make([]byte, 4800)
	for i := range delta {
		delta[i] = byte(i % 256)
	}
	p.Emit(delta)

	deadline := time.After(300 * time.Millisecond)
	for {
		mu.Lock()
		n := len(frames)
		mu.Unlock()
		if n >= 5 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for 5 frames, got %d", n)
		case <-time.After(5 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, f := range frames[:5] {
		if len(f) != 960 {
			t.Errorf("frame %d: expected 960 bytes, got %d", i, len(f))
		}
	}
}

// TestS2BargeIn mirrors spec scenario S2: after a couple of frames pace out,
// a barge-in must stop further queued audio and emit exactly 5 silence
// frames within 40ms.
func TestS2BargeIn(t *testing.T) {
	var mu sync.Mutex
	var frames [][]byte

	p := pacer.New(24000, func(frame []byte) {
		mu.Lock()
		defer mu.Unlock()
		cp := make([]byte, len(frame))
		copy(cp, frame)
		frames = append(frames, cp)
	})
	defer p.Close()

	delta := make([]byte, 2400) // two full frames plus a 480-byte partial
	for i := range delta {
		delta[i] = 0xAA
	}
	p.Emit(delta)

	// Let the first two frames pace out.
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	framesBeforeBargeIn := len(frames)
	mu.Unlock()

	start := time.Now()
	p.BargeIn()
	elapsed := time.Since(start)

	if elapsed > 40*time.Millisecond {
		t.Errorf("expected BargeIn to return within 40ms, took %v", elapsed)
	}

	mu.Lock()
	totalAfterBargeIn := len(frames)
	silenceFrames := frames[framesBeforeBargeIn:totalAfterBargeIn]
	mu.Unlock()

	if len(silenceFrames) != 5 {
		t.Fatalf("expected exactly 5 silence frames, got %d", len(silenceFrames))
	}
	for i, f := range silenceFrames {
		for _, b := range f {
			if b != 0 {
				t.Errorf("silence frame %d: expected all-zero payload, found non-zero byte", i)
				break
			}
		}
	}

	// No further audio should emit while parked.
	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	stillParked := len(frames)
	mu.Unlock()
	if stillParked != totalAfterBargeIn {
		t.Errorf("expected no further frames while parked, got %d more", stillParked-totalAfterBargeIn)
	}

	if !p.BargedIn() {
		t.Error("expected pacer to report BargedIn() true")
	}

	p.Resume()
	if p.BargedIn() {
		t.Error("expected BargedIn() false after Resume")
	}
}

func TestEmit_BuffersPartialFrames(t *testing.T) {
	var mu sync.Mutex
	var frames [][]byte

	p := pacer.New(24000, func(frame []byte) {
		mu.Lock()
		defer mu.Unlock()
		frames = append(frames, frame)
	})
	defer p.Close()

	p.Emit(make([]byte, 500))
	p.Emit(make([]byte, 460)) // 500+460 = 960, exactly one frame

	deadline := time.After(200 * time.Millisecond)
	for {
		mu.Lock()
		n := len(frames)
		mu.Unlock()
		if n >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for combined frame")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestClose_StopsEmitting(t *testing.T) {
	var mu sync.Mutex
	var count int

	p := pacer.New(24000, func(frame []byte) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	p.Emit(make([]byte, 960))
	time.Sleep(30 * time.Millisecond)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mu.Lock()
	afterClose := count
	mu.Unlock()

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != afterClose {
		t.Errorf("expected no frames emitted after Close, got %d more", count-afterClose)
	}
}
