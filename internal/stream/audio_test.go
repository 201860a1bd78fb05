package stream

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeFrames struct {
	mu     sync.Mutex
	frames [][]byte
}

func (f *fakeFrames) WriteFrame(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeFrames) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func TestPacedWriter_FramesAndPaces(t *testing.T) {
	out := &fakeFrames{}
	w := &PacedWriter{out: out, frames: make(chan []byte, 64), stopCh: make(chan struct{})}
	defer w.Close()

	w.WritePCM(make([]byte, frameBytes*2+100))
	if got := len(w.frames); got != 2 {
		t.Fatalf("expected 2 queued frames, got %d", got)
	}
	w.FlushTail()
	want := 2 + 1 + tailFrames
	if got := len(w.frames); got != want {
		t.Fatalf("expected %d queued frames, got %d", want, got)
	}

	go w.pacer()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	w.Drain(ctx)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && out.count() < want {
		time.Sleep(5 * time.Millisecond)
	}
	if got := out.count(); got != want {
		t.Fatalf("expected %d delivered frames, got %d", want, got)
	}
	out.mu.Lock()
	defer out.mu.Unlock()
	for _, f := range out.frames {
		if len(f) != frameBytes {
			t.Fatalf("frame size %d, want %d", len(f), frameBytes)
		}
	}
}

func TestPacedWriter_ResetDrains(t *testing.T) {
	w := &PacedWriter{out: &fakeFrames{}, frames: make(chan []byte, 8), stopCh: make(chan struct{})}
	w.frames <- []byte{0x01}
	w.frames <- []byte{0x02}
	w.pending = []byte{1, 2, 3}
	w.Reset()
	select {
	case <-w.frames:
		t.Fatalf("expected frames channel to be drained")
	default:
	}
	if len(w.pending) != 0 {
		t.Fatalf("expected pending audio dropped, got len=%d", len(w.pending))
	}
}

func TestPacedWriter_CloseUnblocksPush(t *testing.T) {
	w := &PacedWriter{out: &fakeFrames{}, frames: make(chan []byte), stopCh: make(chan struct{})}
	done := make(chan struct{})
	go func() {
		w.WritePCM(make([]byte, frameBytes))
		close(done)
	}()
	w.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("write blocked after close")
	}
}

func TestMicBuffer_Regroups(t *testing.T) {
	var chunks [][]byte
	m := &micBuffer{emit: func(b []byte) { chunks = append(chunks, b) }}
	m.Write(make([]byte, 1000))
	m.Write(make([]byte, 3000))
	m.Write(make([]byte, 2500))
	if len(chunks) != 2 {
		t.Fatalf("expected 2 full chunks, got %d", len(chunks))
	}
	m.Flush()
	if len(chunks) != 3 || len(chunks[2]) != 6500-2*micChunkBytes {
		t.Fatalf("unexpected tail chunk: %d chunks", len(chunks))
	}
	m.Flush()
	if len(chunks) != 3 {
		t.Fatalf("empty flush should emit nothing")
	}
}
