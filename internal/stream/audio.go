package stream

import (
	"context"
	"sync"
	"time"
)

const (
	// frameBytes is 20ms of 48 kHz mono linear16.
	frameBytes    = 1920
	frameInterval = 20 * time.Millisecond
	// micChunkBytes is 100ms of 16 kHz mono linear16.
	micChunkBytes = 3200
	// tailFrames of silence keep the end of a reply from clipping.
	tailFrames = 10
)

type frameWriter interface {
	WriteFrame(frame []byte) error
}

// PacedWriter cuts 48 kHz PCM into 20ms frames and delivers them in real time.
type PacedWriter struct {
	out       frameWriter
	mu        sync.Mutex
	pending   []byte
	frames    chan []byte
	stopCh    chan struct{}
	closeOnce sync.Once
}

func NewPacedWriter(out frameWriter) *PacedWriter {
	w := &PacedWriter{
		out:    out,
		frames: make(chan []byte, 512),
		stopCh: make(chan struct{}),
	}
	go w.pacer()
	return w
}

func (w *PacedWriter) WritePCM(pcm []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, pcm...)
	for len(w.pending) >= frameBytes {
		frame := make([]byte, frameBytes)
		copy(frame, w.pending)
		w.pending = w.pending[frameBytes:]
		w.push(frame)
	}
	if len(w.pending) == 0 {
		w.pending = nil
	}
}

// FlushTail zero-pads the partial frame and queues a short silence tail.
func (w *PacedWriter) FlushTail() {
	w.mu.Lock()
	if len(w.pending) > 0 {
		frame := make([]byte, frameBytes)
		copy(frame, w.pending)
		w.pending = nil
		w.push(frame)
	}
	w.mu.Unlock()
	for i := 0; i < tailFrames; i++ {
		w.push(make([]byte, frameBytes))
	}
}

// Reset drops queued audio for barge-in.
func (w *PacedWriter) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = nil
	for {
		select {
		case <-w.frames:
		default:
			return
		}
	}
}

// Drain waits until every queued frame has been delivered or ctx is done.
func (w *PacedWriter) Drain(ctx context.Context) {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()
	for len(w.frames) > 0 {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
		}
	}
}

// Close stops the pacer and releases writers blocked on a full queue.
func (w *PacedWriter) Close() {
	w.closeOnce.Do(func() { close(w.stopCh) })
}

func (w *PacedWriter) pacer() {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			select {
			case frame := <-w.frames:
				_ = w.out.WriteFrame(frame)
			default:
			}
		}
	}
}

// push blocks until the frame is queued or the writer is closed.
func (w *PacedWriter) push(frame []byte) {
	select {
	case <-w.stopCh:
	case w.frames <- frame:
	}
}

// micBuffer regroups caller audio into fixed 100ms chunks for the transcriber.
type micBuffer struct {
	buf  []byte
	emit func([]byte)
}

func (m *micBuffer) Write(pcm []byte) {
	m.buf = append(m.buf, pcm...)
	for len(m.buf) >= micChunkBytes {
		chunk := make([]byte, micChunkBytes)
		copy(chunk, m.buf)
		m.buf = m.buf[micChunkBytes:]
		m.emit(chunk)
	}
}

// Flush emits whatever partial chunk remains.
func (m *micBuffer) Flush() {
	if len(m.buf) > 0 {
		m.emit(m.buf)
		m.buf = nil
	}
}
