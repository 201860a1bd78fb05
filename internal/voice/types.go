package voice

import (
	"context"
	"time"

	"github.com/Createyouracccount/last-mike/internal/agent"
)

// Transcriber is realtime STT fed with 16 kHz little-endian mono PCM.
type Transcriber interface {
	Connect() error
	SendPCM16KLE(pcm []byte) error
	// GetTranscripts carries interim text for display.
	GetTranscripts() <-chan string
	// Finalize carries each completed utterance once.
	Finalize() <-chan string
	RecentlyDetectedVoice(window time.Duration) bool
	Close() error
}

// TTS streams 48 kHz PCM mono audio for the given text.
type TTS interface {
	StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// PCM48kSink delivers synthesized audio to the caller.
type PCM48kSink interface {
	WritePCM(pcm []byte)
	FlushTail()
	// Reset drops queued audio immediately.
	Reset()
}

// Conversation is the counseling service behind a call.
type Conversation interface {
	Start(ctx context.Context, id string) (agent.Result, error)
	Turn(ctx context.Context, id, text string) (agent.Result, error)
}

// Turn reports one spoken reply. User is empty for the greeting.
type Turn struct {
	User        string
	Result      agent.Result
	Spoken      string
	Interrupted bool
}

type nopSink struct{}

func (nopSink) WritePCM([]byte) {}
func (nopSink) FlushTail()      {}
func (nopSink) Reset()          {}
