package tts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
)

type Options struct {
	// Model names the Aura voice. It has no default because replies are
	// Korean and the voice must be chosen to match.
	Model      string
	SampleRate int
	// IdleWindow ends a stream when no audio arrived for this long after
	// the first frame and Deepgram never acknowledged the flush.
	IdleWindow  time.Duration
	MaxDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.SampleRate == 0 {
		o.SampleRate = 48000
	}
	if o.IdleWindow == 0 {
		o.IdleWindow = 400 * time.Millisecond
	}
	if o.MaxDuration == 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

// Deepgram synthesizes counselor replies as linear16 PCM over the Deepgram
// speak WebSocket.
type Deepgram struct {
	apiKey string
	opts   Options
}

func NewDeepgram(apiKey string, opts Options) *Deepgram {
	return &Deepgram{apiKey: apiKey, opts: opts.withDefaults()}
}

var phoneDash = regexp.MustCompile(`(\d)-(\d)`)

// Speakable flattens a display message for synthesis: line breaks become
// pauses and the dash inside hotline numbers is read as "다시".
func Speakable(text string) string {
	text = strings.ReplaceAll(text, "\n", " ")
	text = phoneDash.ReplaceAllString(text, "$1 다시 $2")
	return strings.Join(strings.Fields(text), " ")
}

// StreamPCM48k streams audio for text. Both channels are closed when the
// utterance is done, ctx is cancelled, or synthesis fails.
func (d *Deepgram) StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcm := make(chan []byte, 4096)
	errc := make(chan error, 1)
	go func() {
		defer close(pcm)
		defer close(errc)
		if err := d.speak(ctx, Speakable(text), pcm); err != nil {
			errc <- err
		}
	}()
	return pcm, errc
}

func (d *Deepgram) speak(ctx context.Context, text string, out chan<- []byte) error {
	if d.apiKey == "" {
		return errors.New("deepgram: API key missing")
	}
	if d.opts.Model == "" {
		return errors.New("deepgram: TTS model missing")
	}
	if text == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	audio := make(chan struct{}, 1)
	flushed := make(chan struct{})
	var flushOnce sync.Once
	cb := &speakCallback{
		onBinary: func(data []byte) error {
			if len(data) == 0 {
				return nil
			}
			select {
			case out <- append([]byte(nil), data...):
			default:
			}
			select {
			case audio <- struct{}{}:
			default:
			}
			return nil
		},
		onFlushed: func() { flushOnce.Do(func() { close(flushed) }) },
	}

	options := &clientinterfaces.WSSpeakOptions{
		Model:      d.opts.Model,
		Encoding:   "linear16",
		SampleRate: d.opts.SampleRate,
	}
	dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
	if err != nil {
		return fmt.Errorf("deepgram: create ws client: %w", err)
	}
	var stopOnce sync.Once
	defer stopOnce.Do(dg.Stop)

	if ok := dg.Connect(); !ok {
		return errors.New("deepgram: connect failed")
	}
	if err := dg.SpeakWithText(text); err != nil {
		return fmt.Errorf("deepgram: speak text: %w", err)
	}
	if err := dg.Flush(); err != nil {
		log.Printf("deepgram: flush error: %v", err)
	}

	idle := time.NewTimer(d.opts.MaxDuration)
	defer idle.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-flushed:
			return nil
		case <-audio:
			idle.Reset(d.opts.IdleWindow)
		case <-idle.C:
			return nil
		}
	}
}

type speakCallback struct {
	onBinary  func([]byte) error
	onFlushed func()
}

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(*msginterfaces.WarningResponse) error   { return nil }
func (s *speakCallback) UnhandledEvent([]byte) error                    { return nil }

func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error {
	if s.onFlushed != nil {
		s.onFlushed()
	}
	return nil
}

func (s *speakCallback) Error(e *msginterfaces.ErrorResponse) error {
	if e != nil {
		log.Printf("deepgram: speak error: %s", e.ErrMsg)
	}
	return nil
}

func (s *speakCallback) Binary(byMsg []byte) error {
	if s.onBinary != nil {
		return s.onBinary(byMsg)
	}
	return nil
}
