package voice

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/Createyouracccount/last-mike/internal/agent"
)

// chunkReply splits a reply into sentence-like chunks so that only audio
// actually played is reported as spoken.
func chunkReply(reply string) []string {
	var chunks []string
	var b strings.Builder
	emit := func() {
		if c := strings.TrimSpace(b.String()); c != "" {
			chunks = append(chunks, c)
		}
		b.Reset()
	}
	for _, r := range strings.TrimSpace(reply) {
		switch r {
		case '.', '!', '?':
			b.WriteRune(r)
			emit()
		case '\n', '\r':
			emit()
		default:
			b.WriteRune(r)
		}
	}
	emit()
	return chunks
}

type Config struct {
	// SilenceWait bounds how long a reply waits for the caller to stop talking.
	SilenceWait time.Duration
	// BargeInWindow is how recent caller voice must be to interrupt playback.
	BargeInWindow time.Duration
	OnTranscript  func(text string)
	OnTurn        func(Turn)
}

// Pipeline runs one voice call: final utterances go to the counseling
// service and each reply is synthesized into the sink.
type Pipeline struct {
	id          string
	conv        Conversation
	transcriber Transcriber
	tts         TTS
	sink        PCM48kSink
	cfg         Config

	mu        sync.Mutex
	speaking  bool
	ttsCancel context.CancelFunc
	barged    bool

	ended    chan struct{}
	endOnce  sync.Once
	lastSeen agent.Result
}

func NewPipeline(id string, conv Conversation, t Transcriber, tts TTS, sink PCM48kSink, cfg Config) *Pipeline {
	if sink == nil {
		sink = nopSink{}
	}
	if cfg.SilenceWait == 0 {
		cfg.SilenceWait = 3 * time.Second
	}
	if cfg.BargeInWindow == 0 {
		cfg.BargeInWindow = 150 * time.Millisecond
	}
	return &Pipeline{id: id, conv: conv, transcriber: t, tts: tts, sink: sink, cfg: cfg, ended: make(chan struct{})}
}

// Ended is closed once the counseling session has completed and its final
// reply was played.
func (p *Pipeline) Ended() <-chan struct{} { return p.ended }

// Start connects the transcriber, opens the session and plays the greeting.
// The returned stop function closes the transcriber.
func (p *Pipeline) Start(ctx context.Context) (func(), error) {
	if err := p.transcriber.Connect(); err != nil {
		return nil, err
	}
	greeting, err := p.conv.Start(ctx, p.id)
	if err != nil {
		_ = p.transcriber.Close()
		return nil, err
	}

	go p.forwardTranscripts(ctx)
	go p.watchBargeIn(ctx)
	go p.run(ctx, greeting)

	return func() { _ = p.transcriber.Close() }, nil
}

// FeedPCM16KLE sends caller audio to the transcriber.
func (p *Pipeline) FeedPCM16KLE(pcm []byte) {
	_ = p.transcriber.SendPCM16KLE(pcm)
}

func (p *Pipeline) IsSpeaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking
}

// BargeIn stops the current reply and drops queued audio.
func (p *Pipeline) BargeIn() {
	p.mu.Lock()
	cancel := p.ttsCancel
	if p.speaking {
		p.barged = true
	}
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.sink.Reset()
}

func (p *Pipeline) forwardTranscripts(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-p.transcriber.GetTranscripts():
			if !ok {
				return
			}
			if p.cfg.OnTranscript != nil && t != "" {
				p.cfg.OnTranscript(t)
			}
		}
	}
}

// watchBargeIn interrupts playback when the caller starts talking over it.
func (p *Pipeline) watchBargeIn(ctx context.Context) {
	ticker := time.NewTicker(40 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.ended:
			return
		case <-ticker.C:
			if p.IsSpeaking() && p.transcriber.RecentlyDetectedVoice(p.cfg.BargeInWindow) {
				log.Printf("[%s] barge-in: caller voice during reply", p.id)
				p.BargeIn()
			}
		}
	}
}

func (p *Pipeline) run(ctx context.Context, greeting agent.Result) {
	if p.reply(ctx, "", greeting) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case utterance, ok := <-p.transcriber.Finalize():
			if !ok {
				return
			}
			text := strings.TrimSpace(utterance)
			if text == "" {
				continue
			}
			log.Printf("[%s] heard: %s", p.id, text)
			p.awaitSilence(ctx)

			res, err := p.conv.Turn(ctx, p.id, text)
			if errors.Is(err, agent.ErrSessionNotFound) {
				res = agent.Result{SessionID: p.id, State: agent.StateComplete, Message: agent.MsgClosed, Ended: true}
			} else if err != nil {
				log.Printf("[%s] turn failed: %v", p.id, err)
				res = agent.Result{SessionID: p.id, State: agent.StateComplete, Message: agent.MsgTemporaryProblem, Ended: true}
			}
			if p.reply(ctx, text, res) {
				return
			}
		}
	}
}

// awaitSilence waits, bounded by SilenceWait, for half a second without
// caller voice so the reply does not talk over the caller.
func (p *Pipeline) awaitSilence(ctx context.Context) {
	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.SilenceWait)
	defer cancel()
	for waitCtx.Err() == nil && p.transcriber.RecentlyDetectedVoice(500*time.Millisecond) {
		time.Sleep(50 * time.Millisecond)
	}
}

// reply speaks res and reports the turn. It returns true once the session
// has ended.
func (p *Pipeline) reply(ctx context.Context, user string, res agent.Result) bool {
	spoken, interrupted := p.speak(ctx, res.Message)
	p.mu.Lock()
	p.lastSeen = res
	p.mu.Unlock()
	if p.cfg.OnTurn != nil {
		p.cfg.OnTurn(Turn{User: user, Result: res, Spoken: spoken, Interrupted: interrupted})
	}
	if res.Ended {
		p.endOnce.Do(func() { close(p.ended) })
		return true
	}
	return false
}

func (p *Pipeline) speak(ctx context.Context, text string) (spoken string, interrupted bool) {
	ctxTTS, cancel := context.WithCancel(ctx)
	defer cancel()
	p.mu.Lock()
	p.speaking = true
	p.ttsCancel = cancel
	p.barged = false
	p.mu.Unlock()

	var done []string
	for _, chunk := range chunkReply(text) {
		if p.isBarged() {
			break
		}
		p.streamChunk(ctx, ctxTTS, chunk)
		if p.isBarged() {
			break
		}
		done = append(done, chunk)
	}

	p.mu.Lock()
	interrupted = p.barged
	p.speaking = false
	p.ttsCancel = nil
	p.barged = false
	p.mu.Unlock()
	if !interrupted {
		p.sink.FlushTail()
	}
	return strings.Join(done, " "), interrupted
}

func (p *Pipeline) streamChunk(ctx, ctxTTS context.Context, chunk string) {
	pcmCh, errCh := p.tts.StreamPCM48k(ctxTTS, chunk)
	for pcmCh != nil || errCh != nil {
		select {
		case b, ok := <-pcmCh:
			if !ok {
				pcmCh = nil
				continue
			}
			if len(b) > 0 && !p.isBarged() {
				p.sink.WritePCM(b)
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				log.Printf("[%s] tts error: %v", p.id, err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) isBarged() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.barged
}

// Last returns the most recent reply that was played.
func (p *Pipeline) Last() agent.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}
