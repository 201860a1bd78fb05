package transcript

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultEndpoint = "wss://api.deepgram.com/v1/listen"

// keepAliveInterval stays under the ten second idle limit of the listen API.
const keepAliveInterval = 5 * time.Second

// voiceRMS is the energy above which a 16-bit frame counts as speech.
const voiceRMS = 250.0

type Options struct {
	Model          string
	Language       string
	SampleRate     int
	UtteranceEndMs int
	// Endpoint overrides the listen URL, mainly for tests.
	Endpoint string
}

func (o Options) withDefaults() Options {
	if o.Model == "" {
		o.Model = "nova-2"
	}
	if o.Language == "" {
		o.Language = "ko"
	}
	if o.SampleRate == 0 {
		o.SampleRate = 16000
	}
	if o.UtteranceEndMs == 0 {
		o.UtteranceEndMs = 1000
	}
	if o.Endpoint == "" {
		o.Endpoint = defaultEndpoint
	}
	return o
}

// URL returns the listen endpoint with the streaming query for o.
func (o Options) URL() string {
	q := url.Values{}
	q.Set("model", o.Model)
	q.Set("language", o.Language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(o.SampleRate))
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	q.Set("vad_events", "true")
	q.Set("utterance_end_ms", strconv.Itoa(o.UtteranceEndMs))
	return o.Endpoint + "?" + q.Encode()
}

// Deepgram streams caller audio to the Deepgram listen API. Interim text is
// published on GetTranscripts; a completed utterance is published once on
// Finalize.
type Deepgram struct {
	apiKey string
	opts   Options

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	stopCh    chan struct{}
	sendDone  chan struct{}
	readDone  chan struct{}

	audio    chan []byte
	partials chan string
	finals   chan string

	accMu     sync.Mutex
	segments  []string
	lastVoice time.Time
}

func NewDeepgram(apiKey string, opts Options) *Deepgram {
	return &Deepgram{
		apiKey:   apiKey,
		opts:     opts.withDefaults(),
		stopCh:   make(chan struct{}),
		sendDone: make(chan struct{}),
		readDone: make(chan struct{}),
		audio:    make(chan []byte, 1000),
		partials: make(chan string, 100),
		finals:   make(chan string, 10),
	}
}

func (d *Deepgram) GetTranscripts() <-chan string { return d.partials }
func (d *Deepgram) Finalize() <-chan string       { return d.finals }

func (d *Deepgram) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connected {
		return nil
	}
	if d.apiKey == "" {
		return errors.New("deepgram: API key is empty")
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+d.apiKey)
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.Dial(d.opts.URL(), header)
	if err != nil {
		if resp != nil {
			log.Printf("deepgram listen: handshake status %d", resp.StatusCode)
		}
		return fmt.Errorf("deepgram listen: dial: %w", err)
	}
	d.conn = conn
	d.connected = true

	go d.readLoop(conn)
	go d.sendLoop(conn)
	log.Printf("deepgram listen: connected model=%s language=%s", d.opts.Model, d.opts.Language)
	return nil
}

// SendPCM16KLE queues 16 kHz little-endian mono PCM. Frames are dropped when
// the send buffer is full.
func (d *Deepgram) SendPCM16KLE(pcm []byte) error {
	d.mu.Lock()
	connected := d.connected
	d.mu.Unlock()
	if !connected {
		return errors.New("deepgram listen: not connected")
	}
	d.observeEnergy(pcm)
	select {
	case d.audio <- pcm:
	default:
		log.Println("deepgram listen: audio buffer full, dropping frame")
	}
	return nil
}

// RecentlyDetectedVoice reports whether speech energy was seen within window.
func (d *Deepgram) RecentlyDetectedVoice(window time.Duration) bool {
	d.accMu.Lock()
	last := d.lastVoice
	d.accMu.Unlock()
	return !last.IsZero() && time.Since(last) <= window
}

func (d *Deepgram) observeEnergy(pcm []byte) {
	if rms16(pcm) < voiceRMS {
		return
	}
	d.accMu.Lock()
	d.lastVoice = time.Now()
	d.accMu.Unlock()
}

// rms16 is the root mean square of a little-endian int16 buffer. Buffers
// shorter than 10ms at 16 kHz report zero.
func rms16(pcm []byte) float64 {
	if len(pcm) < 320 {
		return 0
	}
	step := 2
	if len(pcm) > 3200 {
		step = 8
	}
	var sum float64
	n := 0
	for i := 0; i+1 < len(pcm); i += step {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i:])))
		sum += v * v
		n++
	}
	return math.Sqrt(sum / float64(n))
}

// Close ends the stream, flushing any finalized but unpublished segments.
func (d *Deepgram) Close() error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return nil
	}
	d.connected = false
	conn := d.conn
	d.conn = nil
	d.mu.Unlock()

	close(d.stopCh)
	<-d.sendDone
	_ = conn.WriteJSON(map[string]string{"type": "CloseStream"})
	_ = conn.Close()
	<-d.readDone

	d.publishUtterance()
	close(d.partials)
	close(d.finals)
	log.Println("deepgram listen: closed")
	return nil
}

// sendLoop is the only writer on conn until Close.
func (d *Deepgram) sendLoop(conn *websocket.Conn) {
	defer close(d.sendDone)
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case pcm := <-d.audio:
			if err := conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
				log.Printf("deepgram listen: write audio: %v", err)
				return
			}
			keepAlive.Reset(keepAliveInterval)
		case <-keepAlive.C:
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`)); err != nil {
				log.Printf("deepgram listen: keepalive: %v", err)
				return
			}
		}
	}
}

func (d *Deepgram) readLoop(conn *websocket.Conn) {
	defer close(d.readDone)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-d.stopCh:
			default:
				log.Printf("deepgram listen: read: %v", err)
			}
			return
		}
		d.handleMessage(raw)
	}
}

type listenMessage struct {
	Type string `json:"type"`
	// Channel is an object on Results and an index array on UtteranceEnd.
	Channel     json.RawMessage `json:"channel"`
	IsFinal     bool            `json:"is_final"`
	SpeechFinal bool            `json:"speech_final"`
	Description string          `json:"description"`
}

type resultChannel struct {
	Alternatives []struct {
		Transcript string  `json:"transcript"`
		Confidence float64 `json:"confidence"`
	} `json:"alternatives"`
}

func (d *Deepgram) handleMessage(raw []byte) {
	var msg listenMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("deepgram listen: bad message: %v", err)
		return
	}
	switch msg.Type {
	case "Results":
		var ch resultChannel
		if err := json.Unmarshal(msg.Channel, &ch); err != nil || len(ch.Alternatives) == 0 {
			return
		}
		d.handleResult(strings.TrimSpace(ch.Alternatives[0].Transcript), msg.IsFinal, msg.SpeechFinal)
	case "UtteranceEnd":
		d.publishUtterance()
	case "Error":
		log.Printf("deepgram listen: error: %s", msg.Description)
	case "Metadata", "SpeechStarted":
	default:
		log.Printf("deepgram listen: unhandled message type %q", msg.Type)
	}
}

func (d *Deepgram) handleResult(text string, isFinal, speechFinal bool) {
	d.accMu.Lock()
	if isFinal && text != "" {
		d.segments = append(d.segments, text)
	}
	display := strings.Join(append(append([]string(nil), d.segments...), interim(text, isFinal)...), " ")
	d.accMu.Unlock()

	if display != "" {
		select {
		case d.partials <- display:
		default:
		}
	}
	if speechFinal {
		d.publishUtterance()
	}
}

func interim(text string, isFinal bool) []string {
	if isFinal || text == "" {
		return nil
	}
	return []string{text}
}

// publishUtterance emits the finalized segments of the current utterance, if any.
func (d *Deepgram) publishUtterance() {
	d.accMu.Lock()
	utterance := strings.TrimSpace(strings.Join(d.segments, " "))
	d.segments = nil
	d.accMu.Unlock()
	if utterance == "" {
		return
	}
	select {
	case d.finals <- utterance:
	case <-time.After(200 * time.Millisecond):
		log.Printf("deepgram listen: dropped utterance, consumer not reading")
	}
}
