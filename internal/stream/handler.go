package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Createyouracccount/last-mike/internal/agent"
	"github.com/Createyouracccount/last-mike/internal/voice"
)

// drainTimeout bounds how long the last reply may keep playing after the
// session has ended.
const drainTimeout = 15 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// event is a JSON text frame sent to the client. Audio travels as binary
// frames.
type event struct {
	Type        string      `json:"type"`
	ID          string      `json:"id,omitempty"`
	Text        string      `json:"text,omitempty"`
	User        string      `json:"user,omitempty"`
	State       agent.State `json:"state,omitempty"`
	Interrupted bool        `json:"interrupted,omitempty"`
	Ended       bool        `json:"ended,omitempty"`
	Error       string      `json:"error,omitempty"`
}

type controlMessage struct {
	Type string `json:"type"`
}

// Conversation is the counseling service a stream talks to.
type Conversation interface {
	voice.Conversation
	End(ctx context.Context, id string) error
}

type gauge interface {
	Inc()
	Dec()
}

// Handler serves a voice call over a WebSocket: binary 16 kHz PCM in,
// binary 48 kHz PCM and JSON events out.
type Handler struct {
	conv           Conversation
	newTranscriber func() voice.Transcriber
	tts            voice.TTS
	active         gauge
}

func NewHandler(conv Conversation, newTranscriber func() voice.Transcriber, tts voice.TTS) *Handler {
	return &Handler{conv: conv, newTranscriber: newTranscriber, tts: tts}
}

// WithActiveGauge tracks open streams.
func (h *Handler) WithActiveGauge(g gauge) *Handler {
	h.active = g
	return h
}

// wsConn serializes writes; gorilla allows one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) WriteFrame(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (w *wsConn) send(ev event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteJSON(ev); err != nil {
		log.Printf("stream: write %s event: %v", ev.Type, err)
	}
}

func (h *Handler) Serve(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("stream: upgrade error: %v", err)
		return nil
	}
	defer func() { _ = conn.Close() }()
	ws := &wsConn{conn: conn}

	if h.active != nil {
		h.active.Inc()
		defer h.active.Dec()
	}

	id := strings.TrimSpace(c.QueryParam("session"))
	if id == "" {
		id = uuid.NewString()
	}

	paced := NewPacedWriter(ws)
	defer paced.Close()

	var lastState agent.State
	p := voice.NewPipeline(id, h.conv, h.newTranscriber(), h.tts, paced, voice.Config{
		OnTranscript: func(text string) { ws.send(event{Type: "transcript", Text: text}) },
		OnTurn: func(t voice.Turn) {
			if t.Result.State != lastState {
				lastState = t.Result.State
				ws.send(event{Type: "state", State: t.Result.State})
			}
			ws.send(event{
				Type:        "turn",
				User:        t.User,
				Text:        t.Spoken,
				State:       t.Result.State,
				Interrupted: t.Interrupted,
				Ended:       t.Result.Ended,
			})
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ws.send(event{Type: "session", ID: id})
	stop, err := p.Start(ctx)
	if err != nil {
		log.Printf("[%s] stream: start failed: %v", id, err)
		ws.send(event{Type: "error", Error: agent.MsgTemporaryProblem})
		return nil
	}
	defer stop()
	log.Printf("[%s] stream: connected", id)

	hangup := make(chan struct{})
	go h.readLoop(id, conn, p, hangup)

	select {
	case <-hangup:
		log.Printf("[%s] stream: caller hung up", id)
	case <-p.Ended():
		drainCtx, drainCancel := context.WithTimeout(ctx, drainTimeout)
		paced.Drain(drainCtx)
		drainCancel()
		ws.send(event{Type: "closed", State: agent.StateComplete, Ended: true})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		return nil
	}

	cancel()
	if !p.Last().Ended {
		err := h.conv.End(context.Background(), id)
		if err != nil && !errors.Is(err, agent.ErrSessionNotFound) {
			log.Printf("[%s] stream: end failed: %v", id, err)
		}
	}
	return nil
}

// readLoop feeds caller audio to the pipeline and handles control frames
// until the client leaves.
func (h *Handler) readLoop(id string, conn *websocket.Conn, p *voice.Pipeline, hangup chan<- struct{}) {
	defer close(hangup)
	mic := &micBuffer{emit: p.FeedPCM16KLE}
	defer mic.Flush()
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			mic.Write(data)
		case websocket.TextMessage:
			var m controlMessage
			if json.Unmarshal(data, &m) != nil {
				continue
			}
			switch strings.ToLower(m.Type) {
			case "bye":
				return
			case "stop", "barge-in", "cancel":
				log.Printf("[%s] stream: client barge-in", id)
				p.BargeIn()
			}
		}
	}
}
