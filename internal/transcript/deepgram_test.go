package transcript

import (
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func results(text string, isFinal, speechFinal bool) []byte {
	b := `{"type":"Results","channel":{"alternatives":[{"transcript":"` + text + `","confidence":0.9}]},"is_final":`
	if isFinal {
		b += "true"
	} else {
		b += "false"
	}
	if speechFinal {
		b += `,"speech_final":true}`
	} else {
		b += `,"speech_final":false}`
	}
	return []byte(b)
}

func loudFrame(n int, amp uint16) []byte {
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], amp)
	}
	return pcm
}

func TestOptionsURL(t *testing.T) {
	u := Options{}.withDefaults().URL()
	for _, want := range []string{defaultEndpoint, "language=ko", "model=nova-2", "encoding=linear16", "sample_rate=16000", "utterance_end_ms=1000", "interim_results=true"} {
		if !strings.Contains(u, want) {
			t.Fatalf("url %q missing %q", u, want)
		}
	}
}

func TestHandleMessage_SpeechFinalPublishesSegments(t *testing.T) {
	d := NewDeepgram("k", Options{})
	d.handleMessage(results("통장을", false, false))
	d.handleMessage(results("통장을 넘겼어요", true, false))
	d.handleMessage(results("어제요", true, true))

	select {
	case got := <-d.Finalize():
		if got != "통장을 넘겼어요 어제요" {
			t.Fatalf("unexpected utterance %q", got)
		}
	default:
		t.Fatalf("expected finalized utterance")
	}
	var last string
	for len(d.partials) > 0 {
		last = <-d.partials
	}
	if last != "통장을 넘겼어요 어제요" {
		t.Fatalf("unexpected last partial %q", last)
	}
}

func TestHandleMessage_UtteranceEndFlushesOnce(t *testing.T) {
	d := NewDeepgram("k", Options{})
	d.handleMessage(results("네", true, false))
	d.handleMessage([]byte(`{"type":"UtteranceEnd","channel":[0,1],"last_word_end":1.2}`))
	d.handleMessage([]byte(`{"type":"UtteranceEnd","channel":[0,1],"last_word_end":1.2}`))
	if got := <-d.finals; got != "네" {
		t.Fatalf("unexpected utterance %q", got)
	}
	if len(d.finals) != 0 {
		t.Fatalf("expected a single utterance")
	}
}

func TestHandleMessage_IgnoresNoise(t *testing.T) {
	d := NewDeepgram("k", Options{})
	d.handleMessage([]byte(`not json`))
	d.handleMessage([]byte(`{"type":"Metadata","request_id":"r"}`))
	d.handleMessage(results("", true, true))
	if len(d.finals) != 0 || len(d.partials) != 0 {
		t.Fatalf("expected nothing published")
	}
}

func TestVoiceActivity(t *testing.T) {
	d := NewDeepgram("k", Options{})
	if d.RecentlyDetectedVoice(time.Second) {
		t.Fatalf("no voice before any audio")
	}
	d.observeEnergy(loudFrame(160, 10))
	if d.RecentlyDetectedVoice(time.Second) {
		t.Fatalf("quiet frame should not count as voice")
	}
	d.observeEnergy(loudFrame(160, 3000))
	if !d.RecentlyDetectedVoice(time.Second) {
		t.Fatalf("loud frame should count as voice")
	}
}

func TestConnect_NoKey(t *testing.T) {
	if err := NewDeepgram("", Options{}).Connect(); err == nil {
		t.Fatalf("expected error without API key")
	}
	if err := NewDeepgram("k", Options{}).SendPCM16KLE([]byte{0, 0}); err == nil {
		t.Fatalf("expected error before Connect")
	}
}

func TestStream_RoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotAuth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				_ = conn.WriteMessage(websocket.TextMessage, results("돈을 보냈어요", true, true))
			}
		}
	}))
	defer srv.Close()

	d := NewDeepgram("secret", Options{Endpoint: "ws" + strings.TrimPrefix(srv.URL, "http")})
	if err := d.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if auth := <-gotAuth; auth != "Token secret" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if err := d.SendPCM16KLE(loudFrame(160, 3000)); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case got := <-d.Finalize():
		if got != "돈을 보냈어요" {
			t.Fatalf("unexpected utterance %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for utterance")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := <-d.Finalize(); ok {
		t.Fatalf("finals should be closed")
	}
}
